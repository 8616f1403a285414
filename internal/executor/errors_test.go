package executor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusOK, Worst(StatusOK, StatusOK))
	assert.Equal(t, StatusBuildError, Worst(StatusOK, StatusBuildError))
	assert.Equal(t, StatusLaunchError, Worst(StatusLaunchError, StatusBuildError))
	assert.Equal(t, StatusCancelled, Worst(StatusLaunchError, StatusCancelled))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusCancelled, StatusOf(fmt.Errorf("wrapped: %w", ErrCancelled)))
	assert.Equal(t, StatusLaunchError, StatusOf(&LaunchError{Step: "cc#3", Command: "cc", Err: errors.New("no such file")}))
	assert.Equal(t, StatusBuildError, StatusOf(&BuildError{Step: "cc#3", Command: "cc", ExitCode: 1}))
}

func TestErrorMessages(t *testing.T) {
	be := &BuildError{Step: "cc#3", Command: "cc -c a.c", ExitCode: 2}
	assert.Equal(t, `step cc#3: command "cc -c a.c" failed with exit code 2`, be.Error())

	cause := errors.New("exec format error")
	le := &LaunchError{Step: "cc#3", Command: "./tool", Err: cause}
	assert.ErrorIs(t, le, cause)
	assert.Contains(t, le.Error(), "cannot launch")
}
