// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package procpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/specialistvlad/gridbuild/internal/ctxlog"
)

// State is the lifecycle state of a Handle.
type State int

const (
	// Illegal handles hold no process and can be launched.
	Illegal State = iota
	// Running handles hold a live process.
	Running
	// Done handles hold a process that exited on its own.
	Done
	// Cancelled handles hold a process that exited after Terminate.
	Cancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Illegal:
		return "illegal"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultMaxOutput bounds the output captured per process.
const DefaultMaxOutput = 1 << 20

// ErrPoolFull is returned by Launch when every handle is in use.
var ErrPoolFull = errors.New("process pool is full")

// Spec describes one process to launch.
type Spec struct {
	Argv []string
	Dir  string
	// Env is the complete NAME=VALUE environment of the process.
	Env []string
	// Stream, when set, receives the combined output as it is produced. It
	// must be safe for concurrent use.
	Stream io.Writer
}

// Handle is one slot of the pool.
type Handle struct {
	slot int

	// Guarded by the owning pool's mutex.
	state      State
	exitCode   int
	waitErr    error
	terminated bool
	cmd        *exec.Cmd
	out        *limitedBuffer
	argv       []string
}

// Slot returns the index of the handle in its pool.
func (h *Handle) Slot() int { return h.slot }

// Result is what a finished process left behind.
type Result struct {
	State    State
	ExitCode int
	// Err is set when the process did not exit normally (killed by a
	// signal, or the wait itself failed).
	Err    error
	Output []byte
	Argv   []string
}

// Pool is a fixed-size set of process handles.
type Pool struct {
	mu        sync.Mutex
	handles   []*Handle
	maxOutput int
	launched  int
}

// New creates a pool with size slots.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{handles: make([]*Handle, size), maxOutput: DefaultMaxOutput}
	for i := range p.handles {
		p.handles[i] = &Handle{slot: i}
	}
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int { return len(p.handles) }

// Launch starts a process in the first free slot without waiting for it.
// The returned error wraps ErrPoolFull when no slot is free, or describes why
// the process could not be started.
func (p *Pool) Launch(ctx context.Context, spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("launch: empty command line")
	}

	p.mu.Lock()
	var h *Handle
	for _, c := range p.handles {
		if c.state == Illegal {
			h = c
			break
		}
	}
	if h == nil {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	out := &limitedBuffer{limit: p.maxOutput}
	var w io.Writer = out
	if spec.Stream != nil {
		w = io.MultiWriter(out, spec.Stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("starting %q: %w", spec.Argv[0], err)
	}
	h.state = Running
	h.exitCode = 0
	h.waitErr = nil
	h.terminated = false
	h.cmd = cmd
	h.out = out
	h.argv = append([]string(nil), spec.Argv...)
	p.launched++
	p.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Process launched.", "slot", h.slot, "pid", cmd.Process.Pid, "argv", spec.Argv)
	go p.wait(h, cmd)
	return h, nil
}

func (p *Pool) wait(h *Handle, cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if h.cmd != cmd {
		return
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		h.exitCode = 0
	case errors.As(err, &exitErr):
		h.exitCode = exitErr.ExitCode()
		if h.exitCode < 0 {
			h.waitErr = err
		}
	default:
		h.exitCode = -1
		h.waitErr = err
	}
	if h.terminated {
		h.state = Cancelled
	} else {
		h.state = Done
	}
}

// State returns the current state of a handle.
func (p *Pool) State(h *Handle) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return h.state
}

// Result returns what the process of a finished handle left behind. It is
// only meaningful once the state is Done or Cancelled.
func (p *Pool) Result(h *Handle) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := Result{State: h.state, ExitCode: h.exitCode, Err: h.waitErr, Argv: h.argv}
	if h.out != nil {
		r.Output = h.out.Bytes()
	}
	return r
}

// Release returns a finished handle to the Illegal state so that Launch can
// reuse it. Releasing a running handle is an error.
func (p *Pool) Release(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch h.state {
	case Running:
		return fmt.Errorf("release: slot %d is still running", h.slot)
	case Illegal:
		return nil
	}
	h.state = Illegal
	h.cmd = nil
	h.out = nil
	h.argv = nil
	return nil
}

// Terminate asks the process of a running handle to stop. The handle becomes
// Cancelled once the process has exited.
func (p *Pool) Terminate(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.state != Running {
		return nil
	}
	h.terminated = true
	return terminate(h.cmd)
}

// TerminateAll sends a terminate request to every running process and
// returns how many were asked to stop.
func (p *Pool) TerminateAll(ctx context.Context) int {
	logger := ctxlog.FromContext(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if h.state != Running {
			continue
		}
		h.terminated = true
		if err := terminate(h.cmd); err != nil {
			logger.Warn("Terminate request failed.", "slot", h.slot, "error", err)
			continue
		}
		n++
	}
	return n
}

// Running returns the number of handles holding a live process.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if h.state == Running {
			n++
		}
	}
	return n
}

// Free returns the number of handles a Launch could use.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.handles {
		if h.state == Illegal {
			n++
		}
	}
	return n
}

// Launched returns how many processes the pool has started.
func (p *Pool) Launched() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launched
}

// limitedBuffer keeps at most limit bytes and reports success for the rest,
// so a chatty process is never blocked on its output pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]byte(nil), b.buf.Bytes()...)
	if b.truncated {
		out = append(out, "\n[output truncated]\n"...)
	}
	return out
}
