package app

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/session"
)

// printSummary writes the human-readable outcome of a build.
func printSummary(w io.Writer, verb string, r *session.Report) {
	if r.NothingToBuild() {
		fmt.Fprintf(w, "%s: nothing to build (%s)\n", verb, r.Elapsed.Round(time.Millisecond))
		return
	}

	steps, skipped, peak := 0, 0, 0
	for _, res := range r.Results() {
		steps += len(res.Reports)
		skipped += len(res.Skipped)
		if res.PeakSlots > peak {
			peak = res.PeakSlots
		}
		for _, rep := range res.Failed() {
			fmt.Fprintf(w, "FAILED %s [%s]\n", rep.Step, rep.Status)
			var be *executor.BuildError
			if errors.As(rep.Err, &be) {
				fmt.Fprintf(w, "  command: %s\n", be.Command)
				if out := strings.TrimSpace(be.Output); out != "" {
					for _, line := range strings.Split(out, "\n") {
						fmt.Fprintf(w, "  | %s\n", line)
					}
				}
			} else if rep.Err != nil {
				fmt.Fprintf(w, "  %v\n", rep.Err)
			}
		}
	}

	fmt.Fprintf(w, "%s %s: %d steps", verb, statusWord(r.Status), steps)
	if skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", skipped)
	}
	if r.StaleRemoved > 0 {
		fmt.Fprintf(w, ", %d stale outputs removed", r.StaleRemoved)
	}
	fmt.Fprintf(w, " in %s (parallel slots used: %d)\n", r.Elapsed.Round(time.Millisecond), peak)
}

func statusWord(s executor.Status) string {
	switch s {
	case executor.StatusOK:
		return "succeeded"
	case executor.StatusCancelled:
		return "cancelled"
	default:
		return "failed (" + s.String() + ")"
	}
}
