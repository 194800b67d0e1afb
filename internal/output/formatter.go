package output

import (
	"fmt"
	"io"

	"buildlogger/internal/capture"
)

// WriteSummary writes a plain-text listing of the capture: one line per
// invocation in PID order, followed by any capture log issues.
func WriteSummary(w io.Writer, store *capture.Store) error {
	for _, inv := range store.All() {
		if _, err := fmt.Fprintf(w, "[%d<-%d] %s (%s)\n", inv.Pid, inv.Ppid, inv.Cmdline(), inv.Dir); err != nil {
			return err
		}
	}

	issues := store.Issues()
	if len(issues) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%d capture issue(s):\n", len(issues)); err != nil {
		return err
	}
	for _, issue := range issues {
		if _, err := fmt.Fprintf(w, "  %s\n", issue); err != nil {
			return err
		}
	}
	return nil
}
