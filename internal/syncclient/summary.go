package syncclient

import (
	"fmt"
	"io"
	"strings"
)

// Stats accumulates counters over a join session for a closing summary,
// the client-side analog of the host's per-request logging.
type Stats struct {
	FilesReceived   int
	FilesProposed   int
	FilesAccepted   int
	FilesReconciled int
}

// Stats returns a snapshot of the session's counters so far.
func (c *Client) Stats() Stats {
	return c.stats
}

// PrintSummary prints a human-readable session summary, in the style of the
// teacher's own end-of-session change report.
func PrintSummary(w io.Writer, s Stats) {
	if s.FilesReceived == 0 && s.FilesProposed == 0 {
		_, _ = fmt.Fprintln(w, "\nNo changes synchronized.")
		return
	}

	_, _ = fmt.Fprintln(w, "\nSync session summary")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 40))
	_, _ = fmt.Fprintf(w, "  received from host:  %d\n", s.FilesReceived)
	_, _ = fmt.Fprintf(w, "  proposed to host:    %d\n", s.FilesProposed)
	_, _ = fmt.Fprintf(w, "  accepted:            %d\n", s.FilesAccepted)
	_, _ = fmt.Fprintf(w, "  reconciled (losing): %d\n", s.FilesReconciled)
}
