package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/domain/task"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyles = map[task.Status]lipgloss.Style{
		task.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		task.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		task.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		task.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// renderer prints the snapshot stream of one run.
type renderer struct {
	w         io.Writer
	asJSON    bool
	finalOnly bool

	// logsShown counts audit lines already printed; snapshots repeat the full log.
	logsShown int
}

func newRenderer(w io.Writer, asJSON, finalOnly bool) *renderer {
	return &renderer{w: w, asJSON: asJSON, finalOnly: finalOnly}
}

// Snapshot prints one iteration.
func (r *renderer) Snapshot(s orchestration.Snapshot) error {
	if r.finalOnly && s.HasUnfinished() {
		return nil
	}
	if r.asJSON {
		return json.NewEncoder(r.w).Encode(s)
	}

	var b strings.Builder
	fmt.Fprintln(&b, headerStyle.Render(fmt.Sprintf("Iteration %d", s.Iteration)))

	start := min(r.logsShown, len(s.Logs))
	if r.finalOnly {
		start = 0
	}
	for _, line := range s.Logs[start:] {
		fmt.Fprintln(&b, labelStyle.Render("  "+line))
	}
	r.logsShown = len(s.Logs)

	b.WriteString(taskTable(s))
	_, err := io.WriteString(r.w, b.String())
	return err
}

// taskTable renders the tasks with the status column last, so color codes do not
// disturb alignment.
func taskTable(s orchestration.Snapshot) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTARGET\tRETRIES\tSTATUS")
	for _, t := range s.Tasks {
		status := string(t.Status)
		if st, ok := statusStyles[t.Status]; ok {
			status = st.Render(status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.Type, t.Target, s.RetryCount[t.ID], status)
	}
	_ = tw.Flush()
	return b.String()
}

// Summary prints totals, findings and scope violations of the final snapshot.
func (r *renderer) Summary(s orchestration.Snapshot, errorsLogged int64) error {
	if r.asJSON {
		return nil
	}

	var b strings.Builder
	fmt.Fprintln(&b, headerStyle.Render("Summary"))
	fmt.Fprintf(&b, "  tasks: %d  completed: %d  failed: %d  iterations: %d\n",
		len(s.Tasks),
		s.CountByStatus(task.StatusCompleted),
		s.CountByStatus(task.StatusFailed),
		s.Iteration,
	)

	violations := s.ScopeViolations()
	fmt.Fprintf(&b, "  scope violations: %d\n", len(violations))
	for _, v := range violations {
		fmt.Fprintln(&b, "    "+v)
	}
	if errorsLogged > 0 {
		fmt.Fprintf(&b, "  errors logged: %d\n", errorsLogged)
	}

	for _, t := range s.Tasks {
		res, ok := s.Results[t.ID]
		if !ok {
			continue
		}
		if res.Error != "" {
			fmt.Fprintf(&b, "  %s %s: error: %s\n", t.Type, t.ID, res.Error)
		}
		for _, f := range res.Findings {
			fmt.Fprintf(&b, "  %s %s: %s\n", t.Type, t.ID, f)
		}
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}
