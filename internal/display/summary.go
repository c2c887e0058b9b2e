package display

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/models"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

func statusText(s models.Status) string {
	switch s {
	case models.StatusActive, models.StatusCompleted:
		return green.Sprint(s)
	case models.StatusRejected:
		return red.Sprint(s)
	default:
		return yellow.Sprint(s)
	}
}

// PermitLine prints "<id>  <status>  <number>  <description>" for listings.
// Templates show their name instead of a number.
func PermitLine(w io.Writer, p *models.Permit) {
	label := p.Number
	if p.IsTemplate {
		label = p.TemplateName
	}
	if label == "" {
		label = "-"
	}
	fmt.Fprintf(w, "%s  %s  %s  %s\n", bold.Sprint(p.ID), statusText(p.Status), label, p.Description)
}

// EvaluationSummary prints the outcome of an evaluation pass.
func EvaluationSummary(w io.Writer, p *models.Permit, ev *engine.Evaluation) {
	fmt.Fprintf(w, "Permit %s (%s)\n", bold.Sprint(p.ID), statusText(p.Status))
	for _, r := range ev.Questionnaires {
		mark := green.Sprint("✓")
		if len(r.Incomplete) > 0 || len(r.MissingControls) > 0 {
			mark = yellow.Sprint("…")
		}
		source := ""
		if st := p.Specialized(r.Key); st.RequiredSource == models.ForceCrossTrigger && st.TriggeredBy != nil {
			source = fmt.Sprintf(" (required by %s)", st.TriggeredBy)
		}
		fmt.Fprintf(w, "  %s %s: %d visible, %d outstanding%s\n",
			mark, r.Key, r.Visible.Count(), len(r.Incomplete)+len(r.MissingControls), source)
	}
	for _, hit := range ev.Forced {
		fmt.Fprintf(w, "  + %s now required by %s\n", hit.Target, hit.Ref())
	}
	fmt.Fprintf(w, "  controls recorded: %d\n", len(ev.Controls))
	if ev.Blocked() {
		fmt.Fprintf(w, "  %s\n", red.Sprint("BLOCKED"))
	} else if ev.Complete() {
		fmt.Fprintf(w, "  %s\n", green.Sprint("ready for approval"))
	}
}
