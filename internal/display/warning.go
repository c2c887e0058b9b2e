package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/ptw/internal/engine"
)

// Warning is a user-facing panel listing the items that need attention.
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Items      []string // One line per affected question (optional)
	Suggestion string   // Action to take (optional)
}

// Empty reports whether the panel has nothing to show.
func (w Warning) Empty() bool {
	return w.Title == "" && len(w.Items) == 0
}

// Display writes the panel in yellow.
func (w Warning) Display(out io.Writer) {
	if w.Empty() {
		return
	}
	var b strings.Builder

	b.WriteString("⚠️  ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	for i, item := range w.Items {
		fmt.Fprintf(&b, "      %d. %s\n", i+1, item)
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	color.New(color.FgYellow).Fprint(out, b.String())
}

// BlockingPanel lists every blocking answer. It is empty when there are none.
func BlockingPanel(violations []engine.Violation) Warning {
	if len(violations) == 0 {
		return Warning{}
	}
	items := make([]string, 0, len(violations))
	for _, v := range violations {
		items = append(items, fmt.Sprintf("[%s] %s (answered %q)", v.Questionnaire, v.Text, v.Answer))
	}
	title := "Permit cannot be issued: 1 blocking answer"
	if len(items) > 1 {
		title = fmt.Sprintf("Permit cannot be issued: %d blocking answers", len(items))
	}
	return Warning{
		Title:      title,
		Items:      items,
		Suggestion: "Change the work method or controls so these answers no longer apply",
	}
}

// OutstandingPanel lists required questions still unanswered and triggered
// controls explanations still missing.
func OutstandingPanel(ev *engine.Evaluation) Warning {
	if ev == nil {
		return Warning{}
	}
	var items []string
	for _, r := range ev.Questionnaires {
		for _, id := range r.Incomplete {
			items = append(items, fmt.Sprintf("%s.%s: answer required", r.Key, id))
		}
		for _, id := range r.MissingControls {
			items = append(items, fmt.Sprintf("%s.%s: controls explanation required", r.Key, id))
		}
	}
	if len(items) == 0 {
		return Warning{}
	}
	return Warning{
		Title: fmt.Sprintf("%d required item(s) outstanding", len(items)),
		Items: items,
	}
}
