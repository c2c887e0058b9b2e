// Package report renders a permit as a Markdown document and, through
// goldmark, as HTML.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

const timeLayout = "2006-01-02 15:04"

// User text is escaped before it reaches the renderer, so raw HTML in the
// source can only be the line breaks emitted by cell or registry notes.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Markdown renders p with its evaluation ev. Only required questionnaires and
// visible questions appear.
func Markdown(reg *schema.Registry, p *models.Permit, ev *engine.Evaluation) string {
	var b strings.Builder

	title := p.Number
	if title == "" {
		title = p.ID
	}
	if p.IsTemplate {
		title = "Template: " + p.TemplateName
	}
	fmt.Fprintf(&b, "# Permit %s\n\n", escape(title))

	b.WriteString("| Field | Value |\n|---|---|\n")
	row(&b, "ID", p.ID)
	row(&b, "Status", string(p.Status))
	row(&b, "Description", p.Description)
	row(&b, "Location", p.Location)
	row(&b, "Site", p.SiteID)
	row(&b, "Requested by", p.RequestedBy)
	row(&b, "Contractor", p.ContractorCompany)
	row(&b, "Schema version", p.SchemaVersion)
	row(&b, "Created", p.CreatedAt.Format(timeLayout))
	b.WriteString("\n")

	for _, key := range reg.Keys() {
		if !p.IsRequired(key) {
			continue
		}
		q, _ := reg.Questionnaire(key)
		writeQuestionnaire(&b, q, p)
	}

	writeOutcome(&b, ev)
	writeHazards(&b, reg, p)
	writeJSEA(&b, p.JSEA)
	writeIsolations(&b, p.Isolations)
	writeLifecycle(&b, p)
	writeAudit(&b, p.AuditLog)

	return b.String()
}

func writeQuestionnaire(b *strings.Builder, q *schema.Questionnaire, p *models.Permit) {
	st := p.Specialized(q.Key)
	s := st.Questionnaire
	v := engine.Resolve(q, s)

	fmt.Fprintf(b, "## %s\n\n", escape(q.Label))
	if st.RequiredSource == models.ForceCrossTrigger && st.TriggeredBy != nil {
		fmt.Fprintf(b, "_Required by %s_\n\n", escape(st.TriggeredBy.String()))
	}

	b.WriteString("| Question | Answer | Details |\n|---|---|---|\n")
	var notes []schema.QuestionDef
	for _, def := range q.Questions {
		if !v.Visible(def.ID) || def.InlineOnly {
			continue
		}
		if def.IsSection() {
			fmt.Fprintf(b, "| **%s** | | |\n", cell(def.Text))
			continue
		}
		writeAnswerRow(b, def, s.Answer(def.ID).String(), details(s, def.ID), "")
		for _, id := range v.Inline(def.ID) {
			child, _ := q.Question(id)
			writeAnswerRow(b, child, s.Answer(id).String(), details(s, id), "↳ ")
		}
		if def.Note != "" {
			notes = append(notes, def)
		}
	}
	b.WriteString("\n")

	for _, def := range notes {
		fmt.Fprintf(b, "> **%s**\n>\n", escape(def.Text))
		for _, line := range strings.Split(strings.TrimSpace(def.Note), "\n") {
			fmt.Fprintf(b, "> %s\n", line)
		}
		b.WriteString("\n")
	}
}

func writeAnswerRow(b *strings.Builder, def schema.QuestionDef, answer, detail, prefix string) {
	if answer == "" {
		answer = "_unanswered_"
	} else {
		answer = cell(answer)
	}
	fmt.Fprintf(b, "| %s%s | %s | %s |\n", prefix, cell(def.Text), answer, detail)
}

// details joins the free text, controls and option annotations of a record.
func details(s answers.Store, id string) string {
	rec, ok := s.Get(id)
	if !ok {
		return ""
	}
	var parts []string
	if rec.Text != "" {
		parts = append(parts, cell(rec.Text))
	}
	if rec.Controls != "" {
		parts = append(parts, "Controls: "+cell(rec.Controls))
	}
	opts := make([]string, 0, len(rec.Options))
	for k := range rec.Options {
		opts = append(opts, k)
	}
	sort.Strings(opts)
	for _, k := range opts {
		parts = append(parts, fmt.Sprintf("%s: %s", cell(k), cell(rec.Options[k])))
	}
	return strings.Join(parts, "<br>")
}

func writeOutcome(b *strings.Builder, ev *engine.Evaluation) {
	if ev == nil {
		return
	}
	if len(ev.Violations) > 0 {
		b.WriteString("## Blocking answers\n\n")
		for _, v := range ev.Violations {
			fmt.Fprintf(b, "- **%s**: %s (answered %s)\n", escape(v.Questionnaire), escape(v.Text), escape(fmt.Sprintf("%q", v.Answer)))
		}
		b.WriteString("\n")
	}

	var outstanding []string
	for _, r := range ev.Questionnaires {
		for _, id := range r.Incomplete {
			outstanding = append(outstanding, fmt.Sprintf("- %s.%s: answer required", r.Key, id))
		}
		for _, id := range r.MissingControls {
			outstanding = append(outstanding, fmt.Sprintf("- %s.%s: controls explanation required", r.Key, id))
		}
	}
	if len(outstanding) > 0 {
		b.WriteString("## Outstanding\n\n")
		b.WriteString(escape(strings.Join(outstanding, "\n")))
		b.WriteString("\n\n")
	}

	if len(ev.Controls) > 0 {
		b.WriteString("## Controls\n\n| Source | Item | Controls |\n|---|---|---|\n")
		for _, c := range ev.Controls {
			fmt.Fprintf(b, "| %s | %s | %s |\n", c.Source, cell(c.Label), cell(c.ControlsText))
		}
		b.WriteString("\n")
	}
}

func writeHazards(b *strings.Builder, reg *schema.Registry, p *models.Permit) {
	var rows []string
	for _, h := range reg.SingleHazards() {
		st, ok := p.SingleHazards[h.Key]
		if !ok || !st.Present {
			continue
		}
		rows = append(rows, fmt.Sprintf("| %s | %s |", cell(h.Label), cell(st.Controls)))
	}
	if len(rows) == 0 {
		return
	}
	b.WriteString("## Single hazards\n\n| Hazard | Controls |\n|---|---|\n")
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n\n")
}

func writeJSEA(b *strings.Builder, j models.JSEA) {
	if len(j.Steps) == 0 && j.OverallRiskRating == "" {
		return
	}
	b.WriteString("## Job safety and environmental analysis\n\n")
	if len(j.Steps) > 0 {
		b.WriteString("| # | Step | Hazards | Controls | Risk |\n|---|---|---|---|---|\n")
		for i, s := range j.Steps {
			fmt.Fprintf(b, "| %d | %s | %s | %s | %s |\n", i+1, cell(s.Step), cell(s.Hazards), cell(s.Controls), s.RiskLevel)
		}
		b.WriteString("\n")
	}
	if j.OverallRiskRating != "" {
		fmt.Fprintf(b, "Overall risk: **%s**\n\n", j.OverallRiskRating)
	}
}

func writeIsolations(b *strings.Builder, isolations []models.Isolation) {
	if len(isolations) == 0 {
		return
	}
	b.WriteString("## Isolations\n\n| Point | Method | Isolated by | Lock |\n|---|---|---|---|\n")
	for _, iso := range isolations {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", cell(iso.Point), cell(iso.Method), cell(iso.IsolatedBy), cell(iso.LockNumber))
	}
	b.WriteString("\n")
}

func writeLifecycle(b *strings.Builder, p *models.Permit) {
	var lines []string
	if a := p.Approval; a != nil {
		lines = append(lines, fmt.Sprintf("- Approved by %s at %s", escape(a.ApprovedBy), a.ApprovedAt.Format(timeLayout)))
	}
	if in := p.Inspection; in != nil {
		line := fmt.Sprintf("- Inspected by %s at %s", escape(in.Inspector), in.InspectedAt.Format(timeLayout))
		if in.Comments != "" {
			line += ": " + escape(in.Comments)
		}
		lines = append(lines, line)
	}
	if so := p.CompletedSignOff; so != nil {
		if so.IssuerComplete() {
			lines = append(lines, fmt.Sprintf("- Signed off by issuer %s%s", escape(so.IssuerName), at(so.IssuerSignedAt)))
		}
		if so.ReceiverComplete() {
			lines = append(lines, fmt.Sprintf("- Signed off by receiver %s%s", escape(so.ReceiverName), at(so.ReceiverSignedAt)))
		}
	}
	if r := p.Rejection; r != nil {
		line := fmt.Sprintf("- Rejected by %s at %s", escape(r.RejectedBy), r.RejectedAt.Format(timeLayout))
		if r.Reason != "" {
			line += ": " + escape(r.Reason)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("## Lifecycle\n\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
}

func at(t *time.Time) string {
	if t == nil {
		return ""
	}
	return " at " + t.Format(timeLayout)
}

func writeAudit(b *strings.Builder, log []models.AuditEntry) {
	if len(log) == 0 {
		return
	}
	b.WriteString("## Audit trail\n\n| Time | Action | Actor | Details |\n|---|---|---|---|\n")
	for _, e := range log {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+e.Details[k])
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", e.At.Format(timeLayout), e.Action, cell(e.Actor), cell(strings.Join(pairs, ", ")))
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, field, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", field, cell(value))
}

var escaper = strings.NewReplacer(
	"\\", "\\\\",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"<", "&lt;",
	">", "&gt;",
	"[", "\\[",
	"]", "\\]",
	"#", "\\#",
)

// escape neutralizes Markdown in user text.
func escape(s string) string {
	return escaper.Replace(s)
}

// cell escapes s for a table cell: pipes are escaped and line breaks kept
// inside the cell.
func cell(s string) string {
	s = escape(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// HTML converts a Markdown report into an HTML fragment.
func HTML(md string) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Page wraps an HTML fragment in a standalone document.
func Page(title string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n",
		strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(title))
	buf.Write(body)
	buf.WriteString("</body></html>\n")
	return buf.Bytes()
}

// PlainNote strips Markdown from a question note for terminal output.
// Paragraphs are separated by a blank line.
func PlainNote(note string) string {
	source := []byte(note)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var paras []string
	var cur strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			if !entering && cur.Len() > 0 {
				paras = append(paras, strings.TrimSpace(cur.String()))
				cur.Reset()
			}
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.CodeSpan:
			if entering {
				for c := node.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						cur.Write(t.Segment.Value(source))
					}
				}
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	if cur.Len() > 0 {
		paras = append(paras, strings.TrimSpace(cur.String()))
	}
	return strings.Join(paras, "\n\n")
}
