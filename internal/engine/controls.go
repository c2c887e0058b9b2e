package engine

import (
	"fmt"

	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

// ControlSource names where a control entry came from.
type ControlSource string

const (
	SourceSpecializedPermit ControlSource = "specializedPermit"
	SourceSingleHazard      ControlSource = "singleHazard"
	SourceJSEA              ControlSource = "jsea"
)

// ControlEntry is one line of the permit's controls summary.
type ControlEntry struct {
	Source       ControlSource `json:"source"`
	Key          string        `json:"key"`
	Label        string        `json:"label"`
	ControlsText string        `json:"controlsText"`
}

// Aggregate collects controls text from required questionnaires, present
// single hazards and JSEA steps, in that order. Controls recorded against a
// hidden question, or under an answer that no longer matches the trigger, are
// left out.
func Aggregate(reg *schema.Registry, p *models.Permit) []ControlEntry {
	out := []ControlEntry{}

	for _, key := range reg.Keys() {
		if !p.IsRequired(key) {
			continue
		}
		q, _ := reg.Questionnaire(key)
		s := p.Answers(key)
		v := Resolve(q, s)
		for _, def := range q.Questions {
			if !controlsApply(def, s, v) {
				continue
			}
			rec, _ := s.Get(def.ID)
			if rec.Controls == "" {
				continue
			}
			out = append(out, ControlEntry{
				Source:       SourceSpecializedPermit,
				Key:          key + "." + def.ID,
				Label:        fmt.Sprintf("%s: %s", q.Label, def.Text),
				ControlsText: rec.Controls,
			})
		}
	}

	for _, h := range reg.SingleHazards() {
		st, ok := p.SingleHazards[h.Key]
		if !ok || !st.Present || st.Controls == "" {
			continue
		}
		out = append(out, ControlEntry{
			Source:       SourceSingleHazard,
			Key:          h.Key,
			Label:        h.Label,
			ControlsText: st.Controls,
		})
	}

	for i, step := range p.JSEA.Steps {
		if step.Controls == "" {
			continue
		}
		out = append(out, ControlEntry{
			Source:       SourceJSEA,
			Key:          fmt.Sprintf("step-%d", i+1),
			Label:        step.Step,
			ControlsText: step.Controls,
		})
	}

	return out
}
