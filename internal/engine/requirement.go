package engine

import (
	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/schema"
)

// Incomplete returns visible required questions whose primary answer is
// empty, in declaration order. Hidden required questions never count.
func Incomplete(q *schema.Questionnaire, s answers.Store, v VisibleSet) []string {
	if q == nil {
		return nil
	}
	var out []string
	for _, def := range q.Questions {
		if def.IsSection() || !def.Required || !v.Visible(def.ID) {
			continue
		}
		if s.Answer(def.ID).Empty() {
			out = append(out, def.ID)
		}
	}
	return out
}

// MissingControls returns visible questions whose answer matches the controls
// trigger but which have no controls explanation recorded.
func MissingControls(q *schema.Questionnaire, s answers.Store, v VisibleSet) []string {
	if q == nil {
		return nil
	}
	var out []string
	for _, def := range q.Questions {
		if !controlsApply(def, s, v) {
			continue
		}
		rec, _ := s.Get(def.ID)
		if rec.Controls == "" {
			out = append(out, def.ID)
		}
	}
	return out
}

// controlsApply reports whether def is visible and its answer matches its
// controls trigger.
func controlsApply(def schema.QuestionDef, s answers.Store, v VisibleSet) bool {
	trigger, ok := def.ControlsValue()
	if !ok || !v.Visible(def.ID) {
		return false
	}
	return s.Answer(def.ID).Contains(trigger)
}
