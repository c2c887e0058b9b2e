// Package engine evaluates permit questionnaires.
//
// The engine is synchronous and performs no I/O. Given a questionnaire
// definition and an answer store it derives which questions are visible,
// which required questions are unanswered, which answers block approval and
// which other questionnaires the answers force on. All functions degrade on
// bad input (unknown ids, missing answers) instead of returning errors.
package engine

import (
	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/schema"
)

// VisibleSet is the resolved visibility of one questionnaire.
type VisibleSet struct {
	key      string
	visible  map[string]bool
	sections map[string]bool
	ordered  []string
	inline   map[string][]string
}

// Resolve computes question and section visibility for q against s.
// Matching reads dependency answers only, not the dependency's own
// visibility. A question inside a hidden section is hidden.
func Resolve(q *schema.Questionnaire, s answers.Store) VisibleSet {
	v := VisibleSet{
		visible:  make(map[string]bool),
		sections: make(map[string]bool),
		inline:   make(map[string][]string),
	}
	if q == nil {
		return v
	}
	v.key = q.Key

	for _, def := range q.Questions {
		if def.IsSection() {
			v.sections[def.ID] = dependencyMatches(def, s)
		}
	}

	for _, def := range q.Questions {
		shown := dependencyMatches(def, s)
		if section, ok := q.SectionOf(def.ID); ok && !v.sections[section] {
			shown = false
		}
		v.visible[def.ID] = shown
		if !shown || def.IsSection() {
			continue
		}
		if def.InlineOnly {
			parent := inlineParent(def)
			v.inline[parent] = append(v.inline[parent], def.ID)
			continue
		}
		v.ordered = append(v.ordered, def.ID)
	}
	return v
}

func inlineParent(def schema.QuestionDef) string {
	if def.DependsOn.Empty() {
		return ""
	}
	return def.DependsOn.IDs[0]
}

// Visible reports whether a question (or section header) is visible. Unknown
// ids are not visible.
func (v VisibleSet) Visible(id string) bool { return v.visible[id] }

// SectionVisible reports whether a section header's dependency matches.
func (v VisibleSet) SectionVisible(id string) bool { return v.sections[id] }

// Ordered returns visible top-level questions in declaration order. Section
// headers and inline-only questions are excluded.
func (v VisibleSet) Ordered() []string {
	out := make([]string, len(v.ordered))
	copy(out, v.ordered)
	return out
}

// Inline returns visible inline-only questions rendered beneath parentID.
func (v VisibleSet) Inline(parentID string) []string {
	out := make([]string, len(v.inline[parentID]))
	copy(out, v.inline[parentID])
	return out
}

// Count returns the number of visible questions, section headers excluded.
func (v VisibleSet) Count() int {
	n := 0
	for id, shown := range v.visible {
		if shown {
			if _, isSection := v.sections[id]; !isSection {
				n++
			}
		}
	}
	return n
}

// Expansion is UI state: which sections the user has collapsed. It never
// changes domain visibility.
type Expansion struct {
	collapsed map[string]bool
}

// Collapse returns a copy of e with section collapsed.
func (e Expansion) Collapse(section string) Expansion {
	return e.with(section, true)
}

// Expand returns a copy of e with section expanded.
func (e Expansion) Expand(section string) Expansion {
	return e.with(section, false)
}

// Collapsed reports whether section is collapsed.
func (e Expansion) Collapsed(section string) bool { return e.collapsed[section] }

func (e Expansion) with(section string, collapsed bool) Expansion {
	next := Expansion{collapsed: make(map[string]bool, len(e.collapsed)+1)}
	for k, v := range e.collapsed {
		next.collapsed[k] = v
	}
	if collapsed {
		next.collapsed[section] = true
	} else {
		delete(next.collapsed, section)
	}
	return next
}

// Rendered reports whether a visible question is drawn given the expansion
// state: members of a collapsed section are visible but not drawn.
func (v VisibleSet) Rendered(q *schema.Questionnaire, id string, e Expansion) bool {
	if !v.visible[id] {
		return false
	}
	if section, ok := q.SectionOf(id); ok && e.Collapsed(section) {
		return false
	}
	return true
}

// dependencyMatches applies the dependsOn rule of def to s.
func dependencyMatches(def schema.QuestionDef, s answers.Store) bool {
	deps := def.DependsOn
	if deps.Empty() {
		return true
	}
	values := def.DependsOnValue
	if values.Empty() {
		return false
	}

	if !deps.List {
		return answerMatches(s.Answer(deps.IDs[0]), values)
	}

	for i, id := range deps.IDs {
		want := values
		if values.List {
			v, ok := values.At(i)
			if !ok {
				continue
			}
			want = schema.Values{Items: []string{v}}
		}
		if answerMatches(s.Answer(id), want) {
			return true
		}
	}
	return false
}

// answerMatches compares one dependency answer with a scalar or list of
// expected values. A scalar expects equality (or membership when the answer is
// a list); a list expects a non-empty intersection.
func answerMatches(a answers.Answer, want schema.Values) bool {
	if !a.IsSet() {
		return false
	}
	if want.List {
		return a.Intersects(want.Items)
	}
	return a.Contains(want.Items[0])
}
