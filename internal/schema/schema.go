// Package schema loads and validates the static questionnaire definitions.
//
// Questionnaires are declared as YAML documents. Each is checked against an
// embedded JSON Schema, decoded, and its dependency graph validated before the
// registry is handed to the engine. After loading, a Registry is read-only and
// safe for concurrent use.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind is the answer shape of a question.
type Kind string

const (
	KindYesNo        Kind = "yes_no"
	KindYesNoText    Kind = "yes_no_text"
	KindYesNoNA      Kind = "yes_no_na"
	KindText         Kind = "text"
	KindSingleChoice Kind = "single_choice"
	KindMultiChoice  Kind = "multi_choice"
	KindAttachment   Kind = "attachment"
	KindSection      Kind = "section"
)

// DefaultControlsTrigger is the answer that requires a controls explanation
// when a question does not declare its own trigger.
const DefaultControlsTrigger = "yes"

// NoControls disables the controls requirement for a question.
const NoControls = "none"

// Option is one choice of a single or multi-choice question.
type Option struct {
	Value     string `yaml:"value"`
	Label     string `yaml:"label"`
	TextLabel string `yaml:"text_label,omitempty"`
}

// Refs lists the question ids a question depends on. List records whether the
// document used the list form, which changes how values are matched.
type Refs struct {
	IDs  []string
	List bool
}

// UnmarshalYAML accepts a scalar id or a sequence of ids.
func (r *Refs) UnmarshalYAML(node *yaml.Node) error {
	items, list, err := scalarOrSequence(node)
	if err != nil {
		return fmt.Errorf("depends_on: %w", err)
	}
	*r = Refs{IDs: items, List: list}
	return nil
}

// Empty reports whether there is no dependency.
func (r Refs) Empty() bool { return len(r.IDs) == 0 }

// Values is the dependsOnValue of a question: a scalar or a list parallel to
// (or independent of) the dependency ids.
type Values struct {
	Items []string
	List  bool
}

// UnmarshalYAML accepts a scalar value or a sequence of values.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	items, list, err := scalarOrSequence(node)
	if err != nil {
		return fmt.Errorf("depends_on_value: %w", err)
	}
	*v = Values{Items: items, List: list}
	return nil
}

// Empty reports whether no value was declared.
func (v Values) Empty() bool { return len(v.Items) == 0 }

// At returns the i-th value of a list, or false when the list is too short.
func (v Values) At(i int) (string, bool) {
	if i < 0 || i >= len(v.Items) {
		return "", false
	}
	return v.Items[i], true
}

func scalarOrSequence(node *yaml.Node) ([]string, bool, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, false, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, c := range node.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, false, fmt.Errorf("line %d: expected scalar", c.Line)
			}
			out = append(out, c.Value)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("line %d: expected scalar or sequence", node.Line)
	}
}

// QuestionDef is a single immutable question definition.
type QuestionDef struct {
	ID              string   `yaml:"id"`
	Text            string   `yaml:"text"`
	Kind            Kind     `yaml:"kind"`
	Required        bool     `yaml:"required"`
	Note            string   `yaml:"note"`
	Options         []Option `yaml:"options"`
	DependsOn       Refs     `yaml:"depends_on"`
	DependsOnValue  Values   `yaml:"depends_on_value"`
	ControlsTrigger string   `yaml:"controls_trigger"`
	Blocking        string   `yaml:"blocking"`
	InlineOnly      bool     `yaml:"inline_only"`
}

// IsSection reports whether the question is a section header.
func (q QuestionDef) IsSection() bool { return q.Kind == KindSection }

// ControlsValue returns the answer value that makes a controls explanation
// mandatory. ok is false for section headers and questions marked none.
func (q QuestionDef) ControlsValue() (value string, ok bool) {
	if q.IsSection() {
		return "", false
	}
	switch q.ControlsTrigger {
	case "":
		return DefaultControlsTrigger, true
	case NoControls:
		return "", false
	default:
		return q.ControlsTrigger, true
	}
}

// Option returns the option with the given value.
func (q QuestionDef) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Section groups member questions under a collapsible section header.
type Section struct {
	ID      string   `yaml:"id"`
	Members []string `yaml:"members"`
}

// Questionnaire is an ordered list of questions for one specialized permit.
type Questionnaire struct {
	Key       string        `yaml:"key"`
	Label     string        `yaml:"label"`
	Questions []QuestionDef `yaml:"questions"`
	Sections  []Section     `yaml:"sections"`

	index     map[string]int
	sectionOf map[string]string
	graph     *DependencyGraph
}

// Question returns the definition with the given id.
func (q *Questionnaire) Question(id string) (QuestionDef, bool) {
	i, ok := q.index[id]
	if !ok {
		return QuestionDef{}, false
	}
	return q.Questions[i], true
}

// Position returns the declaration index of id, or -1.
func (q *Questionnaire) Position(id string) int {
	if i, ok := q.index[id]; ok {
		return i
	}
	return -1
}

// SectionOf returns the section header a question belongs to.
func (q *Questionnaire) SectionOf(id string) (string, bool) {
	s, ok := q.sectionOf[id]
	return s, ok
}

// Members returns the member ids of a section in declaration order.
func (q *Questionnaire) Members(sectionID string) []string {
	for _, s := range q.Sections {
		if s.ID == sectionID {
			out := make([]string, len(s.Members))
			copy(out, s.Members)
			return out
		}
	}
	return nil
}

// Dependents returns the ids of questions that directly depend on id.
func (q *Questionnaire) Dependents(id string) []string {
	if q.graph == nil {
		return nil
	}
	return q.graph.Dependents(id)
}

func (q *Questionnaire) init() {
	q.index = make(map[string]int, len(q.Questions))
	for i, def := range q.Questions {
		q.index[def.ID] = i
	}
	q.sectionOf = make(map[string]string)
	for _, s := range q.Sections {
		for _, m := range s.Members {
			q.sectionOf[m] = s.ID
		}
	}
	q.graph = BuildDependencyGraph(q.Questions)
}

// HazardDef is an entry of the single-hazard catalogue.
type HazardDef struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}
