// Package answers holds the per-questionnaire answer store.
//
// A questionnaire's answers are a map of question id to AnswerRecord. An
// AnswerRecord is a sum of optional fragments: the primary answer, a free-text
// elaboration, a controls explanation and per-option annotations. The Store is
// persistent: every mutation returns a new Store and leaves the receiver intact,
// so the engine can always evaluate against a consistent snapshot.
package answers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Answer is the primary answer fragment of a record. It is either unset, a
// single scalar value, or a list of values (multi-choice).
type Answer struct {
	values []string
	list   bool
	set    bool
}

// Scalar returns a single-valued answer.
func Scalar(v string) Answer {
	return Answer{values: []string{v}, set: true}
}

// List returns a multi-valued answer. An empty list is still a set answer.
func List(vs ...string) Answer {
	cp := make([]string, len(vs))
	copy(cp, vs)
	return Answer{values: cp, list: true, set: true}
}

// IsSet reports whether the answer was ever recorded.
func (a Answer) IsSet() bool { return a.set }

// IsList reports whether the answer is a multi-choice list.
func (a Answer) IsList() bool { return a.list }

// Values returns a copy of the answer's values.
func (a Answer) Values() []string {
	cp := make([]string, len(a.values))
	copy(cp, a.values)
	return cp
}

// Empty reports whether the answer carries no usable value: unset, an empty
// scalar, or an empty list.
func (a Answer) Empty() bool {
	if !a.set {
		return true
	}
	for _, v := range a.values {
		if v != "" {
			return false
		}
	}
	return true
}

// Contains reports whether v equals a scalar answer or is a member of a list
// answer. An unset answer contains nothing.
func (a Answer) Contains(v string) bool {
	if !a.set {
		return false
	}
	for _, have := range a.values {
		if have == v {
			return true
		}
	}
	return false
}

// Intersects reports whether any of vs is contained in the answer.
func (a Answer) Intersects(vs []string) bool {
	for _, v := range vs {
		if a.Contains(v) {
			return true
		}
	}
	return false
}

// Equal reports whether two answers have the same shape and values.
func (a Answer) Equal(b Answer) bool {
	if a.set != b.set || a.list != b.list || len(a.values) != len(b.values) {
		return false
	}
	for i := range a.values {
		if a.values[i] != b.values[i] {
			return false
		}
	}
	return true
}

// String renders the answer for display. Lists are comma separated.
func (a Answer) String() string {
	return strings.Join(a.values, ", ")
}

// MarshalJSON encodes a scalar as a JSON string, a list as an array and an
// unset answer as null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case !a.set:
		return []byte("null"), nil
	case a.list:
		return json.Marshal(a.Values())
	default:
		return json.Marshal(a.values[0])
	}
}

// UnmarshalJSON accepts a string, an array of strings, or null. Booleans and
// numbers are kept as their literal text so legacy records still match.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Scalar(s)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		vs := make([]string, 0, len(raw))
		for _, r := range raw {
			vs = append(vs, literal(r))
		}
		*a = List(vs...)
	default:
		*a = Scalar(string(data))
	}
	return nil
}

func literal(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(r))
}

// FragmentKey names one fragment of an AnswerRecord.
type FragmentKey string

const (
	FragmentAnswer   FragmentKey = "answer"
	FragmentText     FragmentKey = "text"
	FragmentControls FragmentKey = "controls"
)

// OptionFragment returns the fragment key for a per-option annotation.
func OptionFragment(optionValue string) FragmentKey {
	return FragmentKey(optionValue)
}

// IsOption reports whether the key addresses a per-option annotation.
func (k FragmentKey) IsOption() bool {
	switch k {
	case FragmentAnswer, FragmentText, FragmentControls:
		return false
	}
	return k != ""
}

// AnswerRecord is everything recorded against one question.
type AnswerRecord struct {
	Answer   Answer
	Text     string
	Controls string
	Options  map[string]string
}

// Fragment reads a single fragment as an Answer. Text, controls and option
// fragments are returned as scalars; an empty one is unset.
func (r AnswerRecord) Fragment(key FragmentKey) Answer {
	var s string
	switch key {
	case FragmentAnswer:
		return r.Answer
	case FragmentText:
		s = r.Text
	case FragmentControls:
		s = r.Controls
	default:
		s = r.Options[string(key)]
	}
	if s == "" {
		return Answer{}
	}
	return Scalar(s)
}

func (r AnswerRecord) clone() AnswerRecord {
	out := r
	out.Answer = Answer{values: r.Answer.Values(), list: r.Answer.list, set: r.Answer.set}
	if r.Options != nil {
		out.Options = make(map[string]string, len(r.Options))
		for k, v := range r.Options {
			out.Options[k] = v
		}
	}
	return out
}

// MarshalJSON flattens the record into {answer?, text?, controls?, <option>: text}.
func (r AnswerRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(r.Options)+3)
	for k, v := range r.Options {
		m[k] = v
	}
	if r.Answer.IsSet() {
		m[string(FragmentAnswer)] = r.Answer
	}
	if r.Text != "" {
		m[string(FragmentText)] = r.Text
	}
	if r.Controls != "" {
		m[string(FragmentControls)] = r.Controls
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flattened record shape. Non-string option values are
// ignored rather than rejected.
func (r *AnswerRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("answer record: %w", err)
	}
	out := AnswerRecord{}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		switch FragmentKey(k) {
		case FragmentAnswer:
			if err := out.Answer.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("answer record: answer: %w", err)
			}
		case FragmentText:
			out.Text = literal(v)
		case FragmentControls:
			out.Controls = literal(v)
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				continue
			}
			if out.Options == nil {
				out.Options = make(map[string]string)
			}
			out.Options[k] = s
		}
	}
	*r = out
	return nil
}
