package answers

import (
	"encoding/json"
	"sort"
)

// Store maps question id to AnswerRecord for one questionnaire. The zero value
// is an empty store ready to use. Stores are never modified in place.
type Store struct {
	records map[string]AnswerRecord
}

// New returns an empty Store.
func New() Store {
	return Store{}
}

// Get returns the record for a question id.
func (s Store) Get(id string) (AnswerRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return AnswerRecord{}, false
	}
	return rec.clone(), true
}

// Answer returns the primary answer for id, unset when nothing was recorded.
func (s Store) Answer(id string) Answer {
	return s.records[id].Answer
}

// Len returns the number of recorded questions.
func (s Store) Len() int { return len(s.records) }

// IDs returns recorded question ids in sorted order.
func (s Store) IDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetFragment merges a single fragment into the record for id and returns the
// new store. Other fragments of the record are left untouched. Text, controls
// and option fragments take the rendered string of value.
func (s Store) SetFragment(id string, key FragmentKey, value Answer) Store {
	next := s.copy()
	rec := next.records[id].clone()

	switch key {
	case FragmentAnswer:
		rec.Answer = value
	case FragmentText:
		rec.Text = value.String()
	case FragmentControls:
		rec.Controls = value.String()
	default:
		if rec.Options == nil {
			rec.Options = make(map[string]string)
		}
		rec.Options[string(key)] = value.String()
	}

	next.records[id] = rec
	return next
}

// SetAnswer sets the primary answer fragment.
func (s Store) SetAnswer(id string, a Answer) Store {
	return s.SetFragment(id, FragmentAnswer, a)
}

// SetText sets the free-text elaboration fragment.
func (s Store) SetText(id, text string) Store {
	return s.SetFragment(id, FragmentText, Scalar(text))
}

// SetControls sets the controls explanation fragment.
func (s Store) SetControls(id, text string) Store {
	return s.SetFragment(id, FragmentControls, Scalar(text))
}

// SetOption sets the annotation attached to one option of a multi-choice question.
func (s Store) SetOption(id, option, text string) Store {
	return s.SetFragment(id, OptionFragment(option), Scalar(text))
}

func (s Store) copy() Store {
	next := Store{records: make(map[string]AnswerRecord, len(s.records)+1)}
	for k, v := range s.records {
		next.records[k] = v
	}
	return next
}

// MarshalJSON encodes the store as an object keyed by question id.
func (s Store) MarshalJSON() ([]byte, error) {
	if s.records == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.records)
}

// UnmarshalJSON decodes an object keyed by question id.
func (s *Store) UnmarshalJSON(data []byte) error {
	var records map[string]AnswerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = Store{records: records}
	return nil
}
