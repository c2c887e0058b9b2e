package engine

import (
	"fmt"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

// Violation is an answer that makes the permit non-issuable.
type Violation struct {
	Questionnaire string `json:"questionnaire"`
	QuestionID    string `json:"questionId"`
	Text          string `json:"text"`
	Answer        string `json:"answer"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s.%s: %s (answered %q)", v.Questionnaire, v.QuestionID, v.Text, v.Answer)
}

// Blocking returns a violation for every visible question whose answer equals
// its blocking value. A blocking question that is hidden produces nothing.
func Blocking(q *schema.Questionnaire, s answers.Store) []Violation {
	return blockingWith(q, s, Resolve(q, s))
}

func blockingWith(q *schema.Questionnaire, s answers.Store, v VisibleSet) []Violation {
	if q == nil {
		return nil
	}
	var out []Violation
	for _, def := range q.Questions {
		if def.Blocking == "" || !v.Visible(def.ID) {
			continue
		}
		a := s.Answer(def.ID)
		if a.Contains(def.Blocking) {
			out = append(out, Violation{
				Questionnaire: q.Key,
				QuestionID:    def.ID,
				Text:          def.Text,
				Answer:        a.String(),
			})
		}
	}
	return out
}

// PermitViolations walks every required specialized permit in registry order.
func PermitViolations(reg *schema.Registry, p *models.Permit) []Violation {
	var out []Violation
	for _, key := range reg.Keys() {
		if !p.IsRequired(key) {
			continue
		}
		q, _ := reg.Questionnaire(key)
		out = append(out, Blocking(q, p.Answers(key))...)
	}
	return out
}
