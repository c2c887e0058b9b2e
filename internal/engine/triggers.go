package engine

import (
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

// TriggerHit is a cross-trigger rule whose source answer currently matches.
type TriggerHit struct {
	Rule   schema.CrossTrigger
	Target string
}

// Ref returns the reference recorded on the forced questionnaire.
func (h TriggerHit) Ref() models.TriggerRef {
	return models.TriggerRef{
		Questionnaire: h.Rule.Source,
		Question:      h.Rule.Question,
		Fragment:      h.Rule.Fragment,
		Value:         h.Rule.Value,
	}
}

// Triggers evaluates the cross-trigger table against p without changing it.
func Triggers(reg *schema.Registry, p *models.Permit) []TriggerHit {
	var hits []TriggerHit
	for _, rule := range reg.CrossTriggers() {
		if ruleMatches(rule, p) {
			hits = append(hits, TriggerHit{Rule: rule, Target: rule.Target})
		}
	}
	return hits
}

func ruleMatches(rule schema.CrossTrigger, p *models.Permit) bool {
	rec, ok := p.Answers(rule.Source).Get(rule.Question)
	if !ok {
		return false
	}
	return rec.Fragment(rule.Fragment).Contains(rule.Value)
}

// applyHits forces each hit's target on. It returns the hits that changed the
// permit. A target that is already required keeps its source.
func applyHits(p *models.Permit, hits []TriggerHit) []TriggerHit {
	var applied []TriggerHit
	for _, h := range hits {
		st, ok := p.SpecializedPermits[h.Target]
		if ok && st != nil && st.Required {
			continue
		}
		if !ok || st == nil {
			st = &models.SpecializedPermitState{}
			p.SpecializedPermits[h.Target] = st
		}
		ref := h.Ref()
		st.Required = true
		st.RequiredSource = models.ForceCrossTrigger
		st.TriggeredBy = &ref
		applied = append(applied, h)
	}
	return applied
}
