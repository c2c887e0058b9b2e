package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/ptw/internal/models"
)

// Overrides replace template fields on a permit created from it. Empty fields
// keep the template's value.
type Overrides struct {
	Number            string
	Description       string
	Location          string
	SiteID            string
	RequestedBy       string
	ContractorCompany string
}

// SaveAsTemplate marks p as a reusable template under name.
func (m *Machine) SaveAsTemplate(p *models.Permit, name string) (*models.Permit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("save template: name is required")
	}
	now := m.now()
	next := p.Clone()
	next.IsTemplate = true
	next.TemplateName = name
	next.UpdatedAt = now
	appendAudit(next, ActionSaveTemplate, "", now, map[string]string{"template_name": name})
	return next, nil
}

// RemoveTemplate clears the template flag of p.
func (m *Machine) RemoveTemplate(p *models.Permit) (*models.Permit, error) {
	if !p.IsTemplate {
		return nil, fmt.Errorf("remove template %s: %w", p.ID, ErrNotTemplate)
	}
	now := m.now()
	next := p.Clone()
	appendAudit(next, ActionRemoveTemplate, "", now, map[string]string{"template_name": next.TemplateName})
	next.IsTemplate = false
	next.TemplateName = ""
	next.UpdatedAt = now
	return next, nil
}

// FromTemplate creates a fresh permit from tmpl. Questionnaire answers,
// required flags, single hazards and the JSEA are copied. Isolations, sign-ons,
// lifecycle records and the audit trail start empty.
func (m *Machine) FromTemplate(tmpl *models.Permit, o Overrides) (*models.Permit, error) {
	if !tmpl.IsTemplate {
		return nil, fmt.Errorf("create from %s: %w", tmpl.ID, ErrNotTemplate)
	}

	src := tmpl.Clone()
	now := m.now()
	p := models.NewPermit(m.newID(), src.SchemaVersion, now)
	p.Number = o.Number
	p.Description = pick(o.Description, src.Description)
	p.Location = pick(o.Location, src.Location)
	p.SiteID = pick(o.SiteID, src.SiteID)
	p.RequestedBy = pick(o.RequestedBy, src.RequestedBy)
	p.ContractorCompany = pick(o.ContractorCompany, src.ContractorCompany)
	p.SpecializedPermits = src.SpecializedPermits
	p.SingleHazards = src.SingleHazards
	p.JSEA = src.JSEA

	appendAudit(p, ActionFromTemplate, p.RequestedBy, now, map[string]string{
		"template_id":   tmpl.ID,
		"template_name": tmpl.TemplateName,
	})
	return p, nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// TemplateUsage counts, per template id, the permits created from it. The
// count is read from each permit's audit trail.
func TemplateUsage(permits []*models.Permit) map[string]int {
	usage := make(map[string]int)
	for _, p := range permits {
		for _, e := range p.AuditLog {
			if e.Action != string(ActionFromTemplate) {
				continue
			}
			if id := e.Details["template_id"]; id != "" {
				usage[id]++
			}
		}
	}
	return usage
}

// UsageCount is one row of MostUsedQuestionnaires.
type UsageCount struct {
	Questionnaire string
	Permits       int
}

// MostUsedQuestionnaires ranks specialized questionnaires by the number of
// live permits that require them, most used first. Templates are skipped and
// limit <= 0 returns every questionnaire seen.
func MostUsedQuestionnaires(permits []*models.Permit, limit int) []UsageCount {
	counts := make(map[string]int)
	for _, p := range permits {
		if p.IsTemplate {
			continue
		}
		for key, st := range p.SpecializedPermits {
			if st != nil && st.Required {
				counts[key]++
			}
		}
	}

	out := make([]UsageCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, UsageCount{Questionnaire: key, Permits: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Permits != out[j].Permits {
			return out[i].Permits > out[j].Permits
		}
		return out[i].Questionnaire < out[j].Questionnaire
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
