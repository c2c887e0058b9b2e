package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/models"
)

func TestTemplateRoundTrip(t *testing.T) {
	m := newMachine(t)
	src := withRequired(m.Create("requester"), "hotWork")
	src.Description = "Weld handrail bracket"
	src.Location = "Conveyor 4"
	src.SiteID = "site-a"
	src.SpecializedPermits["hotWork"].Questionnaire = answers.New().SetAnswer("fire_watch", answers.Scalar("yes"))
	src.SingleHazards["noise"] = models.SingleHazardState{Present: true, Controls: "ear muffs"}
	src.JSEA = models.JSEA{Steps: []models.TaskStep{{Step: "Isolate", Controls: "LOTO"}}, OverallRiskRating: models.RiskMedium}
	src.Isolations = []models.Isolation{{Point: "MCC-4"}}
	src.SignOns = []models.SignOn{{Name: "worker"}}
	src, err := m.Approve(src, "issuer")
	require.NoError(t, err)

	tmpl, err := m.SaveAsTemplate(src, "  Conveyor welding  ")
	require.NoError(t, err)
	assert.True(t, tmpl.IsTemplate)
	assert.Equal(t, "Conveyor welding", tmpl.TemplateName)
	assert.False(t, src.IsTemplate)

	p, err := m.FromTemplate(tmpl, Overrides{Location: "Conveyor 7", RequestedBy: "sam"})
	require.NoError(t, err)

	assert.NotEqual(t, tmpl.ID, p.ID)
	assert.Equal(t, models.StatusPendingApproval, p.Status)
	assert.Equal(t, "Weld handrail bracket", p.Description)
	assert.Equal(t, "Conveyor 7", p.Location)
	assert.Equal(t, "site-a", p.SiteID)
	assert.Equal(t, "sam", p.RequestedBy)
	assert.True(t, p.IsRequired("hotWork"))
	assert.True(t, p.Answers("hotWork").Answer("fire_watch").Equal(answers.Scalar("yes")))
	assert.Equal(t, "ear muffs", p.SingleHazards["noise"].Controls)
	assert.Len(t, p.JSEA.Steps, 1)

	assert.False(t, p.IsTemplate)
	assert.Nil(t, p.Approval)
	assert.Nil(t, p.ApprovedAt)
	assert.Empty(t, p.SignOns)
	assert.Empty(t, p.Isolations)
	require.Len(t, p.AuditLog, 1)
	assert.Equal(t, string(ActionFromTemplate), p.AuditLog[0].Action)
	assert.Equal(t, tmpl.ID, p.AuditLog[0].Details["template_id"])

	p.SpecializedPermits["hotWork"].Required = false
	assert.True(t, tmpl.IsRequired("hotWork"), "new permit shares no state with its template")
}

func TestFromTemplateRequiresTemplate(t *testing.T) {
	m := newMachine(t)
	_, err := m.FromTemplate(m.Create("r"), Overrides{})
	assert.True(t, errors.Is(err, ErrNotTemplate))

	_, err = m.RemoveTemplate(m.Create("r"))
	assert.True(t, errors.Is(err, ErrNotTemplate))
}

func TestSaveAsTemplateRequiresName(t *testing.T) {
	m := newMachine(t)
	_, err := m.SaveAsTemplate(m.Create("r"), " ")
	assert.Error(t, err)
}

func TestRemoveTemplate(t *testing.T) {
	m := newMachine(t)
	tmpl, err := m.SaveAsTemplate(m.Create("r"), "Daily inspection")
	require.NoError(t, err)

	p, err := m.RemoveTemplate(tmpl)
	require.NoError(t, err)
	assert.False(t, p.IsTemplate)
	assert.Empty(t, p.TemplateName)
	entries := History(p, ActionRemoveTemplate)
	require.Len(t, entries, 1)
	assert.Equal(t, "Daily inspection", entries[0].Details["template_name"])
}

func TestTemplateUsage(t *testing.T) {
	m := newMachine(t)
	weld, err := m.SaveAsTemplate(withRequired(m.Create("r"), "hotWork"), "Welding")
	require.NoError(t, err)
	lift, err := m.SaveAsTemplate(withRequired(m.Create("r"), "lifting"), "Crane lift")
	require.NoError(t, err)

	var permits []*models.Permit
	for _, tmpl := range []*models.Permit{weld, weld, lift} {
		p, err := m.FromTemplate(tmpl, Overrides{})
		require.NoError(t, err)
		permits = append(permits, p)
	}
	permits = append(permits, m.Create("r"))

	usage := TemplateUsage(permits)
	assert.Equal(t, 2, usage[weld.ID])
	assert.Equal(t, 1, usage[lift.ID])
	assert.Len(t, usage, 2)
}

func TestMostUsedQuestionnaires(t *testing.T) {
	m := newMachine(t)
	tmpl := withRequired(m.Create("r"), "hotWork", "confinedSpace", "lifting")
	tmpl.IsTemplate = true

	released := withRequired(m.Create("r"), "electrical")
	released.SpecializedPermits["electrical"].Required = false

	permits := []*models.Permit{
		withRequired(m.Create("r"), "hotWork", "confinedSpace"),
		withRequired(m.Create("r"), "hotWork"),
		withRequired(m.Create("r"), "lifting"),
		released,
		tmpl,
	}

	assert.Equal(t, []UsageCount{
		{Questionnaire: "hotWork", Permits: 2},
		{Questionnaire: "confinedSpace", Permits: 1},
		{Questionnaire: "lifting", Permits: 1},
	}, MostUsedQuestionnaires(permits, 0))

	assert.Equal(t, []UsageCount{{Questionnaire: "hotWork", Permits: 2}}, MostUsedQuestionnaires(permits, 1))
	assert.Empty(t, MostUsedQuestionnaires(nil, 5))
}
