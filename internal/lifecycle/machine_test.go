package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

var start = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// tickingClock returns a time one minute later on every call.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)
	clock := &tickingClock{t: start}
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("permit-%d", n)
	}
	base := []Option{WithClock(clock.Now), WithIDGenerator(ids)}
	return New(reg, append(base, opts...)...)
}

func withRequired(p *models.Permit, keys ...string) *models.Permit {
	for _, k := range keys {
		p.SpecializedPermits[k] = &models.SpecializedPermitState{Required: true, RequiredSource: models.ForceManual}
	}
	return p
}

func activePermit(t *testing.T, m *Machine) *models.Permit {
	t.Helper()
	p := m.Create("requester")
	p.JSEA.OverallRiskRating = models.RiskLow
	p, err := m.Approve(p, "issuer")
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, p.Status)
	return p
}

func assertTransitionError(t *testing.T, err error, action Action, from models.Status) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, action, te.Action)
	assert.Equal(t, from, te.From)
	assert.NotEmpty(t, te.Reason)
}

func TestCreate(t *testing.T) {
	m := newMachine(t)
	p := m.Create("dana")

	assert.Equal(t, "permit-1", p.ID)
	assert.Equal(t, models.StatusPendingApproval, p.Status)
	assert.Equal(t, "1.4.0", p.SchemaVersion)
	assert.Equal(t, "dana", p.RequestedBy)
	require.Len(t, p.AuditLog, 1)
	assert.Equal(t, string(ActionCreate), p.AuditLog[0].Action)
}

func TestApprovalTarget(t *testing.T) {
	tests := []struct {
		name     string
		risk     models.RiskLevel
		required []string
		want     models.Status
	}{
		{"low risk nothing required", models.RiskLow, nil, models.StatusActive},
		{"unrated nothing required", "", nil, models.StatusActive},
		{"high risk", models.RiskHigh, nil, models.StatusPendingInspection},
		{"very high risk", models.RiskVeryHigh, nil, models.StatusPendingInspection},
		{"low risk hot work", models.RiskLow, []string{"hotWork"}, models.StatusPendingInspection},
		{"medium risk lifting", models.RiskMedium, []string{"lifting"}, models.StatusPendingInspection},
		{"low risk excavation only", models.RiskLow, []string{"excavation"}, models.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := withRequired(models.NewPermit("p", "1.4.0", start), tt.required...)
			p.JSEA.OverallRiskRating = tt.risk
			assert.Equal(t, tt.want, ApprovalTarget(p))
		})
	}
}

func TestApproveRefusedWhileBlocked(t *testing.T) {
	m := newMachine(t)
	p := withRequired(m.Create("requester"), "blasting")
	p.SpecializedPermits["blasting"].Questionnaire = answers.New().SetAnswer("lightning_risk", answers.Scalar("yes"))
	before := p.Clone()

	next, err := m.Approve(p, "issuer")
	assert.Nil(t, next)
	assertTransitionError(t, err, ActionApprove, models.StatusPendingApproval)
	assert.Contains(t, err.Error(), "lightning_risk")
	assert.Equal(t, before, p)

	p.SpecializedPermits["blasting"].Questionnaire = p.SpecializedPermits["blasting"].Questionnaire.
		SetAnswer("lightning_risk", answers.Scalar("no"))
	next, err = m.Approve(p, "issuer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingInspection, next.Status)
}

func TestApproveIgnoresIncompleteAnswers(t *testing.T) {
	m := newMachine(t)
	p := withRequired(m.Create("requester"), "excavation")

	next, err := m.Approve(p, "issuer")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, next.Status)
}

func TestApproveIsIdempotent(t *testing.T) {
	m := newMachine(t)
	p := activePermit(t, m)
	approvedAt := *p.ApprovedAt
	entries := len(p.AuditLog)

	again, err := m.Approve(p, "someone else")
	require.NoError(t, err)
	assert.Equal(t, approvedAt, *again.ApprovedAt)
	assert.Equal(t, "issuer", again.Approval.ApprovedBy)
	assert.Len(t, again.AuditLog, entries)
}

func TestApproveRequiresApprover(t *testing.T) {
	m := newMachine(t)
	_, err := m.Approve(m.Create("requester"), " ")
	assertTransitionError(t, err, ActionApprove, models.StatusPendingApproval)
}

func TestInspect(t *testing.T) {
	m := newMachine(t)
	p := m.Create("requester")
	p.JSEA.OverallRiskRating = models.RiskHigh

	_, err := m.Inspect(p, models.Inspection{Inspector: "ivan"})
	assertTransitionError(t, err, ActionInspect, models.StatusPendingApproval)

	p, err = m.Approve(p, "issuer")
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingInspection, p.Status)

	_, err = m.Inspect(p, models.Inspection{})
	assertTransitionError(t, err, ActionInspect, models.StatusPendingInspection)

	p, err = m.Inspect(p, models.Inspection{Inspector: "ivan", Date: "2026-06-01", Comments: "barriers in place"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, p.Status)
	require.NotNil(t, p.Inspection)
	assert.Equal(t, "ivan", p.Inspection.Inspector)
	inspectedAt := *p.InspectedAt

	again, err := m.Inspect(p, models.Inspection{Inspector: "other"})
	require.NoError(t, err)
	assert.Equal(t, inspectedAt, *again.InspectedAt)
	assert.Equal(t, "ivan", again.Inspection.Inspector)

	entries := History(p, ActionInspect)
	require.Len(t, entries, 1)
	assert.Equal(t, "barriers in place", entries[0].Details["comments"])
	assert.Equal(t, "active", entries[0].Details["to"])
}

func TestInspectNotNeededForLowRisk(t *testing.T) {
	m := newMachine(t)
	p := activePermit(t, m)
	_, err := m.Inspect(p, models.Inspection{Inspector: "ivan"})
	assertTransitionError(t, err, ActionInspect, models.StatusActive)
}

func TestCompleteRequiresBothHalves(t *testing.T) {
	m := newMachine(t)

	_, err := m.Complete(m.Create("requester"), models.SignOff{IssuerName: "a", IssuerSignature: "s"})
	assertTransitionError(t, err, ActionComplete, models.StatusPendingApproval)

	p := activePermit(t, m)

	next, err := m.Complete(p, models.SignOff{IssuerName: "iris"})
	assertTransitionError(t, err, ActionComplete, models.StatusActive)
	assert.Nil(t, next, "an incomplete half records nothing")

	next, err = m.Complete(p, models.SignOff{IssuerName: "iris", IssuerSignature: "iris-sig"})
	assert.Nil(t, next)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidTransition), "a recorded half is progress, not a refusal")
	var partial *PartialSignOffError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"issuer"}, partial.Signed)
	assert.Equal(t, []string{"receiver name and signature"}, partial.Missing)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Nil(t, p.CompletedSignOff, "the input permit is untouched")

	p = partial.Permit
	assert.Equal(t, models.StatusActive, p.Status)
	assert.Equal(t, string(ActionSignOff), p.AuditLog[len(p.AuditLog)-1].Action)
	require.NotNil(t, p.CompletedSignOff.IssuerSignedAt)
	issuerAt := *p.CompletedSignOff.IssuerSignedAt
	assert.Nil(t, p.CompletedSignOff.ReceiverSignedAt)

	p, err = m.Complete(p, models.SignOff{
		IssuerName: "iris", IssuerSignature: "iris-sig",
		ReceiverName: "rob", ReceiverSignature: "rob-sig",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Equal(t, issuerAt, *p.CompletedSignOff.IssuerSignedAt)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.ReadOnly())
}

func TestCompleteIdempotentAfterCompletion(t *testing.T) {
	m := newMachine(t)
	p := activePermit(t, m)
	so := models.SignOff{IssuerName: "iris", IssuerSignature: "i", ReceiverName: "rob", ReceiverSignature: "r"}

	p, err := m.Complete(p, so)
	require.NoError(t, err)
	issuerAt := *p.CompletedSignOff.IssuerSignedAt
	receiverAt := *p.CompletedSignOff.ReceiverSignedAt
	completedAt := *p.CompletedAt

	again, err := m.Complete(p, so)
	require.NoError(t, err)
	assert.Equal(t, issuerAt, *again.CompletedSignOff.IssuerSignedAt)
	assert.Equal(t, receiverAt, *again.CompletedSignOff.ReceiverSignedAt)
	assert.Equal(t, completedAt, *again.CompletedAt)
	assert.Len(t, again.AuditLog, len(p.AuditLog))

	_, err = m.Complete(p, models.SignOff{IssuerName: "eve", IssuerSignature: "forged"})
	assertTransitionError(t, err, ActionComplete, models.StatusCompleted)
}

func TestCompleteRejectsChangedSignature(t *testing.T) {
	m := newMachine(t)
	p := activePermit(t, m)

	_, err := m.Complete(p, models.SignOff{ReceiverName: "rob", ReceiverSignature: "r"})
	var partial *PartialSignOffError
	require.True(t, errors.As(err, &partial))
	_, err = m.Complete(partial.Permit, models.SignOff{ReceiverName: "rob", ReceiverSignature: "different"})
	assertTransitionError(t, err, ActionComplete, models.StatusActive)
}

func TestReject(t *testing.T) {
	m := newMachine(t)

	for _, setup := range []func() *models.Permit{
		func() *models.Permit { return m.Create("r") },
		func() *models.Permit {
			p := m.Create("r")
			p.JSEA.OverallRiskRating = models.RiskHigh
			p, _ = m.Approve(p, "issuer")
			return p
		},
		func() *models.Permit { return activePermit(t, m) },
	} {
		p := setup()
		from := p.Status
		rejected, err := m.Reject(p, "issuer", "scope changed")
		require.NoError(t, err, from)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.Equal(t, "scope changed", rejected.Rejection.Reason)
		assert.True(t, rejected.ReadOnly())

		again, err := m.Reject(rejected, "other", "again")
		require.NoError(t, err)
		assert.Equal(t, *rejected.RejectedAt, *again.RejectedAt)
		assert.Equal(t, "issuer", again.Rejection.RejectedBy)
	}
}

func TestRejectTerminalAndValidation(t *testing.T) {
	m := newMachine(t)
	p := activePermit(t, m)
	p, err := m.Complete(p, models.SignOff{IssuerName: "a", IssuerSignature: "b", ReceiverName: "c", ReceiverSignature: "d"})
	require.NoError(t, err)

	_, err = m.Reject(p, "issuer", "late")
	assertTransitionError(t, err, ActionReject, models.StatusCompleted)

	_, err = m.Reject(m.Create("r"), "", "no name")
	assertTransitionError(t, err, ActionReject, models.StatusPendingApproval)
}

func TestRejectedPermitCannotBeApproved(t *testing.T) {
	m := newMachine(t)
	p, err := m.Reject(m.Create("r"), "issuer", "")
	require.NoError(t, err)

	_, err = m.Approve(p, "issuer")
	assertTransitionError(t, err, ActionApprove, models.StatusRejected)
}

func TestAuditTrail(t *testing.T) {
	m := newMachine(t)
	p := m.Create("r")
	p.JSEA.OverallRiskRating = models.RiskHigh
	p, _ = m.Approve(p, "issuer")
	p, _ = m.Inspect(p, models.Inspection{Inspector: "ivan"})
	p, _ = m.Complete(p, models.SignOff{IssuerName: "a", IssuerSignature: "b", ReceiverName: "c", ReceiverSignature: "d"})

	var actions []string
	for _, e := range p.AuditLog {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"create", "approve", "inspect", "sign_off", "complete"}, actions)
	for i := 1; i < len(p.AuditLog); i++ {
		assert.False(t, p.AuditLog[i].At.Before(p.AuditLog[i-1].At))
	}
	approve := History(p, ActionApprove)[0]
	assert.Equal(t, "pending_approval", approve.Details["from"])
	assert.Equal(t, "pending_inspection", approve.Details["to"])
	assert.Equal(t, "issuer", approve.Actor)
}

type recordingLogger struct {
	mu          sync.Mutex
	transitions []string
	refusals    []string
}

func (r *recordingLogger) LogTransition(_ string, action string, from, to models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, fmt.Sprintf("%s:%s->%s", action, from, to))
}

func (r *recordingLogger) LogRefusal(_ string, action string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refusals = append(r.refusals, action)
}

func TestMachineLogsAndCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	log := &recordingLogger{}
	m := newMachine(t, WithLogger(log), WithMeter(provider.Meter("test")))

	p := activePermit(t, m)
	_, err := m.Inspect(p, models.Inspection{Inspector: "x"})
	require.Error(t, err)

	assert.Equal(t, []string{"approve:pending_approval->active"}, log.transitions)
	assert.Equal(t, []string{"inspect"}, log.refusals)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterTotal(rm, "ptw.lifecycle.transitions"))
	assert.Equal(t, int64(1), counterTotal(rm, "ptw.lifecycle.refusals"))
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
