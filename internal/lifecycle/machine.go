// Package lifecycle moves permits through approval, inspection, completion and
// rejection.
//
//	pending_approval --approve--> pending_inspection --inspect--> active --complete--> completed
//	                 \--approve (low risk)-----------------------/
//	any non-terminal state --reject--> rejected
//
// Every method takes a permit and returns a new one; the input is never
// modified. Re-applying a transition whose effect is already recorded is a
// no-op and never rewrites a timestamp.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

// Action names a lifecycle operation in errors and the audit trail.
type Action string

const (
	ActionCreate         Action = "create"
	ActionApprove        Action = "approve"
	ActionInspect        Action = "inspect"
	ActionSignOff        Action = "sign_off"
	ActionComplete       Action = "complete"
	ActionReject         Action = "reject"
	ActionSaveTemplate   Action = "template_saved"
	ActionRemoveTemplate Action = "template_deleted"
	ActionFromTemplate   Action = "permit_created_from_template"
)

// InspectionRequired lists specialized permits that send an approved permit
// to pending_inspection instead of straight to active.
var InspectionRequired = []string{
	"hotWork",
	"confinedSpace",
	"workingAtHeight",
	"electrical",
	"lifting",
	"blasting",
}

// Logger receives lifecycle events.
type Logger interface {
	LogTransition(permitID string, action string, from, to models.Status)
	LogRefusal(permitID string, action string, err error)
}

type nopLogger struct{}

func (nopLogger) LogTransition(string, string, models.Status, models.Status) {}
func (nopLogger) LogRefusal(string, string, error)                           {}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used for every recorded timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(l Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMeter sets the meter used for transition counters.
func WithMeter(meter metric.Meter) Option {
	return func(m *Machine) { m.meter = meter }
}

// WithIDGenerator sets how new permit ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// Machine applies lifecycle transitions. It holds no per-permit state.
type Machine struct {
	reg     *schema.Registry
	logger  Logger
	meter   metric.Meter
	metrics lifecycleMetrics
	now     func() time.Time
	newID   func() string
}

// New returns a Machine that checks blocking answers against reg.
func New(reg *schema.Registry, opts ...Option) *Machine {
	m := &Machine{
		reg:    reg,
		logger: nopLogger{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newLifecycleMetrics(m.meter)
	return m
}

// Create returns a new permit in pending_approval.
func (m *Machine) Create(actor string) *models.Permit {
	now := m.now()
	p := models.NewPermit(m.newID(), m.reg.Version().String(), now)
	p.RequestedBy = actor
	appendAudit(p, ActionCreate, actor, now, nil)
	return p
}

// ApprovalTarget returns the state an approval moves p to.
func ApprovalTarget(p *models.Permit) models.Status {
	if p.JSEA.OverallRiskRating.Elevated() {
		return models.StatusPendingInspection
	}
	for _, key := range InspectionRequired {
		if p.IsRequired(key) {
			return models.StatusPendingInspection
		}
	}
	return models.StatusActive
}

// Approve issues a pending permit. It is refused while any required
// questionnaire holds a blocking answer.
func (m *Machine) Approve(p *models.Permit, approver string) (*models.Permit, error) {
	if p.Approval != nil && p.Status != models.StatusRejected {
		return p.Clone(), nil
	}
	if p.Status != models.StatusPendingApproval {
		return nil, m.refuse(p, ActionApprove, "permit is not pending approval")
	}
	if strings.TrimSpace(approver) == "" {
		return nil, m.refuse(p, ActionApprove, "approver is required")
	}
	if violations := engine.PermitViolations(m.reg, p); len(violations) > 0 {
		texts := make([]string, len(violations))
		for i, v := range violations {
			texts[i] = v.String()
		}
		return nil, m.refuse(p, ActionApprove,
			fmt.Sprintf("%d blocking answer(s): %s", len(violations), strings.Join(texts, "; ")))
	}

	now := m.now()
	next := p.Clone()
	next.Approval = &models.Approval{ApprovedBy: approver, ApprovedAt: now}
	next.ApprovedAt = &now
	return m.transition(next, p.Status, ApprovalTarget(p), ActionApprove, approver, now, nil), nil
}

// Inspect records the pre-start inspection and activates the permit.
func (m *Machine) Inspect(p *models.Permit, in models.Inspection) (*models.Permit, error) {
	if p.Inspection != nil && p.Status != models.StatusRejected {
		return p.Clone(), nil
	}
	if p.Status != models.StatusPendingInspection {
		return nil, m.refuse(p, ActionInspect, "permit is not pending inspection")
	}
	if strings.TrimSpace(in.Inspector) == "" {
		return nil, m.refuse(p, ActionInspect, "inspector is required")
	}

	now := m.now()
	next := p.Clone()
	in.InspectedAt = now
	next.Inspection = &in
	next.InspectedAt = &now
	details := map[string]string{}
	if in.Comments != "" {
		details["comments"] = in.Comments
	}
	return m.transition(next, p.Status, models.StatusActive, ActionInspect, in.Inspector, now, details), nil
}

// Complete signs off an active permit. Each half of so that carries both a
// name and a signature is recorded and timestamped the first time it appears.
// The permit moves to completed once both halves are recorded. A call that
// records one half only returns a *PartialSignOffError carrying the updated
// permit; a call that records nothing returns a *TransitionError.
func (m *Machine) Complete(p *models.Permit, so models.SignOff) (*models.Permit, error) {
	if p.Status == models.StatusCompleted {
		if p.CompletedSignOff != nil && matchesRecorded(*p.CompletedSignOff, so) {
			return p.Clone(), nil
		}
		return nil, m.refuse(p, ActionComplete, "permit is already completed with a different sign-off")
	}
	if p.Status != models.StatusActive {
		return nil, m.refuse(p, ActionComplete, "permit is not active")
	}

	now := m.now()
	next := p.Clone()
	rec := models.SignOff{}
	if next.CompletedSignOff != nil {
		rec = *next.CompletedSignOff
	}

	var signed []string
	if so.IssuerComplete() {
		if rec.IssuerSignedAt != nil {
			if rec.IssuerName != so.IssuerName || rec.IssuerSignature != so.IssuerSignature {
				return nil, m.refuse(p, ActionComplete, "issuer has already signed off")
			}
		} else {
			rec.IssuerName, rec.IssuerSignature = so.IssuerName, so.IssuerSignature
			at := now
			rec.IssuerSignedAt = &at
			signed = append(signed, "issuer")
		}
	}
	if so.ReceiverComplete() {
		if rec.ReceiverSignedAt != nil {
			if rec.ReceiverName != so.ReceiverName || rec.ReceiverSignature != so.ReceiverSignature {
				return nil, m.refuse(p, ActionComplete, "receiver has already signed off")
			}
		} else {
			rec.ReceiverName, rec.ReceiverSignature = so.ReceiverName, so.ReceiverSignature
			at := now
			rec.ReceiverSignedAt = &at
			signed = append(signed, "receiver")
		}
	}
	next.CompletedSignOff = &rec

	if len(signed) > 0 {
		next.UpdatedAt = now
		appendAudit(next, ActionSignOff, signer(so), now, map[string]string{"halves": strings.Join(signed, ",")})
	}

	var missing []string
	if rec.IssuerSignedAt == nil {
		missing = append(missing, "issuer name and signature")
	}
	if rec.ReceiverSignedAt == nil {
		missing = append(missing, "receiver name and signature")
	}
	if len(missing) > 0 {
		if len(signed) == 0 {
			return nil, m.refuse(p, ActionComplete, "missing "+strings.Join(missing, " and "))
		}
		return nil, &PartialSignOffError{Permit: next, Signed: signed, Missing: missing}
	}

	next.CompletedAt = &now
	return m.transition(next, p.Status, models.StatusCompleted, ActionComplete, signer(so), now, nil), nil
}

// Reject moves any non-terminal permit to rejected.
func (m *Machine) Reject(p *models.Permit, by, reason string) (*models.Permit, error) {
	if p.Status == models.StatusRejected {
		return p.Clone(), nil
	}
	if p.Status.Terminal() {
		return nil, m.refuse(p, ActionReject, "permit is already "+string(p.Status))
	}
	if strings.TrimSpace(by) == "" {
		return nil, m.refuse(p, ActionReject, "rejecting user is required")
	}

	now := m.now()
	next := p.Clone()
	next.Rejection = &models.Rejection{RejectedBy: by, Reason: reason, RejectedAt: now}
	next.RejectedAt = &now
	var details map[string]string
	if reason != "" {
		details = map[string]string{"reason": reason}
	}
	return m.transition(next, p.Status, models.StatusRejected, ActionReject, by, now, details), nil
}

func (m *Machine) transition(p *models.Permit, from, to models.Status, action Action, actor string, now time.Time, details map[string]string) *models.Permit {
	p.Status = to
	p.UpdatedAt = now
	if details == nil {
		details = map[string]string{}
	}
	details["from"] = string(from)
	details["to"] = string(to)
	appendAudit(p, action, actor, now, details)
	m.metrics.recordTransition(context.Background(), from, to)
	m.logger.LogTransition(p.ID, string(action), from, to)
	return p
}

func (m *Machine) refuse(p *models.Permit, action Action, reason string) error {
	err := &TransitionError{Action: action, From: p.Status, Reason: reason}
	m.metrics.recordRefusal(context.Background(), action)
	m.logger.LogRefusal(p.ID, string(action), err)
	return err
}

// matchesRecorded reports whether every complete half in so equals the
// recorded half. Incomplete halves in so are not compared.
func matchesRecorded(rec, so models.SignOff) bool {
	if so.IssuerComplete() && (so.IssuerName != rec.IssuerName || so.IssuerSignature != rec.IssuerSignature) {
		return false
	}
	if so.ReceiverComplete() && (so.ReceiverName != rec.ReceiverName || so.ReceiverSignature != rec.ReceiverSignature) {
		return false
	}
	return true
}

func signer(so models.SignOff) string {
	if so.IssuerName != "" {
		return so.IssuerName
	}
	return so.ReceiverName
}
