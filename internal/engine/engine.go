package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
)

// ErrReadOnly is returned for edits on a completed or rejected permit.
var ErrReadOnly = errors.New("permit is read-only")

// ErrNotEditable is returned for questionnaire, hazard and JSEA edits on a
// permit past pending_approval. It matches ErrReadOnly.
var ErrNotEditable = fmt.Errorf("permit is locked after approval: %w", ErrReadOnly)

// Logger receives engine events. Implementations must be safe for concurrent use.
type Logger interface {
	LogEvaluation(permitID string, ev *Evaluation)
	LogCrossTrigger(permitID string, hit TriggerHit)
}

type nopLogger struct{}

func (nopLogger) LogEvaluation(string, *Evaluation)  {}
func (nopLogger) LogCrossTrigger(string, TriggerHit) {}

// Edit sets one fragment of one answer record.
type Edit struct {
	Questionnaire string
	QuestionID    string
	Fragment      answers.FragmentKey
	Value         answers.Answer
}

// AnswerEdit is an Edit of the primary answer fragment.
func AnswerEdit(questionnaire, questionID string, value answers.Answer) Edit {
	return Edit{Questionnaire: questionnaire, QuestionID: questionID, Fragment: answers.FragmentAnswer, Value: value}
}

// QuestionnaireResult is the evaluation of one required questionnaire.
type QuestionnaireResult struct {
	Key             string
	Visible         VisibleSet
	Incomplete      []string
	MissingControls []string
}

// Evaluation is the full derived state of a permit after one pass.
type Evaluation struct {
	Questionnaires []QuestionnaireResult
	Violations     []Violation
	Controls       []ControlEntry
	// Forced lists cross triggers applied by the edit that produced this evaluation.
	Forced []TriggerHit
}

// Blocked reports whether approval must be refused.
func (ev *Evaluation) Blocked() bool { return len(ev.Violations) > 0 }

// Complete reports whether every required question is answered and every
// triggered controls explanation is recorded.
func (ev *Evaluation) Complete() bool {
	for _, r := range ev.Questionnaires {
		if len(r.Incomplete) > 0 || len(r.MissingControls) > 0 {
			return false
		}
	}
	return true
}

// Result returns the evaluation of questionnaire key.
func (ev *Evaluation) Result(key string) (QuestionnaireResult, bool) {
	for _, r := range ev.Questionnaires {
		if r.Key == key {
			return r, true
		}
	}
	return QuestionnaireResult{}, false
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the event logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMeter sets the meter used for engine counters.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithClock sets the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine evaluates permits against a registry. It holds no per-permit state
// and is safe for concurrent use.
type Engine struct {
	reg     *schema.Registry
	logger  Logger
	meter   metric.Meter
	metrics engineMetrics
	now     func() time.Time
}

// New returns an Engine for reg.
func New(reg *schema.Registry, opts ...Option) *Engine {
	e := &Engine{reg: reg, logger: nopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newEngineMetrics(e.meter)
	return e
}

// Registry returns the registry the engine evaluates against.
func (e *Engine) Registry() *schema.Registry { return e.reg }

// Evaluate computes the derived state of p without changing it.
func (e *Engine) Evaluate(p *models.Permit) *Evaluation {
	ev := e.evaluate(p)
	e.metrics.recordEvaluation(context.Background(), len(ev.Violations))
	e.logger.LogEvaluation(p.ID, ev)
	return ev
}

func (e *Engine) evaluate(p *models.Permit) *Evaluation {
	ev := &Evaluation{}
	for _, key := range e.reg.Keys() {
		if !p.IsRequired(key) {
			continue
		}
		q, _ := e.reg.Questionnaire(key)
		s := p.Answers(key)
		v := Resolve(q, s)
		ev.Questionnaires = append(ev.Questionnaires, QuestionnaireResult{
			Key:             key,
			Visible:         v,
			Incomplete:      Incomplete(q, s, v),
			MissingControls: MissingControls(q, s, v),
		})
		ev.Violations = append(ev.Violations, blockingWith(q, s, v)...)
	}
	ev.Controls = Aggregate(e.reg, p)
	return ev
}

// Apply returns a copy of p with the edit and any cross triggers it causes
// applied, plus the evaluation of that copy. p itself is never modified.
func (e *Engine) Apply(p *models.Permit, edit Edit) (*models.Permit, *Evaluation, error) {
	if !p.Editable() {
		return nil, nil, fmt.Errorf("edit %s.%s: %w", edit.Questionnaire, edit.QuestionID, errNotEditable(p))
	}
	if _, ok := e.reg.Questionnaire(edit.Questionnaire); !ok {
		return nil, nil, fmt.Errorf("edit: unknown questionnaire %q", edit.Questionnaire)
	}
	fragment := edit.Fragment
	if fragment == "" {
		fragment = answers.FragmentAnswer
	}

	next := p.Clone()
	st, ok := next.SpecializedPermits[edit.Questionnaire]
	if !ok || st == nil {
		st = &models.SpecializedPermitState{}
		next.SpecializedPermits[edit.Questionnaire] = st
	}
	st.Questionnaire = st.Questionnaire.SetFragment(edit.QuestionID, fragment, edit.Value)

	var touched []TriggerHit
	for _, hit := range Triggers(e.reg, next) {
		if hit.Rule.Source == edit.Questionnaire && hit.Rule.Question == edit.QuestionID {
			touched = append(touched, hit)
		}
	}
	forced := applyHits(next, touched)
	for _, hit := range forced {
		e.metrics.recordTrigger(context.Background(), hit)
		e.logger.LogCrossTrigger(next.ID, hit)
	}
	next.UpdatedAt = e.now()

	ev := e.evaluate(next)
	ev.Forced = forced
	e.metrics.recordEvaluation(context.Background(), len(ev.Violations))
	e.logger.LogEvaluation(next.ID, ev)
	return next, ev, nil
}

// SetRequired turns a specialized permit on or off by hand.
func (e *Engine) SetRequired(p *models.Permit, key string, required bool) (*models.Permit, error) {
	if !p.Editable() {
		return nil, fmt.Errorf("set required %s: %w", key, errNotEditable(p))
	}
	if _, ok := e.reg.Questionnaire(key); !ok {
		return nil, fmt.Errorf("set required: unknown questionnaire %q", key)
	}
	next := p.Clone()
	st, ok := next.SpecializedPermits[key]
	if !ok || st == nil {
		st = &models.SpecializedPermitState{}
		next.SpecializedPermits[key] = st
	}
	st.Required = required
	if required {
		st.RequiredSource = models.ForceManual
	} else {
		st.RequiredSource = ""
	}
	st.TriggeredBy = nil
	next.UpdatedAt = e.now()
	return next, nil
}

// SetHazard sets a single hazard toggle and its controls.
func (e *Engine) SetHazard(p *models.Permit, key string, present bool, controls string) (*models.Permit, error) {
	if !p.Editable() {
		return nil, fmt.Errorf("set hazard %s: %w", key, errNotEditable(p))
	}
	if _, ok := e.reg.Hazard(key); !ok {
		return nil, fmt.Errorf("set hazard: unknown single hazard %q", key)
	}
	next := p.Clone()
	next.SingleHazards[key] = models.SingleHazardState{Present: present, Controls: controls}
	next.UpdatedAt = e.now()
	return next, nil
}

// SetJSEA replaces the JSEA breakdown.
func (e *Engine) SetJSEA(p *models.Permit, jsea models.JSEA) (*models.Permit, error) {
	if !p.Editable() {
		return nil, fmt.Errorf("set jsea: %w", errNotEditable(p))
	}
	next := p.Clone()
	next.JSEA = models.JSEA{
		Steps:             append([]models.TaskStep(nil), jsea.Steps...),
		OverallRiskRating: jsea.OverallRiskRating,
	}
	next.UpdatedAt = e.now()
	return next, nil
}

// AddStep appends a JSEA task step.
func (e *Engine) AddStep(p *models.Permit, step models.TaskStep) (*models.Permit, error) {
	if !p.Editable() {
		return nil, fmt.Errorf("add step: %w", errNotEditable(p))
	}
	next := p.Clone()
	next.JSEA.Steps = append(next.JSEA.Steps, step)
	next.UpdatedAt = e.now()
	return next, nil
}

// SetOverallRisk sets the JSEA overall risk rating.
func (e *Engine) SetOverallRisk(p *models.Permit, r models.RiskLevel) (*models.Permit, error) {
	if !p.Editable() {
		return nil, fmt.Errorf("set overall risk: %w", errNotEditable(p))
	}
	next := p.Clone()
	next.JSEA.OverallRiskRating = r
	next.UpdatedAt = e.now()
	return next, nil
}

// AddIsolation records an energy isolation point.
func (e *Engine) AddIsolation(p *models.Permit, iso models.Isolation) (*models.Permit, error) {
	if p.ReadOnly() {
		return nil, fmt.Errorf("add isolation: %w", ErrReadOnly)
	}
	if strings.TrimSpace(iso.Point) == "" {
		return nil, fmt.Errorf("add isolation: isolation point is required")
	}
	next := p.Clone()
	next.Isolations = append(next.Isolations, iso)
	next.UpdatedAt = e.now()
	return next, nil
}

// SignOn records a worker signing on. SignedAt defaults to the engine clock.
func (e *Engine) SignOn(p *models.Permit, so models.SignOn) (*models.Permit, error) {
	if p.ReadOnly() {
		return nil, fmt.Errorf("sign on: %w", ErrReadOnly)
	}
	if strings.TrimSpace(so.Name) == "" {
		return nil, fmt.Errorf("sign on: name is required")
	}
	next := p.Clone()
	if so.SignedAt.IsZero() {
		so.SignedAt = e.now()
	}
	next.SignOns = append(next.SignOns, so)
	next.UpdatedAt = e.now()
	return next, nil
}

// errNotEditable returns ErrReadOnly for terminal permits and ErrNotEditable
// otherwise.
func errNotEditable(p *models.Permit) error {
	if p.ReadOnly() {
		return ErrReadOnly
	}
	return fmt.Errorf("%w (status %s)", ErrNotEditable, p.Status)
}
