// Package models defines the permit document and its lifecycle records.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrison/ptw/internal/answers"
)

// Status is the lifecycle state of a permit.
type Status string

const (
	StatusPendingApproval   Status = "pending_approval"
	StatusPendingInspection Status = "pending_inspection"
	StatusActive            Status = "active"
	StatusCompleted         Status = "completed"
	StatusRejected          Status = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusPendingInspection, StatusActive, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// RiskLevel rates a JSEA step or the permit overall.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// ParseRiskLevel converts user input into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskVeryHigh:
		return r, nil
	}
	return "", fmt.Errorf("invalid risk level %q (want low, medium, high or very_high)", s)
}

// Elevated reports whether the rating requires an inspection before work starts.
func (r RiskLevel) Elevated() bool {
	return r == RiskHigh || r == RiskVeryHigh
}

// ForceSource records why a specialized permit became required.
type ForceSource string

const (
	ForceManual       ForceSource = "manual"
	ForceCrossTrigger ForceSource = "cross_trigger"
)

// TriggerRef identifies the answer that forced a questionnaire on.
type TriggerRef struct {
	Questionnaire string              `json:"questionnaire"`
	Question      string              `json:"question"`
	Fragment      answers.FragmentKey `json:"fragment"`
	Value         string              `json:"value"`
}

func (t TriggerRef) String() string {
	return fmt.Sprintf("%s.%s = %s", t.Questionnaire, t.Question, t.Value)
}

// SpecializedPermitState is the per-questionnaire state held by a permit.
type SpecializedPermitState struct {
	Required       bool          `json:"required"`
	RequiredSource ForceSource   `json:"requiredSource,omitempty"`
	TriggeredBy    *TriggerRef   `json:"triggeredBy,omitempty"`
	Questionnaire  answers.Store `json:"questionnaire"`
}

// SingleHazardState is a toggle from the single-hazard catalogue.
type SingleHazardState struct {
	Present  bool   `json:"present"`
	Controls string `json:"controls,omitempty"`
}

// TaskStep is one row of the JSEA breakdown.
type TaskStep struct {
	Step      string    `json:"step"`
	Hazards   string    `json:"hazards,omitempty"`
	Controls  string    `json:"controls,omitempty"`
	RiskLevel RiskLevel `json:"riskLevel,omitempty"`
}

// JSEA is the job safety and environmental analysis of a permit.
type JSEA struct {
	Steps             []TaskStep `json:"taskSteps"`
	OverallRiskRating RiskLevel  `json:"overallRiskRating,omitempty"`
}

// Isolation is an energy isolation point applied for the work.
type Isolation struct {
	Point      string `json:"point"`
	Method     string `json:"method,omitempty"`
	IsolatedBy string `json:"isolatedBy,omitempty"`
	LockNumber string `json:"lockNumber,omitempty"`
}

// SignOn records a worker signing on to the permit.
type SignOn struct {
	Name     string    `json:"name"`
	Company  string    `json:"company,omitempty"`
	SignedAt time.Time `json:"signedAt"`
}

// Approval records the issuer approving the permit.
type Approval struct {
	ApprovedBy string    `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// Inspection records the pre-start inspection.
type Inspection struct {
	Inspector   string    `json:"inspector"`
	Date        string    `json:"date,omitempty"`
	Comments    string    `json:"comments,omitempty"`
	InspectedAt time.Time `json:"inspectedAt"`
}

// SignOff is the close-out of a permit. The issuer and receiver halves are
// signed independently; each is timestamped when first complete.
type SignOff struct {
	IssuerName        string     `json:"issuerName,omitempty"`
	IssuerSignature   string     `json:"issuerSignature,omitempty"`
	IssuerSignedAt    *time.Time `json:"issuerSignedAt,omitempty"`
	ReceiverName      string     `json:"receiverName,omitempty"`
	ReceiverSignature string     `json:"receiverSignature,omitempty"`
	ReceiverSignedAt  *time.Time `json:"receiverSignedAt,omitempty"`
}

// IssuerComplete reports whether the issuer half carries a name and signature.
func (s SignOff) IssuerComplete() bool {
	return s.IssuerName != "" && s.IssuerSignature != ""
}

// ReceiverComplete reports whether the receiver half carries a name and signature.
func (s SignOff) ReceiverComplete() bool {
	return s.ReceiverName != "" && s.ReceiverSignature != ""
}

// Rejection records why a permit was rejected.
type Rejection struct {
	RejectedBy string    `json:"rejectedBy"`
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// AuditEntry is one line of the permit audit trail.
type AuditEntry struct {
	Action  string            `json:"action"`
	Actor   string            `json:"actor,omitempty"`
	At      time.Time         `json:"at"`
	Details map[string]string `json:"details,omitempty"`
}

// Permit is the aggregate document persisted wholesale by the store.
type Permit struct {
	ID                string `json:"id"`
	Number            string `json:"permitNumber,omitempty"`
	Description       string `json:"description,omitempty"`
	Location          string `json:"location,omitempty"`
	SiteID            string `json:"siteId,omitempty"`
	RequestedBy       string `json:"requestedBy,omitempty"`
	ContractorCompany string `json:"contractorCompany,omitempty"`
	SchemaVersion     string `json:"schemaVersion,omitempty"`

	SpecializedPermits map[string]*SpecializedPermitState `json:"specializedPermits"`
	SingleHazards      map[string]SingleHazardState       `json:"singleHazards"`
	JSEA               JSEA                               `json:"jsea"`
	Isolations         []Isolation                        `json:"isolations"`
	SignOns            []SignOn                           `json:"signOns"`

	Status           Status      `json:"status"`
	Approval         *Approval   `json:"approval,omitempty"`
	Inspection       *Inspection `json:"inspection,omitempty"`
	CompletedSignOff *SignOff    `json:"completedSignOff,omitempty"`
	Rejection        *Rejection  `json:"rejection,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	InspectedAt *time.Time `json:"inspectedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`

	AuditLog []AuditEntry `json:"auditLog,omitempty"`

	IsTemplate   bool   `json:"isTemplate,omitempty"`
	TemplateName string `json:"templateName,omitempty"`
}

// NewPermit returns an empty permit in pending_approval.
func NewPermit(id, schemaVersion string, now time.Time) *Permit {
	return &Permit{
		ID:                 id,
		SchemaVersion:      schemaVersion,
		SpecializedPermits: make(map[string]*SpecializedPermitState),
		SingleHazards:      make(map[string]SingleHazardState),
		Status:             StatusPendingApproval,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Specialized returns the state for key, or a zero state when absent.
func (p *Permit) Specialized(key string) SpecializedPermitState {
	if st, ok := p.SpecializedPermits[key]; ok && st != nil {
		return *st
	}
	return SpecializedPermitState{}
}

// IsRequired reports whether the specialized permit key is required.
func (p *Permit) IsRequired(key string) bool {
	return p.Specialized(key).Required
}

// Answers returns the answer store of a specialized permit.
func (p *Permit) Answers(key string) answers.Store {
	return p.Specialized(key).Questionnaire
}

// ReadOnly reports whether the permit no longer accepts edits.
func (p *Permit) ReadOnly() bool {
	return p.Status.Terminal()
}

// Editable reports whether the questionnaires, hazards and JSEA may still
// change. Once approved only isolations and sign-ons are recorded.
func (p *Permit) Editable() bool {
	return p.Status == StatusPendingApproval
}

// Clone returns a deep copy. Answer stores are persistent and shared.
func (p *Permit) Clone() *Permit {
	if p == nil {
		return nil
	}
	out := *p

	out.SpecializedPermits = make(map[string]*SpecializedPermitState, len(p.SpecializedPermits))
	for k, st := range p.SpecializedPermits {
		if st == nil {
			continue
		}
		cp := *st
		if st.TriggeredBy != nil {
			ref := *st.TriggeredBy
			cp.TriggeredBy = &ref
		}
		out.SpecializedPermits[k] = &cp
	}

	out.SingleHazards = make(map[string]SingleHazardState, len(p.SingleHazards))
	for k, v := range p.SingleHazards {
		out.SingleHazards[k] = v
	}

	out.JSEA.Steps = append([]TaskStep(nil), p.JSEA.Steps...)
	out.Isolations = append([]Isolation(nil), p.Isolations...)
	out.SignOns = append([]SignOn(nil), p.SignOns...)

	out.Approval = clonePtr(p.Approval)
	out.Inspection = clonePtr(p.Inspection)
	out.Rejection = clonePtr(p.Rejection)
	if p.CompletedSignOff != nil {
		so := *p.CompletedSignOff
		so.IssuerSignedAt = clonePtr(so.IssuerSignedAt)
		so.ReceiverSignedAt = clonePtr(so.ReceiverSignedAt)
		out.CompletedSignOff = &so
	}

	out.ApprovedAt = clonePtr(p.ApprovedAt)
	out.InspectedAt = clonePtr(p.InspectedAt)
	out.CompletedAt = clonePtr(p.CompletedAt)
	out.RejectedAt = clonePtr(p.RejectedAt)

	if p.AuditLog != nil {
		out.AuditLog = make([]AuditEntry, len(p.AuditLog))
		for i, e := range p.AuditLog {
			e.Details = cloneMap(e.Details)
			out.AuditLog[i] = e
		}
	}
	return &out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Decode parses a permit document and fills nil maps.
func Decode(data []byte) (*Permit, error) {
	var p Permit
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode permit: %w", err)
	}
	if p.SpecializedPermits == nil {
		p.SpecializedPermits = make(map[string]*SpecializedPermitState)
	}
	if p.SingleHazards == nil {
		p.SingleHazards = make(map[string]SingleHazardState)
	}
	if p.Status == "" {
		p.Status = StatusPendingApproval
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("decode permit %s: unknown status %q", p.ID, p.Status)
	}
	return &p, nil
}

// Encode renders the permit as indented JSON.
func Encode(p *Permit) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode permit %s: %w", p.ID, err)
	}
	return data, nil
}
