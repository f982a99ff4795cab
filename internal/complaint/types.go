// Package complaint provides the domain types for the JanSahayak civic
// complaint pipeline.
//
// Everything the pipeline produces is modeled here as an immutable value:
// the vision collaborator's DamageAssessment, the risk engine's
// RiskAssessment, the recurrence signal derived at intake, the planner's
// ActionPlan, and the Complaint record that owns all of them together with
// its status history.
//
// All enums are validated at the ingestion boundary so that malformed
// collaborator output surfaces as a validation error instead of leaking
// loosely-typed data into the store.
package complaint

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jansahayak/internal/errors"
)

// DamageType classifies the civic issue detected in the submitted photo.
type DamageType string

const (
	DamagePothole     DamageType = "pothole"
	DamageWaterLeak   DamageType = "water-leak"
	DamageStreetlight DamageType = "streetlight"
	DamageDrainage    DamageType = "drainage"
	DamageOther       DamageType = "other"
)

// damageAliases maps the intake form's issue labels onto the fixed enum.
// The citizen-facing form offers more categories than the pipeline scores;
// everything without its own bucket lands in DamageOther.
var damageAliases = map[string]DamageType{
	"pothole":                 DamagePothole,
	"water leakage":           DamageWaterLeak,
	"water-leak":              DamageWaterLeak,
	"streetlight":             DamageStreetlight,
	"streetlight malfunction": DamageStreetlight,
	"drainage":                DamageDrainage,
	"drainage block":          DamageDrainage,
	"garbage accumulation":    DamageOther,
	"road damage":             DamageOther,
	"manhole issue":           DamageOther,
	"other":                   DamageOther,
}

// ParseDamageType normalizes an intake issue label to a DamageType.
//
// Parameters:
//   - s: Issue label as entered on the intake form (case-insensitive)
//
// Returns:
//   - DamageType: Normalized enum value
//   - error: If the label is empty or unknown
func ParseDamageType(s string) (DamageType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", fmt.Errorf("issue type is empty")
	}
	if dt, ok := damageAliases[key]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown issue type %q", s)
}

// RiskFactor is a context flag that raises the urgency of a damage report.
type RiskFactor string

const (
	FactorNearSchool      RiskFactor = "near-school"
	FactorHeavyTraffic    RiskFactor = "heavy-traffic"
	FactorWaterRelated    RiskFactor = "water-related"
	FactorMonsoonExposure RiskFactor = "monsoon-exposure"
)

// AllRiskFactors lists every factor in its canonical order. The risk
// breakdown and the serialized factor set both follow this order so that
// identical assessments always produce identical records.
var AllRiskFactors = []RiskFactor{
	FactorNearSchool,
	FactorHeavyTraffic,
	FactorWaterRelated,
	FactorMonsoonExposure,
}

// ParseRiskFactor validates a single risk factor string.
func ParseRiskFactor(s string) (RiskFactor, error) {
	for _, f := range AllRiskFactors {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown risk factor %q", s)
}

// DamageAssessment is the structured output of the vision collaborator.
//
// Immutable once produced. Severity is a 1-10 scale; anything outside that
// range is rejected at the boundary with an InvalidAssessment error.
//
// Fields:
//   - Type: Damage classification (pothole, water-leak, ...)
//   - Severity: Visual severity on a 1-10 scale
//   - Factors: Context flags detected in the image, in canonical order
//   - Description: Short free-text assessment from the vision model
type DamageAssessment struct {
	Type        DamageType   `json:"damage_type"`
	Severity    int          `json:"severity"`
	Factors     []RiskFactor `json:"risk_factors"`
	Description string       `json:"description"`
}

// HasFactor reports whether the assessment carries the given factor.
func (a DamageAssessment) HasFactor(f RiskFactor) bool {
	for _, have := range a.Factors {
		if have == f {
			return true
		}
	}
	return false
}

// Validate checks the assessment against the fixed schema.
//
// Validation rules:
//   - Type must be a known DamageType
//   - Severity must be within 1-10
//   - Every factor must be a known RiskFactor, with no duplicates
//
// Returns:
//   - error: *errors.InvalidAssessmentError describing the first violation
func (a DamageAssessment) Validate() error {
	switch a.Type {
	case DamagePothole, DamageWaterLeak, DamageStreetlight, DamageDrainage, DamageOther:
	default:
		return errors.NewInvalidAssessment(fmt.Sprintf("unknown damage type %q", a.Type))
	}
	if a.Severity < 1 || a.Severity > 10 {
		return errors.NewInvalidAssessment(fmt.Sprintf("severity %d outside 1-10", a.Severity))
	}
	seen := make(map[RiskFactor]bool, len(a.Factors))
	for _, f := range a.Factors {
		if _, err := ParseRiskFactor(string(f)); err != nil {
			return errors.NewInvalidAssessment(err.Error())
		}
		if seen[f] {
			return errors.NewInvalidAssessment(fmt.Sprintf("duplicate risk factor %q", f))
		}
		seen[f] = true
	}
	return nil
}

// UrgencyTier is the coarse priority bucket derived from the risk score.
type UrgencyTier string

const (
	TierCritical UrgencyTier = "CRITICAL"
	TierHigh     UrgencyTier = "HIGH"
	TierModerate UrgencyTier = "MODERATE"
	TierLow      UrgencyTier = "LOW"
)

// ParseUrgencyTier validates an urgency tier string.
func ParseUrgencyTier(s string) (UrgencyTier, error) {
	switch UrgencyTier(s) {
	case TierCritical, TierHigh, TierModerate, TierLow:
		return UrgencyTier(s), nil
	}
	return "", fmt.Errorf("unknown urgency tier %q", s)
}

// FactorWeight is one row of the risk score breakdown: the contributing
// factor name and the points it added.
type FactorWeight struct {
	Factor string `json:"factor"`
	Weight int    `json:"weight"`
}

// RiskAssessment is the risk engine's output for one complaint.
//
// Produced exactly once per complaint and never recomputed; the breakdown
// is kept so an auditor can reconstruct the score from the inputs.
//
// Fields:
//   - Score: Bounded risk score, always within 0-100
//   - Tier: Urgency tier derived from the score
//   - Breakdown: Ordered (factor, weight) rows summing to the unclamped score
type RiskAssessment struct {
	Score     int            `json:"risk_score"`
	Tier      UrgencyTier    `json:"urgency"`
	Breakdown []FactorWeight `json:"breakdown"`
}

// RecurrenceSignal records whether this location/issue pair has been
// reported before. Derived from the memory index at intake time against
// committed complaints only; not re-derived later.
//
// Fields:
//   - Recurring: True when at least one prior complaint matched
//   - PriorCount: Number of prior complaints matched
//   - MatchedIDs: IDs of the matched complaints, oldest first
type RecurrenceSignal struct {
	Recurring  bool     `json:"recurring"`
	PriorCount int      `json:"prior_count"`
	MatchedIDs []string `json:"matched_ids,omitempty"`
}

// Location is where the issue was reported.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// BudgetRange is the planner's cost estimate in INR.
type BudgetRange struct {
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Currency string          `json:"currency"`
}

// ActionPlan is the remediation plan from the planning collaborator.
//
// Fields:
//   - ImmediateActions: Ordered steps to take first
//   - Resources: Crews, equipment and materials required
//   - Timeline: Expected remediation timeline
//   - Budget: Estimated cost range
type ActionPlan struct {
	ImmediateActions []string    `json:"immediate_actions"`
	Resources        []string    `json:"required_resources"`
	Timeline         string      `json:"timeline"`
	Budget           BudgetRange `json:"budget_estimate"`
}

// StatusChange is one immutable entry of a complaint's audit trail.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
}

// Complaint is the registered, trackable record of one civic issue.
//
// Ownership: the orchestrator constructs a Complaint exactly once and hands
// it to the store; afterwards only the store mutates it (status, plan
// backfill), and every status mutation appends to History.
//
// Fields:
//   - ID: Globally unique JAN-prefixed token, assigned before persistence
//   - CitizenName / CitizenPhone: Contact info of the reporter
//   - Location: Coordinates plus free-text address
//   - Assessment: Vision collaborator output
//   - Risk: Risk engine output
//   - Recurrence: Recurrence signal derived at intake
//   - Plan: Remediation plan; nil while PlanPending is set
//   - PlanPending: True when the planner was unavailable at intake
//   - Status: Current lifecycle status
//   - History: Append-only, time-ordered status log
//   - CreatedAt: Registration timestamp
type Complaint struct {
	ID           string           `json:"complaint_id"`
	CitizenName  string           `json:"citizen_name"`
	CitizenPhone string           `json:"citizen_phone"`
	Location     Location         `json:"location"`
	Assessment   DamageAssessment `json:"assessment"`
	Risk         RiskAssessment   `json:"risk"`
	Recurrence   RecurrenceSignal `json:"recurrence"`
	Plan         *ActionPlan      `json:"action_plan,omitempty"`
	PlanPending  bool             `json:"plan_pending"`
	Status       Status           `json:"status"`
	History      []StatusChange   `json:"status_history"`
	CreatedAt    time.Time        `json:"created_at"`
}
