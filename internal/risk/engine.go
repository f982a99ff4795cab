// Package risk implements the deterministic risk scoring engine.
//
// Compute is a pure function: no I/O, no hidden state, no clock. Identical
// inputs always produce identical output, which is what makes the stored
// breakdown auditable: anyone can recompute the score from the assessment
// and get the same number.
package risk

import (
	"jansahayak/internal/complaint"
)

// Scoring constants. These are fixed, documented values, not tunables:
// changing them silently would invalidate every stored breakdown.
const (
	// severityWeight converts the 1-10 severity into base points.
	severityWeight = 6

	// severityCap bounds the severity contribution so context factors
	// can still move a maximum-severity report between tiers.
	severityCap = 60

	weightNearSchool      = 20
	weightHeavyTraffic    = 15
	weightWaterRelated    = 10
	weightMonsoonExposure = 25
)

// Tier thresholds on the clamped 0-100 score.
const (
	thresholdCritical = 75
	thresholdHigh     = 50
	thresholdModerate = 25
)

// factorWeights in canonical factor order, so the breakdown rows come out
// in the same order for every complaint.
var factorWeights = map[complaint.RiskFactor]int{
	complaint.FactorNearSchool:      weightNearSchool,
	complaint.FactorHeavyTraffic:    weightHeavyTraffic,
	complaint.FactorWaterRelated:    weightWaterRelated,
	complaint.FactorMonsoonExposure: weightMonsoonExposure,
}

// severityBaseLabel names the base row in the breakdown.
const severityBaseLabel = "severity-base"

// Compute maps a damage assessment to a bounded risk score and urgency
// tier.
//
// Algorithm:
//  1. base = severity × 6, capped at 60
//  2. add the fixed weight of every present risk factor
//  3. clamp the sum to [0,100]
//  4. derive the tier: ≥75 Critical, ≥50 High, ≥25 Moderate, else Low
//
// The returned breakdown lists the base row first, then one row per
// present factor in canonical order; the rows sum to the unclamped score.
//
// Returns:
//   - complaint.RiskAssessment: Score, tier and contributing breakdown
//   - error: *errors.InvalidAssessmentError if the assessment is malformed
func Compute(a complaint.DamageAssessment) (complaint.RiskAssessment, error) {
	if err := a.Validate(); err != nil {
		return complaint.RiskAssessment{}, err
	}

	base := a.Severity * severityWeight
	if base > severityCap {
		base = severityCap
	}

	breakdown := []complaint.FactorWeight{
		{Factor: severityBaseLabel, Weight: base},
	}
	score := base

	for _, f := range complaint.AllRiskFactors {
		if !a.HasFactor(f) {
			continue
		}
		w := factorWeights[f]
		score += w
		breakdown = append(breakdown, complaint.FactorWeight{Factor: string(f), Weight: w})
	}

	clamped := score
	if clamped > 100 {
		clamped = 100
	}
	if clamped < 0 {
		clamped = 0
	}

	return complaint.RiskAssessment{
		Score:     clamped,
		Tier:      TierFor(clamped),
		Breakdown: breakdown,
	}, nil
}

// TierFor derives the urgency tier from a clamped risk score.
func TierFor(score int) complaint.UrgencyTier {
	switch {
	case score >= thresholdCritical:
		return complaint.TierCritical
	case score >= thresholdHigh:
		return complaint.TierHigh
	case score >= thresholdModerate:
		return complaint.TierModerate
	default:
		return complaint.TierLow
	}
}
