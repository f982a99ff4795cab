// Package orchestrator drives a citizen submission through the analysis
// pipeline: validation → vision collaborator → risk engine → recurrence
// lookup → planning collaborator → store commit.
//
// Each ProcessIntake invocation runs independently; the only shared state
// it touches is the store (at commit) and the recurrence index (a read).
// Collaborator calls are the only suspension points and are issued without
// holding any lock.
//
// Failure policy:
//   - Nothing persists before the final commit: a failure or cancellation
//     anywhere earlier discards all partial work
//   - Vision failure aborts the pipeline (VisionUnavailable or
//     InvalidAssessment); no assessment is ever fabricated
//   - Planner failure degrades: the complaint commits plan-less with the
//     PlanPending flag so the risk/recurrence work is not thrown away
//   - Each collaborator gets exactly one retry after a fixed delay
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
	"jansahayak/internal/health"
	"jansahayak/internal/memory"
	"jansahayak/internal/planner"
	"jansahayak/internal/risk"
	"jansahayak/internal/store"
)

// collaboratorAttempts bounds calls per stage: the first try plus one
// retry.
const collaboratorAttempts = 2

// VisionAnalyzer is the narrow interface the pipeline expects from the
// vision collaborator.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, photo []byte, mimeType string, issueType complaint.DamageType) (complaint.DamageAssessment, error)
}

// Planner is the narrow interface the pipeline expects from the planning
// collaborator.
type Planner interface {
	Plan(ctx context.Context, pc planner.Context) (*complaint.ActionPlan, error)
}

// Submission is the raw citizen intake request.
//
// Fields:
//   - CitizenName / CitizenPhone: Reporter contact info
//   - Location: Coordinates plus free-text address
//   - IssueType: Issue category from the intake form
//   - Photo / PhotoMIME: Evidence image
type Submission struct {
	CitizenName  string
	CitizenPhone string
	Location     complaint.Location
	IssueType    string
	Photo        []byte
	PhotoMIME    string
}

// Options tunes pipeline timing and recurrence matching.
type Options struct {
	VisionTimeout      time.Duration // Per-attempt vision call timeout
	PlanTimeout        time.Duration // Per-attempt planner call timeout
	RetryDelay         time.Duration // Delay before the single retry
	RecurrenceRadius   float64       // Spatial match radius in meters
	RecurrenceLookback time.Duration // Time window for matches; 0 = unlimited
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	vision  VisionAnalyzer
	planner Planner
	index   *memory.Index
	store   *store.Store
	monitor *health.Monitor
	opts    Options
}

// New creates an orchestrator over the given collaborators and store.
//
// The monitor is optional; when set, every intake outcome is recorded for
// the /health endpoint.
func New(vision VisionAnalyzer, plan Planner, index *memory.Index, st *store.Store, monitor *health.Monitor, opts Options) *Orchestrator {
	if opts.VisionTimeout <= 0 {
		opts.VisionTimeout = 30 * time.Second
	}
	if opts.PlanTimeout <= 0 {
		opts.PlanTimeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.RecurrenceRadius <= 0 {
		opts.RecurrenceRadius = memory.DefaultRadiusMeters
	}
	return &Orchestrator{
		vision:  vision,
		planner: plan,
		index:   index,
		store:   st,
		monitor: monitor,
		opts:    opts,
	}
}

// ProcessIntake runs one submission through the full pipeline and returns
// the committed complaint.
//
// Error contract (see internal/errors):
//   - *InvalidSubmissionError: validation failed, nothing was called
//   - *VisionUnavailableError: vision collaborator failed after retry
//   - *InvalidAssessmentError: vision output violated the schema
//   - ctx errors: request abandoned; no partial complaint persists
//
// A planner failure is not an error: the returned complaint carries
// PlanPending and a nil plan.
func (o *Orchestrator) ProcessIntake(ctx context.Context, sub Submission) (*complaint.Complaint, error) {
	// Stage 1: validate before any collaborator call.
	damageType, err := validateSubmission(sub)
	if err != nil {
		o.recordOutcome(fmt.Sprintf("rejected: %v", err))
		return nil, err
	}

	// Stage 2: vision collaborator.
	assessment, err := o.callVision(ctx, sub, damageType)
	if err != nil {
		o.recordOutcome(fmt.Sprintf("vision failed: %v", err))
		return nil, err
	}

	// Stage 3: deterministic risk scoring. Cannot fail on a validated
	// assessment.
	riskAssessment, err := risk.Compute(assessment)
	if err != nil {
		o.recordOutcome(fmt.Sprintf("risk scoring failed: %v", err))
		return nil, err
	}

	// Stage 4: recurrence lookup against committed complaints only.
	recurrence := o.index.FindRecurrence(sub.Location, assessment.Type, o.opts.RecurrenceRadius, o.opts.RecurrenceLookback)
	if recurrence.Recurring {
		log.Printf("  🔁 Recurring issue: %d prior reports near %s", recurrence.PriorCount, sub.Location.Address)
	}

	// Stage 5: planning collaborator, degradable.
	plan, planPending := o.callPlanner(ctx, planner.Context{
		Assessment: assessment,
		Risk:       riskAssessment,
		Recurrence: recurrence,
		Location:   sub.Location,
	})

	// Abandoned requests stop here: nothing has been persisted yet.
	if err := ctx.Err(); err != nil {
		o.recordOutcome("abandoned before commit")
		return nil, err
	}

	// Stage 6: assemble and commit.
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &complaint.Complaint{
		ID:           complaint.NewID(),
		CitizenName:  strings.TrimSpace(sub.CitizenName),
		CitizenPhone: strings.TrimSpace(sub.CitizenPhone),
		Location:     sub.Location,
		Assessment:   assessment,
		Risk:         riskAssessment,
		Recurrence:   recurrence,
		Plan:         plan,
		PlanPending:  planPending,
		Status:       complaint.StatusSubmitted,
		History: []complaint.StatusChange{{
			Status:    complaint.StatusSubmitted,
			Timestamp: now,
			Actor:     "citizen",
			Note:      "complaint registered",
		}},
		CreatedAt: now,
	}

	if err := o.store.Create(ctx, c); err != nil {
		o.recordOutcome(fmt.Sprintf("commit failed: %v", err))
		return nil, fmt.Errorf("commit complaint: %w", err)
	}

	if planPending {
		log.Printf("✓ Registered %s (risk %d, %s), plan pending", c.ID, c.Risk.Score, c.Risk.Tier)
		o.recordOutcome("success (plan pending)")
	} else {
		log.Printf("✓ Registered %s (risk %d, %s)", c.ID, c.Risk.Score, c.Risk.Tier)
		o.recordOutcome("success")
	}
	return c, nil
}

// validateSubmission enforces the intake preconditions: location present,
// photo present, issue type non-empty and known.
func validateSubmission(sub Submission) (complaint.DamageType, error) {
	if strings.TrimSpace(sub.Location.Address) == "" {
		return "", errors.NewInvalidSubmission("location address is required")
	}
	if sub.Location.Latitude < -90 || sub.Location.Latitude > 90 ||
		sub.Location.Longitude < -180 || sub.Location.Longitude > 180 {
		return "", errors.NewInvalidSubmission("location coordinates out of range")
	}
	if len(sub.Photo) == 0 {
		return "", errors.NewInvalidSubmission("photo is required")
	}
	damageType, err := complaint.ParseDamageType(sub.IssueType)
	if err != nil {
		return "", errors.NewInvalidSubmission(err.Error())
	}
	return damageType, nil
}

// callVision invokes the vision collaborator with one retry. The final
// failure keeps its classification: schema violations surface as
// InvalidAssessment, everything else as VisionUnavailable.
func (o *Orchestrator) callVision(ctx context.Context, sub Submission, damageType complaint.DamageType) (complaint.DamageAssessment, error) {
	var lastErr error
	for attempt := 1; attempt <= collaboratorAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.VisionTimeout)
		assessment, err := o.vision.Analyze(callCtx, sub.Photo, sub.PhotoMIME, damageType)
		cancel()
		if err == nil {
			return assessment, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return complaint.DamageAssessment{}, ctx.Err()
		}
		if attempt < collaboratorAttempts {
			log.Printf("  ⚠️  Vision attempt %d/%d failed: %v, retrying in %v", attempt, collaboratorAttempts, err, o.opts.RetryDelay)
			time.Sleep(o.opts.RetryDelay)
		}
	}

	if errors.IsInvalidAssessment(lastErr) {
		return complaint.DamageAssessment{}, lastErr
	}
	return complaint.DamageAssessment{}, errors.NewVisionUnavailable("analysis failed after retry", lastErr)
}

// callPlanner invokes the planning collaborator with one retry. On final
// failure it degrades to (nil, true): commit without a plan rather than
// discard the pipeline's work.
func (o *Orchestrator) callPlanner(ctx context.Context, pc planner.Context) (*complaint.ActionPlan, bool) {
	var lastErr error
	for attempt := 1; attempt <= collaboratorAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.PlanTimeout)
		plan, err := o.planner.Plan(callCtx, pc)
		cancel()
		if err == nil && plan != nil {
			return plan, false
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, true
		}
		if attempt < collaboratorAttempts {
			log.Printf("  ⚠️  Planner attempt %d/%d failed: %v, retrying in %v", attempt, collaboratorAttempts, err, o.opts.RetryDelay)
			time.Sleep(o.opts.RetryDelay)
		}
	}

	log.Printf("  ⚠️  Planner unavailable, committing with plan pending: %v", lastErr)
	return nil, true
}

func (o *Orchestrator) recordOutcome(status string) {
	if o.monitor != nil {
		o.monitor.UpdateIntakeStatus(status)
	}
}
