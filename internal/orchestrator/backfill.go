package orchestrator

import (
	"context"
	"log"
	"time"

	"jansahayak/internal/planner"
	"jansahayak/internal/store"
)

// BackfillWorker periodically retries the planner for complaints that were
// committed with PlanPending. Complaints stay fully trackable while
// pending; the sweep only attaches the missing plan.
type BackfillWorker struct {
	store    *store.Store
	planner  Planner
	interval time.Duration
	timeout  time.Duration
}

// NewBackfillWorker creates a backfill worker.
//
// Parameters:
//   - st: Complaint store to sweep
//   - plan: Planning collaborator
//   - interval: Time between sweeps
//   - timeout: Per-complaint planner call timeout
func NewBackfillWorker(st *store.Store, plan Planner, interval, timeout time.Duration) *BackfillWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BackfillWorker{store: st, planner: plan, interval: interval, timeout: timeout}
}

// Run sweeps on a ticker until ctx is cancelled. Individual failures are
// logged and left for the next sweep; the worker never stops on them.
func (w *BackfillWorker) Run(ctx context.Context) {
	log.Printf("✓ Plan backfill worker started (every %v)", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("✓ Plan backfill worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep retries the planner once for every plan-pending complaint.
func (w *BackfillWorker) Sweep(ctx context.Context) {
	pending := true
	complaints, err := w.store.Query(ctx, store.Filter{PlanPending: &pending})
	if err != nil {
		log.Println("⚠️  Backfill sweep failed to query store:", err)
		return
	}
	if len(complaints) == 0 {
		return
	}

	log.Printf("📋 Backfilling plans for %d complaints...", len(complaints))
	filled := 0
	for _, c := range complaints {
		if ctx.Err() != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, w.timeout)
		plan, err := w.planner.Plan(callCtx, planner.Context{
			Assessment: c.Assessment,
			Risk:       c.Risk,
			Recurrence: c.Recurrence,
			Location:   c.Location,
		})
		cancel()
		if err != nil || plan == nil {
			log.Printf("  ⚠️  Plan still unavailable for %s: %v", c.ID, err)
			continue
		}

		if _, err := w.store.MarkPlanBackfilled(ctx, c.ID, plan); err != nil {
			log.Printf("  ⚠️  Failed to attach backfilled plan to %s: %v", c.ID, err)
			continue
		}
		filled++
	}
	log.Printf("✓ Backfill sweep done: %d/%d plans attached", filled, len(complaints))
}
