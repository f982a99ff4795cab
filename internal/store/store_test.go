package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
	"jansahayak/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "complaints.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testComplaint(id string) *complaint.Complaint {
	created := time.Date(2026, time.June, 1, 9, 30, 0, 0, time.UTC)
	return &complaint.Complaint{
		ID:           id,
		CitizenName:  "Asha Patel",
		CitizenPhone: "9876543210",
		Location: complaint.Location{
			Latitude:  21.0710,
			Longitude: 73.0740,
			Address:   "Near bus depot, Valod",
		},
		Assessment: complaint.DamageAssessment{
			Type:        complaint.DamagePothole,
			Severity:    5,
			Factors:     []complaint.RiskFactor{complaint.FactorNearSchool},
			Description: "Deep pothole on the school route",
		},
		Risk: complaint.RiskAssessment{
			Score: 50,
			Tier:  complaint.TierHigh,
			Breakdown: []complaint.FactorWeight{
				{Factor: "severity-base", Weight: 30},
				{Factor: "near-school", Weight: 20},
			},
		},
		Status: complaint.StatusSubmitted,
		History: []complaint.StatusChange{{
			Status:    complaint.StatusSubmitted,
			Timestamp: created,
			Actor:     "citizen",
			Note:      "complaint registered",
		}},
		CreatedAt: created,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-ROUNDTR1")
	c.Recurrence = complaint.RecurrenceSignal{
		Recurring:  true,
		PriorCount: 2,
		MatchedIDs: []string{"JAN-OLDER001", "JAN-OLDER002"},
	}
	c.Plan = &complaint.ActionPlan{
		ImmediateActions: []string{"Barricade the pothole", "Post warning signage"},
		Resources:        []string{"Road crew", "Cold mix asphalt"},
		Timeline:         "3 days",
		Budget: complaint.BudgetRange{
			Min:      decimal.NewFromInt(15000),
			Max:      decimal.NewFromInt(40000),
			Currency: "INR",
		},
	}

	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.ID != c.ID || got.CitizenName != c.CitizenName || got.CitizenPhone != c.CitizenPhone {
		t.Errorf("identity fields differ: got %+v", got)
	}
	if got.Location != c.Location {
		t.Errorf("location = %+v, want %+v", got.Location, c.Location)
	}
	if got.Assessment.Type != c.Assessment.Type || got.Assessment.Severity != c.Assessment.Severity {
		t.Errorf("assessment = %+v, want %+v", got.Assessment, c.Assessment)
	}
	if len(got.Assessment.Factors) != 1 || got.Assessment.Factors[0] != complaint.FactorNearSchool {
		t.Errorf("factors = %v", got.Assessment.Factors)
	}
	if got.Risk.Score != 50 || got.Risk.Tier != complaint.TierHigh {
		t.Errorf("risk = %+v", got.Risk)
	}
	if len(got.Risk.Breakdown) != 2 || got.Risk.Breakdown[0].Factor != "severity-base" {
		t.Errorf("breakdown = %v", got.Risk.Breakdown)
	}
	if !got.Recurrence.Recurring || got.Recurrence.PriorCount != 2 ||
		len(got.Recurrence.MatchedIDs) != 2 {
		t.Errorf("recurrence = %+v", got.Recurrence)
	}
	if got.Plan == nil {
		t.Fatal("plan not persisted")
	}
	if !got.Plan.Budget.Min.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("budget min = %s", got.Plan.Budget.Min)
	}
	if got.Status != complaint.StatusSubmitted {
		t.Errorf("status = %s", got.Status)
	}
	if len(got.History) != 1 || got.History[0].Actor != "citizen" {
		t.Errorf("history = %+v", got.History)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("created_at = %s, want %s", got.CreatedAt, c.CreatedAt)
	}
}

func TestCreateRejectsMalformedRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	noID := testComplaint("")
	if err := s.Create(ctx, noID); err == nil {
		t.Error("Create accepted empty ID")
	}

	wrongStatus := testComplaint("JAN-WRONGST1")
	wrongStatus.Status = complaint.StatusInProgress
	if err := s.Create(ctx, wrongStatus); err == nil {
		t.Error("Create accepted non-submitted status")
	}

	noHistory := testComplaint("JAN-NOHIST01")
	noHistory.History = nil
	if err := s.Create(ctx, noHistory); err == nil {
		t.Error("Create accepted missing initial history")
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, testComplaint("JAN-DUPID001")); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := s.Create(ctx, testComplaint("JAN-DUPID001")); err == nil {
		t.Error("Create accepted duplicate ID")
	}
}

func TestGetUnknownID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "JAN-MISSING1")
	if err == nil {
		t.Fatal("Get returned nil error for unknown ID")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("error type = %T, want NotFoundError", err)
	}
}

func TestTransitionFullLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-LIFECYC1")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	steps := []struct {
		to    complaint.Status
		actor string
	}{
		{complaint.StatusUnderReview, "clerk-01"},
		{complaint.StatusInProgress, "engineer-07"},
		{complaint.StatusResolved, "engineer-07"},
	}

	for _, step := range steps {
		got, err := s.Transition(ctx, c.ID, step.to, step.actor, "")
		if err != nil {
			t.Fatalf("Transition to %s failed: %v", step.to, err)
		}
		if got.Status != step.to {
			t.Errorf("status = %s, want %s", got.Status, step.to)
		}
	}

	final, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(final.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(final.History))
	}
	wantOrder := []complaint.Status{
		complaint.StatusSubmitted,
		complaint.StatusUnderReview,
		complaint.StatusInProgress,
		complaint.StatusResolved,
	}
	for i, want := range wantOrder {
		if final.History[i].Status != want {
			t.Errorf("history[%d] = %s, want %s", i, final.History[i].Status, want)
		}
	}
	if final.History[1].Actor != "clerk-01" {
		t.Errorf("history[1].Actor = %s", final.History[1].Actor)
	}
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-BADEDGE1")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Skipping review is not allowed.
	_, err := s.Transition(ctx, c.ID, complaint.StatusResolved, "clerk-01", "")
	if err == nil {
		t.Fatal("Transition accepted SUBMITTED → RESOLVED")
	}
	if !errors.IsInvalidTransition(err) {
		t.Errorf("error type = %T, want InvalidTransitionError", err)
	}

	// The rejected transition left the record untouched.
	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != complaint.StatusSubmitted {
		t.Errorf("status after rejected transition = %s, want SUBMITTED", got.Status)
	}
	if len(got.History) != 1 {
		t.Errorf("history grew on rejected transition: %d entries", len(got.History))
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-BADSTAT1")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := s.Transition(ctx, c.ID, complaint.Status("ESCALATED"), "clerk-01", "")
	if !errors.IsInvalidTransition(err) {
		t.Errorf("error = %v, want InvalidTransitionError", err)
	}
}

func TestTransitionTerminalStateFrozen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-TERMINAL")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, to := range []complaint.Status{complaint.StatusUnderReview, complaint.StatusRejected} {
		if _, err := s.Transition(ctx, c.ID, to, "clerk-01", ""); err != nil {
			t.Fatalf("Transition to %s failed: %v", to, err)
		}
	}

	for _, to := range complaint.AllStatuses {
		if _, err := s.Transition(ctx, c.ID, to, "clerk-01", ""); !errors.IsInvalidTransition(err) {
			t.Errorf("terminal record allowed transition to %s (err=%v)", to, err)
		}
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	checks := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tc := range checks {
		var got string
		if err := s.sqlDB.QueryRow("PRAGMA " + tc.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s failed: %v", tc.pragma, err)
		}
		if got != tc.want {
			t.Errorf("PRAGMA %s = %q, want %q", tc.pragma, got, tc.want)
		}
	}
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-RACEDUO1")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Transition(ctx, c.ID, complaint.StatusUnderReview, "clerk-01", ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	// Two authorities race UNDER_REVIEW → IN_PROGRESS. Exactly one wins.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, results[n] = s.Transition(ctx, c.ID, complaint.StatusInProgress, fmt.Sprintf("engineer-%02d", n), "")
		}(i)
	}
	wg.Wait()

	// With busy_timeout set, the loser waits for the winner's commit,
	// re-reads the advanced status inside its own transaction, and gets
	// InvalidTransition. It never silently overwrites the winner.
	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.IsInvalidTransition(err) {
			t.Errorf("loser error = %v, want InvalidTransition", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1 (results: %v)", wins, results)
	}

	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != complaint.StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
	if len(got.History) != 3 {
		t.Errorf("history length = %d, want 3", len(got.History))
	}
}

func TestQueryOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	early := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	late := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)

	records := []struct {
		id      string
		score   int
		created time.Time
	}{
		{"JAN-LOWSCORE", 20, early},
		{"JAN-HIGHLATE", 80, late},
		{"JAN-HIGHEARL", 80, early},
		{"JAN-MIDSCORE", 50, early},
	}
	for _, r := range records {
		c := testComplaint(r.id)
		c.Risk.Score = r.score
		c.CreatedAt = r.created
		c.History[0].Timestamp = r.created
		if err := s.Create(ctx, c); err != nil {
			t.Fatalf("Create %s failed: %v", r.id, err)
		}
	}

	got, err := s.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	want := []string{"JAN-HIGHEARL", "JAN-HIGHLATE", "JAN-MIDSCORE", "JAN-LOWSCORE"}
	if len(got) != len(want) {
		t.Fatalf("query returned %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testComplaint("JAN-FILTERA1")
	a.Risk.Score = 80
	a.Risk.Tier = complaint.TierCritical
	a.PlanPending = true
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	b := testComplaint("JAN-FILTERB1")
	b.Risk.Score = 30
	b.Risk.Tier = complaint.TierModerate
	if err := s.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Transition(ctx, b.ID, complaint.StatusUnderReview, "clerk-01", ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	underReview := complaint.StatusUnderReview
	got, err := s.Query(ctx, Filter{Status: &underReview})
	if err != nil {
		t.Fatalf("Query by status failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("status filter returned %d records", len(got))
	}

	minRisk := 50
	got, err = s.Query(ctx, Filter{MinRisk: &minRisk})
	if err != nil {
		t.Fatalf("Query by min risk failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("min risk filter returned %d records", len(got))
	}

	critical := complaint.TierCritical
	pending := true
	got, err = s.Query(ctx, Filter{Tier: &critical, PlanPending: &pending})
	if err != nil {
		t.Fatalf("Query by tier+pending failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("combined filter returned %d records", len(got))
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c := testComplaint(fmt.Sprintf("JAN-STATS%03d", i))
		if i == 0 {
			c.Risk.Tier = complaint.TierCritical
			c.PlanPending = true
		}
		if err := s.Create(ctx, c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// Resolve one of the four.
	for _, to := range []complaint.Status{complaint.StatusUnderReview, complaint.StatusInProgress, complaint.StatusResolved} {
		if _, err := s.Transition(ctx, "JAN-STATS001", to, "engineer-07", ""); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.ByStatus[complaint.StatusSubmitted] != 3 {
		t.Errorf("submitted count = %d, want 3", stats.ByStatus[complaint.StatusSubmitted])
	}
	if stats.ByStatus[complaint.StatusResolved] != 1 {
		t.Errorf("resolved count = %d, want 1", stats.ByStatus[complaint.StatusResolved])
	}
	if stats.ByTier[complaint.TierCritical] != 1 {
		t.Errorf("critical count = %d, want 1", stats.ByTier[complaint.TierCritical])
	}
	if stats.PlanPending != 1 {
		t.Errorf("plan pending = %d, want 1", stats.PlanPending)
	}
	if stats.ResolutionRate != 0.25 {
		t.Errorf("resolution rate = %f, want 0.25", stats.ResolutionRate)
	}
}

func TestMarkPlanBackfilled(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := testComplaint("JAN-BACKFIL1")
	c.PlanPending = true
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	plan := &complaint.ActionPlan{
		ImmediateActions: []string{"Dispatch inspection crew"},
		Timeline:         "1 week",
		Budget: complaint.BudgetRange{
			Min:      decimal.NewFromInt(5000),
			Max:      decimal.NewFromInt(20000),
			Currency: "INR",
		},
	}

	got, err := s.MarkPlanBackfilled(ctx, c.ID, plan)
	if err != nil {
		t.Fatalf("MarkPlanBackfilled failed: %v", err)
	}
	if got.PlanPending {
		t.Error("PlanPending still set after backfill")
	}
	if got.Plan == nil || got.Plan.Timeline != "1 week" {
		t.Errorf("plan = %+v", got.Plan)
	}

	// A second backfill on the same record is a no-op, not an error.
	if _, err := s.MarkPlanBackfilled(ctx, c.ID, plan); err != nil {
		t.Errorf("repeat backfill errored: %v", err)
	}

	// Unknown ID is NotFound.
	if _, err := s.MarkPlanBackfilled(ctx, "JAN-MISSING1", plan); !errors.IsNotFound(err) {
		t.Errorf("error = %v, want NotFoundError", err)
	}
}

func TestIndexEntriesRebuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := testComplaint(fmt.Sprintf("JAN-REBLD%03d", i))
		c.CreatedAt = c.CreatedAt.Add(time.Duration(i) * time.Hour)
		if err := s.Create(ctx, c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	entries, err := s.IndexEntries(ctx)
	if err != nil {
		t.Fatalf("IndexEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.Before(entries[i-1].CreatedAt) {
			t.Error("entries not ordered by creation time")
		}
	}

	idx := memory.NewIndex()
	idx.Load(entries)
	if idx.Len() != 3 {
		t.Errorf("rebuilt index length = %d, want 3", idx.Len())
	}
}

func TestCreateFeedsRecurrenceIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	idx := memory.NewIndex()
	s.SetRecurrenceIndex(idx)

	c := testComplaint("JAN-FEEDIDX1")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sig := idx.FindRecurrence(c.Location, c.Assessment.Type, memory.DefaultRadiusMeters, 0)
	if !sig.Recurring || sig.PriorCount != 1 || sig.MatchedIDs[0] != c.ID {
		t.Errorf("index signal after create = %+v", sig)
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	created  []string
	changed  []string
	notified chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{notified: make(chan struct{}, 16)}
}

func (n *recordingNotifier) ComplaintCreated(c *complaint.Complaint) {
	n.mu.Lock()
	n.created = append(n.created, c.ID)
	n.mu.Unlock()
	n.notified <- struct{}{}
}

func (n *recordingNotifier) StatusChanged(c *complaint.Complaint, change complaint.StatusChange) {
	n.mu.Lock()
	n.changed = append(n.changed, fmt.Sprintf("%s:%s", c.ID, change.Status))
	n.mu.Unlock()
	n.notified <- struct{}{}
}

func (n *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-n.notified:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not invoked")
	}
}

func TestNotifierInvokedAfterCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := newRecordingNotifier()
	s.SetNotifier(n)

	c := testComplaint("JAN-NOTIFY01")
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	n.wait(t)

	if _, err := s.Transition(ctx, c.ID, complaint.StatusUnderReview, "clerk-01", "taking a look"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	n.wait(t)

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.created) != 1 || n.created[0] != c.ID {
		t.Errorf("created notifications = %v", n.created)
	}
	if len(n.changed) != 1 || n.changed[0] != c.ID+":UNDER_REVIEW" {
		t.Errorf("changed notifications = %v", n.changed)
	}
}
