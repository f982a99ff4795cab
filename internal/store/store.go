// Package store provides the authoritative persisted complaint record set.
//
// Backing storage is SQLite (modernc.org/sqlite, pure Go) in WAL mode.
// Two tables hold the data: `complaints` with the current record, and
// `status_history` with the append-only audit trail. Both are written in
// the same transaction, so a record and its history can never diverge.
//
// Concurrency:
//   - Create and Transition are atomic per record
//   - Transition re-validates the state machine against the persisted
//     status inside its transaction, so a concurrent transition that
//     already advanced the record fails with InvalidTransition instead of
//     silently winning as last-writer
//   - Reads never observe a half-committed record
//
// The store is also the integration point for the notification
// collaborator and the recurrence index: both are fed after a successful
// commit, never before, and a notification failure never rolls anything
// back.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
	"jansahayak/internal/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS complaints (
	id TEXT PRIMARY KEY,
	citizen_name TEXT NOT NULL,
	citizen_phone TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	address TEXT NOT NULL,
	damage_type TEXT NOT NULL,
	severity INTEGER NOT NULL,
	risk_factors TEXT NOT NULL,
	description TEXT NOT NULL,
	risk_score INTEGER NOT NULL,
	urgency TEXT NOT NULL,
	risk_breakdown TEXT NOT NULL,
	recurring INTEGER NOT NULL,
	prior_count INTEGER NOT NULL,
	matched_ids TEXT NOT NULL,
	plan_json TEXT,
	plan_pending INTEGER NOT NULL,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS status_history (
	complaint_id TEXT NOT NULL REFERENCES complaints(id),
	seq INTEGER NOT NULL,
	status TEXT NOT NULL,
	changed_at INTEGER NOT NULL,
	actor TEXT NOT NULL,
	note TEXT NOT NULL,
	PRIMARY KEY (complaint_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_complaints_queue
	ON complaints (risk_score DESC, created_at ASC);
`

// Notifier is the notification collaborator hook. Implementations are
// fire-and-forget: the store invokes them after commit and ignores any
// failure they report internally.
type Notifier interface {
	ComplaintCreated(c *complaint.Complaint)
	StatusChanged(c *complaint.Complaint, change complaint.StatusChange)
}

// Filter narrows a dashboard query. Nil fields are ignored.
type Filter struct {
	Status      *complaint.Status
	MinRisk     *int
	Tier        *complaint.UrgencyTier
	PlanPending *bool
}

// Stats are the dashboard aggregates, computed over the full store.
type Stats struct {
	Total          int                           `json:"total"`
	ByStatus       map[complaint.Status]int      `json:"by_status"`
	ByTier         map[complaint.UrgencyTier]int `json:"by_urgency"`
	PlanPending    int                           `json:"plan_pending"`
	ResolutionRate float64                       `json:"resolution_rate"`
}

// Store persists complaints in SQLite.
type Store struct {
	sqlDB    *sql.DB
	notifier Notifier
	index    *memory.Index
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite complaint store and ensures the schema exists.
//
// The DSN enables WAL mode and a busy timeout so concurrent authority
// updates queue instead of failing immediately.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetNotifier attaches the notification collaborator. Optional.
func (s *Store) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetRecurrenceIndex attaches the recurrence index fed on every commit.
// Optional; when unset, recurrence is rebuilt only at startup.
func (s *Store) SetRecurrenceIndex(idx *memory.Index) {
	s.index = idx
}

// Create persists a newly assembled complaint and its initial history
// entry in one transaction.
//
// Preconditions (violations are programming errors, reported as plain
// errors rather than domain errors):
//   - ID is non-empty
//   - Status is Submitted
//   - History holds exactly the initial Submitted entry
//
// After commit the recurrence index and the notifier are fed; neither can
// fail the create.
func (s *Store) Create(ctx context.Context, c *complaint.Complaint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("complaint id is required")
	}
	if c.Status != complaint.StatusSubmitted {
		return fmt.Errorf("new complaint must be %s, got %s", complaint.StatusSubmitted, c.Status)
	}
	if len(c.History) != 1 || c.History[0].Status != complaint.StatusSubmitted {
		return fmt.Errorf("new complaint must carry exactly the initial %s history entry", complaint.StatusSubmitted)
	}

	factorsJSON, err := json.Marshal(c.Assessment.Factors)
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	breakdownJSON, err := json.Marshal(c.Risk.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal risk breakdown: %w", err)
	}
	matchedJSON, err := json.Marshal(c.Recurrence.MatchedIDs)
	if err != nil {
		return fmt.Errorf("marshal matched ids: %w", err)
	}
	var planJSON sql.NullString
	if c.Plan != nil {
		raw, err := json.Marshal(c.Plan)
		if err != nil {
			return fmt.Errorf("marshal action plan: %w", err)
		}
		planJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO complaints (
			id, citizen_name, citizen_phone,
			latitude, longitude, address,
			damage_type, severity, risk_factors, description,
			risk_score, urgency, risk_breakdown,
			recurring, prior_count, matched_ids,
			plan_json, plan_pending, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CitizenName, c.CitizenPhone,
		c.Location.Latitude, c.Location.Longitude, c.Location.Address,
		string(c.Assessment.Type), c.Assessment.Severity, string(factorsJSON), c.Assessment.Description,
		c.Risk.Score, string(c.Risk.Tier), string(breakdownJSON),
		boolToInt(c.Recurrence.Recurring), c.Recurrence.PriorCount, string(matchedJSON),
		planJSON, boolToInt(c.PlanPending), string(c.Status), toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}

	initial := c.History[0]
	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_history (complaint_id, seq, status, changed_at, actor, note)
		 VALUES (?, 1, ?, ?, ?, ?)`,
		c.ID, string(initial.Status), toMillis(initial.Timestamp), initial.Actor, initial.Note,
	)
	if err != nil {
		return fmt.Errorf("insert initial history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}

	// Committed: the complaint is now visible to recurrence lookups.
	if s.index != nil {
		s.index.Record(memory.Entry{
			ComplaintID: c.ID,
			Type:        c.Assessment.Type,
			Latitude:    c.Location.Latitude,
			Longitude:   c.Location.Longitude,
			CreatedAt:   c.CreatedAt,
		})
	}
	if s.notifier != nil {
		go s.notifier.ComplaintCreated(c)
	}
	return nil
}

// Get loads one complaint with its full ordered history.
//
// Returns:
//   - *complaint.Complaint: The record
//   - error: *errors.NotFoundError when no such ID exists
func (s *Store) Get(ctx context.Context, id string) (*complaint.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, selectComplaint+` WHERE id = ?`, id)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load complaint %s: %w", id, err)
	}
	if c.History, err = s.loadHistory(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// Transition applies one lifecycle transition and appends its audit entry.
//
// The transaction re-reads the persisted status and validates the edge
// against it, so the precondition holds at commit time even when two
// authorities race on the same record. The losing request gets
// InvalidTransition and the record keeps the winner's state.
//
// Parameters:
//   - id: Complaint ID
//   - to: Requested new status
//   - actor: Authority identity for the audit trail
//   - note: Optional free-text note
//
// Returns:
//   - *complaint.Complaint: The updated record with full history
//   - error: NotFound or InvalidTransition, surfaced unchanged
func (s *Store) Transition(ctx context.Context, id string, to complaint.Status, actor, note string) (*complaint.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := complaint.ParseStatus(string(to)); err != nil {
		cur, getErr := s.currentStatus(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.NewInvalidTransition(id, string(cur), string(to))
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	var currentStr string
	err = tx.QueryRowContext(ctx, `SELECT status FROM complaints WHERE id = ?`, id).Scan(&currentStr)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("read status of %s: %w", id, err)
	}
	current := complaint.Status(currentStr)

	if !complaint.CanTransition(current, to) {
		return nil, errors.NewInvalidTransition(id, string(current), string(to))
	}

	change := complaint.StatusChange{
		Status:    to,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Actor:     actor,
		Note:      note,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_history (complaint_id, seq, status, changed_at, actor, note)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM status_history WHERE complaint_id = ?), ?, ?, ?, ?)`,
		id, id, string(change.Status), toMillis(change.Timestamp), change.Actor, change.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("append history for %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE complaints SET status = ? WHERE id = ?`, string(to), id)
	if err != nil {
		return nil, fmt.Errorf("update status of %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		go s.notifier.StatusChanged(updated, change)
	}
	return updated, nil
}

// Query returns complaints matching the filter, ordered by risk score
// descending with ties broken by created time ascending. Oldest-first
// within equal priority keeps low-risk long-pending issues from starving.
func (s *Store) Query(ctx context.Context, f Filter) ([]*complaint.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := selectComplaint
	var conds []string
	var args []interface{}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.MinRisk != nil {
		conds = append(conds, "risk_score >= ?")
		args = append(args, *f.MinRisk)
	}
	if f.Tier != nil {
		conds = append(conds, "urgency = ?")
		args = append(args, string(*f.Tier))
	}
	if f.PlanPending != nil {
		conds = append(conds, "plan_pending = ?")
		args = append(args, boolToInt(*f.PlanPending))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY risk_score DESC, created_at ASC, id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query complaints: %w", err)
	}
	defer rows.Close()

	var result []*complaint.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaints: %w", err)
	}

	for _, c := range result {
		if c.History, err = s.loadHistory(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Stats computes the dashboard aggregates. Read-only, no side effects.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus: make(map[complaint.Status]int),
		ByTier:   make(map[complaint.UrgencyTier]int),
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM complaints GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return stats, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[complaint.Status(st)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate status counts: %w", err)
	}

	tierRows, err := s.sqlDB.QueryContext(ctx, `SELECT urgency, COUNT(*) FROM complaints GROUP BY urgency`)
	if err != nil {
		return stats, fmt.Errorf("count by urgency: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var tier string
		var n int
		if err := tierRows.Scan(&tier, &n); err != nil {
			return stats, fmt.Errorf("scan urgency count: %w", err)
		}
		stats.ByTier[complaint.UrgencyTier(tier)] = n
	}
	if err := tierRows.Err(); err != nil {
		return stats, fmt.Errorf("iterate urgency counts: %w", err)
	}

	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM complaints WHERE plan_pending = 1`).Scan(&stats.PlanPending)
	if err != nil {
		return stats, fmt.Errorf("count plan-pending: %w", err)
	}

	if stats.Total > 0 {
		stats.ResolutionRate = float64(stats.ByStatus[complaint.StatusResolved]) / float64(stats.Total)
	}
	return stats, nil
}

// MarkPlanBackfilled attaches a late remediation plan to a plan-pending
// complaint and clears the flag. A complaint whose plan already arrived is
// left untouched.
func (s *Store) MarkPlanBackfilled(ctx context.Context, id string, plan *complaint.ActionPlan) (*complaint.Complaint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal action plan: %w", err)
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE complaints SET plan_json = ?, plan_pending = 0 WHERE id = ? AND plan_pending = 1`,
		string(raw), id,
	)
	if err != nil {
		return nil, fmt.Errorf("backfill plan for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish "already has a plan" from "does not exist".
		if _, err := s.currentStatus(ctx, id); err != nil {
			return nil, err
		}
		log.Printf("  ⚠️  Plan backfill for %s skipped: plan no longer pending", id)
	}
	return s.Get(ctx, id)
}

// IndexEntries rebuilds the recurrence index input from the full store,
// ordered by creation time. Called once at startup.
func (s *Store) IndexEntries(ctx context.Context) ([]memory.Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, damage_type, latitude, longitude, created_at FROM complaints ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load index entries: %w", err)
	}
	defer rows.Close()

	var entries []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var damageType string
		var createdAt int64
		if err := rows.Scan(&e.ComplaintID, &damageType, &e.Latitude, &e.Longitude, &createdAt); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		e.Type = complaint.DamageType(damageType)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const selectComplaint = `SELECT
	id, citizen_name, citizen_phone,
	latitude, longitude, address,
	damage_type, severity, risk_factors, description,
	risk_score, urgency, risk_breakdown,
	recurring, prior_count, matched_ids,
	plan_json, plan_pending, status, created_at
FROM complaints`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanComplaint(row rowScanner) (*complaint.Complaint, error) {
	var c complaint.Complaint
	var damageType, urgency, status string
	var factorsJSON, breakdownJSON, matchedJSON string
	var planJSON sql.NullString
	var recurring, planPending int
	var createdAt int64

	err := row.Scan(
		&c.ID, &c.CitizenName, &c.CitizenPhone,
		&c.Location.Latitude, &c.Location.Longitude, &c.Location.Address,
		&damageType, &c.Assessment.Severity, &factorsJSON, &c.Assessment.Description,
		&c.Risk.Score, &urgency, &breakdownJSON,
		&recurring, &c.Recurrence.PriorCount, &matchedJSON,
		&planJSON, &planPending, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.Assessment.Type = complaint.DamageType(damageType)
	c.Risk.Tier = complaint.UrgencyTier(urgency)
	c.Status = complaint.Status(status)
	c.Recurrence.Recurring = recurring != 0
	c.PlanPending = planPending != 0
	c.CreatedAt = fromMillis(createdAt)

	if err := json.Unmarshal([]byte(factorsJSON), &c.Assessment.Factors); err != nil {
		return nil, fmt.Errorf("decode risk factors: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &c.Risk.Breakdown); err != nil {
		return nil, fmt.Errorf("decode risk breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(matchedJSON), &c.Recurrence.MatchedIDs); err != nil {
		return nil, fmt.Errorf("decode matched ids: %w", err)
	}
	if planJSON.Valid {
		var plan complaint.ActionPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("decode action plan: %w", err)
		}
		c.Plan = &plan
	}
	return &c, nil
}

func (s *Store) loadHistory(ctx context.Context, id string) ([]complaint.StatusChange, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT status, changed_at, actor, note FROM status_history
		 WHERE complaint_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", id, err)
	}
	defer rows.Close()

	var history []complaint.StatusChange
	for rows.Next() {
		var ch complaint.StatusChange
		var status string
		var changedAt int64
		if err := rows.Scan(&status, &changedAt, &ch.Actor, &ch.Note); err != nil {
			return nil, fmt.Errorf("scan history of %s: %w", id, err)
		}
		ch.Status = complaint.Status(status)
		ch.Timestamp = fromMillis(changedAt)
		history = append(history, ch)
	}
	return history, rows.Err()
}

func (s *Store) currentStatus(ctx context.Context, id string) (complaint.Status, error) {
	var status string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT status FROM complaints WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound(id)
	}
	if err != nil {
		return "", fmt.Errorf("read status of %s: %w", id, err)
	}
	return complaint.Status(status), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
