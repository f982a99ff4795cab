// Package memory maintains the recurrence index: an append-only in-memory
// log of committed complaints used to answer "has this location/issue been
// reported before?".
//
// The index is fed exclusively with committed complaints: the store
// records an entry only after its transaction commits, and the index is
// rebuilt from the store at startup. A complaint that is still in flight
// through the orchestrator therefore never appears as a recurrence match,
// which keeps two simultaneous submissions at the same spot from matching
// each other non-deterministically.
//
// Thread-safety:
//   - Entries are guarded by an RWMutex
//   - Record appends, FindRecurrence reads; safe for concurrent use
package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	"jansahayak/internal/complaint"
)

// DefaultRadiusMeters is the fixed spatial match radius. Two reports of
// the same issue within this distance count as the same recurring problem.
const DefaultRadiusMeters = 100.0

// earthRadiusMeters for the haversine distance.
const earthRadiusMeters = 6371000.0

// Entry is one committed complaint in the recurrence log.
//
// Fields:
//   - ComplaintID: ID of the committed complaint
//   - Type: Damage classification
//   - Latitude / Longitude: Reported coordinates
//   - CreatedAt: Commit timestamp, used for the lookback window
type Entry struct {
	ComplaintID string
	Type        complaint.DamageType
	Latitude    float64
	Longitude   float64
	CreatedAt   time.Time
}

// Index answers recurrence queries over the committed complaint log.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewIndex creates an empty recurrence index.
func NewIndex() *Index {
	return &Index{}
}

// Load replaces the index contents with entries rebuilt from the store.
// Called once at startup before any intake runs.
func (i *Index) Load(entries []Entry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = append([]Entry(nil), entries...)
}

// Record appends one committed complaint to the log.
//
// The log is append-only: entries are never edited or removed, matching
// the audit semantics of the store it mirrors.
func (i *Index) Record(e Entry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = append(i.entries, e)
}

// Len returns the number of recorded entries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// FindRecurrence reports prior complaints of the same damage type within
// radiusMeters of loc, committed within lookback of now.
//
// Match rules:
//   - Same damage type
//   - Haversine distance ≤ radiusMeters (deterministic and symmetric)
//   - CreatedAt within lookback of now; lookback ≤ 0 means no time limit
//
// On an empty index this returns a zero signal, never an error. Matched
// IDs are ordered oldest first.
func (i *Index) FindRecurrence(loc complaint.Location, t complaint.DamageType, radiusMeters float64, lookback time.Duration) complaint.RecurrenceSignal {
	return i.findRecurrenceAt(loc, t, radiusMeters, lookback, time.Now())
}

// findRecurrenceAt is FindRecurrence with an explicit clock, split out so
// tests can pin "now".
func (i *Index) findRecurrenceAt(loc complaint.Location, t complaint.DamageType, radiusMeters float64, lookback time.Duration, now time.Time) complaint.RecurrenceSignal {
	i.mu.RLock()
	defer i.mu.RUnlock()

	type match struct {
		id        string
		createdAt time.Time
	}
	var matches []match

	for _, e := range i.entries {
		if e.Type != t {
			continue
		}
		if lookback > 0 && now.Sub(e.CreatedAt) > lookback {
			continue
		}
		if haversineMeters(loc.Latitude, loc.Longitude, e.Latitude, e.Longitude) > radiusMeters {
			continue
		}
		matches = append(matches, match{id: e.ComplaintID, createdAt: e.CreatedAt})
	}

	if len(matches) == 0 {
		return complaint.RecurrenceSignal{}
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].createdAt.Equal(matches[b].createdAt) {
			return matches[a].id < matches[b].id
		}
		return matches[a].createdAt.Before(matches[b].createdAt)
	})

	ids := make([]string, len(matches))
	for idx, m := range matches {
		ids[idx] = m.id
	}

	return complaint.RecurrenceSignal{
		Recurring:  true,
		PriorCount: len(ids),
		MatchedIDs: ids,
	}
}

// haversineMeters computes the great-circle distance between two points.
// Symmetric and deterministic for any argument order.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180.0

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
