// Package health provides health monitoring for the JanSahayak service.
//
// The monitor tracks the outcome of the most recent intake so operators
// can tell from /health whether the pipeline is processing submissions.
package health

import (
	"sync"
	"time"
)

// Status represents the service health status.
//
// This is returned by the /health endpoint for monitoring tools.
//
// Fields:
//   - Status: Overall health status ("healthy")
//   - Uptime: How long the service has been running
//   - LastIntakeTime: When the last intake finished
//   - LastIntakeStatus: Outcome of the last intake
type Status struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	LastIntakeTime   string `json:"last_intake_time"`
	LastIntakeStatus string `json:"last_intake_status"`
}

// Monitor tracks service health metrics.
//
// Thread-safety:
//   - All fields are protected by RWMutex
//   - Safe for concurrent updates from multiple intake goroutines
type Monitor struct {
	startTime        time.Time
	lastIntakeTime   time.Time
	lastIntakeStatus string
	mu               sync.RWMutex
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:        time.Now(),
		lastIntakeStatus: "no intakes yet",
	}
}

// UpdateIntakeStatus records the outcome of an intake attempt.
//
// Parameters:
//   - status: Outcome string ("success", "success (plan pending)", or an
//     error description)
func (m *Monitor) UpdateIntakeStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIntakeTime = time.Now()
	m.lastIntakeStatus = status
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lastIntake := ""
	if !m.lastIntakeTime.IsZero() {
		lastIntake = m.lastIntakeTime.Format("2006-01-02 15:04:05")
	}

	return Status{
		Status:           "healthy",
		Uptime:           time.Since(m.startTime).String(),
		LastIntakeTime:   lastIntake,
		LastIntakeStatus: m.lastIntakeStatus,
	}
}
