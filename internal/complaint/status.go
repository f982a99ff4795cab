package complaint

import "fmt"

// Status is a complaint's lifecycle state.
//
// Lifecycle:
//
//	Submitted → UnderReview → InProgress → {Resolved, Rejected}
//
// Resolved and Rejected are terminal. An authority may also reject a
// complaint straight from UnderReview without progressing it.
type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusResolved    Status = "RESOLVED"
	StatusRejected    Status = "REJECTED"
)

// AllStatuses lists every lifecycle state, in pipeline order.
var AllStatuses = []Status{
	StatusSubmitted,
	StatusUnderReview,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// allowedTransitions is the complete state machine. Any edge not listed
// here is rejected with InvalidTransition and leaves the record unchanged.
var allowedTransitions = map[Status][]Status{
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusInProgress, StatusRejected},
	StatusInProgress:  {StatusResolved, StatusRejected},
	StatusResolved:    {},
	StatusRejected:    {},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition reports whether from → to is an allowed lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the given status.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}
