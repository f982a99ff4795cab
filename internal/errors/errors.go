// Package errors provides domain-specific error types for the JanSahayak
// complaint pipeline.
//
// Each error type corresponds to one documented failure mode of the
// pipeline and carries enough context for the HTTP layer to choose a
// response. Errors are plain values with Unwrap support so callers can use
// the Is* helpers or standard errors.As.
package errors

import "fmt"

// InvalidSubmissionError indicates a citizen submission that fails intake
// validation (missing location, photo or issue type).
//
// This is a client error: it is raised before any collaborator call and
// never persists anything.
//
// Recovery strategy: citizen corrects the form and resubmits.
type InvalidSubmissionError struct {
	Message string
}

func (e *InvalidSubmissionError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Message)
}

// NewInvalidSubmission creates a new invalid submission error with context
func NewInvalidSubmission(msg string) *InvalidSubmissionError {
	return &InvalidSubmissionError{Message: msg}
}

// VisionUnavailableError indicates the vision collaborator failed to
// produce an assessment (timeout, transport error, exhausted retries).
//
// The pipeline aborts: no complaint is created and the citizen must retry.
// The pipeline never fabricates a DamageAssessment in its place.
type VisionUnavailableError struct {
	Message string
	Err     error
}

func (e *VisionUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vision unavailable: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("vision unavailable: %s", e.Message)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *VisionUnavailableError) Unwrap() error {
	return e.Err
}

// NewVisionUnavailable creates a new vision unavailable error with context
func NewVisionUnavailable(msg string, err error) *VisionUnavailableError {
	return &VisionUnavailableError{Message: msg, Err: err}
}

// InvalidAssessmentError indicates malformed collaborator output: a
// response that parsed but violates the fixed schema (severity outside
// 1-10, unknown enum value), or one that cannot be parsed at all.
//
// Treated like VisionUnavailable at the pipeline level: abort, nothing
// persisted, citizen retries.
type InvalidAssessmentError struct {
	Message string
}

func (e *InvalidAssessmentError) Error() string {
	return fmt.Sprintf("invalid assessment: %s", e.Message)
}

// NewInvalidAssessment creates a new invalid assessment error with context
func NewInvalidAssessment(msg string) *InvalidAssessmentError {
	return &InvalidAssessmentError{Message: msg}
}

// InvalidTransitionError indicates a status transition request that is not
// in the lifecycle table, including the case where a concurrent transition
// already advanced the record past the expected state.
//
// The stored status is left unchanged.
type InvalidTransitionError struct {
	ComplaintID string
	From        string
	To          string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s → %s", e.ComplaintID, e.From, e.To)
}

// NewInvalidTransition creates a new invalid transition error with context
func NewInvalidTransition(id, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{ComplaintID: id, From: from, To: to}
}

// NotFoundError indicates that no complaint exists for the given ID.
type NotFoundError struct {
	ComplaintID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("complaint %s not found", e.ComplaintID)
}

// NewNotFound creates a new not found error for the given complaint ID
func NewNotFound(id string) *NotFoundError {
	return &NotFoundError{ComplaintID: id}
}

// IsInvalidSubmission checks if the error is an invalid submission error
func IsInvalidSubmission(err error) bool {
	_, ok := err.(*InvalidSubmissionError)
	return ok
}

// IsVisionUnavailable checks if the error is a vision unavailable error
func IsVisionUnavailable(err error) bool {
	_, ok := err.(*VisionUnavailableError)
	return ok
}

// IsInvalidAssessment checks if the error is an invalid assessment error
func IsInvalidAssessment(err error) bool {
	_, ok := err.(*InvalidAssessmentError)
	return ok
}

// IsInvalidTransition checks if the error is an invalid transition error
func IsInvalidTransition(err error) bool {
	_, ok := err.(*InvalidTransitionError)
	return ok
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
