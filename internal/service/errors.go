// Package service holds the application logic behind the HTTP handlers:
// authentication and sessions, accounts, crops, locations, disease
// detection and diagnosis, matching, weather and advisories.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers unknown mobile numbers and wrong passwords
	// alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for any refresh or access token problem.
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrPendingApproval = errors.New("Your account is waiting for admin approval.")
	ErrRejected        = errors.New("Your application has been rejected. Please contact support.")

	// ErrServiceUnavailable means the inference service could not be reached
	// within the wake budget.
	ErrServiceUnavailable = errors.New("disease detection service is unavailable, please try again shortly")
	// ErrAIUnavailable means the generative model failed or is not configured.
	ErrAIUnavailable = errors.New("AI diagnosis is unavailable")
	// ErrNoLocation is returned when a user has no coordinates on file.
	ErrNoLocation = errors.New("location not set: please update your profile coordinates")
)

// ValidationError is a client input problem reported verbatim.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Detection stages, in order.
const (
	StageValidate = "validate"
	StageCheck    = "check_service"
	StageWake     = "wake"
	StagePredict  = "predict"
	StageStore    = "store_image"
	StagePersist  = "persist"
)

// DetectionError records the stage at which a detection request failed.
type DetectionError struct {
	Stage string
	Err   error
}

func (e *DetectionError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *DetectionError) Unwrap() error { return e.Err }
