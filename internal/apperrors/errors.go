package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure categories every component reports.
// Use errors.Is to classify an error returned anywhere in the module.
var (
	// ErrInvalidArgument marks malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized is the umbrella for every authentication failure.
	// NoCredential, ReauthRequired and InvalidSignature all match it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned by stores when a key has no value.
	ErrNotFound = errors.New("not found")
)

// Reason distinguishes the kinds of Unauthorized failures.
type Reason string

const (
	ReasonNoCredential     Reason = "no_credential"
	ReasonReauthRequired   Reason = "reauth_required"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonInvalidToken     Reason = "invalid_token"
)

// Unauthorized is an authentication failure with a machine-readable reason.
type Unauthorized struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Unauthorized) Error() string {
	msg := "unauthorized (" + string(e.Reason) + ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Unauthorized) Unwrap() error { return e.Err }

// Is makes every Unauthorized match ErrUnauthorized, and matches other
// Unauthorized values with the same reason.
func (e *Unauthorized) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	var u *Unauthorized
	if errors.As(target, &u) {
		return u.Reason == e.Reason
	}
	return false
}

// Reason-only values usable as errors.Is targets.
var (
	ErrNoCredential     = &Unauthorized{Reason: ReasonNoCredential}
	ErrReauthRequired   = &Unauthorized{Reason: ReasonReauthRequired}
	ErrInvalidSignature = &Unauthorized{Reason: ReasonInvalidSignature}
)

// NoCredential reports that no stored credential exists for a user.
func NoCredential(userID string) error {
	return &Unauthorized{Reason: ReasonNoCredential, Message: fmt.Sprintf("no tokens found for user %s", userID)}
}

// ReauthRequired reports that the stored credential can no longer be refreshed.
func ReauthRequired(userID string, cause error) error {
	return &Unauthorized{Reason: ReasonReauthRequired, Message: fmt.Sprintf("user %s must reauthorize", userID), Err: cause}
}

// InvalidSignature reports a request whose signature failed verification.
func InvalidSignature(msg string) error {
	return &Unauthorized{Reason: ReasonInvalidSignature, Message: msg}
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// UpstreamError is returned when an external dependency answered with a
// failure or could not be reached. Status is 0 for transport failures.
type UpstreamError struct {
	Service string
	Status  int
	Detail  string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Detail)
	default:
		return fmt.Sprintf("%s returned %d", e.Service, e.Status)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream builds an UpstreamError for a non-2xx response.
func Upstream(service string, status int, detail string) error {
	return &UpstreamError{Service: service, Status: status, Detail: detail}
}

// Transport builds an UpstreamError for a request that never produced a
// response (network failure, timeout, cancellation).
func Transport(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// RetryExhausted is returned when a bounded retry loop gave up.
type RetryExhausted struct {
	Attempts int
	Last     error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetryExhausted) Unwrap() error { return e.Last }

// IsUnauthorized reports whether err is any Unauthorized failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsReauthRequired reports whether err asks the user to authorize again.
func IsReauthRequired(err error) bool {
	return errors.Is(err, ErrReauthRequired)
}

// IsInvalidArgument reports whether err is caused by malformed input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status
	}
	return 0
}

// HTTPStatus maps an error onto the status code returned to our own callers.
func HTTPStatus(err error) int {
	var (
		up *UpstreamError
		re *RetryExhausted
	)
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidArgument(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.As(err, &re), errors.As(err, &up):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
