package types

import "fmt"

// ErrorKind is a stable machine-readable failure category. The admin layer
// maps kinds to HTTP statuses without inspecting error text.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindRiskRejected      ErrorKind = "risk_rejected"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindSubmission        ErrorKind = "submission"
	KindTimeout           ErrorKind = "timeout"
	KindUnavailable       ErrorKind = "unavailable"
	KindInternal          ErrorKind = "internal"
)

// TradeError carries a kind, an operator-safe message and an optional cause.
// The cause is for logs only and never crosses the admin boundary.
type TradeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TradeError) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to internal for plain errors.
func KindOf(err error) ErrorKind {
	if te, ok := err.(*TradeError); ok {
		return te.Kind
	}
	return KindInternal
}

// MessageOf extracts the operator-safe message for the admin boundary.
func MessageOf(err error) string {
	if te, ok := err.(*TradeError); ok {
		return te.Message
	}
	return "internal error"
}

func newError(kind ErrorKind, format string, args ...interface{}) *TradeError {
	return &TradeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error for malformed intents.
func Validationf(format string, args ...interface{}) *TradeError {
	return newError(KindValidation, format, args...)
}

// RiskRejectedf builds a rejection error carrying the gateway's reason.
func RiskRejectedf(format string, args ...interface{}) *TradeError {
	return newError(KindRiskRejected, format, args...)
}

// InsufficientFundsf builds a funds error quoting both amounts.
func InsufficientFundsf(format string, args ...interface{}) *TradeError {
	return newError(KindInsufficientFunds, format, args...)
}

// Submissionf builds a terminal signing/broadcast failure.
func Submissionf(err error, format string, args ...interface{}) *TradeError {
	te := newError(KindSubmission, format, args...)
	te.Err = err
	return te
}

// Timeoutf builds a confirmation-wait timeout error.
func Timeoutf(format string, args ...interface{}) *TradeError {
	return newError(KindTimeout, format, args...)
}

// Unavailablef builds an error for an unreachable collaborator.
func Unavailablef(err error, format string, args ...interface{}) *TradeError {
	te := newError(KindUnavailable, format, args...)
	te.Err = err
	return te
}

// Internalf wraps an unexpected failure without leaking its detail outward.
func Internalf(err error, format string, args ...interface{}) *TradeError {
	te := newError(KindInternal, format, args...)
	te.Err = err
	return te
}
