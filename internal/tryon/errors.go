package tryon

import "errors"

// Failure taxonomy for the generation pipeline. Every error leaving
// Pipeline.Generate wraps exactly one of these, so callers classify with
// errors.Is and never see an untagged fault.
var (
	// ErrInvalidRequest indicates a structurally invalid request; rejected
	// before any side effect.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrUnauthorized indicates the bearer token did not resolve to an
	// active session; rejected before any ledger call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoCredits indicates the user's balance is exhausted; no debit
	// occurred and generation was not attempted.
	ErrNoCredits = errors.New("no credits remaining")
	// ErrCreditCheckFailed indicates the ledger itself failed; no debit
	// occurred, safe for the user to retry.
	ErrCreditCheckFailed = errors.New("credit check failed")
	// ErrGenerationFailed indicates the backend call failed or returned no
	// usable image after the credit was committed. The debit stands.
	ErrGenerationFailed = errors.New("generation failed")
)
