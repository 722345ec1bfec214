package identity

import (
	"errors"
	"fmt"
)

// Kind classifies a failed token exchange.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindIncompleteProfile Kind = "incomplete_profile"
	KindUsernameExhausted Kind = "username_exhausted"
	// KindConflictRetryable marks a lost uniqueness race. It is resolved
	// inside the service and only ever surfaces wrapped by an internal failure.
	KindConflictRetryable Kind = "conflict_retryable"
	KindInternalFailure   Kind = "internal_failure"
)

// Error is returned by Service operations. The cause is kept for logs and
// must not be rendered to callers.
type Error struct {
	Kind  Kind
	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("identity: %s", e.Kind)
	}
	return fmt.Sprintf("identity: %s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind of err, reporting KindInternalFailure for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return identityErr.Kind
	}
	return KindInternalFailure
}

// IsClientError reports whether the kind is caused by the caller's credential
// rather than by the service.
func (k Kind) IsClientError() bool {
	switch k {
	case KindMissingCredential, KindInvalidCredential, KindIncompleteProfile:
		return true
	default:
		return false
	}
}
