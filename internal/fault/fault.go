// Package fault defines the closed set of failure kinds surfaced by the
// document-fetch collaborators and the classifier that maps an arbitrary
// error onto one of them.
package fault

import (
	"errors"
	"strings"
)

// Kind identifies a class of failure.
type Kind int

const (
	// KindInternal is the catch-all for anything not otherwise classified.
	KindInternal Kind = iota
	// KindValidation means the caller's request was malformed or insufficient.
	KindValidation
	// KindAuthentication means the provider rejected the credentials
	// (expired or revoked refresh token, unauthorized client).
	KindAuthentication
	// KindRateLimited means the provider reported quota or rate exhaustion.
	KindRateLimited
	// KindSecretNotFound means the secret store has no secret under the configured name.
	KindSecretNotFound
	// KindSecretAccess covers every other secret retrieval or parsing failure.
	KindSecretAccess
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindSecretNotFound:
		return "secret_not_found"
	case KindSecretAccess:
		return "secret_access"
	default:
		return "internal"
	}
}

// Error is a classified failure raised by a collaborator call.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error for the named operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// OpOf returns the operation of the first *Error in err's chain.
func OpOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Op
	}
	return ""
}

// Provider wording used when no structured code is available.
const (
	invalidGrantText = "invalid_grant"
	rateLimitText    = "Rate Limit"
)

// Classify maps err onto a Kind. A structured kind from the chain wins; errors
// that arrive unclassified fall back to matching the provider's message text,
// in priority order authentication then rate limit.
func Classify(err error) Kind {
	if err == nil {
		return KindInternal
	}

	kind := KindOf(err)
	switch kind {
	case KindValidation, KindAuthentication, KindRateLimited, KindSecretNotFound:
		return kind
	}

	msg := err.Error()
	if strings.Contains(msg, invalidGrantText) {
		return KindAuthentication
	}
	if strings.Contains(msg, rateLimitText) {
		return KindRateLimited
	}
	return kind
}
