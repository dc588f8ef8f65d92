// Package apierr defines the core's single error taxonomy (spec §7). Every
// component returns either a plain Go error (mapped to Internal) or an
// *apierr.Error built with one of the typed constructors below; the request
// shell is the only place that translates a Kind into an HTTP status and a
// failure envelope (§6.1).
package apierr

import "fmt"

// Kind is a stable, closed set of failure categories. Kinds never change
// shape across releases; new failure modes get a new Kind, not a repurposed
// existing one.
type Kind string

const (
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindRateLimited        Kind = "RateLimited"
	KindInvalidToken       Kind = "InvalidToken"
	KindTokenExpired       Kind = "TokenExpired"
	KindForbidden          Kind = "Forbidden"
	KindQuotaExceeded      Kind = "QuotaExceeded"
	KindWeakPassword       Kind = "WeakPassword"
	KindUserExists         Kind = "UserExists"
	KindInvalidEmail       Kind = "InvalidEmail"
	KindUnknownAgent       Kind = "UnknownAgent"
	KindInvalidInput       Kind = "InvalidInput"
	KindAgentError         Kind = "AgentError"
	KindAgentTimeout       Kind = "AgentTimeout"
	KindCancelled          Kind = "Cancelled"
	KindWorkflowNotFound   Kind = "WorkflowNotFound"
	KindIllegalTransition  Kind = "IllegalTransition"
	KindNotFound           Kind = "NotFound"
	KindInternal           Kind = "Internal"
)

// HTTPStatus is the §7 Kind → status-code table.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidCredentials, KindInvalidToken, KindTokenExpired:
		return 401
	case KindRateLimited, KindQuotaExceeded:
		return 429
	case KindForbidden:
		return 403
	case KindWeakPassword, KindUserExists, KindInvalidEmail, KindUnknownAgent, KindInvalidInput:
		return 400
	case KindAgentError:
		return 502
	case KindAgentTimeout:
		return 504
	case KindCancelled:
		return 499
	case KindWorkflowNotFound, KindNotFound:
		return 404
	case KindIllegalTransition:
		return 409
	default:
		return 500
	}
}

// Error is the typed error every component returns for an expected failure
// mode. Message is always safe to surface to a client: it must never
// contain a stack trace, a secret, or an internal path (§7 propagation
// policy).
type Error struct {
	Kind    Kind
	Message string
	// Cause is preserved for logging (errors.Unwrap) but never rendered in
	// the failure envelope.
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that preserves cause for logs/correlation while
// keeping Message as the only client-visible text.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal — the catch-all the shell uses for unexpected errors so
// it never leaks internals.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// asError is a tiny errors.As shim kept local to avoid importing errors
// just for one call site used twice.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
