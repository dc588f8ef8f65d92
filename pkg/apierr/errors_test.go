package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidCredentials: 401,
		KindInvalidToken:       401,
		KindTokenExpired:       401,
		KindRateLimited:        429,
		KindQuotaExceeded:      429,
		KindForbidden:          403,
		KindWeakPassword:       400,
		KindUserExists:         400,
		KindInvalidEmail:       400,
		KindUnknownAgent:       400,
		KindInvalidInput:       400,
		KindAgentError:         502,
		KindAgentTimeout:       504,
		KindCancelled:          499,
		KindWorkflowNotFound:   404,
		KindNotFound:           404,
		KindIllegalTransition:  409,
		KindInternal:           500,
		Kind("SomethingUnknown"): 500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestKindOfDirect(t *testing.T) {
	err := New(KindQuotaExceeded, "too many requests")
	assert.Equal(t, KindQuotaExceeded, KindOf(err))
	assert.Equal(t, "too many requests", err.Message)
}

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("db unreachable")
	err := Wrap(KindInternal, "could not load user", cause)

	wrapped := errWrapper{inner: err}
	assert.Equal(t, KindInternal, KindOf(wrapped))
	assert.ErrorIs(t, err, err)
	assert.Equal(t, cause, err.Unwrap())
}

func TestKindOfThroughStdlibWrap(t *testing.T) {
	cause := New(KindUnknownAgent, "no such agent")
	wrapped := errors.New("ignored")
	_ = wrapped

	std := wrapStd(cause)
	assert.Equal(t, KindUnknownAgent, KindOf(std))
}

// errWrapper and wrapStd exercise apierr's internal Unwrap-walk against both
// a hand-rolled Unwrap() error and the standard %w-produced wrapper.
type errWrapper struct{ inner error }

func (w errWrapper) Error() string { return w.inner.Error() }
func (w errWrapper) Unwrap() error { return w.inner }

func wrapStd(err error) error {
	return errorsWrapf(err)
}

func errorsWrapf(err error) error {
	return fmt.Errorf("context: %w", err)
}
