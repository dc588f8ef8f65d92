// Package shell implements the Request Shell (spec §4.9): the single entry
// path composing auth verification, tenant context resolution, quota
// consumption, permission checks, and session bookkeeping around a routed
// call, plus the uniform response envelope (spec §6.1).
package shell

import (
	"errors"
	"time"

	"github.com/coreforge/agentcore/pkg/apierr"
)

// TenantContextEnvelope is the success/failure envelope's shared
// tenant_context block (spec §6.1).
type TenantContextEnvelope struct {
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Metadata is the success envelope's metadata block.
type Metadata struct {
	RequestID  string `json:"request_id"`
	APIVersion string `json:"api_version"`
}

// SuccessEnvelope is the response shape for a successful call (spec §6.1).
type SuccessEnvelope struct {
	Data          any                   `json:"data"`
	TenantContext TenantContextEnvelope `json:"tenant_context"`
	Metadata      Metadata              `json:"metadata"`
}

// ErrorBody is the failure envelope's error block.
type ErrorBody struct {
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureEnvelope is the response shape for a failed call (spec §6.1).
type FailureEnvelope struct {
	Error         ErrorBody             `json:"error"`
	TenantContext TenantContextEnvelope `json:"tenant_context"`
}

// NewFailureEnvelope maps err (via apierr.KindOf) into the failure
// envelope shape. This is the shell's sole error-translation point (spec
// §7 propagation policy): no other component constructs an HTTP-facing
// error body.
func NewFailureEnvelope(err error, orgID, userID string) FailureEnvelope {
	kind := apierr.KindOf(err)
	message := "an internal error occurred"
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	return FailureEnvelope{
		Error: ErrorBody{
			Message:   message,
			Code:      kind.HTTPStatus(),
			Kind:      string(kind),
			Timestamp: time.Now(),
		},
		TenantContext: TenantContextEnvelope{OrgID: orgID, UserID: userID},
	}
}
