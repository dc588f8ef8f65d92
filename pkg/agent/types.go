// Package agent implements the Agent Registry & Dispatcher (spec §4.7): a
// static table of AgentDescriptor mapped to handlers satisfying the Agent
// Invocation Interface (spec §6.4), invoked with timeout, cancellation,
// circuit-breaking, and retry.
package agent

import (
	"context"
	"time"
)

// FieldKind is the declared type of one input_schema field.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldAny    FieldKind = "any"
)

// FieldSpec declares one named input field: its kind and whether it is
// required for a call to validate.
type FieldSpec struct {
	Kind     FieldKind
	Required bool
}

// InputSchema is the descriptor's field contract, validated before a
// handler is ever invoked (spec §4.7: "Validates input against
// input_schema; fails InvalidInput if not").
type InputSchema map[string]FieldSpec

// Descriptor is the static, process-start-registered metadata for one
// agent (spec §4.7).
type Descriptor struct {
	Name        string
	DisplayName string
	InputSchema InputSchema
	Timeout     time.Duration
}

// Result is what a successful handler invocation returns (spec §6.4).
type Result struct {
	Message       string
	AgentName     string
	Intent        string
	Confidence    float64
	RealExecution bool
	Data          map[string]any
}

// SummaryFields extracts data.summary_fields, the small map the Session
// Store uses to build digests (spec §6.4). Absent or wrong-typed entries
// yield an empty map rather than a panic.
func (r *Result) SummaryFields() map[string]any {
	if r == nil || r.Data == nil {
		return map[string]any{}
	}
	if sf, ok := r.Data["summary_fields"].(map[string]any); ok {
		return sf
	}
	return map[string]any{}
}

// Handler is any callable matching the Agent Invocation Interface. ctx
// carries both the deadline and cancellation: handlers must select on
// ctx.Done() to honor cancellation promptly.
type Handler func(ctx context.Context, input map[string]any) (*Result, error)
