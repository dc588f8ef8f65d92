package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/masking"
)

// Registry owns the static AgentDescriptor table and each descriptor's
// handler and circuit breaker. It is safe for concurrent use; registration
// is expected at process start but is not restricted to it.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]registryEntry
}

type registryEntry struct {
	descriptor Descriptor
	handler    Handler
	breaker    *gobreaker.CircuitBreaker
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds descriptor/handler to the table (spec §4.7: "extensible by
// a register(descriptor, handler) call").
func (r *Registry) Register(descriptor Descriptor, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    descriptor.Name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.entries[descriptor.Name] = registryEntry{descriptor: descriptor, handler: handler, breaker: breaker}
}

// Descriptors returns every registered descriptor, for catalog endpoints.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.descriptor)
	}
	return out
}

func (r *Registry) lookup(name string) (registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// UsageRecorder is notified after every dispatch attempt (success or
// failure), independent of the caller's own error handling — it is how
// Session favorites and per-org analytics observe agent usage (spec §4.7).
type UsageRecorder func(agentName string, succeeded bool)

// Dispatcher drives Registry handlers through the Invocation Interface's
// timeout/cancellation/circuit-breaking/retry contract.
type Dispatcher struct {
	registry *Registry
	onUsage  UsageRecorder
	masker   *masking.Masker
}

// NewDispatcher wires a Dispatcher over registry. onUsage may be nil.
func NewDispatcher(registry *Registry, onUsage UsageRecorder) *Dispatcher {
	return &Dispatcher{registry: registry, onUsage: onUsage}
}

// SetMasker installs the masker every successful invocation's response
// passes through before it is returned to the caller (and, from there, into
// session history, workflow step results, and any debug logging of either).
// A nil masker (the default) disables masking.
func (d *Dispatcher) SetMasker(m *masking.Masker) {
	d.masker = m
}

// Descriptors exposes the registry's catalog for status/discovery routes.
func (d *Dispatcher) Descriptors() []Descriptor {
	return d.registry.Descriptors()
}

func validateInput(schema InputSchema, input map[string]any) error {
	for name, spec := range schema {
		val, present := input[name]
		if !present {
			if spec.Required {
				return apierr.New(apierr.KindInvalidInput, fmt.Sprintf("missing required field %q", name))
			}
			continue
		}
		if !fieldMatches(spec.Kind, val) {
			return apierr.New(apierr.KindInvalidInput, fmt.Sprintf("field %q has the wrong type", name))
		}
	}
	return nil
}

func fieldMatches(kind FieldKind, val any) bool {
	switch kind {
	case FieldString:
		_, ok := val.(string)
		return ok
	case FieldNumber:
		switch val.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case FieldBool:
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

// Invoke implements invoke(agent_name, input, deadline, ctx) (spec §4.7).
// deadline tightens ctx's deadline when it would otherwise leave the
// handler more time than the descriptor allows.
func (d *Dispatcher) Invoke(ctx context.Context, agentName string, input map[string]any, deadline time.Time) (*Result, error) {
	entry, ok := d.registry.lookup(agentName)
	if !ok {
		return nil, apierr.New(apierr.KindUnknownAgent, "unknown agent: "+agentName)
	}

	if err := validateInput(entry.descriptor.InputSchema, input); err != nil {
		return nil, err
	}

	effectiveDeadline := time.Now().Add(entry.descriptor.Timeout)
	if !deadline.IsZero() && deadline.Before(effectiveDeadline) {
		effectiveDeadline = deadline
	}

	callCtx, cancel := context.WithDeadline(ctx, effectiveDeadline)
	defer cancel()

	result, err := d.callWithRetry(callCtx, entry, input)
	succeeded := err == nil
	if d.onUsage != nil {
		d.onUsage(agentName, succeeded)
	}
	if err != nil {
		return nil, translateHandlerErr(callCtx, err)
	}

	if d.masker != nil {
		result.Message = d.masker.Mask(result.Message)
		result.Data = d.masker.MaskMap(result.Data)
	}
	slog.Debug("agent invocation completed", "agent", agentName, "message", result.Message)
	return result, nil
}

// callWithRetry wraps the breaker-guarded handler call with a bounded
// exponential backoff, so a transient handler error does not immediately
// surface as AgentError. Context cancellation or an open breaker aborts
// the retry loop rather than continuing to retry a call that cannot
// succeed.
func (d *Dispatcher) callWithRetry(ctx context.Context, entry registryEntry, input map[string]any) (*Result, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	var result *Result
	operation := func() error {
		out, err := entry.breaker.Execute(func() (any, error) {
			return entry.handler(ctx, input)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result, _ = out.(*Result)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			return nil, permErr.Unwrap()
		}
		return nil, err
	}
	return result, nil
}

func translateHandlerErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.New(apierr.KindAgentTimeout, "agent invocation timed out")
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apierr.New(apierr.KindCancelled, "agent invocation cancelled")
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierr.Wrap(apierr.KindAgentError, "agent circuit breaker open", err)
	}
	return apierr.Wrap(apierr.KindAgentError, "agent invocation failed", err)
}
