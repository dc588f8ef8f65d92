// Package cleanup provides the platform's background retention sweep:
// idle session purge, credential-attempt-log GC, and token-revocation GC,
// adapted from the teacher's retention service shape.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreforge/agentcore/pkg/auth"
	"github.com/coreforge/agentcore/pkg/session"
)

// Config governs the cleanup loop's cadence and the session idle cutoff.
type Config struct {
	Interval       time.Duration
	SessionIdleTTL time.Duration
}

// Service periodically enforces retention policies:
//   - Purges sessions idle past SessionIdleTTL (spec §4.6 purge_idle)
//   - Sweeps expired credential-attempt-log entries
//   - Sweeps expired token-revocation and revoke-all-for-user entries
//
// All operations are idempotent and safe to run from a single instance;
// none of them require cross-instance coordination.
type Service struct {
	cfg      Config
	sessions *session.Store
	attempts *auth.AttemptLog
	tokens   *auth.TokenService

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService wires a cleanup Service.
func NewService(cfg Config, sessions *session.Store, attempts *auth.AttemptLog, tokens *auth.TokenService) *Service {
	return &Service{cfg: cfg, sessions: sessions, attempts: attempts, tokens: tokens}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"session_idle_ttl", s.cfg.SessionIdleTTL, "interval", s.cfg.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll()
		}
	}
}

func (s *Service) runAll() {
	now := time.Now()
	s.purgeIdleSessions(now)
	s.sweepAttemptLog(now)
	s.sweepTokenRevocations(now)
}

func (s *Service) purgeIdleSessions(now time.Time) {
	cutoff := now.Add(-s.cfg.SessionIdleTTL)
	count := s.sessions.PurgeIdle(cutoff)
	if count > 0 {
		slog.Info("retention: purged idle sessions", "count", count)
	}
}

func (s *Service) sweepAttemptLog(now time.Time) {
	s.attempts.Sweep(now)
}

func (s *Service) sweepTokenRevocations(now time.Time) {
	s.tokens.SweepRevocations(now)
}
