// Package featureflag implements Feature Flags & Onboarding (spec §4.10):
// per-tenant capability gating by explicit assignment or deterministic
// rollout percentage, plus a thin onboarding stage/task progress tracker.
package featureflag

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/storage"
)

// Evaluator evaluates enabled(org_id, feature) (spec §4.10). Explicit
// assignments are held in-process (spec §6.6: config, and ad-hoc overrides
// via Assign, are not hot-reloaded the way rollout rules are); rollout
// rules come from the live, hot-reloadable config.Config.
type Evaluator struct {
	cfg *config.Config

	mu          sync.RWMutex
	assignments map[string]bool // "<org_id>|<feature>" -> explicit value
}

// NewEvaluator wires an Evaluator against cfg's rollout rules.
func NewEvaluator(cfg *config.Config) *Evaluator {
	return &Evaluator{cfg: cfg, assignments: make(map[string]bool)}
}

// Assign records an explicit per-org override, taking precedence over any
// rollout rule (spec §4.10 step 1).
func (e *Evaluator) Assign(orgID, feature string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assignments[orgID+"|"+feature] = enabled
}

// Unassign removes an explicit override, falling back to rollout/deny.
func (e *Evaluator) Unassign(orgID, feature string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.assignments, orgID+"|"+feature)
}

// Enabled implements enabled(org_id, feature) (spec §4.10).
func (e *Evaluator) Enabled(orgID, feature string, planType config.PlanType) bool {
	e.mu.RLock()
	explicit, ok := e.assignments[orgID+"|"+feature]
	e.mu.RUnlock()
	if ok {
		return explicit
	}

	for _, rule := range e.cfg.RolloutRules() {
		if rule.Feature != feature {
			continue
		}
		if rule.TargetPlan != "" && rule.TargetPlan != planType {
			continue
		}
		if rolloutHash(orgID, feature)%100 < uint32(rule.Percentage) {
			return true
		}
	}

	return false
}

// rolloutHash computes a deterministic hash of org_id || feature; the
// caller takes it mod 100 (spec §4.10 step 2). sha256 is used rather than a non-cryptographic hash
// so rollout admission cannot be trivially reverse-engineered or gamed by
// picking org_id/feature combinations that land just under a threshold.
func rolloutHash(orgID, feature string) uint32 {
	sum := sha256.Sum256([]byte(orgID + "||" + feature))
	return binary.BigEndian.Uint32(sum[:4])
}

// Task is one unit of onboarding work within a Stage.
type Task struct {
	Name        string `json:"name"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

// Stage groups related onboarding Tasks.
type Stage struct {
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// Tracker record for one org (spec §4.10: "(org_id, stage, tasks[])").
type Tracker struct {
	OrgID  string  `json:"org_id"`
	Stages []Stage `json:"stages"`
}

// Progress returns completed/total across all stages as a percentage.
func (t *Tracker) Progress() int {
	total, completed := 0, 0
	for _, stage := range t.Stages {
		for _, task := range stage.Tasks {
			total++
			if task.CompletedAt != nil {
				completed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}

const keyOnboardingByOrg = "onboarding:org:"

// ErrNotFound is returned when no onboarding tracker exists for an org.
var ErrNotFound = errors.New("featureflag: onboarding tracker not found")

// OnboardingStore persists Tracker records (spec §4.10: "a thin state
// store with no scheduling semantics").
type OnboardingStore struct {
	db storage.Store
}

// NewOnboardingStore wires an OnboardingStore.
func NewOnboardingStore(db storage.Store) *OnboardingStore {
	return &OnboardingStore{db: db}
}

// Get fetches orgID's tracker.
func (s *OnboardingStore) Get(ctx context.Context, orgID string) (*Tracker, error) {
	raw, err := s.db.Get(ctx, keyOnboardingByOrg+orgID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get onboarding tracker: %w", err)
	}
	var t Tracker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshal onboarding tracker: %w", err)
	}
	return &t, nil
}

// Put persists a tracker wholesale.
func (s *OnboardingStore) Put(ctx context.Context, t *Tracker) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal onboarding tracker: %w", err)
	}
	return s.db.Put(ctx, keyOnboardingByOrg+t.OrgID, raw)
}

// CompleteTask marks a (stage, task) pair completed at nowUnixNano, a
// no-op if already completed.
func (s *OnboardingStore) CompleteTask(ctx context.Context, orgID, stageName, taskName string, nowUnixNano int64) error {
	t, err := s.Get(ctx, orgID)
	if err != nil {
		return err
	}
	for si := range t.Stages {
		if t.Stages[si].Name != stageName {
			continue
		}
		for ti := range t.Stages[si].Tasks {
			if t.Stages[si].Tasks[ti].Name != taskName {
				continue
			}
			if t.Stages[si].Tasks[ti].CompletedAt == nil {
				at := nowUnixNano
				t.Stages[si].Tasks[ti].CompletedAt = &at
			}
			return s.Put(ctx, t)
		}
	}
	return fmt.Errorf("%w: stage %q task %q", ErrNotFound, stageName, taskName)
}

// DefaultOnboardingStages is the stock stage/task layout assigned to a new
// org (spec supplement: the distilled spec names the tracker's shape but
// not its starter content).
func DefaultOnboardingStages() []Stage {
	return []Stage{
		{Name: "account_setup", Tasks: []Task{{Name: "verify_email"}, {Name: "invite_team"}}},
		{Name: "first_workflow", Tasks: []Task{{Name: "start_workflow"}, {Name: "complete_workflow"}}},
		{Name: "integrations", Tasks: []Task{{Name: "connect_agent"}}},
	}
}
