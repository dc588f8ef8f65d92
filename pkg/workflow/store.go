package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coreforge/agentcore/pkg/storage"
)

const (
	keyInstanceByID  = "workflow:id:"
	keyInstanceOrgIdx = "workflow:orgidx:"
)

// ErrNotFound is returned when a workflow_id has no instance.
var ErrNotFound = errors.New("workflow: instance not found")

// instanceStore persists Instance state after every transition (spec
// §4.8 Recovery: "the engine persists instance state after each
// transition").
type instanceStore struct {
	db storage.Store
}

func newInstanceStore(db storage.Store) *instanceStore {
	return &instanceStore{db: db}
}

func (s *instanceStore) put(ctx context.Context, inst *Instance) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal workflow instance: %w", err)
	}
	if err := s.db.Put(ctx, keyInstanceByID+inst.WorkflowID, raw); err != nil {
		return fmt.Errorf("write workflow instance: %w", err)
	}
	if err := s.db.Put(ctx, keyInstanceOrgIdx+inst.OrgID+":"+inst.WorkflowID, []byte(inst.WorkflowID)); err != nil {
		return fmt.Errorf("write workflow org index: %w", err)
	}
	return nil
}

func (s *instanceStore) get(ctx context.Context, workflowID string) (*Instance, error) {
	raw, err := s.db.Get(ctx, keyInstanceByID+workflowID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow instance: %w", err)
	}
	var inst Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("unmarshal workflow instance: %w", err)
	}
	return &inst, nil
}

// listAll scans every persisted instance, used at startup to find
// Running instances to resume (spec §4.8 Recovery).
func (s *instanceStore) listAll(ctx context.Context) ([]*Instance, error) {
	rows, err := s.db.Scan(ctx, keyInstanceByID)
	if err != nil {
		return nil, fmt.Errorf("scan workflow instances: %w", err)
	}
	out := make([]*Instance, 0, len(rows))
	for _, raw := range rows {
		var inst Instance
		if err := json.Unmarshal(raw, &inst); err != nil {
			return nil, fmt.Errorf("unmarshal workflow instance: %w", err)
		}
		out = append(out, &inst)
	}
	return out, nil
}
