package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// MemoryStore is the in-memory Store used by tests and deployments that run
// without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]models.SyncSnapshot
	actions   map[string][]models.WithdrawalAction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: map[string][]models.SyncSnapshot{},
		actions:   map[string][]models.WithdrawalAction{},
	}
}

func (m *MemoryStore) RecordSnapshot(ctx context.Context, in SnapshotInput) (models.SyncSnapshot, error) {
	if in.IdeaID == "" {
		return models.SyncSnapshot{}, fmt.Errorf("idea id required")
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	snap := models.SyncSnapshot{
		ID:              in.ID,
		IdeaID:          in.IdeaID,
		Title:           in.Title,
		CurrentStage:    in.CurrentStage,
		ProgressPercent: in.ProgressPercent,
		Failed:          in.Failed,
		FailureReason:   in.FailureReason,
		SyncedAt:        time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[in.IdeaID] = append(m.snapshots[in.IdeaID], snap)
	return snap, nil
}

func (m *MemoryStore) LatestSnapshot(ctx context.Context, ideaID string) (models.SyncSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[ideaID]
	if len(history) == 0 {
		return models.SyncSnapshot{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context, ideaID string, limit int) ([]models.SyncSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[ideaID]
	out := make([]models.SyncSnapshot, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SyncedAt.After(out[j].SyncedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) RecordWithdrawalAction(ctx context.Context, in WithdrawalActionInput) (models.WithdrawalAction, error) {
	if in.IdeaID == "" || in.Action == "" {
		return models.WithdrawalAction{}, fmt.Errorf("idea id and action required")
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	action := models.WithdrawalAction{
		ID:         in.ID,
		IdeaID:     in.IdeaID,
		RequestID:  in.RequestID,
		Action:     in.Action,
		Reason:     in.Reason,
		OccurredAt: time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[in.IdeaID] = append(m.actions[in.IdeaID], action)
	return action, nil
}

func (m *MemoryStore) ListWithdrawalActions(ctx context.Context, ideaID string) ([]models.WithdrawalAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.actions[ideaID]
	out := make([]models.WithdrawalAction, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
