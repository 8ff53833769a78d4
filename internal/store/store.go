package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/incuhub/roadmap-sync/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store persists per-idea sync history and withdrawal action audit rows.
type Store interface {
	RecordSnapshot(ctx context.Context, in SnapshotInput) (models.SyncSnapshot, error)
	LatestSnapshot(ctx context.Context, ideaID string) (models.SyncSnapshot, error)
	ListSnapshots(ctx context.Context, ideaID string, limit int) ([]models.SyncSnapshot, error)
	RecordWithdrawalAction(ctx context.Context, in WithdrawalActionInput) (models.WithdrawalAction, error)
	ListWithdrawalActions(ctx context.Context, ideaID string) ([]models.WithdrawalAction, error)
	Ping(ctx context.Context) error
}

type SnapshotInput struct {
	ID              uuid.UUID
	IdeaID          string
	Title           string
	CurrentStage    string
	ProgressPercent int
	Failed          bool
	FailureReason   string
}

type WithdrawalActionInput struct {
	ID        uuid.UUID
	IdeaID    string
	RequestID string
	Action    string
	Reason    string
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (models.SyncSnapshot, error) {
	var (
		snap   models.SyncSnapshot
		reason sql.NullString
	)
	if err := row.Scan(
		&snap.ID,
		&snap.IdeaID,
		&snap.Title,
		&snap.CurrentStage,
		&snap.ProgressPercent,
		&snap.Failed,
		&reason,
		&snap.SyncedAt,
	); err != nil {
		return models.SyncSnapshot{}, err
	}
	if reason.Valid {
		snap.FailureReason = reason.String
	}
	return snap, nil
}

func scanWithdrawalAction(row rowScanner) (models.WithdrawalAction, error) {
	var (
		action    models.WithdrawalAction
		requestID sql.NullString
		reason    sql.NullString
	)
	if err := row.Scan(
		&action.ID,
		&action.IdeaID,
		&requestID,
		&action.Action,
		&reason,
		&action.OccurredAt,
	); err != nil {
		return models.WithdrawalAction{}, err
	}
	if requestID.Valid {
		action.RequestID = requestID.String
	}
	if reason.Valid {
		action.Reason = reason.String
	}
	return action, nil
}

func (s *PGStore) RecordSnapshot(ctx context.Context, in SnapshotInput) (models.SyncSnapshot, error) {
	if in.IdeaID == "" {
		return models.SyncSnapshot{}, fmt.Errorf("idea id required")
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO roadmap_sync_snapshots
			(id, idea_id, title, current_stage, progress_percent, failed, failure_reason, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id, idea_id, title, current_stage, progress_percent, failed, failure_reason, synced_at`,
		in.ID, in.IdeaID, in.Title, in.CurrentStage, in.ProgressPercent, in.Failed, in.FailureReason, time.Now().UTC(),
	)
	return scanSnapshot(row)
}

func (s *PGStore) LatestSnapshot(ctx context.Context, ideaID string) (models.SyncSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, title, current_stage, progress_percent, failed, failure_reason, synced_at
		FROM roadmap_sync_snapshots
		WHERE idea_id = $1
		ORDER BY synced_at DESC, id DESC
		LIMIT 1`,
		ideaID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncSnapshot{}, ErrNotFound
	}
	return snap, err
}

func (s *PGStore) ListSnapshots(ctx context.Context, ideaID string, limit int) ([]models.SyncSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, title, current_stage, progress_percent, failed, failure_reason, synced_at
		FROM roadmap_sync_snapshots
		WHERE idea_id = $1
		ORDER BY synced_at DESC, id DESC
		LIMIT $2`,
		ideaID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SyncSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PGStore) RecordWithdrawalAction(ctx context.Context, in WithdrawalActionInput) (models.WithdrawalAction, error) {
	if in.IdeaID == "" || in.Action == "" {
		return models.WithdrawalAction{}, fmt.Errorf("idea id and action required")
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO withdrawal_actions (id, idea_id, request_id, action, reason, occurred_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6)
		RETURNING id, idea_id, request_id, action, reason, occurred_at`,
		in.ID, in.IdeaID, in.RequestID, in.Action, in.Reason, time.Now().UTC(),
	)
	return scanWithdrawalAction(row)
}

func (s *PGStore) ListWithdrawalActions(ctx context.Context, ideaID string) ([]models.WithdrawalAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, request_id, action, reason, occurred_at
		FROM withdrawal_actions
		WHERE idea_id = $1
		ORDER BY occurred_at DESC, id DESC`,
		ideaID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.WithdrawalAction
	for rows.Next() {
		action, err := scanWithdrawalAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, action)
	}
	return out, rows.Err()
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
