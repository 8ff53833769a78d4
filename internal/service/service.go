// Package service orchestrates roadmap load cycles: it joins the two backend
// fetches, derives the timeline, applies the result to the state container
// under a load generation, and fans out best-effort side effects (history,
// transition events, archival). It also owns the withdrawal subflow.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/incuhub/roadmap-sync/internal/incubator"
	"github.com/incuhub/roadmap-sync/internal/models"
	"github.com/incuhub/roadmap-sync/internal/roadmap"
	"github.com/incuhub/roadmap-sync/internal/store"
	"github.com/incuhub/roadmap-sync/internal/timeline"
)

var (
	// ErrWithdrawalPending gates a new request while one is undecided.
	// Advisory only: the backend does not enforce this, so two clients can
	// still race. Backend-side idempotency is tracked in DESIGN.md.
	ErrWithdrawalPending = errors.New("a withdrawal request is already pending for this idea")

	// ErrWithdrawalNotApproved rejects payment for an undecided or rejected request.
	ErrWithdrawalNotApproved = errors.New("withdrawal request is not approved")

	// ErrWithdrawalAlreadyPaid rejects double payment.
	ErrWithdrawalAlreadyPaid = errors.New("withdrawal penalty already paid")

	// ErrWithdrawalNotFound reports an unknown request id for the idea.
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
)

// TransitionPublisher receives stage-transition events. Optional.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, ev models.StageTransitionEvent) error
}

// SnapshotArchiver receives successful sync snapshots. Optional.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, snap models.SyncSnapshot, timeline []models.StageViewModel) error
}

// CatalogCache holds the last-known-good platform catalog. Optional.
type CatalogCache interface {
	Get(ctx context.Context) ([]models.StageDefinition, error)
	Put(ctx context.Context, catalog []models.StageDefinition) error
}

// Options carries the optional collaborators.
type Options struct {
	Events   TransitionPublisher
	Archiver SnapshotArchiver
	Catalogs CatalogCache
	Links    timeline.LinkTable
	Logger   *zap.Logger
}

// Service is the load orchestrator shared by the HTTP surface and the
// auto-refresh scheduler.
type Service struct {
	client   incubator.Client
	state    *roadmap.State
	history  store.Store
	events   TransitionPublisher
	archiver SnapshotArchiver
	catalogs CatalogCache
	links    timeline.LinkTable
	log      *zap.Logger

	mu          sync.Mutex
	withdrawals map[string][]models.Withdrawal
}

// New wires a Service. client, state, and history are required.
func New(client incubator.Client, state *roadmap.State, history store.Store, opts Options) *Service {
	links := opts.Links
	if links == nil {
		links = timeline.DefaultLinks()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:      client,
		state:       state,
		history:     history,
		events:      opts.Events,
		archiver:    opts.Archiver,
		catalogs:    opts.Catalogs,
		links:       links,
		log:         logger,
		withdrawals: map[string][]models.Withdrawal{},
	}
}

// LoadIdea runs one load cycle for an idea. Both backend fetches complete
// before derivation; a partial result is never applied. Failures degrade to
// a populated fallback timeline and are also returned for the caller to log.
func (s *Service) LoadIdea(ctx context.Context, ideaID string) error {
	if ideaID == "" {
		return fmt.Errorf("idea id required")
	}
	gen := s.state.StartLoad()

	var (
		info      models.RoadmapInfo
		infoErr   error
		stages    []models.StageDefinition
		stagesErr error
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		info, infoErr = s.client.FetchIdeaRoadmap(ctx, ideaID)
	}()
	go func() {
		defer wg.Done()
		stages, stagesErr = s.client.FetchPlatformStages(ctx)
	}()
	wg.Wait()

	catalog := s.resolveCatalog(ctx, stages, stagesErr)

	if infoErr != nil {
		derived := timeline.Derive(catalog, timeline.PlatformCurrent(catalog), timeline.PlatformPlaceholderProgress, s.links)
		applied := s.state.LoadFailed(gen, infoErr.Error(), roadmap.Payload{
			PlatformStages: catalog,
			TimelineData:   derived,
		})
		if applied {
			s.recordSnapshot(ctx, store.SnapshotInput{
				IdeaID:        ideaID,
				Failed:        true,
				FailureReason: infoErr.Error(),
			})
		}
		return fmt.Errorf("load idea roadmap: %w", infoErr)
	}

	derived := timeline.Derive(catalog, info.CurrentStage, info.ProgressPercentage, s.links)
	infoCopy := info
	applied := s.state.LoadSucceeded(gen, roadmap.Payload{
		RoadmapInfo:    &infoCopy,
		PlatformStages: catalog,
		TimelineData:   derived,
	})
	if !applied {
		// Superseded by a reset or a newer load; drop the result entirely.
		return nil
	}
	s.afterSync(ctx, ideaID, info, derived)
	return nil
}

// LoadPlatform runs one load cycle for the generic platform view: no idea,
// first catalog stage rendered current at the placeholder progress.
func (s *Service) LoadPlatform(ctx context.Context) error {
	gen := s.state.StartLoad()

	stages, err := s.client.FetchPlatformStages(ctx)
	catalog := s.resolveCatalog(ctx, stages, err)
	derived := timeline.Derive(catalog, timeline.PlatformCurrent(catalog), timeline.PlatformPlaceholderProgress, s.links)
	payload := roadmap.Payload{
		PlatformStages: catalog,
		TimelineData:   derived,
	}
	if err != nil {
		s.state.LoadFailed(gen, err.Error(), payload)
		return fmt.Errorf("load platform stages: %w", err)
	}
	s.state.LoadSucceeded(gen, payload)
	return nil
}

// Sync is the scheduler entry point: a platform load when ideaID is empty,
// otherwise an idea load plus a best-effort withdrawal poll on the same
// cadence.
func (s *Service) Sync(ctx context.Context, ideaID string) error {
	if ideaID == "" {
		return s.LoadPlatform(ctx)
	}
	err := s.LoadIdea(ctx, ideaID)
	s.SyncWithdrawals(ctx, ideaID)
	return err
}

// Reset clears the roadmap view, discarding any in-flight load results.
func (s *Service) Reset() {
	s.state.Reset()
}

// History lists recorded sync snapshots for an idea, newest first.
func (s *Service) History(ctx context.Context, ideaID string, limit int) ([]models.SyncSnapshot, error) {
	return s.history.ListSnapshots(ctx, ideaID, limit)
}

// resolveCatalog picks the catalog for derivation: the fetched one when the
// call succeeded, else the cached last-known-good one, else the built-in
// default. A fresh catalog refreshes the cache best-effort.
func (s *Service) resolveCatalog(ctx context.Context, fetched []models.StageDefinition, fetchErr error) []models.StageDefinition {
	if fetchErr == nil && len(fetched) > 0 {
		if s.catalogs != nil {
			if err := s.catalogs.Put(ctx, fetched); err != nil {
				s.log.Warn("catalog cache put failed", zap.Error(err))
			}
		}
		return fetched
	}
	if fetchErr != nil {
		s.log.Warn("platform catalog fetch failed", zap.Error(fetchErr))
	}
	if s.catalogs != nil {
		cached, err := s.catalogs.Get(ctx)
		if err == nil {
			return cached
		}
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("catalog cache unavailable", zap.Error(err))
		}
	}
	return timeline.DefaultCatalog()
}

// afterSync records history and fans out events/archival. Everything here is
// best-effort: a failure is logged and never reaches the load path.
func (s *Service) afterSync(ctx context.Context, ideaID string, info models.RoadmapInfo, derived []models.StageViewModel) {
	prev, prevErr := s.history.LatestSnapshot(ctx, ideaID)
	if prevErr != nil && !errors.Is(prevErr, store.ErrNotFound) {
		s.log.Warn("latest snapshot lookup failed", zap.String("ideaId", ideaID), zap.Error(prevErr))
	}

	snap := s.recordSnapshot(ctx, store.SnapshotInput{
		IdeaID:          ideaID,
		Title:           info.Title,
		CurrentStage:    info.CurrentStage,
		ProgressPercent: info.ProgressPercentage,
	})

	transitioned := prevErr == nil && !prev.Failed && prev.CurrentStage != info.CurrentStage
	if transitioned && s.events != nil {
		ev := models.StageTransitionEvent{
			IdeaID:          ideaID,
			FromStage:       prev.CurrentStage,
			ToStage:         info.CurrentStage,
			ProgressPercent: info.ProgressPercentage,
			OccurredAt:      time.Now().UTC(),
		}
		if err := s.events.PublishTransition(ctx, ev); err != nil {
			s.log.Warn("transition publish failed", zap.String("ideaId", ideaID), zap.Error(err))
		}
	}
	if s.archiver != nil && snap.ID != uuid.Nil {
		if err := s.archiver.ArchiveSnapshot(ctx, snap, derived); err != nil {
			s.log.Warn("snapshot archive failed", zap.String("ideaId", ideaID), zap.Error(err))
		}
	}
}

func (s *Service) recordSnapshot(ctx context.Context, in store.SnapshotInput) models.SyncSnapshot {
	snap, err := s.history.RecordSnapshot(ctx, in)
	if err != nil {
		s.log.Warn("record snapshot failed", zap.String("ideaId", in.IdeaID), zap.Error(err))
		return models.SyncSnapshot{}
	}
	return snap
}

// SyncWithdrawals refreshes the last-known withdrawal list for an idea.
// Polling failures are swallowed (logged only) and the previous view stands.
func (s *Service) SyncWithdrawals(ctx context.Context, ideaID string) []models.Withdrawal {
	all, err := s.client.ListWithdrawals(ctx)
	if err != nil {
		s.log.Warn("withdrawal poll failed", zap.String("ideaId", ideaID), zap.Error(err))
		return s.Withdrawals(ideaID)
	}
	var mine []models.Withdrawal
	for _, w := range all {
		if w.Request.IdeaID == ideaID {
			mine = append(mine, w)
		}
	}
	s.mu.Lock()
	s.withdrawals[ideaID] = mine
	s.mu.Unlock()
	return append([]models.Withdrawal(nil), mine...)
}

// Withdrawals returns the last-known withdrawal list for an idea.
func (s *Service) Withdrawals(ideaID string) []models.Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Withdrawal(nil), s.withdrawals[ideaID]...)
}

// CanRequestWithdrawal reports whether a new request may be filed: false
// while any request for the idea is still pending.
func (s *Service) CanRequestWithdrawal(ideaID string) bool {
	for _, w := range s.Withdrawals(ideaID) {
		if w.CommitteeResponse.Status == models.WithdrawalPending {
			return false
		}
	}
	return true
}

// RequestWithdrawal files a withdrawal request. An empty reason is rejected
// before any network call; a pending request blocks resubmission.
func (s *Service) RequestWithdrawal(ctx context.Context, ideaID, reason string) error {
	if ideaID == "" {
		return fmt.Errorf("idea id required")
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("withdrawal reason required")
	}
	s.SyncWithdrawals(ctx, ideaID)
	if !s.CanRequestWithdrawal(ideaID) {
		return ErrWithdrawalPending
	}
	if err := s.client.SubmitWithdrawal(ctx, ideaID, reason); err != nil {
		return fmt.Errorf("submit withdrawal: %w", err)
	}
	if _, err := s.history.RecordWithdrawalAction(ctx, store.WithdrawalActionInput{
		IdeaID: ideaID,
		Action: "requested",
		Reason: reason,
	}); err != nil {
		s.log.Warn("withdrawal audit failed", zap.String("ideaId", ideaID), zap.Error(err))
	}
	s.SyncWithdrawals(ctx, ideaID)
	return nil
}

// ExecuteWithdrawal pays the penalty for an approved, unpaid request and
// finalizes the withdrawal, then re-fetches the roadmap so any backend-side
// stage transition becomes visible.
func (s *Service) ExecuteWithdrawal(ctx context.Context, ideaID, requestID string) error {
	if ideaID == "" || requestID == "" {
		return fmt.Errorf("idea id and request id required")
	}
	var match *models.Withdrawal
	for _, w := range s.SyncWithdrawals(ctx, ideaID) {
		if w.Request.ID == requestID {
			found := w
			match = &found
			break
		}
	}
	if match == nil {
		return fmt.Errorf("request %s for idea %s: %w", requestID, ideaID, ErrWithdrawalNotFound)
	}
	if match.CommitteeResponse.Status != models.WithdrawalApproved {
		return ErrWithdrawalNotApproved
	}
	if match.CommitteeResponse.PenaltyPaid {
		return ErrWithdrawalAlreadyPaid
	}
	if err := s.client.ExecuteWithdrawal(ctx, requestID); err != nil {
		return fmt.Errorf("execute withdrawal: %w", err)
	}
	if _, err := s.history.RecordWithdrawalAction(ctx, store.WithdrawalActionInput{
		IdeaID:    ideaID,
		RequestID: requestID,
		Action:    "executed",
	}); err != nil {
		s.log.Warn("withdrawal audit failed", zap.String("ideaId", ideaID), zap.Error(err))
	}
	s.SyncWithdrawals(ctx, ideaID)
	if err := s.LoadIdea(ctx, ideaID); err != nil {
		s.log.Warn("roadmap refresh after withdrawal failed", zap.String("ideaId", ideaID), zap.Error(err))
	}
	return nil
}
