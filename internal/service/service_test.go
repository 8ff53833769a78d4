package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incuhub/roadmap-sync/internal/models"
	"github.com/incuhub/roadmap-sync/internal/roadmap"
	"github.com/incuhub/roadmap-sync/internal/service"
	"github.com/incuhub/roadmap-sync/internal/store"
	"github.com/incuhub/roadmap-sync/internal/timeline"
)

type fakeClient struct {
	mu          sync.Mutex
	info        models.RoadmapInfo
	infoErr     error
	stages      []models.StageDefinition
	stagesErr   error
	withdrawals []models.Withdrawal
	listErr     error
	submitErr   error
	execErr     error

	infoCalls int
	submitted []string
	executed  []string

	started chan struct{}
	block   chan struct{}
}

func (f *fakeClient) FetchIdeaRoadmap(ctx context.Context, ideaID string) (models.RoadmapInfo, error) {
	f.mu.Lock()
	f.infoCalls++
	info, err := f.info, f.infoErr
	started, block := f.started, f.block
	f.mu.Unlock()
	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	return info, err
}

func (f *fakeClient) FetchPlatformStages(ctx context.Context) ([]models.StageDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stages, f.stagesErr
}

func (f *fakeClient) ListWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withdrawals, f.listErr
}

func (f *fakeClient) SubmitWithdrawal(ctx context.Context, ideaID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, ideaID+":"+reason)
	return nil
}

func (f *fakeClient) ExecuteWithdrawal(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return f.execErr
	}
	f.executed = append(f.executed, requestID)
	return nil
}

func (f *fakeClient) ideaCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.StageTransitionEvent
}

func (p *fakePublisher) PublishTransition(ctx context.Context, ev models.StageTransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) all() []models.StageTransitionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.StageTransitionEvent(nil), p.events...)
}

type fakeCache struct {
	catalog []models.StageDefinition
	puts    [][]models.StageDefinition
}

func (c *fakeCache) Get(ctx context.Context) ([]models.StageDefinition, error) {
	if len(c.catalog) == 0 {
		return nil, errors.New("miss")
	}
	return c.catalog, nil
}

func (c *fakeCache) Put(ctx context.Context, catalog []models.StageDefinition) error {
	c.puts = append(c.puts, catalog)
	return nil
}

func newService(client *fakeClient, opts service.Options) (*service.Service, *roadmap.State, *store.MemoryStore) {
	state := roadmap.NewState()
	history := store.NewMemoryStore()
	return service.New(client, state, history, opts), state, history
}

func TestLoadIdeaSuccess(t *testing.T) {
	client := &fakeClient{
		info:   models.RoadmapInfo{Title: "Solar Kiosk", CurrentStage: "Funding", ProgressPercentage: 40},
		stages: timeline.DefaultCatalog(),
	}
	svc, state, history := newService(client, service.Options{})

	require.NoError(t, svc.LoadIdea(context.Background(), "idea-7"))

	snap := state.Snapshot()
	require.NotNil(t, snap.RoadmapInfo)
	assert.Equal(t, "Funding", snap.RoadmapInfo.CurrentStage)
	require.Len(t, snap.TimelineData, 9)
	assert.Equal(t, models.StageCurrent, snap.TimelineData[4].Status)
	assert.Equal(t, 40, snap.TimelineData[4].ProgressPercent)
	assert.Empty(t, snap.Err)

	latest, err := history.LatestSnapshot(context.Background(), "idea-7")
	require.NoError(t, err)
	assert.Equal(t, "Funding", latest.CurrentStage)
	assert.False(t, latest.Failed)
}

func TestLoadIdeaFailureFallsBackToDefaultCatalog(t *testing.T) {
	client := &fakeClient{
		infoErr:   errors.New("connection refused"),
		stagesErr: errors.New("connection refused"),
	}
	svc, state, history := newService(client, service.Options{})

	err := svc.LoadIdea(context.Background(), "idea-7")
	require.Error(t, err)

	snap := state.Snapshot()
	assert.NotEmpty(t, snap.Err)
	assert.Nil(t, snap.RoadmapInfo)
	require.Len(t, snap.TimelineData, 9, "fallback must render the default nine stages")
	assert.Equal(t, "Idea Submission", snap.TimelineData[0].StageName)
	assert.True(t, snap.TimelineData[0].IsCurrent)
	assert.Equal(t, timeline.PlatformPlaceholderProgress, snap.TimelineData[0].ProgressPercent)

	latest, lookupErr := history.LatestSnapshot(context.Background(), "idea-7")
	require.NoError(t, lookupErr)
	assert.True(t, latest.Failed)
	assert.NotEmpty(t, latest.FailureReason)
}

func TestLoadIdeaRequiresID(t *testing.T) {
	svc, _, _ := newService(&fakeClient{}, service.Options{})
	assert.Error(t, svc.LoadIdea(context.Background(), ""))
}

func TestLoadPlatformDeterministicFallback(t *testing.T) {
	client := &fakeClient{stagesErr: errors.New("backend down")}
	svc, state, _ := newService(client, service.Options{})

	require.Error(t, svc.LoadPlatform(context.Background()))
	first := state.Snapshot().TimelineData

	require.Error(t, svc.LoadPlatform(context.Background()))
	second := state.Snapshot().TimelineData

	assert.Equal(t, first, second, "fallback derivation must be deterministic")
	require.Len(t, first, 9)
}

func TestLoadPlatformNoBleedThroughAfterReset(t *testing.T) {
	client := &fakeClient{
		info:   models.RoadmapInfo{Title: "Solar Kiosk", CurrentStage: "Funding", ProgressPercentage: 40},
		stages: timeline.DefaultCatalog(),
	}
	svc, state, _ := newService(client, service.Options{})

	require.NoError(t, svc.LoadIdea(context.Background(), "idea-7"))
	svc.Reset()
	require.NoError(t, svc.LoadPlatform(context.Background()))

	snap := state.Snapshot()
	assert.Nil(t, snap.RoadmapInfo, "platform view carries no idea state")
	require.Len(t, snap.TimelineData, 9)
	assert.True(t, snap.TimelineData[0].IsCurrent)
	assert.Equal(t, timeline.PlatformPlaceholderProgress, snap.TimelineData[0].ProgressPercent)
	for _, stage := range snap.TimelineData[1:] {
		assert.Equal(t, models.StagePending, stage.Status)
		assert.Equal(t, 0, stage.ProgressPercent)
	}
}

func TestResetDiscardsInFlightLoad(t *testing.T) {
	client := &fakeClient{
		info:    models.RoadmapInfo{CurrentStage: "Funding", ProgressPercentage: 40},
		stages:  timeline.DefaultCatalog(),
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	svc, state, history := newService(client, service.Options{})

	done := make(chan error, 1)
	go func() { done <- svc.LoadIdea(context.Background(), "idea-7") }()

	<-client.started
	svc.Reset()
	close(client.block)
	require.NoError(t, <-done)

	snap := state.Snapshot()
	assert.Nil(t, snap.RoadmapInfo, "stale load must not overwrite a reset")
	assert.Empty(t, snap.TimelineData)
	assert.Nil(t, snap.LastUpdated)

	_, err := history.LatestSnapshot(context.Background(), "idea-7")
	assert.ErrorIs(t, err, store.ErrNotFound, "discarded loads must not record history")
}

func TestStageTransitionPublished(t *testing.T) {
	client := &fakeClient{
		info:   models.RoadmapInfo{CurrentStage: "Funding", ProgressPercentage: 10},
		stages: timeline.DefaultCatalog(),
	}
	publisher := &fakePublisher{}
	svc, _, _ := newService(client, service.Options{Events: publisher})

	require.NoError(t, svc.LoadIdea(context.Background(), "idea-7"))
	assert.Empty(t, publisher.all(), "first sync has no previous stage to transition from")

	require.NoError(t, svc.LoadIdea(context.Background(), "idea-7"))
	assert.Empty(t, publisher.all(), "unchanged stage publishes nothing")

	client.mu.Lock()
	client.info = models.RoadmapInfo{CurrentStage: "Execution and Development", ProgressPercentage: 5}
	client.mu.Unlock()
	require.NoError(t, svc.LoadIdea(context.Background(), "idea-7"))

	events := publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "Funding", events[0].FromStage)
	assert.Equal(t, "Execution and Development", events[0].ToStage)
	assert.Equal(t, "idea-7", events[0].IdeaID)
}

func TestCatalogCachePreferredOverDefault(t *testing.T) {
	cached := []models.StageDefinition{{Name: "Alpha"}, {Name: "Beta"}, {Name: "Gamma"}}
	client := &fakeClient{stagesErr: errors.New("backend down")}
	svc, state, _ := newService(client, service.Options{Catalogs: &fakeCache{catalog: cached}})

	require.Error(t, svc.LoadPlatform(context.Background()))

	snap := state.Snapshot()
	require.Len(t, snap.TimelineData, 3, "cached catalog beats the hardcoded default")
	assert.Equal(t, "Alpha", snap.TimelineData[0].StageName)
	assert.True(t, snap.TimelineData[0].IsCurrent)
}

func TestCatalogCacheRefreshedOnSuccess(t *testing.T) {
	cacheSpy := &fakeCache{}
	client := &fakeClient{stages: timeline.DefaultCatalog()}
	svc, _, _ := newService(client, service.Options{Catalogs: cacheSpy})

	require.NoError(t, svc.LoadPlatform(context.Background()))
	require.Len(t, cacheSpy.puts, 1)
	assert.Len(t, cacheSpy.puts[0], 9)
}

func pendingWithdrawal(ideaID, requestID string) models.Withdrawal {
	return models.Withdrawal{
		Request:           models.WithdrawalRequest{ID: requestID, IdeaID: ideaID, Reason: "pivot", CreatedAt: time.Now().UTC()},
		CommitteeResponse: models.CommitteeResponse{Status: models.WithdrawalPending},
	}
}

func TestRequestWithdrawalGatedByPending(t *testing.T) {
	client := &fakeClient{withdrawals: []models.Withdrawal{pendingWithdrawal("idea-x", "wr-1")}}
	svc, _, _ := newService(client, service.Options{})

	err := svc.RequestWithdrawal(context.Background(), "idea-x", "changed my mind")
	assert.ErrorIs(t, err, service.ErrWithdrawalPending)

	svc.SyncWithdrawals(context.Background(), "idea-x")
	assert.False(t, svc.CanRequestWithdrawal("idea-x"))
	assert.True(t, svc.CanRequestWithdrawal("idea-y"))

	require.NoError(t, svc.RequestWithdrawal(context.Background(), "idea-y", "other idea is fine"))
	client.mu.Lock()
	submitted := append([]string(nil), client.submitted...)
	client.mu.Unlock()
	assert.Equal(t, []string{"idea-y:other idea is fine"}, submitted)
}

func TestRequestWithdrawalRejectsEmptyReason(t *testing.T) {
	svc, _, _ := newService(&fakeClient{}, service.Options{})
	assert.Error(t, svc.RequestWithdrawal(context.Background(), "idea-7", "   "))
}

func TestRequestWithdrawalRecordsAudit(t *testing.T) {
	client := &fakeClient{}
	svc, _, history := newService(client, service.Options{})

	require.NoError(t, svc.RequestWithdrawal(context.Background(), "idea-7", "pivot"))
	actions, err := history.ListWithdrawalActions(context.Background(), "idea-7")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "requested", actions[0].Action)
	assert.Equal(t, "pivot", actions[0].Reason)
}

func TestExecuteWithdrawalLifecycle(t *testing.T) {
	approved := models.Withdrawal{
		Request:           models.WithdrawalRequest{ID: "wr-1", IdeaID: "idea-7", Reason: "pivot"},
		CommitteeResponse: models.CommitteeResponse{Status: models.WithdrawalApproved, PenaltyAmount: 500},
	}
	client := &fakeClient{
		info:        models.RoadmapInfo{CurrentStage: "Funding"},
		stages:      timeline.DefaultCatalog(),
		withdrawals: []models.Withdrawal{approved},
	}
	svc, _, history := newService(client, service.Options{})

	before := client.ideaCalls()
	require.NoError(t, svc.ExecuteWithdrawal(context.Background(), "idea-7", "wr-1"))

	client.mu.Lock()
	executed := append([]string(nil), client.executed...)
	client.mu.Unlock()
	assert.Equal(t, []string{"wr-1"}, executed)
	assert.Greater(t, client.ideaCalls(), before, "finalizing must re-fetch the roadmap")

	actions, err := history.ListWithdrawalActions(context.Background(), "idea-7")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "executed", actions[0].Action)
}

func TestExecuteWithdrawalRejectsWrongStates(t *testing.T) {
	pending := pendingWithdrawal("idea-7", "wr-1")
	paid := models.Withdrawal{
		Request:           models.WithdrawalRequest{ID: "wr-2", IdeaID: "idea-7"},
		CommitteeResponse: models.CommitteeResponse{Status: models.WithdrawalApproved, PenaltyPaid: true},
	}
	client := &fakeClient{withdrawals: []models.Withdrawal{pending, paid}}
	svc, _, _ := newService(client, service.Options{})

	assert.ErrorIs(t, svc.ExecuteWithdrawal(context.Background(), "idea-7", "wr-1"), service.ErrWithdrawalNotApproved)
	assert.ErrorIs(t, svc.ExecuteWithdrawal(context.Background(), "idea-7", "wr-2"), service.ErrWithdrawalAlreadyPaid)
	assert.ErrorIs(t, svc.ExecuteWithdrawal(context.Background(), "idea-7", "wr-404"), service.ErrWithdrawalNotFound)
}

func TestSyncWithdrawalsKeepsLastKnownOnError(t *testing.T) {
	client := &fakeClient{withdrawals: []models.Withdrawal{pendingWithdrawal("idea-7", "wr-1")}}
	svc, _, _ := newService(client, service.Options{})

	first := svc.SyncWithdrawals(context.Background(), "idea-7")
	require.Len(t, first, 1)

	client.mu.Lock()
	client.listErr = errors.New("poll failed")
	client.mu.Unlock()

	second := svc.SyncWithdrawals(context.Background(), "idea-7")
	assert.Equal(t, first, second, "polling failure leaves the last-known view")
}
