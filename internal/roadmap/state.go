// Package roadmap holds the canonical client-side view of the stage timeline.
// The State container is dependency-injected rather than package-global so
// tests and concurrent consumers get isolated instances.
package roadmap

import (
	"sync"
	"time"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// Payload is the result of one load cycle, applied to the state atomically.
type Payload struct {
	RoadmapInfo    *models.RoadmapInfo
	PlatformStages []models.StageDefinition
	TimelineData   []models.StageViewModel
}

// Snapshot is a point-in-time copy of the state for readers.
type Snapshot struct {
	RoadmapInfo        *models.RoadmapInfo      `json:"roadmapInfo"`
	PlatformStages     []models.StageDefinition `json:"platformStages"`
	TimelineData       []models.StageViewModel  `json:"timelineData"`
	Loading            bool                     `json:"loading"`
	Err                string                   `json:"error,omitempty"`
	LastUpdated        *time.Time               `json:"lastUpdated"`
	AutoRefreshEnabled bool                     `json:"autoRefreshEnabled"`
}

// StagePatch is a partial local update applied to one stage by ordinal id.
// Patching does not re-derive IsNext/IsCompleted consistency; the next sync
// replaces the timeline wholesale.
type StagePatch struct {
	Status          *models.StageStatus `json:"status,omitempty"`
	ProgressPercent *int                `json:"progressPercent,omitempty"`
	IsCurrent       *bool               `json:"isCurrent,omitempty"`
	IsCompleted     *bool               `json:"isCompleted,omitempty"`
	MessageForOwner *string             `json:"messageForOwner,omitempty"`
}

// State is the single source of truth for the roadmap views. Every load is
// tagged with a generation; results carrying a stale generation are discarded
// so a Reset can never be overwritten by an in-flight fetch.
type State struct {
	mu  sync.Mutex
	gen uint64

	roadmapInfo    *models.RoadmapInfo
	platformStages []models.StageDefinition
	timelineData   []models.StageViewModel
	loading        bool
	err            string
	lastUpdated    *time.Time
	autoRefresh    bool

	now func() time.Time
}

// NewState returns an empty state container.
func NewState() *State {
	return &State{now: func() time.Time { return time.Now().UTC() }}
}

// StartLoad marks the state loading, clears the error, and returns the
// generation the eventual result must present.
func (s *State) StartLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.loading = true
	s.err = ""
	return s.gen
}

// LoadSucceeded replaces the data wholesale and stamps lastUpdated. It
// reports whether the result was applied; stale generations are dropped.
func (s *State) LoadSucceeded(gen uint64, p Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.roadmapInfo = p.RoadmapInfo
	s.platformStages = p.PlatformStages
	s.timelineData = p.TimelineData
	s.loading = false
	s.err = ""
	ts := s.now()
	s.lastUpdated = &ts
	return true
}

// LoadFailed records the error but still repopulates the timeline from the
// provided fallback payload, so consumers never render an empty roadmap.
func (s *State) LoadFailed(gen uint64, msg string, fallback Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.roadmapInfo = fallback.RoadmapInfo
	s.platformStages = fallback.PlatformStages
	s.timelineData = fallback.TimelineData
	s.loading = false
	s.err = msg
	ts := s.now()
	s.lastUpdated = &ts
	return true
}

// Reset clears the loaded data and bumps the generation so in-flight loads
// are discarded on arrival. The auto-refresh preference survives.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.roadmapInfo = nil
	s.platformStages = nil
	s.timelineData = nil
	s.loading = false
	s.err = ""
	s.lastUpdated = nil
}

// ToggleAutoRefresh flips the preference and returns the new value.
func (s *State) ToggleAutoRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRefresh = !s.autoRefresh
	return s.autoRefresh
}

// SetAutoRefresh sets the preference explicitly and returns the new value.
func (s *State) SetAutoRefresh(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRefresh = enabled
	return s.autoRefresh
}

// AutoRefreshEnabled reports the current preference.
func (s *State) AutoRefreshEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRefresh
}

// PatchStage merges a partial update into the stage with the given ordinal
// id. It reports whether a stage matched.
func (s *State) PatchStage(ordinalID int, patch StagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.timelineData {
		if s.timelineData[i].OrdinalID != ordinalID {
			continue
		}
		stage := &s.timelineData[i]
		if patch.Status != nil {
			stage.Status = *patch.Status
		}
		if patch.ProgressPercent != nil {
			stage.ProgressPercent = *patch.ProgressPercent
		}
		if patch.IsCurrent != nil {
			stage.IsCurrent = *patch.IsCurrent
		}
		if patch.IsCompleted != nil {
			stage.IsCompleted = *patch.IsCompleted
		}
		if patch.MessageForOwner != nil {
			stage.MessageForOwner = *patch.MessageForOwner
		}
		return true
	}
	return false
}

// Snapshot returns a copy of the state safe for concurrent readers.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Loading:            s.loading,
		Err:                s.err,
		AutoRefreshEnabled: s.autoRefresh,
	}
	if s.roadmapInfo != nil {
		info := *s.roadmapInfo
		snap.RoadmapInfo = &info
	}
	if s.lastUpdated != nil {
		ts := *s.lastUpdated
		snap.LastUpdated = &ts
	}
	snap.PlatformStages = make([]models.StageDefinition, len(s.platformStages))
	copy(snap.PlatformStages, s.platformStages)
	snap.TimelineData = make([]models.StageViewModel, len(s.timelineData))
	copy(snap.TimelineData, s.timelineData)
	return snap
}
