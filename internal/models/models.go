package models

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus classifies a stage relative to an idea's current position in
// the incubation roadmap.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageCurrent   StageStatus = "current"
	StagePending   StageStatus = "pending"
)

// StageDefinition is one entry of the platform stage catalog. The name doubles
// as identifier and display label; the backend exposes no stable numeric ID.
type StageDefinition struct {
	Name            string `json:"name"`
	MessageForOwner string `json:"messageForOwner"`
}

// StageLink is the navigation target attached to a stage view model.
type StageLink struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// StageColors is one entry of the repeating timeline palette.
type StageColors struct {
	Base      string `json:"base"`
	Highlight string `json:"highlight"`
	Text      string `json:"text"`
}

// StageViewModel is the render-ready representation of one catalog stage,
// recomputed wholesale on every sync. OrdinalID is the 1-based catalog
// position and is only stable within a single sync.
type StageViewModel struct {
	OrdinalID       int         `json:"ordinalId"`
	StageName       string      `json:"stageName"`
	Status          StageStatus `json:"status"`
	ProgressPercent int         `json:"progressPercent"`
	IsCurrent       bool        `json:"isCurrent"`
	IsCompleted     bool        `json:"isCompleted"`
	IsNext          bool        `json:"isNext"`
	Link            StageLink   `json:"link"`
	Colors          StageColors `json:"colors"`
	MessageForOwner string      `json:"messageForOwner"`
}

// RoadmapInfo is the authoritative backend snapshot for a single idea.
type RoadmapInfo struct {
	Title              string `json:"title"`
	CurrentStage       string `json:"currentStage"`
	ProgressPercentage int    `json:"progressPercentage"`
	LastUpdate         string `json:"lastUpdate"`
	NextStep           string `json:"nextStep"`
}

// WithdrawalStatus is the committee's disposition of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// WithdrawalRequest is an idea owner's request to exit the program.
type WithdrawalRequest struct {
	ID        string    `json:"id"`
	IdeaID    string    `json:"ideaId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommitteeResponse carries the committee's decision and penalty terms.
type CommitteeResponse struct {
	Status         WithdrawalStatus `json:"status"`
	CommitteeNotes string           `json:"committeeNotes"`
	PenaltyAmount  float64          `json:"penaltyAmount"`
	PenaltyPaid    bool             `json:"penaltyPaid"`
}

// Withdrawal pairs a request with the committee response observed via polling.
type Withdrawal struct {
	Request           WithdrawalRequest `json:"request"`
	CommitteeResponse CommitteeResponse `json:"committeeResponse"`
}

// SyncSnapshot records one roadmap sync for an idea, successful or not.
type SyncSnapshot struct {
	ID              uuid.UUID `json:"id"`
	IdeaID          string    `json:"ideaId"`
	Title           string    `json:"title"`
	CurrentStage    string    `json:"currentStage"`
	ProgressPercent int       `json:"progressPercent"`
	Failed          bool      `json:"failed"`
	FailureReason   string    `json:"failureReason,omitempty"`
	SyncedAt        time.Time `json:"syncedAt"`
}

// WithdrawalAction is an audit row for a withdrawal submission or payment.
type WithdrawalAction struct {
	ID         uuid.UUID `json:"id"`
	IdeaID     string    `json:"ideaId"`
	RequestID  string    `json:"requestId,omitempty"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// StageTransitionEvent is published when a sync observes the current stage
// move from one catalog entry to another.
type StageTransitionEvent struct {
	IdeaID          string    `json:"ideaId"`
	FromStage       string    `json:"fromStage"`
	ToStage         string    `json:"toStage"`
	ProgressPercent int       `json:"progressPercent"`
	OccurredAt      time.Time `json:"occurredAt"`
}
