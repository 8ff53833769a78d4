// Package incubator is the transport layer for the incubation platform's
// REST backend. All optional-field defaulting happens in this package's
// decoders; callers see fully populated models.
package incubator

import (
	"context"
	"errors"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
// Session handling lives outside this service; callers surface the error.
var ErrUnauthorized = errors.New("incubator: unauthorized")

// Client is the backend contract consumed by the sync service.
type Client interface {
	FetchIdeaRoadmap(ctx context.Context, ideaID string) (models.RoadmapInfo, error)
	FetchPlatformStages(ctx context.Context) ([]models.StageDefinition, error)
	ListWithdrawals(ctx context.Context) ([]models.Withdrawal, error)
	SubmitWithdrawal(ctx context.Context, ideaID, reason string) error
	ExecuteWithdrawal(ctx context.Context, requestID string) error
}
