package storage

import (
	"context"

	"github.com/shohag/pushrelay/internal/models"
)

// Storage keeps the device tokens reported by the feedback service until
// the application has dealt with them. Tokens are hex encoded.
type Storage interface {
	// Feedback
	SaveFeedback(ctx context.Context, rec models.FeedbackRecord) (*models.StoredFeedback, error)
	GetFeedback(ctx context.Context, token string) (*models.StoredFeedback, error)
	ListFeedback(ctx context.Context, limit, offset int) ([]models.StoredFeedback, error)
	DeleteFeedback(ctx context.Context, token string) error

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalTokens     int64 `json:"total_tokens"`
	ReportedLast24h int64 `json:"reported_last_24h"`
}
