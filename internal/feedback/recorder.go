package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/storage"
)

// Recorder is a Listener that persists every record it receives.
type Recorder struct {
	store   storage.Storage
	timeout time.Duration
	log     zerolog.Logger
}

func NewRecorder(store storage.Storage, log zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		timeout: 5 * time.Second,
		log:     log.With().Str("component", "feedback_recorder").Logger(),
	}
}

func (r *Recorder) Feedback(rec models.FeedbackRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	saved, err := r.store.SaveFeedback(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	r.log.Info().
		Str("token", saved.Token).
		Time("reported_at", saved.ReportedAt).
		Msg("device token reported invalid")
	return nil
}
