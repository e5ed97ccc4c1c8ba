package store

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// Retry configuration constants
const (
	// DefaultRetryAttempts is the default number of attempts for transient failures.
	DefaultRetryAttempts = 3
	// DefaultRetryBackoff is the pause between retry attempts.
	DefaultRetryBackoff = 100 * time.Millisecond
)

// RetryingStore decorates a Store with bounded retries for transient errors.
// Only errors wrapping models.ErrTransientStore are retried; validation and
// business errors surface immediately.
type RetryingStore struct {
	inner    Store
	attempts int
	backoff  time.Duration
}

// NewRetryingStore wraps the given store. attempts <= 0 falls back to the default.
func NewRetryingStore(inner Store, attempts int) *RetryingStore {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return &RetryingStore{inner: inner, attempts: attempts, backoff: DefaultRetryBackoff}
}

// retry runs fn up to r.attempts times while it keeps failing transiently.
func retry[T any](r *RetryingStore, op string, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		result, err = fn()
		if err == nil || !errors.Is(err, models.ErrTransientStore) {
			return result, err
		}
		slog.Warn("RetryingStore transient failure", "op", op, "attempt", attempt, "max_attempts", r.attempts, "error", err)
		if attempt < r.attempts {
			time.Sleep(r.backoff)
		}
	}
	return result, err
}

// retryErr is retry for operations that only return an error.
func retryErr(r *RetryingStore, op string, fn func() error) error {
	_, err := retry(r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *RetryingStore) GetConversationState(userID string) (*models.ConversationState, error) {
	return retry(r, "GetConversationState", func() (*models.ConversationState, error) {
		return r.inner.GetConversationState(userID)
	})
}

func (r *RetryingStore) SaveConversationState(cs models.ConversationState) error {
	return retryErr(r, "SaveConversationState", func() error {
		return r.inner.SaveConversationState(cs)
	})
}

func (r *RetryingStore) DeleteConversationState(userID string) error {
	return retryErr(r, "DeleteConversationState", func() error {
		return r.inner.DeleteConversationState(userID)
	})
}

func (r *RetryingStore) AddMemoryEntry(e models.MemoryEntry) error {
	return retryErr(r, "AddMemoryEntry", func() error {
		return r.inner.AddMemoryEntry(e)
	})
}

func (r *RetryingStore) ListMemoryEntries(q MemoryQuery) ([]models.MemoryEntry, error) {
	return retry(r, "ListMemoryEntries", func() ([]models.MemoryEntry, error) {
		return r.inner.ListMemoryEntries(q)
	})
}

func (r *RetryingStore) AddFeedbackEntry(e models.FeedbackEntry) error {
	return retryErr(r, "AddFeedbackEntry", func() error {
		return r.inner.AddFeedbackEntry(e)
	})
}

func (r *RetryingStore) ListFeedbackEntries(userID string) ([]models.FeedbackEntry, error) {
	return retry(r, "ListFeedbackEntries", func() ([]models.FeedbackEntry, error) {
		return r.inner.ListFeedbackEntries(userID)
	})
}

func (r *RetryingStore) GetFeedbackStats(userID string) (models.FeedbackStats, error) {
	return retry(r, "GetFeedbackStats", func() (models.FeedbackStats, error) {
		return r.inner.GetFeedbackStats(userID)
	})
}

func (r *RetryingStore) GetStateConfig(state models.StateType) (*models.StateConfig, error) {
	return retry(r, "GetStateConfig", func() (*models.StateConfig, error) {
		return r.inner.GetStateConfig(state)
	})
}

func (r *RetryingStore) SaveStateConfig(cfg models.StateConfig) (models.StateConfig, error) {
	return retry(r, "SaveStateConfig", func() (models.StateConfig, error) {
		return r.inner.SaveStateConfig(cfg)
	})
}

func (r *RetryingStore) ListStateConfigs() ([]models.StateConfig, error) {
	return retry(r, "ListStateConfigs", func() ([]models.StateConfig, error) {
		return r.inner.ListStateConfigs()
	})
}

func (r *RetryingStore) Close() error {
	return r.inner.Close()
}
