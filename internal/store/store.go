// Package store provides storage backends for Cresce.
//
// It defines the Store interface used by the flow engine and ships SQLite,
// PostgreSQL, and in-memory implementations. Missing rows are returned as
// (nil, nil); the flow layer maps them to models.ErrNotFound.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// MemoryQuery selects memory entries for one user.
type MemoryQuery struct {
	UserID string
	// Limit bounds the number of entries returned; 0 means no limit.
	Limit int
	// ActiveContext filters entries to one subject when non-empty.
	ActiveContext models.ActiveContext
	// Since excludes entries created before the given time when non-nil.
	Since *time.Time
}

// Store is the persistence interface for conversation state, memory,
// feedback, and state configuration.
type Store interface {
	GetConversationState(userID string) (*models.ConversationState, error)
	SaveConversationState(cs models.ConversationState) error
	DeleteConversationState(userID string) error

	AddMemoryEntry(e models.MemoryEntry) error
	// ListMemoryEntries returns matching entries newest-first.
	ListMemoryEntries(q MemoryQuery) ([]models.MemoryEntry, error)

	AddFeedbackEntry(e models.FeedbackEntry) error
	ListFeedbackEntries(userID string) ([]models.FeedbackEntry, error)
	GetFeedbackStats(userID string) (models.FeedbackStats, error)

	GetStateConfig(state models.StateType) (*models.StateConfig, error)
	// SaveStateConfig upserts the config, bumping its version counter, and
	// returns the stored record.
	SaveStateConfig(cfg models.StateConfig) (models.StateConfig, error)
	ListStateConfigs() ([]models.StateConfig, error)

	Close() error
}

// InMemoryStore is a mutex-guarded in-memory Store used by tests and as an
// injectable fake for the flow engine.
type InMemoryStore struct {
	mu           sync.RWMutex
	states       map[string]models.ConversationState
	memories     []models.MemoryEntry
	feedback     []models.FeedbackEntry
	configs      map[models.StateType]models.StateConfig
	nextMemoryID int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:       make(map[string]models.ConversationState),
		configs:      make(map[models.StateType]models.StateConfig),
		nextMemoryID: 1,
	}
}

// GetConversationState returns the state row for a user, or (nil, nil) if absent.
func (s *InMemoryStore) GetConversationState(userID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	out := cs
	return &out, nil
}

// SaveConversationState upserts the state row.
func (s *InMemoryStore) SaveConversationState(cs models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[cs.UserID] = cs
	return nil
}

// DeleteConversationState removes the state row for a user.
func (s *InMemoryStore) DeleteConversationState(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// AddMemoryEntry appends one memory entry.
func (s *InMemoryStore) AddMemoryEntry(e models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextMemoryID
	s.nextMemoryID++
	if e.InteractionType == "" {
		e.InteractionType = models.InteractionTypeDefault
	}
	s.memories = append(s.memories, e)
	return nil
}

// ListMemoryEntries returns matching entries newest-first.
func (s *InMemoryStore) ListMemoryEntries(q MemoryQuery) ([]models.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MemoryEntry
	for _, e := range s.memories {
		if e.UserID != q.UserID {
			continue
		}
		if q.ActiveContext != "" && e.ActiveContext != q.ActiveContext {
			continue
		}
		if q.Since != nil && e.CreatedAt.Before(*q.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// AddFeedbackEntry appends one feedback entry.
func (s *InMemoryStore) AddFeedbackEntry(e models.FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.feedback) + 1)
	s.feedback = append(s.feedback, e)
	return nil
}

// ListFeedbackEntries returns all feedback for a user, newest-first.
func (s *InMemoryStore) ListFeedbackEntries(userID string) ([]models.FeedbackEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FeedbackEntry
	for _, e := range s.feedback {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetFeedbackStats computes count, average score, and last-given time.
func (s *InMemoryStore) GetFeedbackStats(userID string) (models.FeedbackStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.FeedbackStats
	var sum int
	for _, e := range s.feedback {
		if e.UserID != userID {
			continue
		}
		stats.Count++
		sum += e.Score
		if stats.LastGivenAt == nil || e.CreatedAt.After(*stats.LastGivenAt) {
			t := e.CreatedAt
			stats.LastGivenAt = &t
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}

// GetStateConfig returns the stored config for a state, or (nil, nil) if absent.
func (s *InMemoryStore) GetStateConfig(state models.StateType) (*models.StateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[state]
	if !ok {
		return nil, nil
	}
	out := cfg
	return &out, nil
}

// SaveStateConfig upserts the config and bumps its version counter.
func (s *InMemoryStore) SaveStateConfig(cfg models.StateConfig) (models.StateConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[cfg.State]; ok {
		cfg.Version = existing.Version + 1
	} else {
		cfg.Version = 1
	}
	cfg.UpdatedAt = time.Now()
	s.configs[cfg.State] = cfg
	return cfg, nil
}

// ListStateConfigs returns all stored configs.
func (s *InMemoryStore) ListStateConfigs() ([]models.StateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StateConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
