package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cresceapp/cresce/internal/buffer"
	"github.com/cresceapp/cresce/internal/models"
	"github.com/cresceapp/cresce/internal/store"
	"github.com/google/uuid"
)

// SessionIdleTimeout is the absence after which a returning user gets a new
// correlation ID (a new session) instead of continuing the old one.
const SessionIdleTimeout = 24 * time.Hour

// Engine is the conversation orchestrator. It owns the ConversationState
// records and serializes all mutating operations per user identifier, so a
// transition never validates against a stale current state.
type Engine struct {
	store   store.Store
	buffer  *buffer.Buffer
	configs *ConfigCache
	locks   sync.Map // user_id -> *sync.Mutex
}

// NewEngine creates an Engine with the given store and buffer.
func NewEngine(st store.Store, buf *buffer.Buffer) *Engine {
	return &Engine{
		store:   st,
		buffer:  buf,
		configs: NewConfigCache(st),
	}
}

// Configs exposes the state configuration cache.
func (e *Engine) Configs() *ConfigCache {
	return e.configs
}

// lockUser acquires the per-user mutex and returns its unlock function.
func (e *Engine) lockUser(userID string) func() {
	v, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// newSessionState builds a fresh ENTRY record for a user identifier.
func newSessionState(userID string, now time.Time) models.ConversationState {
	return models.ConversationState{
		UserID:            userID,
		State:             models.StateEntry,
		CorrelationID:     uuid.NewString(),
		SessionStartedAt:  now,
		CreatedAt:         now,
		LastInteractionAt: now,
	}
}

// GetState retrieves the conversation state for a user.
// Returns models.ErrNotFound for a brand-new user identifier.
func (e *Engine) GetState(ctx context.Context, userID string) (*models.ConversationState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, userID)
	}
	return cs, nil
}

// EnsureState returns the state record for a user, creating an ENTRY record
// on first contact. Re-entry after EXIT, or after a long absence, starts a
// new session: correlation ID and session start are reset.
func (e *Engine) EnsureState(ctx context.Context, userID string) (*models.ConversationState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	unlock := e.lockUser(userID)
	defer unlock()
	return e.ensureStateLocked(userID)
}

// ensureStateLocked is EnsureState without the lock; callers hold the user lock.
func (e *Engine) ensureStateLocked(userID string) (*models.ConversationState, error) {
	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if cs == nil {
		fresh := newSessionState(userID, now)
		if err := e.store.SaveConversationState(fresh); err != nil {
			return nil, err
		}
		slog.Info("Engine.EnsureState: created state for new user", "user_id", userID, "correlation_id", fresh.CorrelationID)
		return &fresh, nil
	}
	if cs.State == models.StateExit {
		fresh := newSessionState(userID, now)
		fresh.CreatedAt = cs.CreatedAt
		// Baby profile and presentation settings survive the reset.
		fresh.AssistantName = cs.AssistantName
		fresh.JourneyWeek = cs.JourneyWeek
		fresh.AudioPreference = cs.AudioPreference
		fresh.BabyName = cs.BabyName
		fresh.BabyGender = cs.BabyGender
		fresh.BabyBirthdate = cs.BabyBirthdate
		if err := e.store.SaveConversationState(fresh); err != nil {
			return nil, err
		}
		slog.Info("Engine.EnsureState: re-entry after EXIT, session reset", "user_id", userID, "correlation_id", fresh.CorrelationID)
		return &fresh, nil
	}
	if now.Sub(cs.LastInteractionAt) > SessionIdleTimeout {
		cs.CorrelationID = uuid.NewString()
		cs.SessionStartedAt = now
		cs.LastInteractionAt = now
		if err := e.store.SaveConversationState(*cs); err != nil {
			return nil, err
		}
		slog.Info("Engine.EnsureState: long absence, new session started", "user_id", userID, "correlation_id", cs.CorrelationID)
	}
	return cs, nil
}

// UpdateState merge-updates presentation fields without transition
// validation. The state record must already exist.
func (e *Engine) UpdateState(ctx context.Context, userID string, update models.StateUpdate) (*models.ConversationState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	unlock := e.lockUser(userID)
	defer unlock()

	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, userID)
	}
	update.Apply(cs)
	cs.LastInteractionAt = time.Now()
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.SaveConversationState(*cs); err != nil {
		return nil, err
	}
	slog.Debug("Engine.UpdateState: fields merged", "user_id", userID)
	return cs, nil
}

// Transition moves the user to a new outer state. The target must be in the
// allowed-successor set of the stored current state; otherwise the call fails
// with models.ErrInvalidTransition and the record is left untouched. On
// success the new record plus the target state's config (message template and
// buttons) are returned in one round trip.
func (e *Engine) Transition(ctx context.Context, userID string, to models.StateType, extra *models.StateUpdate) (*models.ConversationState, models.StateConfig, error) {
	if userID == "" {
		return nil, models.StateConfig{}, models.ErrEmptyUserID
	}
	if !models.IsValidStateType(to) {
		return nil, models.StateConfig{}, fmt.Errorf("%w: %q", models.ErrInvalidState, to)
	}
	unlock := e.lockUser(userID)
	defer unlock()
	return e.transitionLocked(ctx, userID, to, extra)
}

// transitionLocked performs the transition; callers hold the user lock.
func (e *Engine) transitionLocked(ctx context.Context, userID string, to models.StateType, extra *models.StateUpdate) (*models.ConversationState, models.StateConfig, error) {
	cs, err := e.ensureStateLocked(userID)
	if err != nil {
		return nil, models.StateConfig{}, err
	}

	currentCfg, err := e.configs.Get(cs.State)
	if err != nil {
		return nil, models.StateConfig{}, err
	}
	if !currentCfg.Allows(to) {
		slog.Warn("Engine.Transition: transition denied", "user_id", userID, "from", cs.State, "to", to)
		return nil, models.StateConfig{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, cs.State, to)
	}

	next := *cs
	next.State = to
	switch to {
	case models.StateOnboarding:
		if next.OnboardingStep == "" {
			next.OnboardingStep = models.StepAskingName
		}
	default:
		next.OnboardingStep = ""
	}
	switch to {
	case models.StateEntry, models.StateOnboarding, models.StateContextSelection:
		next.ActiveContext = ""
	}
	extra.Apply(&next)
	next.LastInteractionAt = time.Now()

	if err := next.Validate(); err != nil {
		return nil, models.StateConfig{}, err
	}
	if err := e.store.SaveConversationState(next); err != nil {
		return nil, models.StateConfig{}, err
	}

	targetCfg, err := e.configs.Get(to)
	if err != nil {
		return nil, models.StateConfig{}, err
	}
	slog.Info("Engine.Transition: succeeded", "user_id", userID, "from", cs.State, "to", to)
	return &next, targetCfg, nil
}

// SaveFeedback validates and persists a 1-5 feedback score, annotated with
// the user's current state and active context.
func (e *Engine) SaveFeedback(ctx context.Context, userID string, score int, comment string) (*models.FeedbackEntry, error) {
	entry := models.FeedbackEntry{
		UserID:    userID,
		Score:     score,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs != nil {
		entry.State = cs.State
		entry.ActiveContext = cs.ActiveContext
	}
	if err := e.store.AddFeedbackEntry(entry); err != nil {
		return nil, err
	}
	slog.Info("Engine.SaveFeedback: feedback recorded", "user_id", userID, "score", score)
	return &entry, nil
}

// AddToBuffer appends a raw inbound message to the user's debounce queue.
func (e *Engine) AddToBuffer(userID, content string) (models.BufferedMessage, error) {
	if userID == "" {
		return models.BufferedMessage{}, models.ErrEmptyUserID
	}
	if content == "" {
		return models.BufferedMessage{}, models.ErrEmptyMessage
	}
	if len(content) > models.MaxMessageLength {
		return models.BufferedMessage{}, models.ErrMessageTooLong
	}
	return e.buffer.Add(userID, content), nil
}

// GetBuffer returns a non-destructive snapshot of the user's queue.
func (e *Engine) GetBuffer(userID string) ([]models.BufferedMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	return e.buffer.Get(userID), nil
}

// ConsumeBuffer atomically drains the user's queue. An empty result is valid.
func (e *Engine) ConsumeBuffer(userID string) ([]models.BufferedMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	return e.buffer.Consume(userID), nil
}

// RecordMemory appends one memory entry stamped with the user's current
// journey week and active context when the entry doesn't carry its own.
func (e *Engine) RecordMemory(ctx context.Context, entry models.MemoryEntry) error {
	if entry.UserID == "" {
		return models.ErrEmptyUserID
	}
	if entry.Content == "" {
		return models.ErrEmptyMessage
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cs, err := e.store.GetConversationState(entry.UserID)
	if err != nil {
		return err
	}
	if cs != nil {
		if entry.ActiveContext == "" {
			entry.ActiveContext = cs.ActiveContext
		}
		if entry.JourneyWeek == 0 {
			entry.JourneyWeek = cs.JourneyWeek
		}
	}
	return e.store.AddMemoryEntry(entry)
}
