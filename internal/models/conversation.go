// Package models defines conversation records owned by the orchestrator.
package models

import (
	"fmt"
	"time"
)

// ConversationState is the single live row per user identifier.
// The orchestrator exclusively owns this record; every transition and
// field-level update mutates it.
type ConversationState struct {
	UserID            string         `json:"user_id"`
	State             StateType      `json:"state"`
	OnboardingStep    OnboardingStep `json:"onboarding_step,omitempty"`
	ActiveContext     ActiveContext  `json:"active_context,omitempty"`
	AssistantName     string         `json:"assistant_name,omitempty"`
	JourneyWeek       int            `json:"journey_week,omitempty"`
	AudioPreference   string         `json:"audio_preference,omitempty"` // "text" or "audio"
	BabyName          string         `json:"baby_name,omitempty"`
	BabyGender        string         `json:"baby_gender,omitempty"`
	BabyBirthdate     *time.Time     `json:"baby_birthdate,omitempty"`
	CorrelationID     string         `json:"correlation_id"`
	SessionStartedAt  time.Time      `json:"session_started_at"`
	CreatedAt         time.Time      `json:"created_at"`
	LastInteractionAt time.Time      `json:"last_interaction_at"`
}

// Validate enforces the record invariants: onboarding_step is non-empty iff
// state is ONBOARDING; active_context is empty before a subject is selected,
// optional in SUPPORT/PAUSE/EXIT (reachable without one), and required in
// every conversation state.
func (cs *ConversationState) Validate() error {
	if cs.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidStateType(cs.State) {
		return fmt.Errorf("%w: %q", ErrInvalidState, cs.State)
	}
	if cs.State == StateOnboarding {
		if cs.OnboardingStep == "" || !IsValidOnboardingStep(cs.OnboardingStep) {
			return fmt.Errorf("%w: state ONBOARDING requires a valid onboarding_step, got %q", ErrInvalidStep, cs.OnboardingStep)
		}
	} else if cs.OnboardingStep != "" {
		return fmt.Errorf("%w: onboarding_step %q set outside ONBOARDING", ErrInvalidStep, cs.OnboardingStep)
	}
	switch cs.State {
	case StateEntry, StateOnboarding, StateContextSelection:
		if cs.ActiveContext != "" {
			return fmt.Errorf("%w: active_context %q set in state %s", ErrInvalidContext, cs.ActiveContext, cs.State)
		}
	case StateSupport, StatePause, StateExit:
		// Reachable before a subject was ever selected, so the context is
		// optional; when carried over it must still be a known value.
		if cs.ActiveContext != "" && !IsValidActiveContext(cs.ActiveContext) {
			return fmt.Errorf("%w: %q in state %s", ErrInvalidContext, cs.ActiveContext, cs.State)
		}
	default:
		if !IsValidActiveContext(cs.ActiveContext) {
			return fmt.Errorf("%w: state %s requires an active context, got %q", ErrInvalidContext, cs.State, cs.ActiveContext)
		}
	}
	return nil
}

// StateUpdate is a merge-update of presentation and onboarding fields.
// Nil pointers leave the corresponding field untouched. It carries no
// transition validation; state changes go through Transition.
type StateUpdate struct {
	ActiveContext   *ActiveContext `json:"active_context,omitempty"`
	AssistantName   *string        `json:"assistant_name,omitempty"`
	JourneyWeek     *int           `json:"journey_week,omitempty"`
	AudioPreference *string        `json:"audio_preference,omitempty"`
	BabyName        *string        `json:"baby_name,omitempty"`
	BabyGender      *string        `json:"baby_gender,omitempty"`
	BabyBirthdate   *time.Time     `json:"baby_birthdate,omitempty"`
}

// Apply merges the non-nil fields of the update into the state record.
func (u *StateUpdate) Apply(cs *ConversationState) {
	if u == nil {
		return
	}
	if u.ActiveContext != nil {
		cs.ActiveContext = *u.ActiveContext
	}
	if u.AssistantName != nil {
		cs.AssistantName = *u.AssistantName
	}
	if u.JourneyWeek != nil {
		cs.JourneyWeek = *u.JourneyWeek
	}
	if u.AudioPreference != nil {
		cs.AudioPreference = *u.AudioPreference
	}
	if u.BabyName != nil {
		cs.BabyName = *u.BabyName
	}
	if u.BabyGender != nil {
		cs.BabyGender = *u.BabyGender
	}
	if u.BabyBirthdate != nil {
		cs.BabyBirthdate = u.BabyBirthdate
	}
}

// MemoryEntry is one append-only conversation memory row.
// Ordering by CreatedAt is the canonical conversation order.
type MemoryEntry struct {
	ID              int64             `json:"id,omitempty"`
	UserID          string            `json:"user_id"`
	Role            MemoryRole        `json:"role"`
	Content         string            `json:"content"`
	Embedding       []float64         `json:"embedding,omitempty"`
	InteractionType string            `json:"interaction_type,omitempty"`
	ActiveContext   ActiveContext     `json:"active_context,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	JourneyWeek     int               `json:"journey_week,omitempty"`
	EmotionalTone   string            `json:"emotional_tone,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// FeedbackEntry is one append-only user feedback row.
type FeedbackEntry struct {
	ID            int64             `json:"id,omitempty"`
	UserID        string            `json:"user_id"`
	Score         int               `json:"score"`
	State         StateType         `json:"state,omitempty"`
	ActiveContext ActiveContext     `json:"active_context,omitempty"`
	Comment       string            `json:"comment,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Validate checks the feedback entry before any write.
func (f *FeedbackEntry) Validate() error {
	if f.UserID == "" {
		return ErrEmptyUserID
	}
	if f.Score < MinFeedbackScore || f.Score > MaxFeedbackScore {
		return fmt.Errorf("%w: got %d", ErrInvalidScore, f.Score)
	}
	return nil
}

// FeedbackStats summarizes a user's feedback history for the trigger
// heuristic and the context aggregator.
type FeedbackStats struct {
	Count       int        `json:"count"`
	Average     float64    `json:"average"`
	LastGivenAt *time.Time `json:"last_given_at,omitempty"`
}

// BufferedMessage is one raw inbound message waiting in the debounce queue.
// Ephemeral: not persisted across process restarts.
type BufferedMessage struct {
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

// BabyData carries the fields collected by the onboarding sub-machine,
// plus the derived age for immediate use.
type BabyData struct {
	Name      string    `json:"name"`
	Gender    string    `json:"gender"`
	Birthdate time.Time `json:"birthdate"`
	AgeWeeks  int       `json:"age_weeks"`
	AgeMonths int       `json:"age_months"`
}

// UserAnalytics is the per-user aggregate returned by get_analytics.
type UserAnalytics struct {
	UserID             string             `json:"user_id"`
	State              StateType          `json:"state"`
	CorrelationID      string             `json:"correlation_id"`
	MessagesByRole     map[MemoryRole]int `json:"messages_by_role"`
	TotalMessages      int                `json:"total_messages"`
	FeedbackCount      int                `json:"feedback_count"`
	FeedbackAverage    float64            `json:"feedback_average"`
	FirstInteractionAt time.Time          `json:"first_interaction_at"`
	LastInteractionAt  time.Time          `json:"last_interaction_at"`
}
