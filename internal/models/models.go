// Package models defines the core data structures for Cresce.
//
// It includes the conversation state record, memory and feedback entries,
// and the error taxonomy shared across modules.
package models

import (
	"errors"
)

// StateType represents an outer conversation state.
type StateType string

const (
	// StateEntry is the initial state for a brand-new user identifier.
	StateEntry StateType = "ENTRY"
	// StateOnboarding collects structured baby fields via the onboarding sub-machine.
	StateOnboarding StateType = "ONBOARDING"
	// StateContextSelection asks the user whether to talk about the child or the mother.
	StateContextSelection StateType = "CONTEXT_SELECTION"
	// StateFreeConversation is the open LLM-driven conversation state.
	StateFreeConversation StateType = "FREE_CONVERSATION"
	// StateContentFlow delivers journey content for the current week.
	StateContentFlow StateType = "CONTENT_FLOW"
	// StateQuizFlow runs a development quiz.
	StateQuizFlow StateType = "QUIZ_FLOW"
	// StateLogFlow records diary/log entries.
	StateLogFlow StateType = "LOG_FLOW"
	// StateSupport hands the conversation to the support flow.
	StateSupport StateType = "SUPPORT"
	// StateFeedback collects a 1-5 rating.
	StateFeedback StateType = "FEEDBACK"
	// StatePause suspends proactive messaging.
	StatePause StateType = "PAUSE"
	// StateExit is terminal; re-entry re-initializes at ENTRY with a new correlation ID.
	StateExit StateType = "EXIT"
)

// IsValidStateType checks if the given state is one of the defined states.
func IsValidStateType(st StateType) bool {
	switch st {
	case StateEntry, StateOnboarding, StateContextSelection, StateFreeConversation,
		StateContentFlow, StateQuizFlow, StateLogFlow, StateSupport,
		StateFeedback, StatePause, StateExit:
		return true
	default:
		return false
	}
}

// OnboardingStep represents a step of the onboarding sub-machine.
// It is only meaningful while the outer state is ONBOARDING.
type OnboardingStep string

const (
	// StepAskingName asks for the baby's name.
	StepAskingName OnboardingStep = "ASKING_NAME"
	// StepAskingGender asks for the baby's gender.
	StepAskingGender OnboardingStep = "ASKING_GENDER"
	// StepAskingBirthdate asks for the baby's birth date.
	StepAskingBirthdate OnboardingStep = "ASKING_BIRTHDATE"
	// StepComplete means all fields were collected.
	StepComplete OnboardingStep = "COMPLETE"
)

// IsValidOnboardingStep checks if the given step is defined.
func IsValidOnboardingStep(s OnboardingStep) bool {
	switch s {
	case StepAskingName, StepAskingGender, StepAskingBirthdate, StepComplete:
		return true
	default:
		return false
	}
}

// ActiveContext identifies which subject the conversation is currently about.
type ActiveContext string

const (
	// ContextChild means the conversation is about the child.
	ContextChild ActiveContext = "child"
	// ContextMother means the conversation is about the mother.
	ContextMother ActiveContext = "mother"
)

// IsValidActiveContext checks if the given context is defined.
func IsValidActiveContext(c ActiveContext) bool {
	return c == ContextChild || c == ContextMother
}

// MemoryRole identifies the author of a memory entry.
type MemoryRole string

const (
	// RoleUserMessage marks an inbound user message.
	RoleUserMessage MemoryRole = "user_message"
	// RoleAssistantResponse marks an outbound assistant response.
	RoleAssistantResponse MemoryRole = "assistant_response"
)

// InteractionTypeDefault is the interaction type assigned when none is provided.
const InteractionTypeDefault = "chat"

// InteractionTypeSessionSummary marks the compact entry written by the session summarizer.
const InteractionTypeSessionSummary = "session_summary"

// InteractionTypeMilestoneAlert marks an entry flagging a possibly delayed milestone.
const InteractionTypeMilestoneAlert = "milestone_alert"

// FeedbackEvent is a lifecycle event evaluated by the feedback trigger heuristic.
type FeedbackEvent string

const (
	// EventQuizCompleted fires when the user finishes a quiz.
	EventQuizCompleted FeedbackEvent = "quiz_completed"
	// EventContentViewed fires when the user views journey content.
	EventContentViewed FeedbackEvent = "content_viewed"
	// EventExit fires when the user leaves the conversation.
	EventExit FeedbackEvent = "exit"
	// EventPause fires when the user pauses the conversation.
	EventPause FeedbackEvent = "pause"
	// EventSessionLong fires when a session grows unusually long.
	EventSessionLong FeedbackEvent = "session_long"
)

// IsValidFeedbackEvent checks if the given event is defined.
func IsValidFeedbackEvent(e FeedbackEvent) bool {
	switch e {
	case EventQuizCompleted, EventContentViewed, EventExit, EventPause, EventSessionLong:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MinFeedbackScore is the lowest accepted feedback score.
	MinFeedbackScore = 1
	// MaxFeedbackScore is the highest accepted feedback score.
	MaxFeedbackScore = 5
	// MaxBabyNameLength is the maximum accepted length for a baby name.
	MaxBabyNameLength = 100
	// MaxMessageLength is the maximum accepted length for a buffered message.
	MaxMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	// ErrNotFound indicates no conversation state exists for a user identifier.
	// Callers treat this as "brand-new user", not as a failure.
	ErrNotFound = errors.New("conversation state not found")
	// ErrInvalidTransition indicates the requested transition is not permitted
	// from the stored current state. Never partially applied.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTransientStore indicates a storage timeout or unavailability; safe to retry.
	ErrTransientStore = errors.New("transient store error")

	ErrEmptyUserID      = errors.New("user_id cannot be empty")
	ErrInvalidState     = errors.New("invalid conversation state")
	ErrInvalidStep      = errors.New("invalid onboarding step")
	ErrInvalidContext   = errors.New("invalid active context")
	ErrInvalidScore     = errors.New("feedback score must be between 1 and 5")
	ErrInvalidEvent     = errors.New("invalid feedback event")
	ErrEmptyMessage     = errors.New("message content cannot be empty")
	ErrMessageTooLong   = errors.New("message content exceeds maximum length")
	ErrOnboardingClosed = errors.New("user is not in the onboarding state")
)
