package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cresceapp/cresce/internal/models"
)

// Button identifiers are product-defined short codes: an open string at the
// transport boundary, parsed into the closed ButtonIntent union immediately
// here so all downstream logic is exhaustively typed. Resolution runs three
// independent matchers in order (context selection, feedback score, generic
// action); keeping them separate lets each concern grow without touching the
// others.

// ButtonIntent is the closed union of parsed button meanings.
type ButtonIntent interface {
	isButtonIntent()
}

// ContextSelection means the user picked a conversation subject.
type ContextSelection struct {
	Context models.ActiveContext
}

// FeedbackScore means the user tapped a 1-5 rating button.
type FeedbackScore struct {
	Score int
}

// Action is any other known button, optionally carrying a target outer state.
type Action struct {
	ID          string
	TargetState models.StateType // empty for acknowledge-only actions
}

// Unrecognized means no matcher knew the identifier. A normal outcome, not
// an error: the caller surfaces it back to the user.
type Unrecognized struct {
	ID string
}

func (ContextSelection) isButtonIntent() {}
func (FeedbackScore) isButtonIntent()    {}
func (Action) isButtonIntent()           {}
func (Unrecognized) isButtonIntent()     {}

// contextButtons maps context-selection identifiers to the selected subject.
var contextButtons = map[string]models.ActiveContext{
	"ctx_child":      models.ContextChild,
	"context_child":  models.ContextChild,
	"talk_child":     models.ContextChild,
	"ctx_mother":     models.ContextMother,
	"context_mother": models.ContextMother,
	"talk_mother":    models.ContextMother,
}

// actionButtons maps generic action identifiers to their target outer state.
// An empty target means the action is acknowledged without a transition.
var actionButtons = map[string]models.StateType{
	"start_onboarding": models.StateOnboarding,
	"open_content":     models.StateContentFlow,
	"open_quiz":        models.StateQuizFlow,
	"open_log":         models.StateLogFlow,
	"talk_support":     models.StateSupport,
	"change_context":   models.StateContextSelection,
	"back_to_chat":     models.StateFreeConversation,
	"resume":           models.StateFreeConversation,
	"give_feedback":    models.StateFeedback,
	"pause":            models.StatePause,
	"exit":             models.StateExit,
	"skip_feedback":    "",
}

// matchContextButton recognizes "talk about the child/mother" identifiers.
func matchContextButton(id string) (models.ActiveContext, bool) {
	c, ok := contextButtons[id]
	return c, ok
}

// matchFeedbackButton recognizes identifiers encoding a 1-5 star rating,
// e.g. "feedback_4" or "star_2".
func matchFeedbackButton(id string) (int, bool) {
	var digits string
	switch {
	case strings.HasPrefix(id, "feedback_"):
		digits = strings.TrimPrefix(id, "feedback_")
	case strings.HasPrefix(id, "star_"):
		digits = strings.TrimPrefix(id, "star_")
	default:
		return 0, false
	}
	score, err := strconv.Atoi(digits)
	if err != nil || score < models.MinFeedbackScore || score > models.MaxFeedbackScore {
		return 0, false
	}
	return score, true
}

// matchActionButton recognizes all other known action identifiers.
func matchActionButton(id string) (Action, bool) {
	target, ok := actionButtons[id]
	if !ok {
		return Action{}, false
	}
	return Action{ID: id, TargetState: target}, true
}

// ResolveButtonID parses an opaque button identifier into a ButtonIntent.
// Pure function; unrecognized identifiers are a normal result.
func ResolveButtonID(id string) ButtonIntent {
	id = strings.ToLower(strings.TrimSpace(id))
	if c, ok := matchContextButton(id); ok {
		return ContextSelection{Context: c}
	}
	if score, ok := matchFeedbackButton(id); ok {
		return FeedbackScore{Score: score}
	}
	if action, ok := matchActionButton(id); ok {
		return action
	}
	return Unrecognized{ID: id}
}

// ButtonOutcome reports what a button tap did for a user.
type ButtonOutcome struct {
	// Kind is one of: context_selected, feedback_saved, state_transition,
	// action, unrecognized.
	Kind     string                    `json:"kind"`
	State    *models.ConversationState `json:"state,omitempty"`
	Config   *models.StateConfig       `json:"config,omitempty"`
	Feedback *models.FeedbackEntry     `json:"feedback,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
}

// Button outcome kinds.
const (
	OutcomeContextSelected = "context_selected"
	OutcomeFeedbackSaved   = "feedback_saved"
	OutcomeStateTransition = "state_transition"
	OutcomeAction          = "action"
	OutcomeUnrecognized    = "unrecognized"
)

// ResolveButton parses a button identifier and applies its intent to the
// user's conversation.
//
// Context selection from ENTRY performs the two-hop
// ENTRY -> CONTEXT_SELECTION -> FREE_CONVERSATION so tapping a subject from
// the entry point lands directly in the conversation; from any other state it
// is a single validated hop into FREE_CONVERSATION with the context set.
func (e *Engine) ResolveButton(ctx context.Context, userID, buttonID string) (*ButtonOutcome, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	intent := ResolveButtonID(buttonID)

	switch it := intent.(type) {
	case ContextSelection:
		unlock := e.lockUser(userID)
		defer unlock()
		cs, err := e.ensureStateLocked(userID)
		if err != nil {
			return nil, err
		}
		if cs.State == models.StateEntry {
			if _, _, err := e.transitionLocked(ctx, userID, models.StateContextSelection, nil); err != nil {
				return nil, err
			}
		}
		selected := it.Context
		next, cfg, err := e.transitionLocked(ctx, userID, models.StateFreeConversation, &models.StateUpdate{ActiveContext: &selected})
		if err != nil {
			return nil, err
		}
		slog.Info("Engine.ResolveButton: context selected", "user_id", userID, "context", selected)
		return &ButtonOutcome{Kind: OutcomeContextSelected, State: next, Config: &cfg}, nil

	case FeedbackScore:
		entry, err := e.SaveFeedback(ctx, userID, it.Score, "")
		if err != nil {
			return nil, err
		}
		return &ButtonOutcome{Kind: OutcomeFeedbackSaved, Feedback: entry}, nil

	case Action:
		if it.TargetState == "" {
			slog.Debug("Engine.ResolveButton: acknowledge-only action", "user_id", userID, "button_id", it.ID)
			return &ButtonOutcome{Kind: OutcomeAction, Reason: it.ID}, nil
		}
		next, cfg, err := e.Transition(ctx, userID, it.TargetState, nil)
		if err != nil {
			return nil, err
		}
		return &ButtonOutcome{Kind: OutcomeStateTransition, State: next, Config: &cfg}, nil

	case Unrecognized:
		slog.Debug("Engine.ResolveButton: unrecognized button", "user_id", userID, "button_id", it.ID)
		return &ButtonOutcome{Kind: OutcomeUnrecognized, Reason: fmt.Sprintf("button %q not recognized", it.ID)}, nil
	}
	return nil, fmt.Errorf("unhandled button intent for %q", buttonID)
}
