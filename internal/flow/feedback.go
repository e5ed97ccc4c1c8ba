package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// Feedback trigger thresholds.
const (
	// FeedbackCooldown suppresses any feedback request when the most recent
	// feedback is younger than this, regardless of event.
	FeedbackCooldown = 24 * time.Hour
	// ExitPauseWindow is the feedback-free window required before exit/pause
	// events may trigger a request.
	ExitPauseWindow = 72 * time.Hour
	// QuizFeedbackCeiling caps total feedbacks before quiz completions stop asking.
	QuizFeedbackCeiling = 3
	// SessionLongFeedbackCeiling caps total feedbacks before long sessions stop asking.
	SessionLongFeedbackCeiling = 10
)

// FeedbackPrompt is the fixed 1-5 scale request sent when a trigger fires.
const FeedbackPrompt = "De 1 a 5, como está sendo a sua experiência comigo? Sua opinião me ajuda a melhorar!"

// TriggerDecision is the outcome of the feedback trigger heuristic. A "no"
// is a first-class result with a reason, never an error: negative outcomes
// are expected and frequent in the conversation flow.
type TriggerDecision struct {
	ShouldTrigger bool   `json:"should_trigger"`
	Reason        string `json:"reason"`
	Prompt        string `json:"prompt,omitempty"`
}

// ShouldTriggerFeedback decides, for one lifecycle event, whether to
// interject a feedback request. Pure function over the user's feedback
// history statistics; it performs no reads or writes itself.
func ShouldTriggerFeedback(stats models.FeedbackStats, event models.FeedbackEvent, now time.Time) (TriggerDecision, error) {
	if !models.IsValidFeedbackEvent(event) {
		return TriggerDecision{}, fmt.Errorf("%w: %q", models.ErrInvalidEvent, event)
	}

	if stats.LastGivenAt != nil {
		age := now.Sub(*stats.LastGivenAt)
		if age < FeedbackCooldown {
			return TriggerDecision{
				ShouldTrigger: false,
				Reason:        fmt.Sprintf("last feedback %s ago, inside the %s cooldown", age.Round(time.Minute), FeedbackCooldown),
			}, nil
		}
	}

	switch event {
	case models.EventQuizCompleted:
		if stats.Count >= QuizFeedbackCeiling {
			return TriggerDecision{ShouldTrigger: false, Reason: fmt.Sprintf("user already gave %d feedbacks, quiz ceiling is %d", stats.Count, QuizFeedbackCeiling)}, nil
		}
		return TriggerDecision{ShouldTrigger: true, Reason: "quiz completed and user is below the quiz feedback ceiling", Prompt: FeedbackPrompt}, nil

	case models.EventContentViewed:
		if stats.Count > 0 {
			return TriggerDecision{ShouldTrigger: false, Reason: "content views only ask for a user's very first feedback"}, nil
		}
		return TriggerDecision{ShouldTrigger: true, Reason: "first feedback opportunity after viewing content", Prompt: FeedbackPrompt}, nil

	case models.EventExit, models.EventPause:
		if stats.LastGivenAt != nil && now.Sub(*stats.LastGivenAt) < ExitPauseWindow {
			return TriggerDecision{ShouldTrigger: false, Reason: fmt.Sprintf("feedback given within the last %s", ExitPauseWindow)}, nil
		}
		return TriggerDecision{ShouldTrigger: true, Reason: fmt.Sprintf("no feedback in the last %s before %s", ExitPauseWindow, event), Prompt: FeedbackPrompt}, nil

	case models.EventSessionLong:
		if stats.Count >= SessionLongFeedbackCeiling {
			return TriggerDecision{ShouldTrigger: false, Reason: fmt.Sprintf("user already gave %d feedbacks, long-session ceiling is %d", stats.Count, SessionLongFeedbackCeiling)}, nil
		}
		return TriggerDecision{ShouldTrigger: true, Reason: "long session and user is below the long-session feedback ceiling", Prompt: FeedbackPrompt}, nil
	}

	return TriggerDecision{}, fmt.Errorf("%w: %q", models.ErrInvalidEvent, event)
}

// CheckFeedbackTrigger loads the user's feedback statistics and runs the
// trigger heuristic for the given lifecycle event.
func (e *Engine) CheckFeedbackTrigger(ctx context.Context, userID string, event models.FeedbackEvent) (TriggerDecision, error) {
	if userID == "" {
		return TriggerDecision{}, models.ErrEmptyUserID
	}
	stats, err := e.store.GetFeedbackStats(userID)
	if err != nil {
		return TriggerDecision{}, err
	}
	decision, err := ShouldTriggerFeedback(stats, event, time.Now())
	if err != nil {
		return TriggerDecision{}, err
	}
	slog.Debug("Engine.CheckFeedbackTrigger", "user_id", userID, "event", event, "should_trigger", decision.ShouldTrigger, "reason", decision.Reason)
	return decision, nil
}
