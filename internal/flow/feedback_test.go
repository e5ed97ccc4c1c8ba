package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

func statsWithLast(count int, ago time.Duration, now time.Time) models.FeedbackStats {
	last := now.Add(-ago)
	return models.FeedbackStats{Count: count, Average: 4, LastGivenAt: &last}
}

func TestShouldTriggerFeedback_CooldownSuppressesEverything(t *testing.T) {
	now := time.Now()
	stats := statsWithLast(1, time.Hour, now)
	for _, event := range []models.FeedbackEvent{
		models.EventQuizCompleted, models.EventContentViewed,
		models.EventExit, models.EventPause, models.EventSessionLong,
	} {
		d, err := ShouldTriggerFeedback(stats, event, now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", event, err)
		}
		if d.ShouldTrigger {
			t.Errorf("%s: must not trigger inside the 24h cooldown", event)
		}
		if d.Reason == "" {
			t.Errorf("%s: negative decision must carry a reason", event)
		}
	}
}

func TestShouldTriggerFeedback_QuizCeiling(t *testing.T) {
	now := time.Now()

	d, err := ShouldTriggerFeedback(models.FeedbackStats{}, models.EventQuizCompleted, now)
	if err != nil || !d.ShouldTrigger {
		t.Fatalf("first quiz feedback should trigger: %+v %v", d, err)
	}
	if d.Prompt != FeedbackPrompt {
		t.Errorf("positive decision must carry the prompt, got %q", d.Prompt)
	}

	stats := statsWithLast(QuizFeedbackCeiling, 100*time.Hour, now)
	d, err = ShouldTriggerFeedback(stats, models.EventQuizCompleted, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ShouldTrigger {
		t.Errorf("at the quiz ceiling the event must not trigger: %+v", d)
	}
}

func TestShouldTriggerFeedback_ContentOnlyFirstTime(t *testing.T) {
	now := time.Now()
	d, err := ShouldTriggerFeedback(models.FeedbackStats{}, models.EventContentViewed, now)
	if err != nil || !d.ShouldTrigger {
		t.Fatalf("content view with no history should trigger: %+v %v", d, err)
	}
	d, err = ShouldTriggerFeedback(statsWithLast(1, 100*time.Hour, now), models.EventContentViewed, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ShouldTrigger {
		t.Error("content views only ask for the very first feedback")
	}
}

func TestShouldTriggerFeedback_ExitPauseWindow(t *testing.T) {
	now := time.Now()
	for _, event := range []models.FeedbackEvent{models.EventExit, models.EventPause} {
		// Never gave feedback: trigger.
		d, err := ShouldTriggerFeedback(models.FeedbackStats{}, event, now)
		if err != nil || !d.ShouldTrigger {
			t.Errorf("%s with no history should trigger: %+v %v", event, d, err)
		}
		// 48h ago: outside the cooldown but inside the 72h window.
		d, err = ShouldTriggerFeedback(statsWithLast(1, 48*time.Hour, now), event, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ShouldTrigger {
			t.Errorf("%s inside the 72h window must not trigger", event)
		}
		// 100h ago: window has passed.
		d, err = ShouldTriggerFeedback(statsWithLast(1, 100*time.Hour, now), event, now)
		if err != nil || !d.ShouldTrigger {
			t.Errorf("%s past the 72h window should trigger: %+v %v", event, d, err)
		}
	}
}

func TestShouldTriggerFeedback_SessionLongCeiling(t *testing.T) {
	now := time.Now()
	d, err := ShouldTriggerFeedback(statsWithLast(SessionLongFeedbackCeiling-1, 100*time.Hour, now), models.EventSessionLong, now)
	if err != nil || !d.ShouldTrigger {
		t.Fatalf("below the ceiling should trigger: %+v %v", d, err)
	}
	d, err = ShouldTriggerFeedback(statsWithLast(SessionLongFeedbackCeiling, 100*time.Hour, now), models.EventSessionLong, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ShouldTrigger {
		t.Error("at the ceiling the event must not trigger")
	}
}

func TestShouldTriggerFeedback_UnknownEvent(t *testing.T) {
	if _, err := ShouldTriggerFeedback(models.FeedbackStats{}, "weird_event", time.Now()); !errors.Is(err, models.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestCheckFeedbackTrigger_UsesStoredHistory(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user := "u1"

	d, err := e.CheckFeedbackTrigger(ctx, user, models.EventExit)
	if err != nil || !d.ShouldTrigger {
		t.Fatalf("no history should trigger on exit: %+v %v", d, err)
	}

	if _, err := e.SaveFeedback(ctx, user, 5, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err = e.CheckFeedbackTrigger(ctx, user, models.EventExit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ShouldTrigger {
		t.Error("feedback just given must suppress the exit trigger")
	}
}
