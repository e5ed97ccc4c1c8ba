package flow

import (
	"context"
	"testing"

	"github.com/cresceapp/cresce/internal/models"
)

func TestResolveButtonID(t *testing.T) {
	cases := []struct {
		id   string
		want ButtonIntent
	}{
		{"ctx_child", ContextSelection{Context: models.ContextChild}},
		{"  CTX_MOTHER ", ContextSelection{Context: models.ContextMother}},
		{"talk_child", ContextSelection{Context: models.ContextChild}},
		{"feedback_4", FeedbackScore{Score: 4}},
		{"star_1", FeedbackScore{Score: 1}},
		{"exit", Action{ID: "exit", TargetState: models.StateExit}},
		{"open_quiz", Action{ID: "open_quiz", TargetState: models.StateQuizFlow}},
		{"skip_feedback", Action{ID: "skip_feedback"}},
		{"feedback_9", Unrecognized{ID: "feedback_9"}},
		{"feedback_0", Unrecognized{ID: "feedback_0"}},
		{"star_abc", Unrecognized{ID: "star_abc"}},
		{"totally_unknown", Unrecognized{ID: "totally_unknown"}},
	}
	for _, tc := range cases {
		if got := ResolveButtonID(tc.id); got != tc.want {
			t.Errorf("ResolveButtonID(%q) = %#v, want %#v", tc.id, got, tc.want)
		}
	}
}

func TestResolveButton_ContextFromEntryTwoHops(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user := "5599911112222"

	out, err := e.ResolveButton(ctx, user, "ctx_child")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeContextSelected {
		t.Fatalf("expected context_selected, got %s", out.Kind)
	}
	if out.State.State != models.StateFreeConversation {
		t.Errorf("expected FREE_CONVERSATION, got %s", out.State.State)
	}
	if out.State.ActiveContext != models.ContextChild {
		t.Errorf("expected child context, got %q", out.State.ActiveContext)
	}
	if out.Config == nil || out.Config.State != models.StateFreeConversation {
		t.Errorf("expected the target state's config, got %+v", out.Config)
	}
}

func TestResolveButton_ContextFromContextSelection(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user := "u1"
	if _, _, err := e.Transition(ctx, user, models.StateContextSelection, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := e.ResolveButton(ctx, user, "ctx_mother")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State.State != models.StateFreeConversation || out.State.ActiveContext != models.ContextMother {
		t.Errorf("unexpected landing: %+v", out.State)
	}
}

func TestResolveButton_FeedbackScore(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()
	out, err := e.ResolveButton(ctx, "u1", "feedback_5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeFeedbackSaved || out.Feedback == nil || out.Feedback.Score != 5 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	stats, err := st.GetFeedbackStats("u1")
	if err != nil || stats.Count != 1 {
		t.Errorf("feedback not persisted: stats=%+v err=%v", stats, err)
	}
}

func TestResolveButton_ActionTransition(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	out, err := e.ResolveButton(ctx, "u1", "exit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeStateTransition || out.State.State != models.StateExit {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestResolveButton_SupportFromFreshEntry(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	user := "5599911112222"

	// talk_support is offered on the ENTRY menu itself, before any subject
	// was selected.
	out, err := e.ResolveButton(ctx, user, "talk_support")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeStateTransition || out.State.State != models.StateSupport {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.State.ActiveContext != "" {
		t.Errorf("no context was ever selected, got %q", out.State.ActiveContext)
	}
}

func TestResolveButton_AcknowledgeOnly(t *testing.T) {
	e, _ := newTestEngine()
	out, err := e.ResolveButton(context.Background(), "u1", "skip_feedback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeAction || out.State != nil {
		t.Fatalf("expected acknowledge-only outcome, got %+v", out)
	}
}

func TestResolveButton_Unrecognized(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	out, err := e.ResolveButton(ctx, "u1", "wat")
	if err != nil {
		t.Fatalf("unrecognized button must not be an error: %v", err)
	}
	if out.Kind != OutcomeUnrecognized {
		t.Fatalf("expected unrecognized, got %s", out.Kind)
	}
	// No state record is created as a side effect.
	if _, err := e.GetState(ctx, "u1"); err == nil {
		t.Error("unrecognized button must not create state")
	}
}
