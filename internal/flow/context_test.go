package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

func seedConversation(t *testing.T, e *Engine, user string) {
	t.Helper()
	ctx := context.Background()
	child := models.ContextChild
	if _, _, err := e.Transition(ctx, user, models.StateContextSelection, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := e.Transition(ctx, user, models.StateFreeConversation, &models.StateUpdate{ActiveContext: &child}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestGetFullContext_UnknownUser(t *testing.T) {
	e, _ := newTestEngine()
	if _, err := e.GetFullContext(context.Background(), "ghost", 0); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetFullContext_GracefulWithEmptySources(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	if _, err := e.EnsureState(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc, err := e.GetFullContext(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("empty memory and feedback must not fail: %v", err)
	}
	if fc.Child != nil || len(fc.Memory) != 0 || fc.Feedback.Count != 0 {
		t.Errorf("expected empty sections, got %+v", fc)
	}
}

func TestGetFullContext_FiltersByActiveContextAndOrdersChronologically(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()
	user := "u1"
	seedConversation(t, e, user)

	base := time.Now().Add(-time.Hour)
	for i, entry := range []models.MemoryEntry{
		{UserID: user, Role: models.RoleUserMessage, Content: "first", ActiveContext: models.ContextChild},
		{UserID: user, Role: models.RoleAssistantResponse, Content: "second", ActiveContext: models.ContextChild},
		{UserID: user, Role: models.RoleUserMessage, Content: "off-topic", ActiveContext: models.ContextMother},
	} {
		entry.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := st.AddMemoryEntry(entry); err != nil {
			t.Fatalf("seed memory: %v", err)
		}
	}

	fc, err := e.GetFullContext(ctx, user, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.Memory) != 2 {
		t.Fatalf("expected only child-context entries, got %d", len(fc.Memory))
	}
	if fc.Memory[0].Content != "first" || fc.Memory[1].Content != "second" {
		t.Errorf("entries out of chronological order: %q then %q", fc.Memory[0].Content, fc.Memory[1].Content)
	}
}

func TestGetFullContext_ChildFactsAndMilestones(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()
	user := "u1"
	seedConversation(t, e, user)
	birth := time.Now().AddDate(0, -6, 0)
	name := "Ana"
	gender := "female"
	if _, err := e.UpdateState(ctx, user, models.StateUpdate{BabyName: &name, BabyGender: &gender, BabyBirthdate: &birth}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.AddMemoryEntry(models.MemoryEntry{
		UserID: user, Role: models.RoleAssistantResponse, Content: "atenção ao domínio motor",
		ActiveContext: models.ContextChild, InteractionType: models.InteractionTypeMilestoneAlert,
		Domain: "motor", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	fc, err := e.GetFullContext(ctx, user, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Child == nil {
		t.Fatal("expected child facts")
	}
	if fc.Child.Name != "Ana" || fc.Child.Gender != "female" {
		t.Errorf("unexpected child facts: %+v", fc.Child)
	}
	// AddDate normalizes month-end days, so derive the expected age from
	// the same clock instead of hard-coding 6.
	if want := ageInMonths(birth, time.Now()); fc.Child.AgeMonths != want {
		t.Errorf("AgeMonths = %d, want %d", fc.Child.AgeMonths, want)
	}
	if len(fc.Child.DelayedMilestones) != 1 || fc.Child.DelayedMilestones[0] != "motor" {
		t.Errorf("expected motor milestone flag, got %v", fc.Child.DelayedMilestones)
	}
}

func TestFormatContextForPrompt_Deterministic(t *testing.T) {
	last := time.Now().Add(-48 * time.Hour)
	fc := &FullContext{
		State: models.ConversationState{
			UserID:        "u1",
			State:         models.StateFreeConversation,
			ActiveContext: models.ContextChild,
			JourneyWeek:   12,
			AssistantName: "Lia",
		},
		Child: &ChildFacts{Name: "Ana", Gender: "female", AgeMonths: 6, AgeWeeks: 26, DelayedMilestones: []string{"motor"}},
		Memory: []models.MemoryEntry{
			{Role: models.RoleUserMessage, Content: "ela engatinhou hoje"},
			{Role: models.RoleAssistantResponse, Content: "que ótimo marco!"},
		},
		Feedback: models.FeedbackStats{Count: 4, Average: 2.5, LastGivenAt: &last},
	}

	first := FormatContextForPrompt(fc)
	if first != FormatContextForPrompt(fc) {
		t.Fatal("formatting is not deterministic for equal input")
	}

	for _, want := range []string{
		"## Conversation state",
		"state: FREE_CONVERSATION",
		"active_context: child",
		"journey_week: 12",
		"## Child",
		"age: 6 months (26 weeks)",
		"attention_domains: motor",
		"## Recent conversation",
		"user: ela engatinhou hoje",
		"assistant: que ótimo marco!",
		"## Notes",
		"average 2.5",
		"extra empathy",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("formatted prompt missing %q:\n%s", want, first)
		}
	}

	// Section order is fixed.
	stateIdx := strings.Index(first, "## Conversation state")
	childIdx := strings.Index(first, "## Child")
	memIdx := strings.Index(first, "## Recent conversation")
	notesIdx := strings.Index(first, "## Notes")
	if !(stateIdx < childIdx && childIdx < memIdx && memIdx < notesIdx) {
		t.Errorf("sections out of order: %d %d %d %d", stateIdx, childIdx, memIdx, notesIdx)
	}
}

func TestFormatContextForPrompt_NoEmpathyNoteAboveThreshold(t *testing.T) {
	out := FormatContextForPrompt(&FullContext{
		State:    models.ConversationState{State: models.StateEntry},
		Feedback: models.FeedbackStats{Count: 2, Average: 4.5},
	})
	if strings.Contains(out, "extra empathy") {
		t.Errorf("empathy note present above threshold:\n%s", out)
	}
}
