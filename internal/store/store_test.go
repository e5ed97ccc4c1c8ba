package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

func TestInMemoryStore_ConversationState(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.GetConversationState("5599911112222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing state, got %+v", got)
	}

	now := time.Now()
	cs := models.ConversationState{
		UserID:            "5599911112222",
		State:             models.StateEntry,
		CorrelationID:     "c1",
		SessionStartedAt:  now,
		CreatedAt:         now,
		LastInteractionAt: now,
	}
	if err := s.SaveConversationState(cs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = s.GetConversationState("5599911112222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.State != models.StateEntry || got.CorrelationID != "c1" {
		t.Errorf("state not stored or retrieved correctly: %+v", got)
	}

	// Mutating the returned copy must not affect the stored row.
	got.State = models.StateExit
	again, _ := s.GetConversationState("5599911112222")
	if again.State != models.StateEntry {
		t.Error("returned state should be a copy")
	}
}

func TestInMemoryStore_MemoryEntries(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ctx := models.ContextChild
		if i%2 == 1 {
			ctx = models.ContextMother
		}
		err := s.AddMemoryEntry(models.MemoryEntry{
			UserID:        "u1",
			Role:          models.RoleUserMessage,
			Content:       "msg",
			ActiveContext: ctx,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := s.ListMemoryEntries(MemoryQuery{UserID: "u1", Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) {
		t.Error("expected newest-first ordering")
	}

	filtered, err := s.ListMemoryEntries(MemoryQuery{UserID: "u1", ActiveContext: models.ContextMother})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("expected 2 mother-context entries, got %d", len(filtered))
	}

	since := base.Add(3 * time.Minute)
	recent, err := s.ListMemoryEntries(MemoryQuery{UserID: "u1", Since: &since})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 entries since cutoff, got %d", len(recent))
	}
}

func TestInMemoryStore_FeedbackStats(t *testing.T) {
	s := NewInMemoryStore()
	stats, err := s.GetFeedbackStats("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Count != 0 || stats.LastGivenAt != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	now := time.Now()
	for i, score := range []int{2, 4} {
		err := s.AddFeedbackEntry(models.FeedbackEntry{
			UserID:    "u1",
			Score:     score,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stats, err = s.GetFeedbackStats("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Count != 2 || stats.Average != 3.0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastGivenAt == nil || !stats.LastGivenAt.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected last given time: %v", stats.LastGivenAt)
	}
}

func TestInMemoryStore_StateConfigVersioning(t *testing.T) {
	s := NewInMemoryStore()
	cfg := models.StateConfig{
		State:           models.StateEntry,
		MessageTemplate: "Welcome!",
	}
	stored, err := s.SaveStateConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("expected version 1, got %d", stored.Version)
	}
	stored.MessageTemplate = "Welcome back!"
	stored, err = s.SaveStateConfig(stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Version != 2 {
		t.Errorf("expected version 2 after edit, got %d", stored.Version)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cresce.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()

	now := time.Now().UTC().Truncate(time.Second)
	birth := now.AddDate(-1, 0, 0)
	cs := models.ConversationState{
		UserID:            "5599911112222",
		State:             models.StateFreeConversation,
		ActiveContext:     models.ContextChild,
		AssistantName:     "Lia",
		JourneyWeek:       52,
		BabyName:          "Ana",
		BabyGender:        "female",
		BabyBirthdate:     &birth,
		CorrelationID:     "c1",
		SessionStartedAt:  now,
		CreatedAt:         now,
		LastInteractionAt: now,
	}
	if err := s.SaveConversationState(cs); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := s.GetConversationState("5599911112222")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.State != models.StateFreeConversation || got.BabyName != "Ana" {
		t.Errorf("state not restored correctly: %+v", got)
	}
	if got.BabyBirthdate == nil || !got.BabyBirthdate.Equal(birth) {
		t.Errorf("birthdate not restored: %v", got.BabyBirthdate)
	}

	err = s.AddMemoryEntry(models.MemoryEntry{
		UserID:        "5599911112222",
		Role:          models.RoleUserMessage,
		Content:       "ola",
		ActiveContext: models.ContextChild,
		Metadata:      map[string]string{"channel": "whatsapp"},
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("add memory failed: %v", err)
	}
	entries, err := s.ListMemoryEntries(MemoryQuery{UserID: "5599911112222", Limit: 10})
	if err != nil {
		t.Fatalf("list memory failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Metadata["channel"] != "whatsapp" {
		t.Errorf("memory entry not restored correctly: %+v", entries)
	}
	if entries[0].InteractionType != models.InteractionTypeDefault {
		t.Errorf("expected default interaction type, got %q", entries[0].InteractionType)
	}

	cfg, err := s.SaveStateConfig(models.StateConfig{
		State:           models.StateEntry,
		MessageTemplate: "Oi! Bem-vinda ao Cresce.",
		Buttons:         []models.ButtonConfig{{ID: "start_onboarding", Label: "Começar"}},
	})
	if err != nil {
		t.Fatalf("save config failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	cfg2, err := s.SaveStateConfig(cfg)
	if err != nil {
		t.Fatalf("save config again failed: %v", err)
	}
	if cfg2.Version != 2 {
		t.Errorf("expected version 2 after edit, got %d", cfg2.Version)
	}
}
