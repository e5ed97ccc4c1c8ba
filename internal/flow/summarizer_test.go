package flow

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cresceapp/cresce/internal/models"
)

func TestSummarizeSession_SkipsWithoutSession(t *testing.T) {
	e, _ := newTestEngine()
	res, err := e.SummarizeSession(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("missing session must not be an error: %v", err)
	}
	if !res.Skipped || res.Reason == "" {
		t.Errorf("expected a skipped result with a reason, got %+v", res)
	}
}

func TestSummarizeSession_SkipsWithoutInteractions(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	if _, err := e.EnsureState(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := e.SummarizeSession(ctx, "u1")
	if err != nil {
		t.Fatalf("empty session must not be an error: %v", err)
	}
	if !res.Skipped {
		t.Errorf("expected a skip, got %+v", res)
	}
}

func TestSummarizeSession_WritesCompactEntry(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()
	user := "u1"
	seedConversation(t, e, user)

	// Entries must fall inside the active session, which started when the
	// seeded user record was created.
	base := time.Now()
	msgs := []models.MemoryEntry{
		{Role: models.RoleUserMessage, Content: "oi"},
		{Role: models.RoleAssistantResponse, Content: "olá! como posso ajudar?"},
		{Role: models.RoleUserMessage, Content: "meu bebê não dorme"},
		{Role: models.RoleAssistantResponse, Content: "vamos falar sobre a rotina de sono", InteractionType: models.InteractionTypeMilestoneAlert, Domain: "sono"},
	}
	for i, m := range msgs {
		m.UserID = user
		m.ActiveContext = models.ContextChild
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := st.AddMemoryEntry(m); err != nil {
			t.Fatalf("seed memory: %v", err)
		}
	}

	res, err := e.SummarizeSession(ctx, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped || res.Entry == nil {
		t.Fatalf("expected a written summary, got %+v", res)
	}
	entry := res.Entry
	if entry.InteractionType != models.InteractionTypeSessionSummary {
		t.Errorf("expected session_summary interaction type, got %q", entry.InteractionType)
	}
	if entry.Role != models.RoleAssistantResponse {
		t.Errorf("summary must be stored as an assistant entry, got %q", entry.Role)
	}
	for _, want := range []string{"2 user messages", "2 assistant responses", "child", "milestone_alert", "Last exchanges:"} {
		if !strings.Contains(entry.Content, want) {
			t.Errorf("summary missing %q:\n%s", want, entry.Content)
		}
	}
	if entry.Metadata["message_count"] != "4" {
		t.Errorf("expected message_count 4, got %q", entry.Metadata["message_count"])
	}
	if entry.Metadata["correlation_id"] == "" {
		t.Error("summary must record the session correlation ID")
	}
}

func TestSummarizeSession_ExcludesPriorSummaries(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()
	user := "u1"
	seedConversation(t, e, user)
	if err := st.AddMemoryEntry(models.MemoryEntry{
		UserID: user, Role: models.RoleUserMessage, Content: "oi",
		ActiveContext: models.ContextChild, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	first, err := e.SummarizeSession(ctx, user)
	if err != nil || first.Skipped {
		t.Fatalf("first summary failed: %+v %v", first, err)
	}
	second, err := e.SummarizeSession(ctx, user)
	if err != nil || second.Skipped {
		t.Fatalf("second summary failed: %+v %v", second, err)
	}
	// The second run still counts exactly the one real message.
	if second.Entry.Metadata["message_count"] != "1" {
		t.Errorf("prior summary leaked into the count: %q", second.Entry.Metadata["message_count"])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 120); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 200)
	got := truncate(long, 120)
	if len(got) != 123 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long = %d chars, suffix %q", len(got), got[len(got)-3:])
	}

	// Accented text must be cut on a rune boundary. Each é is 2 bytes, so a
	// 3-byte limit lands in the middle of the second é and has to back up.
	accented := truncate("ééé", 3)
	if !utf8.ValidString(accented) {
		t.Errorf("truncate split a rune: %q", accented)
	}
	if accented != "é..." {
		t.Errorf("truncate accented = %q, want %q", accented, "é...")
	}
}
