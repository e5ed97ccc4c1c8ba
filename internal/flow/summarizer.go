package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cresceapp/cresce/internal/models"
	"github.com/cresceapp/cresce/internal/store"
)

// SummaryPreviewExchanges is the number of trailing exchanges quoted in a
// session summary.
const SummaryPreviewExchanges = 3

// SummaryResult reports what the session summarizer did. Skipped summaries
// (no active session, nothing said since session start) are successful
// results with a reason, never errors.
type SummaryResult struct {
	Skipped bool                `json:"skipped"`
	Reason  string              `json:"reason,omitempty"`
	Entry   *models.MemoryEntry `json:"entry,omitempty"`
}

// SummarizeSession compresses the active session's memory into one compact
// summary entry: message counts by role, the distinct contexts touched, the
// distinct non-default interaction types, and a short preview of the last
// exchanges.
func (e *Engine) SummarizeSession(ctx context.Context, userID string) (*SummaryResult, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		slog.Debug("Engine.SummarizeSession: skipped, no session", "user_id", userID)
		return &SummaryResult{Skipped: true, Reason: "no active session for this user"}, nil
	}

	since := cs.SessionStartedAt
	entries, err := e.store.ListMemoryEntries(store.MemoryQuery{UserID: userID, Since: &since})
	if err != nil {
		return nil, err
	}
	// Exclude prior summaries so re-running doesn't compound.
	var session []models.MemoryEntry
	for _, en := range entries {
		if en.InteractionType != models.InteractionTypeSessionSummary {
			session = append(session, en)
		}
	}
	if len(session) == 0 {
		slog.Debug("Engine.SummarizeSession: skipped, no interactions", "user_id", userID, "since", since)
		return &SummaryResult{Skipped: true, Reason: "no interactions recorded since session start"}, nil
	}

	// Store order is newest-first; work chronologically.
	sort.SliceStable(session, func(i, j int) bool { return session[i].CreatedAt.Before(session[j].CreatedAt) })

	roleCounts := make(map[models.MemoryRole]int)
	contexts := make(map[models.ActiveContext]bool)
	interactionTypes := make(map[string]bool)
	for _, en := range session {
		roleCounts[en.Role]++
		if en.ActiveContext != "" {
			contexts[en.ActiveContext] = true
		}
		if en.InteractionType != "" && en.InteractionType != models.InteractionTypeDefault {
			interactionTypes[en.InteractionType] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session summary (%s): %d user messages, %d assistant responses.",
		cs.CorrelationID, roleCounts[models.RoleUserMessage], roleCounts[models.RoleAssistantResponse])
	if len(contexts) > 0 {
		b.WriteString(" Contexts: " + joinSorted(contextKeys(contexts)) + ".")
	}
	if len(interactionTypes) > 0 {
		b.WriteString(" Interactions: " + joinSorted(stringKeys(interactionTypes)) + ".")
	}
	preview := session
	if len(preview) > SummaryPreviewExchanges*2 {
		preview = preview[len(preview)-SummaryPreviewExchanges*2:]
	}
	b.WriteString(" Last exchanges:")
	for _, en := range preview {
		role := "user"
		if en.Role == models.RoleAssistantResponse {
			role = "assistant"
		}
		fmt.Fprintf(&b, " [%s] %s", role, truncate(en.Content, 120))
	}

	summary := models.MemoryEntry{
		UserID:          userID,
		Role:            models.RoleAssistantResponse,
		Content:         b.String(),
		InteractionType: models.InteractionTypeSessionSummary,
		ActiveContext:   cs.ActiveContext,
		JourneyWeek:     cs.JourneyWeek,
		Metadata: map[string]string{
			"correlation_id": cs.CorrelationID,
			"message_count":  fmt.Sprintf("%d", len(session)),
		},
		CreatedAt: time.Now(),
	}
	if err := e.store.AddMemoryEntry(summary); err != nil {
		return nil, err
	}
	slog.Info("Engine.SummarizeSession: summary written", "user_id", userID, "correlation_id", cs.CorrelationID, "messages", len(session))
	return &SummaryResult{Entry: &summary}, nil
}

func contextKeys(m map[models.ActiveContext]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	return out
}

func stringKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func joinSorted(items []string) string {
	sort.Strings(items)
	return strings.Join(items, ", ")
}

// truncate shortens s to at most max bytes, backing up to a rune boundary
// so accented text is never cut mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
