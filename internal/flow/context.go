package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cresceapp/cresce/internal/models"
	"github.com/cresceapp/cresce/internal/store"
)

// Context aggregation constants
const (
	// DefaultMemoryLimit is the number of recent memory entries included when
	// the caller does not specify one.
	DefaultMemoryLimit = 8
	// MaxMemoryLimit bounds the memory window a caller may request.
	MaxMemoryLimit = 50
	// LowAverageThreshold is the historical feedback average below which the
	// prompt asks for extra empathy.
	LowAverageThreshold = 3.5
)

// ChildFacts carries derived facts about the linked child.
type ChildFacts struct {
	Name              string   `json:"name"`
	Gender            string   `json:"gender,omitempty"`
	AgeMonths         int      `json:"age_months"`
	AgeWeeks          int      `json:"age_weeks"`
	DelayedMilestones []string `json:"delayed_milestones,omitempty"`
}

// FullContext is the prompt-ready bundle assembled for one LLM turn.
type FullContext struct {
	State    models.ConversationState `json:"state"`
	Child    *ChildFacts              `json:"child,omitempty"`
	Memory   []models.MemoryEntry     `json:"memory,omitempty"` // chronological order
	Feedback models.FeedbackStats     `json:"feedback"`
}

// GetFullContext assembles the context bundle for a user: current state, the
// most recent memory entries (filtered to the active context when one is
// set, so mixed-topic history does not leak into a focused conversation),
// derived child facts, and the feedback aggregate. A missing child or empty
// memory is not an error; the corresponding section is simply omitted.
func (e *Engine) GetFullContext(ctx context.Context, userID string, limit int) (*FullContext, error) {
	cs, err := e.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	if limit > MaxMemoryLimit {
		limit = MaxMemoryLimit
	}

	entries, err := e.store.ListMemoryEntries(store.MemoryQuery{
		UserID:        userID,
		Limit:         limit,
		ActiveContext: cs.ActiveContext,
	})
	if err != nil {
		return nil, err
	}
	// Store order is newest-first; prompts read chronologically.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	stats, err := e.store.GetFeedbackStats(userID)
	if err != nil {
		return nil, err
	}

	bundle := &FullContext{State: *cs, Memory: entries, Feedback: stats}
	if cs.BabyBirthdate != nil {
		now := time.Now()
		bundle.Child = &ChildFacts{
			Name:              cs.BabyName,
			Gender:            cs.BabyGender,
			AgeMonths:         ageInMonths(*cs.BabyBirthdate, now),
			AgeWeeks:          ageInWeeks(*cs.BabyBirthdate, now),
			DelayedMilestones: delayedMilestones(entries),
		}
	}
	slog.Debug("Engine.GetFullContext: bundle assembled", "user_id", userID, "memory_entries", len(entries), "has_child", bundle.Child != nil)
	return bundle, nil
}

// delayedMilestones collects the domains of milestone-alert entries present
// in the memory window.
func delayedMilestones(entries []models.MemoryEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.InteractionType != models.InteractionTypeMilestoneAlert || e.Domain == "" {
			continue
		}
		if !seen[e.Domain] {
			seen[e.Domain] = true
			out = append(out, e.Domain)
		}
	}
	return out
}

// FormatContextForPrompt deterministically serializes a context bundle into
// one text block for the language model. Section order is fixed (state,
// child facts, memory, personalization notes) so prompt construction is
// reproducible for the same input.
func FormatContextForPrompt(fc *FullContext) string {
	var b strings.Builder

	b.WriteString("## Conversation state\n")
	fmt.Fprintf(&b, "state: %s\n", fc.State.State)
	if fc.State.ActiveContext != "" {
		fmt.Fprintf(&b, "active_context: %s\n", fc.State.ActiveContext)
	}
	if fc.State.JourneyWeek > 0 {
		fmt.Fprintf(&b, "journey_week: %d\n", fc.State.JourneyWeek)
	}
	if fc.State.AssistantName != "" {
		fmt.Fprintf(&b, "assistant_name: %s\n", fc.State.AssistantName)
	}

	if fc.Child != nil {
		b.WriteString("\n## Child\n")
		fmt.Fprintf(&b, "name: %s\n", fc.Child.Name)
		if fc.Child.Gender != "" {
			fmt.Fprintf(&b, "gender: %s\n", fc.Child.Gender)
		}
		fmt.Fprintf(&b, "age: %d months (%d weeks)\n", fc.Child.AgeMonths, fc.Child.AgeWeeks)
		if len(fc.Child.DelayedMilestones) > 0 {
			fmt.Fprintf(&b, "attention_domains: %s\n", strings.Join(fc.Child.DelayedMilestones, ", "))
		}
	}

	if len(fc.Memory) > 0 {
		b.WriteString("\n## Recent conversation\n")
		for _, m := range fc.Memory {
			role := "user"
			if m.Role == models.RoleAssistantResponse {
				role = "assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
		}
	}

	b.WriteString("\n## Notes\n")
	if fc.Feedback.Count > 0 {
		fmt.Fprintf(&b, "feedback: %d ratings, average %.1f\n", fc.Feedback.Count, fc.Feedback.Average)
		if fc.Feedback.Average < LowAverageThreshold {
			b.WriteString("tone: the user has rated past interactions low; respond with extra empathy and care\n")
		}
	} else {
		b.WriteString("feedback: none yet\n")
	}

	return b.String()
}

// GetContextPrompt is the one-call form: assemble and serialize.
func (e *Engine) GetContextPrompt(ctx context.Context, userID string) (string, error) {
	fc, err := e.GetFullContext(ctx, userID, DefaultMemoryLimit)
	if err != nil {
		return "", err
	}
	return FormatContextForPrompt(fc), nil
}
