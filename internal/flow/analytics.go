package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cresceapp/cresce/internal/models"
	"github.com/cresceapp/cresce/internal/store"
)

// GetAnalytics returns the per-user aggregate consumed by dashboards and the
// workflow runner: current state, message counts by role, and feedback stats.
func (e *Engine) GetAnalytics(ctx context.Context, userID string) (*models.UserAnalytics, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	cs, err := e.store.GetConversationState(userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, userID)
	}

	entries, err := e.store.ListMemoryEntries(store.MemoryQuery{UserID: userID})
	if err != nil {
		return nil, err
	}
	byRole := make(map[models.MemoryRole]int)
	for _, en := range entries {
		byRole[en.Role]++
	}

	stats, err := e.store.GetFeedbackStats(userID)
	if err != nil {
		return nil, err
	}

	analytics := &models.UserAnalytics{
		UserID:             userID,
		State:              cs.State,
		CorrelationID:      cs.CorrelationID,
		MessagesByRole:     byRole,
		TotalMessages:      len(entries),
		FeedbackCount:      stats.Count,
		FeedbackAverage:    stats.Average,
		FirstInteractionAt: cs.CreatedAt,
		LastInteractionAt:  cs.LastInteractionAt,
	}
	slog.Debug("Engine.GetAnalytics", "user_id", userID, "total_messages", analytics.TotalMessages)
	return analytics, nil
}
