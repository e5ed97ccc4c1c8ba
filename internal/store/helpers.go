package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cresceapp/cresce/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil for a nil or zero time pointer.
func nilIfZeroTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// marshalJSONOrNil serializes v to JSON for a nullable column, returning nil
// for empty maps and slices.
func marshalJSONOrNil(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case map[string]string:
		if len(x) == 0 {
			return nil, nil
		}
	case []float64:
		if len(x) == 0 {
			return nil, nil
		}
	case []models.ButtonConfig:
		if len(x) == 0 {
			return nil, nil
		}
	case []models.StateType:
		if len(x) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return string(data), nil
}

// unmarshalJSONColumn deserializes a nullable JSON column into out.
func unmarshalJSONColumn(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("failed to unmarshal JSON column: %w", err)
	}
	return nil
}

// classifyStoreError wraps storage timeouts and connectivity failures with
// models.ErrTransientStore so the retry decorator can distinguish them from
// permanent failures. Other errors pass through unchanged.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTransientStore) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrTransientStore, err)
	}
	return err
}

// scanConversationState scans one conversation_states row.
func scanConversationState(row interface{ Scan(...interface{}) error }) (*models.ConversationState, error) {
	var cs models.ConversationState
	var onboardingStep, activeContext, assistantName, audioPreference sql.NullString
	var babyName, babyGender sql.NullString
	var babyBirthdate sql.NullTime
	err := row.Scan(
		&cs.UserID, &cs.State, &onboardingStep, &activeContext,
		&assistantName, &cs.JourneyWeek, &audioPreference,
		&babyName, &babyGender, &babyBirthdate,
		&cs.CorrelationID, &cs.SessionStartedAt, &cs.CreatedAt, &cs.LastInteractionAt,
	)
	if err != nil {
		return nil, err
	}
	cs.OnboardingStep = models.OnboardingStep(onboardingStep.String)
	cs.ActiveContext = models.ActiveContext(activeContext.String)
	cs.AssistantName = assistantName.String
	cs.AudioPreference = audioPreference.String
	cs.BabyName = babyName.String
	cs.BabyGender = babyGender.String
	if babyBirthdate.Valid {
		cs.BabyBirthdate = &babyBirthdate.Time
	}
	return &cs, nil
}

// scanMemoryEntry scans one memory_entries row.
func scanMemoryEntry(rows *sql.Rows) (models.MemoryEntry, error) {
	var e models.MemoryEntry
	var embedding, activeContext, domain, emotionalTone, metadata sql.NullString
	err := rows.Scan(
		&e.ID, &e.UserID, &e.Role, &e.Content, &embedding, &e.InteractionType,
		&activeContext, &domain, &e.JourneyWeek, &emotionalTone, &metadata, &e.CreatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("scan memory entry failed: %w", err)
	}
	e.ActiveContext = models.ActiveContext(activeContext.String)
	e.Domain = domain.String
	e.EmotionalTone = emotionalTone.String
	if err := unmarshalJSONColumn(embedding, &e.Embedding); err != nil {
		return e, err
	}
	if err := unmarshalJSONColumn(metadata, &e.Metadata); err != nil {
		return e, err
	}
	return e, nil
}

// scanFeedbackEntry scans one feedback_entries row.
func scanFeedbackEntry(rows *sql.Rows) (models.FeedbackEntry, error) {
	var e models.FeedbackEntry
	var state, activeContext, comment, metadata sql.NullString
	err := rows.Scan(&e.ID, &e.UserID, &e.Score, &state, &activeContext, &comment, &metadata, &e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("scan feedback entry failed: %w", err)
	}
	e.State = models.StateType(state.String)
	e.ActiveContext = models.ActiveContext(activeContext.String)
	e.Comment = comment.String
	if err := unmarshalJSONColumn(metadata, &e.Metadata); err != nil {
		return e, err
	}
	return e, nil
}

// scanStateConfig scans one state_configs row.
func scanStateConfig(row interface{ Scan(...interface{}) error }) (*models.StateConfig, error) {
	var cfg models.StateConfig
	var buttons, transitions sql.NullString
	err := row.Scan(&cfg.State, &cfg.MessageTemplate, &buttons, &transitions, &cfg.Version, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(buttons, &cfg.Buttons); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(transitions, &cfg.AllowedTransitions); err != nil {
		return nil, err
	}
	return &cfg, nil
}
