// Package store provides storage backends for Cresce.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/cresceapp/cresce/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, classifyStoreError(err)
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetConversationState(userID string) (*models.ConversationState, error) {
	row := s.db.QueryRow(`SELECT user_id, state, onboarding_step, active_context, assistant_name,
		journey_week, audio_preference, baby_name, baby_gender, baby_birthdate,
		correlation_id, session_started_at, created_at, last_interaction_at
		FROM conversation_states WHERE user_id = $1`, userID)
	cs, err := scanConversationState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "user_id", userID)
		return nil, classifyStoreError(fmt.Errorf("failed to get conversation state for %s: %w", userID, err))
	}
	return cs, nil
}

func (s *PostgresStore) SaveConversationState(cs models.ConversationState) error {
	_, err := s.db.Exec(`INSERT INTO conversation_states
		(user_id, state, onboarding_step, active_context, assistant_name, journey_week,
		 audio_preference, baby_name, baby_gender, baby_birthdate, correlation_id,
		 session_started_at, created_at, last_interaction_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
		 state = EXCLUDED.state,
		 onboarding_step = EXCLUDED.onboarding_step,
		 active_context = EXCLUDED.active_context,
		 assistant_name = EXCLUDED.assistant_name,
		 journey_week = EXCLUDED.journey_week,
		 audio_preference = EXCLUDED.audio_preference,
		 baby_name = EXCLUDED.baby_name,
		 baby_gender = EXCLUDED.baby_gender,
		 baby_birthdate = EXCLUDED.baby_birthdate,
		 correlation_id = EXCLUDED.correlation_id,
		 session_started_at = EXCLUDED.session_started_at,
		 last_interaction_at = EXCLUDED.last_interaction_at`,
		cs.UserID, cs.State, nilIfEmpty(string(cs.OnboardingStep)), nilIfEmpty(string(cs.ActiveContext)),
		nilIfEmpty(cs.AssistantName), cs.JourneyWeek, nilIfEmpty(cs.AudioPreference),
		nilIfEmpty(cs.BabyName), nilIfEmpty(cs.BabyGender), nilIfZeroTime(cs.BabyBirthdate),
		cs.CorrelationID, cs.SessionStartedAt, cs.CreatedAt, cs.LastInteractionAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "user_id", cs.UserID)
		return classifyStoreError(fmt.Errorf("failed to save conversation state for %s: %w", cs.UserID, err))
	}
	slog.Debug("PostgresStore SaveConversationState succeeded", "user_id", cs.UserID, "state", cs.State)
	return nil
}

func (s *PostgresStore) DeleteConversationState(userID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "user_id", userID)
		return classifyStoreError(fmt.Errorf("failed to delete conversation state for %s: %w", userID, err))
	}
	return nil
}

func (s *PostgresStore) AddMemoryEntry(e models.MemoryEntry) error {
	if e.InteractionType == "" {
		e.InteractionType = models.InteractionTypeDefault
	}
	embedding, err := marshalJSONOrNil(e.Embedding)
	if err != nil {
		return err
	}
	metadata, err := marshalJSONOrNil(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO memory_entries
		(user_id, role, content, embedding, interaction_type, active_context, domain,
		 journey_week, emotional_tone, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.UserID, e.Role, e.Content, embedding, e.InteractionType,
		nilIfEmpty(string(e.ActiveContext)), nilIfEmpty(e.Domain), e.JourneyWeek,
		nilIfEmpty(e.EmotionalTone), metadata, e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMemoryEntry failed", "error", err, "user_id", e.UserID)
		return classifyStoreError(fmt.Errorf("failed to insert memory entry for %s: %w", e.UserID, err))
	}
	return nil
}

func (s *PostgresStore) ListMemoryEntries(q MemoryQuery) ([]models.MemoryEntry, error) {
	query := `SELECT id, user_id, role, content, embedding, interaction_type, active_context,
		domain, journey_week, emotional_tone, metadata, created_at
		FROM memory_entries WHERE user_id = $1`
	args := []interface{}{q.UserID}
	idx := 2
	if q.ActiveContext != "" {
		query += fmt.Sprintf(` AND active_context = $%d`, idx)
		args = append(args, string(q.ActiveContext))
		idx++
	}
	if q.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, *q.Since)
		idx++
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, idx)
		args = append(args, q.Limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListMemoryEntries query failed", "error", err, "user_id", q.UserID)
		return nil, classifyStoreError(fmt.Errorf("failed to query memory entries: %w", err))
	}
	defer rows.Close()
	var entries []models.MemoryEntry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(fmt.Errorf("failed to iterate memory rows: %w", err))
	}
	return entries, nil
}

func (s *PostgresStore) AddFeedbackEntry(e models.FeedbackEntry) error {
	metadata, err := marshalJSONOrNil(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO feedback_entries
		(user_id, score, state, active_context, comment, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.Score, nilIfEmpty(string(e.State)), nilIfEmpty(string(e.ActiveContext)),
		nilIfEmpty(e.Comment), metadata, e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddFeedbackEntry failed", "error", err, "user_id", e.UserID)
		return classifyStoreError(fmt.Errorf("failed to insert feedback for %s: %w", e.UserID, err))
	}
	return nil
}

func (s *PostgresStore) ListFeedbackEntries(userID string) ([]models.FeedbackEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, state, active_context, comment, metadata, created_at
		FROM feedback_entries WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListFeedbackEntries query failed", "error", err, "user_id", userID)
		return nil, classifyStoreError(fmt.Errorf("failed to query feedback entries: %w", err))
	}
	defer rows.Close()
	var entries []models.FeedbackEntry
	for rows.Next() {
		e, err := scanFeedbackEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(fmt.Errorf("failed to iterate feedback rows: %w", err))
	}
	return entries, nil
}

func (s *PostgresStore) GetFeedbackStats(userID string) (models.FeedbackStats, error) {
	var stats models.FeedbackStats
	var avg sql.NullFloat64
	var last sql.NullTime
	row := s.db.QueryRow(`SELECT COUNT(*), AVG(score), MAX(created_at)
		FROM feedback_entries WHERE user_id = $1`, userID)
	if err := row.Scan(&stats.Count, &avg, &last); err != nil {
		slog.Error("PostgresStore GetFeedbackStats failed", "error", err, "user_id", userID)
		return stats, classifyStoreError(fmt.Errorf("failed to compute feedback stats: %w", err))
	}
	stats.Average = avg.Float64
	if last.Valid {
		stats.LastGivenAt = &last.Time
	}
	return stats, nil
}

func (s *PostgresStore) GetStateConfig(state models.StateType) (*models.StateConfig, error) {
	row := s.db.QueryRow(`SELECT state, message_template, buttons, allowed_transitions, version, updated_at
		FROM state_configs WHERE state = $1`, string(state))
	cfg, err := scanStateConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStateConfig failed", "error", err, "state", state)
		return nil, classifyStoreError(fmt.Errorf("failed to get state config for %s: %w", state, err))
	}
	return cfg, nil
}

func (s *PostgresStore) SaveStateConfig(cfg models.StateConfig) (models.StateConfig, error) {
	buttons, err := marshalJSONOrNil(cfg.Buttons)
	if err != nil {
		return cfg, err
	}
	transitions, err := marshalJSONOrNil(cfg.AllowedTransitions)
	if err != nil {
		return cfg, err
	}
	row := s.db.QueryRow(`INSERT INTO state_configs (state, message_template, buttons, allowed_transitions, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (state) DO UPDATE SET
		 message_template = EXCLUDED.message_template,
		 buttons = EXCLUDED.buttons,
		 allowed_transitions = EXCLUDED.allowed_transitions,
		 version = state_configs.version + 1,
		 updated_at = EXCLUDED.updated_at
		RETURNING state, message_template, buttons, allowed_transitions, version, updated_at`,
		string(cfg.State), cfg.MessageTemplate, buttons, transitions, time.Now())
	stored, err := scanStateConfig(row)
	if err != nil {
		slog.Error("PostgresStore SaveStateConfig failed", "error", err, "state", cfg.State)
		return cfg, classifyStoreError(fmt.Errorf("failed to save state config for %s: %w", cfg.State, err))
	}
	slog.Debug("PostgresStore SaveStateConfig succeeded", "state", cfg.State, "version", stored.Version)
	return *stored, nil
}

func (s *PostgresStore) ListStateConfigs() ([]models.StateConfig, error) {
	rows, err := s.db.Query(`SELECT state, message_template, buttons, allowed_transitions, version, updated_at
		FROM state_configs ORDER BY state`)
	if err != nil {
		slog.Error("PostgresStore ListStateConfigs query failed", "error", err)
		return nil, classifyStoreError(fmt.Errorf("failed to query state configs: %w", err))
	}
	defer rows.Close()
	var configs []models.StateConfig
	for rows.Next() {
		cfg, err := scanStateConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(fmt.Errorf("failed to iterate state config rows: %w", err))
	}
	return configs, nil
}
