// Package store provides storage backends for Cresce.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/cresceapp/cresce/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, classifyStoreError(err)
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetConversationState(userID string) (*models.ConversationState, error) {
	row := s.db.QueryRow(`SELECT user_id, state, onboarding_step, active_context, assistant_name,
		journey_week, audio_preference, baby_name, baby_gender, baby_birthdate,
		correlation_id, session_started_at, created_at, last_interaction_at
		FROM conversation_states WHERE user_id = ?`, userID)
	cs, err := scanConversationState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "user_id", userID)
		return nil, classifyStoreError(fmt.Errorf("failed to get conversation state for %s: %w", userID, err))
	}
	return cs, nil
}

func (s *SQLiteStore) SaveConversationState(cs models.ConversationState) error {
	_, err := s.db.Exec(`INSERT INTO conversation_states
		(user_id, state, onboarding_step, active_context, assistant_name, journey_week,
		 audio_preference, baby_name, baby_gender, baby_birthdate, correlation_id,
		 session_started_at, created_at, last_interaction_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		 state = excluded.state,
		 onboarding_step = excluded.onboarding_step,
		 active_context = excluded.active_context,
		 assistant_name = excluded.assistant_name,
		 journey_week = excluded.journey_week,
		 audio_preference = excluded.audio_preference,
		 baby_name = excluded.baby_name,
		 baby_gender = excluded.baby_gender,
		 baby_birthdate = excluded.baby_birthdate,
		 correlation_id = excluded.correlation_id,
		 session_started_at = excluded.session_started_at,
		 last_interaction_at = excluded.last_interaction_at`,
		cs.UserID, cs.State, nilIfEmpty(string(cs.OnboardingStep)), nilIfEmpty(string(cs.ActiveContext)),
		nilIfEmpty(cs.AssistantName), cs.JourneyWeek, nilIfEmpty(cs.AudioPreference),
		nilIfEmpty(cs.BabyName), nilIfEmpty(cs.BabyGender), nilIfZeroTime(cs.BabyBirthdate),
		cs.CorrelationID, cs.SessionStartedAt, cs.CreatedAt, cs.LastInteractionAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "user_id", cs.UserID)
		return classifyStoreError(fmt.Errorf("failed to save conversation state for %s: %w", cs.UserID, err))
	}
	slog.Debug("SQLiteStore SaveConversationState succeeded", "user_id", cs.UserID, "state", cs.State)
	return nil
}

func (s *SQLiteStore) DeleteConversationState(userID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "user_id", userID)
		return classifyStoreError(fmt.Errorf("failed to delete conversation state for %s: %w", userID, err))
	}
	return nil
}

func (s *SQLiteStore) AddMemoryEntry(e models.MemoryEntry) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Role, e.Content, embedding, e.InteractionType,
		nilIfEmpty(string(e.ActiveContext)), nilIfEmpty(e.Domain), e.JourneyWeek,
		nilIfEmpty(e.EmotionalTone), metadata, e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMemoryEntry failed", "error", err, "user_id", e.UserID)
		return classifyStoreError(fmt.Errorf("failed to insert memory entry for %s: %w", e.UserID, err))
	}
	return nil
}

func (s *SQLiteStore) ListMemoryEntries(q MemoryQuery) ([]models.MemoryEntry, error) {
	query := `SELECT id, user_id, role, content, embedding, interaction_type, active_context,
		domain, journey_week, emotional_tone, metadata, created_at
		FROM memory_entries WHERE user_id = ?`
	args := []interface{}{q.UserID}
	if q.ActiveContext != "" {
		query += ` AND active_context = ?`
		args = append(args, string(q.ActiveContext))
	}
	if q.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *q.Since)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListMemoryEntries query failed", "error", err, "user_id", q.UserID)
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

func (s *SQLiteStore) AddFeedbackEntry(e models.FeedbackEntry) error {
	metadata, err := marshalJSONOrNil(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO feedback_entries
		(user_id, score, state, active_context, comment, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Score, nilIfEmpty(string(e.State)), nilIfEmpty(string(e.ActiveContext)),
		nilIfEmpty(e.Comment), metadata, e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddFeedbackEntry failed", "error", err, "user_id", e.UserID)
		return classifyStoreError(fmt.Errorf("failed to insert feedback for %s: %w", e.UserID, err))
	}
	return nil
}

func (s *SQLiteStore) ListFeedbackEntries(userID string) ([]models.FeedbackEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, score, state, active_context, comment, metadata, created_at
		FROM feedback_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListFeedbackEntries query failed", "error", err, "user_id", userID)
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

func (s *SQLiteStore) GetFeedbackStats(userID string) (models.FeedbackStats, error) {
	var stats models.FeedbackStats
	var avg sql.NullFloat64
	var last sql.NullTime
	row := s.db.QueryRow(`SELECT COUNT(*), AVG(score), MAX(created_at)
		FROM feedback_entries WHERE user_id = ?`, userID)
	if err := row.Scan(&stats.Count, &avg, &last); err != nil {
		slog.Error("SQLiteStore GetFeedbackStats failed", "error", err, "user_id", userID)
		return stats, classifyStoreError(fmt.Errorf("failed to compute feedback stats: %w", err))
	}
	stats.Average = avg.Float64
	if last.Valid {
		stats.LastGivenAt = &last.Time
	}
	return stats, nil
}

func (s *SQLiteStore) GetStateConfig(state models.StateType) (*models.StateConfig, error) {
	row := s.db.QueryRow(`SELECT state, message_template, buttons, allowed_transitions, version, updated_at
		FROM state_configs WHERE state = ?`, string(state))
	cfg, err := scanStateConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStateConfig failed", "error", err, "state", state)
		return nil, classifyStoreError(fmt.Errorf("failed to get state config for %s: %w", state, err))
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveStateConfig(cfg models.StateConfig) (models.StateConfig, error) {
	buttons, err := marshalJSONOrNil(cfg.Buttons)
	if err != nil {
		return cfg, err
	}
	transitions, err := marshalJSONOrNil(cfg.AllowedTransitions)
	if err != nil {
		return cfg, err
	}
	now := time.Now()
	_, err = s.db.Exec(`INSERT INTO state_configs (state, message_template, buttons, allowed_transitions, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(state) DO UPDATE SET
		 message_template = excluded.message_template,
		 buttons = excluded.buttons,
		 allowed_transitions = excluded.allowed_transitions,
		 version = state_configs.version + 1,
		 updated_at = excluded.updated_at`,
		string(cfg.State), cfg.MessageTemplate, buttons, transitions, now)
	if err != nil {
		slog.Error("SQLiteStore SaveStateConfig failed", "error", err, "state", cfg.State)
		return cfg, classifyStoreError(fmt.Errorf("failed to save state config for %s: %w", cfg.State, err))
	}
	stored, err := s.GetStateConfig(cfg.State)
	if err != nil {
		return cfg, err
	}
	slog.Debug("SQLiteStore SaveStateConfig succeeded", "state", cfg.State, "version", stored.Version)
	return *stored, nil
}

func (s *SQLiteStore) ListStateConfigs() ([]models.StateConfig, error) {
	rows, err := s.db.Query(`SELECT state, message_template, buttons, allowed_transitions, version, updated_at
		FROM state_configs ORDER BY state`)
	if err != nil {
		slog.Error("SQLiteStore ListStateConfigs query failed", "error", err)
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
