package flow

import (
	"log/slog"
	"sync"

	"github.com/cresceapp/cresce/internal/models"
	"github.com/cresceapp/cresce/internal/store"
)

// ConfigCache serves versioned per-state configuration records from memory,
// falling back to the store on a miss and to the compiled-in defaults when no
// record is stored. Entries are invalidated explicitly when a config is
// edited (its version counter bumped), so in-flight conversations see new
// content without a process restart.
type ConfigCache struct {
	store store.Store
	mu    sync.RWMutex
	cache map[models.StateType]models.StateConfig
}

// NewConfigCache creates a cache backed by the given store.
func NewConfigCache(st store.Store) *ConfigCache {
	return &ConfigCache{
		store: st,
		cache: make(map[models.StateType]models.StateConfig),
	}
}

// Get returns the effective config for a state. Stored records override the
// defaults field by field: an empty MessageTemplate, Buttons, or
// AllowedTransitions set falls through to the compiled-in value.
func (c *ConfigCache) Get(state models.StateType) (models.StateConfig, error) {
	c.mu.RLock()
	cfg, ok := c.cache[state]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	stored, err := c.store.GetStateConfig(state)
	if err != nil {
		return models.StateConfig{}, err
	}
	cfg = defaultConfigFor(state)
	if stored != nil {
		if stored.MessageTemplate != "" {
			cfg.MessageTemplate = stored.MessageTemplate
		}
		if len(stored.Buttons) > 0 {
			cfg.Buttons = stored.Buttons
		}
		if len(stored.AllowedTransitions) > 0 {
			cfg.AllowedTransitions = stored.AllowedTransitions
		}
		cfg.Version = stored.Version
		cfg.UpdatedAt = stored.UpdatedAt
	}

	c.mu.Lock()
	c.cache[state] = cfg
	c.mu.Unlock()
	slog.Debug("ConfigCache loaded state config", "state", state, "version", cfg.Version, "stored", stored != nil)
	return cfg, nil
}

// Save persists an edited config through the store (bumping its version) and
// invalidates the cached entry so the next Get sees the new version.
func (c *ConfigCache) Save(cfg models.StateConfig) (models.StateConfig, error) {
	if err := cfg.Validate(); err != nil {
		return models.StateConfig{}, err
	}
	stored, err := c.store.SaveStateConfig(cfg)
	if err != nil {
		return models.StateConfig{}, err
	}
	c.Invalidate(cfg.State)
	slog.Info("ConfigCache saved state config", "state", cfg.State, "version", stored.Version)
	return stored, nil
}

// Invalidate drops the cached entry for one state.
func (c *ConfigCache) Invalidate(state models.StateType) {
	c.mu.Lock()
	delete(c.cache, state)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *ConfigCache) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[models.StateType]models.StateConfig)
	c.mu.Unlock()
}
