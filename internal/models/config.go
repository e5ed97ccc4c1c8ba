// Package models defines the versioned per-state configuration record.
package models

import (
	"fmt"
	"time"
)

// MaxButtonsPerState is the maximum number of buttons a state config may carry.
const MaxButtonsPerState = 10

// ButtonConfig is one selectable button attached to a state's message.
type ButtonConfig struct {
	ID    string `json:"id"`    // opaque product-defined short code
	Label string `json:"label"` // text shown to the user
}

// StateConfig is the versioned configuration record for one outer state:
// the message template rendered on entry, the buttons offered, and the set
// of states reachable from it. Version is bumped on every edit so caches
// can be invalidated without a process restart.
type StateConfig struct {
	State              StateType      `json:"state"`
	MessageTemplate    string         `json:"message_template"`
	Buttons            []ButtonConfig `json:"buttons,omitempty"`
	AllowedTransitions []StateType    `json:"allowed_transitions,omitempty"`
	Version            int            `json:"version"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Validate checks a state config before it is persisted.
func (c *StateConfig) Validate() error {
	if !IsValidStateType(c.State) {
		return fmt.Errorf("%w: %q", ErrInvalidState, c.State)
	}
	if len(c.Buttons) > MaxButtonsPerState {
		return fmt.Errorf("state %s has %d buttons, maximum is %d", c.State, len(c.Buttons), MaxButtonsPerState)
	}
	for _, b := range c.Buttons {
		if b.ID == "" {
			return fmt.Errorf("state %s has a button with an empty id", c.State)
		}
	}
	for _, t := range c.AllowedTransitions {
		if !IsValidStateType(t) {
			return fmt.Errorf("%w: allowed transition %q on state %s", ErrInvalidState, t, c.State)
		}
	}
	return nil
}

// Allows reports whether the config permits a transition to the given state.
func (c *StateConfig) Allows(to StateType) bool {
	for _, t := range c.AllowedTransitions {
		if t == to {
			return true
		}
	}
	return false
}
