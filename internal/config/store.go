// Package config handles loading and saving the frame configuration.
package config

import "github.com/asetapen/picinplace/internal/models"

// Store is the interface for persisting frame configuration.
type Store interface {
	// Load loads the current config. Returns DefaultConfig if no file exists.
	Load() (models.Config, error)

	// Save persists the config. Writes are synchronous: when Save returns
	// nil the config is durable.
	Save(cfg models.Config) error

	// Path returns the file path used by this store.
	Path() string
}
