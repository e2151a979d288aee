// Package models defines the shared data types for picinplace: runtime
// configuration, stored image metadata, and the frame state snapshot
// published to API clients.
package models

import "fmt"

// Display panel geometry. Fixed by the hardware, reported via the API but
// never updatable through it.
const (
	DisplayWidth  = 800
	DisplayHeight = 480
)

// Thumbnail geometry and JPEG qualities used for stored artifacts.
const (
	ThumbWidth  = 150
	ThumbHeight = 90

	ImageJPEGQuality = 95
	ThumbJPEGQuality = 85
)

// Config holds the runtime-tunable frame parameters.
type Config struct {
	MaxImages     int     `json:"max_images"`
	CycleInterval int     `json:"cycle_interval"` // seconds
	Saturation    float64 `json:"saturation"`
}

// ConfigUpdate is the POST /api/config body: a partial config where only
// the provided fields are applied.
type ConfigUpdate struct {
	MaxImages     *int     `json:"max_images,omitempty"`
	CycleInterval *int     `json:"cycle_interval,omitempty"`
	Saturation    *float64 `json:"saturation,omitempty"`
}

// DefaultConfig returns the factory configuration.
func DefaultConfig() Config {
	return Config{
		MaxImages:     10,
		CycleInterval: 600,
		Saturation:    0.5,
	}
}

// Validate checks every field constraint. Returns a ValidationError naming
// the first offending field, or nil.
func (c Config) Validate() *AppError {
	if c.MaxImages <= 0 {
		return ErrValidation("max_images", fmt.Sprintf("max_images must be a positive integer, got %d", c.MaxImages))
	}
	if c.CycleInterval <= 0 {
		return ErrValidation("cycle_interval", fmt.Sprintf("cycle_interval must be a positive number of seconds, got %d", c.CycleInterval))
	}
	if c.Saturation < 0 || c.Saturation > 1 {
		return ErrValidation("saturation", fmt.Sprintf("saturation must be in [0, 1], got %g", c.Saturation))
	}
	return nil
}

// Merge returns a copy of c with the non-nil fields of upd applied.
func (c Config) Merge(upd ConfigUpdate) Config {
	next := c
	if upd.MaxImages != nil {
		next.MaxImages = *upd.MaxImages
	}
	if upd.CycleInterval != nil {
		next.CycleInterval = *upd.CycleInterval
	}
	if upd.Saturation != nil {
		next.Saturation = *upd.Saturation
	}
	return next
}
