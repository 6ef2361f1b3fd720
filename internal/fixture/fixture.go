// Package fixture maps named logical fixtures — profile-defined
// channel layouts and modes, or flat channel lists — onto raw DMX
// channel bindings, detects address conflicts, and persists fixtures
// through the opaque key/value store.
package fixture

import (
	"time"

	"github.com/lacylights/dmxengine/internal/profile"
)

// ColorMode is the color-mixing scheme a fixture presents to clients.
type ColorMode string

const (
	ColorModeRGB ColorMode = "rgb"
	ColorModeHSB ColorMode = "hsb"
)

// Binding is one named channel bound to a DMX address.
type Binding struct {
	Name       string `json:"name"`
	DMXChannel int    `json:"dmxChannel"`
}

// Layout carries optional canvas-placement fields through opaquely;
// the registry does not validate them (no bounds or finiteness check).
type Layout struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	OnCanvas bool    `json:"onCanvas"`
}

// Fixture is a mutable, persistent, named grouping of DMX channels.
type Fixture struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ColorMode ColorMode `json:"colorMode"`
	Channels  []Binding `json:"channels"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Profile-based fixtures only.
	ProfileID    string            `json:"profileId,omitempty"`
	Profile      *profile.Document `json:"profile,omitempty"`
	StartAddress int               `json:"startAddress,omitempty"`
	ActiveMode   string            `json:"activeMode,omitempty"`

	Layout *Layout `json:"layout,omitempty"`
}

// IsProfileBased reports whether f was created from a bundled profile.
func (f *Fixture) IsProfileBased() bool {
	return f.Profile != nil
}

// ChannelWrite is one DMX address/value pair the caller must apply to
// the universe. The registry never writes to the universe directly.
type ChannelWrite struct {
	Channel int  `json:"channel"`
	Value   byte `json:"value"`
}
