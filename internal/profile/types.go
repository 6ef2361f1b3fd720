// Package profile parses and validates bundled fixture profile
// documents: the immutable templates describing a fixture's channel
// layout and operating modes.
package profile

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Role is the semantic meaning of a profile channel.
type Role string

const (
	RoleDimmer      Role = "dimmer"
	RoleTemperature Role = "temperature"
	RoleHue         Role = "hue"
	RoleSaturation  Role = "saturation"
	RoleBrightness  Role = "brightness"
	RoleRed         Role = "red"
	RoleGreen       Role = "green"
	RoleBlue        Role = "blue"
	RoleModeSelect  Role = "mode-select"
	RoleDynamic     Role = "dynamic"
	RoleCustom      Role = "custom"
)

// ChannelDef describes one profile channel.
type ChannelDef struct {
	Role  Role   `json:"role"`
	Label string `json:"label"`
}

// ControlKind discriminates the tagged ControlDescriptor variants.
type ControlKind string

const (
	ControlFader     ControlKind = "fader"
	ControlMomentary ControlKind = "momentary"
	ControlToggle    ControlKind = "toggle"
	ControlStepped   ControlKind = "stepped"
)

// Step is one entry of a stepped control.
type Step struct {
	Label string `json:"label"`
	Value byte   `json:"value"`
}

// ControlDescriptor is a tagged variant: Fader/Momentary/Toggle carry
// no extra data; Stepped carries Steps and optional ExtraButtons.
// A nil *ControlDescriptor in a Mode's Controls map means the channel
// is suppressed (no UI control) in that mode.
type ControlDescriptor struct {
	Kind         ControlKind `json:"type"`
	Steps        []Step      `json:"steps,omitempty"`
	ExtraButtons []string    `json:"extraButtons,omitempty"`
}

// UnmarshalJSON validates that Steps/ExtraButtons are only present on
// a stepped control, matching the tagged-variant shape described by
// the profile document schema.
func (c *ControlDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind         ControlKind `json:"type"`
		Steps        []Step      `json:"steps,omitempty"`
		ExtraButtons []string    `json:"extraButtons,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case ControlFader, ControlMomentary, ControlToggle:
		if len(raw.Steps) > 0 || len(raw.ExtraButtons) > 0 {
			return fmt.Errorf("control type %q must not carry steps/extraButtons", raw.Kind)
		}
	case ControlStepped:
		if len(raw.Steps) == 0 {
			return fmt.Errorf("control type %q requires a non-empty steps list", raw.Kind)
		}
	default:
		return fmt.Errorf("unknown control type %q", raw.Kind)
	}
	c.Kind = raw.Kind
	c.Steps = raw.Steps
	c.ExtraButtons = raw.ExtraButtons
	return nil
}

// ColorWheelGroup names the channel-keys forming a color control group.
type ColorWheelGroup struct {
	Hue        string `json:"hue"`
	Saturation string `json:"saturation"`
	Brightness string `json:"brightness,omitempty"`
}

// Mode is one named operating state of a profile.
type Mode struct {
	Name            string                         `json:"name"`
	ChannelValue    byte                           `json:"channelValue"`
	Controls        map[string]*ControlDescriptor  `json:"controls,omitempty"`
	ColorWheelGroup *ColorWheelGroup               `json:"colorWheelGroup,omitempty"`
	Defaults        map[string]byte                `json:"defaults,omitempty"`
}

// Document is a complete, immutable fixture profile as loaded from disk.
type Document struct {
	Fixture      string                `json:"fixture"`
	ChannelCount int                   `json:"channelCount"`
	Channels     map[string]ChannelDef `json:"channels"`
	ModeChannel  *string               `json:"modeChannel,omitempty"`
	Modes        []Mode                `json:"modes,omitempty"`
}

// SortedChannelKeys returns the document's channel keys in
// lexicographic order, the order that fixes channel index to DMX
// offset.
func (d *Document) SortedChannelKeys() []string {
	keys := make([]string, 0, len(d.Channels))
	for k := range d.Channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChannelIndex returns the 0-based offset of key within the sorted
// channel order, or -1 if key is not a channel of this document.
func (d *Document) ChannelIndex(key string) int {
	for i, k := range d.SortedChannelKeys() {
		if k == key {
			return i
		}
	}
	return -1
}

// ModeByName returns the mode with the given name, if any.
func (d *Document) ModeByName(name string) (*Mode, bool) {
	for i := range d.Modes {
		if d.Modes[i].Name == name {
			return &d.Modes[i], true
		}
	}
	return nil, false
}
