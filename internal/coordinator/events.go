package coordinator

import "github.com/lacylights/dmxengine/internal/universe"

// UniverseState is the throttled broadcast payload for universe changes:
// the effective (master-scaled) channels plus the master value itself.
type UniverseState struct {
	Channels universe.Snapshot
	Master   byte
}

// PresetActivated is emitted whenever a preset recall completes,
// regardless of which server initiated it.
type PresetActivated struct {
	ID   string
	Name string
}
