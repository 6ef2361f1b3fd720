package profile

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed data/*.json
var bundled embed.FS

// Entry pairs a profile's document id (the source file's stem) with
// its parsed document.
type Entry struct {
	ID      string   `json:"id"`
	Profile Document `json:"profile"`
}

// Loader holds the validated set of bundled fixture profile documents.
type Loader struct {
	byID map[string]Document
}

// Load parses and validates every bundled profile document. A
// document is rejected if it is missing fixture/channelCount/channels,
// or if its channel-key sort order would not yield exactly
// channelCount entries.
func Load() (*Loader, error) {
	entries, err := fs.ReadDir(bundled, "data")
	if err != nil {
		return nil, fmt.Errorf("profile: read bundled directory: %w", err)
	}

	byID := make(map[string]Document, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := bundled.ReadFile("data/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("profile: read %s: %w", e.Name(), err)
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("profile: parse %s: %w", e.Name(), err)
		}
		if err := validate(&doc); err != nil {
			return nil, fmt.Errorf("profile: %s: %w", e.Name(), err)
		}

		id := strings.TrimSuffix(e.Name(), ".json")
		byID[id] = doc
	}

	return &Loader{byID: byID}, nil
}

// LoadOverrides reads every *.json file directly under dir and layers it
// over the embedded bundle, replacing any bundled document whose id
// (the file's stem) collides. dir not existing is not an error: the
// override directory is optional.
func (l *Loader) LoadOverrides(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("profile: read override directory %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("profile: read override %s: %w", e.Name(), err)
		}

		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("profile: parse override %s: %w", e.Name(), err)
		}
		if err := validate(&doc); err != nil {
			return fmt.Errorf("profile: override %s: %w", e.Name(), err)
		}

		id := strings.TrimSuffix(e.Name(), ".json")
		l.byID[id] = doc
	}

	return nil
}

func validate(doc *Document) error {
	if doc.Fixture == "" {
		return fmt.Errorf("missing fixture name")
	}
	if doc.ChannelCount < 1 {
		return fmt.Errorf("channelCount must be >= 1, got %d", doc.ChannelCount)
	}
	if len(doc.Channels) == 0 {
		return fmt.Errorf("channels must be non-empty")
	}
	if len(doc.SortedChannelKeys()) != doc.ChannelCount {
		return fmt.Errorf("channelCount=%d does not match %d distinct channel keys", doc.ChannelCount, len(doc.Channels))
	}
	if doc.ModeChannel != nil {
		if _, ok := doc.Channels[*doc.ModeChannel]; !ok {
			return fmt.Errorf("modeChannel %q is not a defined channel", *doc.ModeChannel)
		}
	}
	for _, mode := range doc.Modes {
		for key := range mode.Controls {
			if _, ok := doc.Channels[key]; !ok {
				return fmt.Errorf("mode %q: control references unknown channel %q", mode.Name, key)
			}
		}
		for key := range mode.Defaults {
			if _, ok := doc.Channels[key]; !ok {
				return fmt.Errorf("mode %q: default references unknown channel %q", mode.Name, key)
			}
		}
	}
	return nil
}

// ListProfiles returns every loaded profile as {id, profile} pairs,
// ordered by id for deterministic output.
func (l *Loader) ListProfiles() []Entry {
	ids := make([]string, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ID: id, Profile: l.byID[id]}
	}
	return entries
}

// GetProfile returns the document for id, if loaded.
func (l *Loader) GetProfile(id string) (Document, bool) {
	doc, ok := l.byID[id]
	return doc, ok
}

// FindByFixtureName returns the bundled document whose Fixture display
// name matches name, used for profile-drift comparison where a
// persisted fixture only remembers the display name, not the bundle id.
func (l *Loader) FindByFixtureName(name string) (Document, bool) {
	for _, doc := range l.byID {
		if doc.Fixture == name {
			return doc, true
		}
	}
	return Document{}, false
}

// GetProfileID returns the bundle id for a document with the given
// fixture display name, used to keep a fixture's ProfileID in sync on
// drift refresh.
func (l *Loader) GetProfileID(fixtureName string) (string, bool) {
	for id, doc := range l.byID {
		if doc.Fixture == fixtureName {
			return id, true
		}
	}
	return "", false
}
