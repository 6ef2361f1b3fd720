package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sort"
	"time"

	"github.com/lucsky/cuid"

	"github.com/lacylights/dmxengine/internal/profile"
	"github.com/lacylights/dmxengine/internal/store"
)

const keyPrefix = "fixture:"

// Registry is the fixture CRUD surface: flat and profile-based
// creation, mode activation, conflict detection, profile drift
// refresh, and import/export. It never mutates a universe directly —
// mode activation returns the writes for the caller to apply.
type Registry struct {
	store    *store.Store
	profiles *profile.Loader
}

// NewRegistry creates a Registry backed by st and validating against profiles.
func NewRegistry(st *store.Store, profiles *profile.Loader) *Registry {
	return &Registry{store: st, profiles: profiles}
}

func fixtureKey(id string) string { return keyPrefix + id }

// Create makes a flat (non-profile) fixture.
func (r *Registry) Create(ctx context.Context, name, fixtureType string, channels []Binding, colorMode ColorMode) (*Fixture, error) {
	now := time.Now()
	f := &Fixture{
		ID:        cuid.New(),
		Name:      name,
		Type:      fixtureType,
		ColorMode: colorMode,
		Channels:  channels,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.persist(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFromProfile materializes a fixture from a bundled profile
// document starting at startAddress.
func (r *Registry) CreateFromProfile(ctx context.Context, name, profileID string, startAddress int) (*Fixture, error) {
	doc, ok := r.profiles.GetProfile(profileID)
	if !ok {
		return nil, ErrUnknownProfile
	}
	if startAddress < 1 || startAddress+doc.ChannelCount-1 > 512 {
		return nil, ErrInvalidAddress
	}

	keys := doc.SortedChannelKeys()
	channels := make([]Binding, len(keys))
	for i, key := range keys {
		channels[i] = Binding{
			Name:       doc.Channels[key].Label,
			DMXChannel: startAddress + i,
		}
	}

	now := time.Now()
	f := &Fixture{
		ID:           cuid.New(),
		Name:         name,
		Type:         doc.Fixture,
		ColorMode:    ColorModeRGB,
		Channels:     channels,
		CreatedAt:    now,
		UpdatedAt:    now,
		ProfileID:    profileID,
		Profile:      &doc,
		StartAddress: startAddress,
	}
	if len(doc.Modes) > 0 {
		f.ActiveMode = doc.Modes[0].Name
	}

	if err := r.persist(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns a fixture by id, applying profile drift refresh first.
func (r *Registry) Get(ctx context.Context, id string) (*Fixture, error) {
	f, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrUnknownFixture
	}
	changed := r.refreshDrift(f)
	if changed {
		if err := r.persist(ctx, f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// List returns every fixture, ordered by id, with profile drift refresh applied.
func (r *Registry) List(ctx context.Context) ([]*Fixture, error) {
	records, err := r.store.ListByPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("fixture: list: %w", err)
	}

	fixtures := make([]*Fixture, 0, len(records))
	for _, rec := range records {
		var f Fixture
		if err := json.Unmarshal([]byte(rec.Value), &f); err != nil {
			log.Printf("⚠️  fixture: skipping unreadable record %s: %v", rec.Key, err)
			continue
		}
		changed := r.refreshDrift(&f)
		if changed {
			if err := r.persist(ctx, &f); err != nil {
				return nil, err
			}
		}
		fixtures = append(fixtures, &f)
	}

	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].ID < fixtures[j].ID })
	return fixtures, nil
}

// Update replaces a fixture's mutable fields, preserving id and createdAt.
func (r *Registry) Update(ctx context.Context, id string, patch *Fixture) (*Fixture, error) {
	existing, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrUnknownFixture
	}

	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	if err := r.persist(ctx, patch); err != nil {
		return nil, err
	}
	return patch, nil
}

// Delete removes a fixture by id. It does not clear the fixture's DMX
// channels on the universe — the source does not clear them either.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := r.store.Delete(ctx, fixtureKey(id))
	if err != nil {
		return false, fmt.Errorf("fixture: delete: %w", err)
	}
	return removed, nil
}

// SetActiveMode validates and persists a fixture's active mode,
// returning the channel writes the caller must apply to the universe.
// The mode-switch hygiene pass is the coordinator's responsibility.
func (r *Registry) SetActiveMode(ctx context.Context, fixtureID, modeName string) ([]ChannelWrite, error) {
	f, err := r.load(ctx, fixtureID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrUnknownFixture
	}
	if !f.IsProfileBased() {
		return nil, ErrNotProfileBased
	}

	mode, ok := f.Profile.ModeByName(modeName)
	if !ok {
		return nil, ErrUnknownMode
	}

	var writes []ChannelWrite
	if f.Profile.ModeChannel != nil {
		idx := f.Profile.ChannelIndex(*f.Profile.ModeChannel)
		if idx >= 0 {
			writes = append(writes, ChannelWrite{
				Channel: f.StartAddress + idx,
				Value:   mode.ChannelValue,
			})
		}
	}

	defaultKeys := make([]string, 0, len(mode.Defaults))
	for k := range mode.Defaults {
		defaultKeys = append(defaultKeys, k)
	}
	sort.Strings(defaultKeys)
	for _, key := range defaultKeys {
		idx := f.Profile.ChannelIndex(key)
		if idx < 0 {
			continue
		}
		writes = append(writes, ChannelWrite{
			Channel: f.StartAddress + idx,
			Value:   mode.Defaults[key],
		})
	}

	f.ActiveMode = modeName
	f.UpdatedAt = time.Now()
	if err := r.persist(ctx, f); err != nil {
		return nil, err
	}

	return writes, nil
}

// HygieneWrites computes the mode-switch channel hygiene pass for a
// fixture that just activated mode: every channel whose profile role
// is dynamic, that has no control entry in mode, and that is not
// named by mode.Defaults or mode.ColorWheelGroup, is zeroed.
func HygieneWrites(f *Fixture, mode *profile.Mode) []ChannelWrite {
	if !f.IsProfileBased() {
		return nil
	}

	protected := make(map[string]bool, len(mode.Defaults))
	for k := range mode.Defaults {
		protected[k] = true
	}
	if mode.ColorWheelGroup != nil {
		protected[mode.ColorWheelGroup.Hue] = true
		protected[mode.ColorWheelGroup.Saturation] = true
		if mode.ColorWheelGroup.Brightness != "" {
			protected[mode.ColorWheelGroup.Brightness] = true
		}
	}

	keys := f.Profile.SortedChannelKeys()
	var writes []ChannelWrite
	for i, key := range keys {
		def := f.Profile.Channels[key]
		if def.Role != profile.RoleDynamic {
			continue
		}
		if _, hasControl := mode.Controls[key]; hasControl {
			continue
		}
		if protected[key] {
			continue
		}
		writes = append(writes, ChannelWrite{
			Channel: f.StartAddress + i,
			Value:   0,
		})
	}
	return writes
}

// ValidateChannelConflicts reports every DMX address claimed by more
// than one fixture binding.
func (r *Registry) ValidateChannelConflicts(ctx context.Context) ([]string, error) {
	fixtures, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	type owner struct {
		fixtureName string
		channelName string
	}
	owners := make(map[int]owner)
	var conflicts []string

	for _, f := range fixtures {
		for _, ch := range f.Channels {
			if existing, ok := owners[ch.DMXChannel]; ok {
				conflicts = append(conflicts, fmt.Sprintf(
					"DMX %d: %q (%s) conflicts with %q (%s)",
					ch.DMXChannel, existing.fixtureName, existing.channelName, f.Name, ch.Name,
				))
				continue
			}
			owners[ch.DMXChannel] = owner{fixtureName: f.Name, channelName: ch.Name}
		}
	}
	return conflicts, nil
}

// refreshDrift overwrites f's stored profile document with the
// currently bundled one if they differ structurally. It never changes
// id, startAddress, activeMode, or layout. Returns whether a change
// was made.
func (r *Registry) refreshDrift(f *Fixture) bool {
	if !f.IsProfileBased() {
		return false
	}
	bundled, ok := r.profiles.FindByFixtureName(f.Profile.Fixture)
	if !ok {
		return false
	}
	if reflect.DeepEqual(*f.Profile, bundled) {
		return false
	}
	f.Profile = &bundled
	if id, ok := r.profiles.GetProfileID(bundled.Fixture); ok {
		f.ProfileID = id
	}
	f.UpdatedAt = time.Now()
	return true
}

func (r *Registry) load(ctx context.Context, id string) (*Fixture, error) {
	raw, ok, err := r.store.Get(ctx, fixtureKey(id))
	if err != nil {
		return nil, fmt.Errorf("fixture: get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var f Fixture
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("fixture: decode %s: %w", id, err)
	}
	return &f, nil
}

func (r *Registry) persist(ctx context.Context, f *Fixture) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("fixture: encode %s: %w", f.ID, err)
	}
	if err := r.store.Set(ctx, fixtureKey(f.ID), string(data)); err != nil {
		return fmt.Errorf("fixture: persist: %w", err)
	}
	return nil
}
