package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/lucsky/cuid"

	"github.com/lacylights/dmxengine/internal/store"
	"github.com/lacylights/dmxengine/internal/universe"
)

const keyPrefix = "preset:"

// Store is the preset CRUD surface. Recall is performed by the
// coordinator, not here.
type Store struct {
	store *store.Store
}

// NewStore creates a Store backed by st.
func NewStore(st *store.Store) *Store {
	return &Store{store: st}
}

func presetKey(id string) string { return keyPrefix + id }

// Create assigns a fresh id and timestamps, pads/trims channels to
// exactly 512 bytes, and persists the preset.
func (s *Store) Create(ctx context.Context, name string, channels []byte, fadeTime int, color string, fixtureModes map[string]string) (*Preset, error) {
	now := time.Now()
	p := &Preset{
		ID:           cuid.New(),
		Name:         name,
		Channels:     padOrTrim(channels),
		FadeTime:     fadeTime,
		Color:        color,
		FixtureModes: fixtureModes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Capture creates a preset from the universe's current raw channel state.
func (s *Store) Capture(ctx context.Context, name string, u *universe.Universe, fadeTime int, color string, fixtureModes map[string]string) (*Preset, error) {
	raw := u.GetRaw()
	return s.Create(ctx, name, raw[:], fadeTime, color, fixtureModes)
}

// Get returns a preset by id.
func (s *Store) Get(ctx context.Context, id string) (*Preset, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUnknownPreset
	}
	return p, nil
}

// List returns every preset, ordered by id.
func (s *Store) List(ctx context.Context) ([]*Preset, error) {
	records, err := s.store.ListByPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("preset: list: %w", err)
	}

	presets := make([]*Preset, 0, len(records))
	for _, rec := range records {
		var p Preset
		if err := json.Unmarshal([]byte(rec.Value), &p); err != nil {
			log.Printf("⚠️  preset: skipping unreadable record %s: %v", rec.Key, err)
			continue
		}
		presets = append(presets, &p)
	}

	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })
	return presets, nil
}

// Update replaces a preset's mutable fields, preserving id and
// createdAt. Channels is a fixed [512]byte, so no padding or trimming
// is done here.
func (s *Store) Update(ctx context.Context, id string, patch *Preset) (*Preset, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrUnknownPreset
	}

	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	if err := s.persist(ctx, patch); err != nil {
		return nil, err
	}
	return patch, nil
}

// Delete removes a preset by id and reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.Delete(ctx, presetKey(id))
	if err != nil {
		return false, fmt.Errorf("preset: delete: %w", err)
	}
	return removed, nil
}

func (s *Store) load(ctx context.Context, id string) (*Preset, error) {
	raw, ok, err := s.store.Get(ctx, presetKey(id))
	if err != nil {
		return nil, fmt.Errorf("preset: get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var p Preset
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("preset: decode %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) persist(ctx context.Context, p *Preset) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("preset: encode %s: %w", p.ID, err)
	}
	if err := s.store.Set(ctx, presetKey(p.ID), string(data)); err != nil {
		return fmt.Errorf("preset: persist: %w", err)
	}
	return nil
}
