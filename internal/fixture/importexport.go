package fixture

import (
	"context"
	"fmt"
	"time"
)

// ExportDocument is the on-the-wire fixture configuration export format.
type ExportDocument struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Fixtures   []*Fixture `json:"fixtures"`
}

// Export snapshots every fixture into a versioned export document.
func (r *Registry) Export(ctx context.Context) (*ExportDocument, error) {
	fixtures, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ExportDocument{
		Version:    1,
		ExportedAt: time.Now(),
		Fixtures:   fixtures,
	}, nil
}

// ImportStrategy selects how incoming fixtures are reconciled against
// the existing store.
type ImportStrategy string

const (
	// ImportReplace overwrites the entire store with the incoming set.
	ImportReplace ImportStrategy = "replace"
	// ImportMerge adds only fixtures whose id and DMX addresses don't
	// already collide with an existing fixture.
	ImportMerge ImportStrategy = "merge"
)

// ImportResult reports what an import did.
type ImportResult struct {
	Added     int      `json:"added"`
	Skipped   int      `json:"skipped"`
	Conflicts []string `json:"conflicts"`
}

// Import applies incoming according to strategy.
func (r *Registry) Import(ctx context.Context, incoming []*Fixture, strategy ImportStrategy) (*ImportResult, error) {
	switch strategy {
	case ImportReplace:
		return r.importReplace(ctx, incoming)
	case ImportMerge:
		return r.importMerge(ctx, incoming)
	default:
		return nil, fmt.Errorf("fixture: unknown import strategy %q", strategy)
	}
}

func (r *Registry) importReplace(ctx context.Context, incoming []*Fixture) (*ImportResult, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range existing {
		if _, err := r.Delete(ctx, f.ID); err != nil {
			return nil, err
		}
	}
	for _, f := range incoming {
		if err := r.persist(ctx, f); err != nil {
			return nil, err
		}
	}
	return &ImportResult{Added: len(incoming), Skipped: 0, Conflicts: nil}, nil
}

func (r *Registry) importMerge(ctx context.Context, incoming []*Fixture) (*ImportResult, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	existingIDs := make(map[string]bool, len(existing))
	claimedAddresses := make(map[int]string, len(existing)*4)
	for _, f := range existing {
		existingIDs[f.ID] = true
		for _, ch := range f.Channels {
			claimedAddresses[ch.DMXChannel] = f.Name
		}
	}

	result := &ImportResult{}
	for _, f := range incoming {
		if existingIDs[f.ID] {
			result.Skipped++
			result.Conflicts = append(result.Conflicts, fmt.Sprintf("fixture id %q already exists", f.ID))
			continue
		}

		conflicted := false
		for _, ch := range f.Channels {
			if owner, ok := claimedAddresses[ch.DMXChannel]; ok {
				result.Conflicts = append(result.Conflicts, fmt.Sprintf(
					"DMX %d: %q conflicts with existing fixture %q", ch.DMXChannel, f.Name, owner,
				))
				conflicted = true
			}
		}
		if conflicted {
			result.Skipped++
			continue
		}

		if err := r.persist(ctx, f); err != nil {
			return nil, err
		}
		for _, ch := range f.Channels {
			claimedAddresses[ch.DMXChannel] = f.Name
		}
		existingIDs[f.ID] = true
		result.Added++
	}

	return result, nil
}
