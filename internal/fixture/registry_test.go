package fixture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacylights/dmxengine/internal/profile"
	"github.com/lacylights/dmxengine/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	st, err := store.Open(store.Config{URL: ":memory:", MaxIdleConn: 1, MaxOpenConn: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	loader, err := profile.Load()
	require.NoError(t, err)

	return NewRegistry(st, loader), context.Background()
}

func TestCreateFromProfile_MaterializesChannelsInSortOrder(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 10)
	require.NoError(t, err)

	require.Len(t, f.Channels, 5)
	assert.Equal(t, 10, f.Channels[0].DMXChannel)
	assert.Equal(t, 14, f.Channels[4].DMXChannel)
	assert.Equal(t, "Standard", f.ActiveMode)
}

func TestCreateFromProfile_InvalidAddress(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 510)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 0)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCreateFromProfile_UnknownProfile(t *testing.T) {
	reg, ctx := newTestRegistry(t)
	_, err := reg.CreateFromProfile(ctx, "Spot 1", "does-not-exist", 1)
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

// TestSetActiveMode_S5 reproduces the profile mode switch scenario:
// startAddress=10, modeChannel=ch2, mode "Standard" channelValue=128,
// defaults={ch4:50}; applying the writes and hygiene pass leaves
// DMX 11=128, 13=50, 14=0, 12 unchanged.
func TestSetActiveMode_S5(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 10)
	require.NoError(t, err)

	writes, err := reg.SetActiveMode(ctx, f.ID, "Standard")
	require.NoError(t, err)

	byChannel := make(map[int]byte)
	for _, w := range writes {
		byChannel[w.Channel] = w.Value
	}
	assert.Equal(t, byte(128), byChannel[11])
	assert.Equal(t, byte(50), byChannel[13])
	_, touches12 := byChannel[12]
	assert.False(t, touches12)

	f, err = reg.Get(ctx, f.ID)
	require.NoError(t, err)
	mode, ok := f.Profile.ModeByName("Standard")
	require.True(t, ok)

	hygiene := HygieneWrites(f, mode)
	require.Len(t, hygiene, 1)
	assert.Equal(t, 14, hygiene[0].Channel)
	assert.Equal(t, byte(0), hygiene[0].Value)
}

func TestSetActiveMode_UnknownFixtureAndMode(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.SetActiveMode(ctx, "nope", "Standard")
	assert.ErrorIs(t, err, ErrUnknownFixture)

	f, err := reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 10)
	require.NoError(t, err)

	_, err = reg.SetActiveMode(ctx, f.ID, "Nonexistent")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestSetActiveMode_NotProfileBased(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.Create(ctx, "Flat", "generic", []Binding{{Name: "a", DMXChannel: 1}}, ColorModeRGB)
	require.NoError(t, err)

	_, err = reg.SetActiveMode(ctx, f.ID, "Standard")
	assert.ErrorIs(t, err, ErrNotProfileBased)
}

// TestValidateChannelConflicts_S7 reproduces the two-fixtures-same-address scenario.
func TestValidateChannelConflicts_S7(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.Create(ctx, "Fixture A", "generic", []Binding{{Name: "dimmer", DMXChannel: 5}}, ColorModeRGB)
	require.NoError(t, err)
	_, err = reg.Create(ctx, "Fixture B", "generic", []Binding{{Name: "intensity", DMXChannel: 5}}, ColorModeRGB)
	require.NoError(t, err)

	conflicts, err := reg.ValidateChannelConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Contains(t, conflicts[0], "Fixture A")
	assert.Contains(t, conflicts[0], "Fixture B")
	assert.Contains(t, conflicts[0], "DMX 5")
}

func TestValidateChannelConflicts_EmptyWhenNoOverlap(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.Create(ctx, "Fixture A", "generic", []Binding{{Name: "dimmer", DMXChannel: 1}}, ColorModeRGB)
	require.NoError(t, err)
	_, err = reg.Create(ctx, "Fixture B", "generic", []Binding{{Name: "dimmer", DMXChannel: 2}}, ColorModeRGB)
	require.NoError(t, err)

	conflicts, err := reg.ValidateChannelConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestUpdate_PreservesIDAndCreatedAt(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.Create(ctx, "Fixture A", "generic", []Binding{{Name: "dimmer", DMXChannel: 1}}, ColorModeRGB)
	require.NoError(t, err)
	createdAt := f.CreatedAt

	patch := &Fixture{Name: "Renamed", Type: "generic", Channels: f.Channels, ColorMode: ColorModeRGB}
	updated, err := reg.Update(ctx, f.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, f.ID, updated.ID)
	assert.Equal(t, createdAt, updated.CreatedAt)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.UpdatedAt.After(createdAt) || updated.UpdatedAt.Equal(createdAt))
}

func TestUpdate_UnknownFixture(t *testing.T) {
	reg, ctx := newTestRegistry(t)
	_, err := reg.Update(ctx, "nope", &Fixture{})
	assert.ErrorIs(t, err, ErrUnknownFixture)
}

func TestDelete_ReturnsWhetherAnythingRemoved(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.Create(ctx, "Fixture A", "generic", nil, ColorModeRGB)
	require.NoError(t, err)

	removed, err := reg.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestImport_Replace(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.Create(ctx, "Existing", "generic", nil, ColorModeRGB)
	require.NoError(t, err)

	incoming := []*Fixture{
		{ID: "imported-1", Name: "Imported", Type: "generic", ColorMode: ColorModeRGB},
	}
	result, err := reg.Import(ctx, incoming, ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Imported", all[0].Name)
}

func TestImport_MergeSkipsIDAndAddressConflicts(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	existing, err := reg.Create(ctx, "Existing", "generic", []Binding{{Name: "dimmer", DMXChannel: 1}}, ColorModeRGB)
	require.NoError(t, err)

	incoming := []*Fixture{
		{ID: existing.ID, Name: "Duplicate ID", ColorMode: ColorModeRGB},
		{ID: "new-1", Name: "Address Conflict", Channels: []Binding{{Name: "dimmer", DMXChannel: 1}}, ColorMode: ColorModeRGB},
		{ID: "new-2", Name: "Clean", Channels: []Binding{{Name: "dimmer", DMXChannel: 100}}, ColorMode: ColorModeRGB},
	}
	result, err := reg.Import(ctx, incoming, ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.Conflicts, 2)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2) // existing + "Clean"
}

func TestExport_RoundTrip(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	_, err := reg.Create(ctx, "Fixture A", "generic", []Binding{{Name: "dimmer", DMXChannel: 1}}, ColorModeRGB)
	require.NoError(t, err)

	doc, err := reg.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Fixtures, 1)
	assert.Equal(t, "Fixture A", doc.Fixtures[0].Name)
}

func TestDriftRefresh_OverwritesStoredProfileWhenBundledDiffers(t *testing.T) {
	reg, ctx := newTestRegistry(t)

	f, err := reg.CreateFromProfile(ctx, "Spot 1", "led-spot-basic", 10)
	require.NoError(t, err)

	// Simulate drift: mutate the stored copy's profile document directly.
	stale := *f.Profile
	stale.Fixture = "LED Spot Basic" // keep the name so lookup still matches
	stale.ChannelCount = 999         // force a structural difference
	f.Profile = &stale
	require.NoError(t, reg.persist(ctx, f))

	refreshed, err := reg.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, refreshed.Profile.ChannelCount, "bundled profile must win over the stale stored copy")
	assert.Equal(t, f.ID, refreshed.ID)
	assert.Equal(t, f.StartAddress, refreshed.StartAddress)
	assert.Equal(t, f.ActiveMode, refreshed.ActiveMode)
}
