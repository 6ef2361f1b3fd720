package preset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacylights/dmxengine/internal/store"
	"github.com/lacylights/dmxengine/internal/universe"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	st, err := store.Open(store.Config{URL: ":memory:", MaxIdleConn: 1, MaxOpenConn: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewStore(st), context.Background()
}

func TestCreate_PadsShortChannelArray(t *testing.T) {
	s, ctx := newTestStore(t)

	p, err := s.Create(ctx, "Warm Wash", []byte{10, 20, 30}, 1000, "#ff0000", nil)
	require.NoError(t, err)

	assert.Len(t, p.Channels, 512)
	assert.Equal(t, byte(10), p.Channels[0])
	assert.Equal(t, byte(30), p.Channels[2])
	assert.Equal(t, byte(0), p.Channels[3])
	assert.Equal(t, byte(0), p.Channels[511])
}

func TestCreate_TrimsOversizedChannelArray(t *testing.T) {
	s, ctx := newTestStore(t)

	oversized := make([]byte, 600)
	oversized[511] = 77
	oversized[599] = 99

	p, err := s.Create(ctx, "Full Bus", oversized, 0, "#00ff00", nil)
	require.NoError(t, err)

	assert.Len(t, p.Channels, 512)
	assert.Equal(t, byte(77), p.Channels[511])
}

func TestCapture_UsesUniverseRawChannels(t *testing.T) {
	s, ctx := newTestStore(t)

	u := universe.New()
	u.SetChannel(1, 128)
	u.SetMasterDimmer(50) // capture must use raw, pre-master values

	p, err := s.Capture(ctx, "Snapshot", u, 500, "#0000ff", map[string]string{"fixture-1": "Standard"})
	require.NoError(t, err)

	assert.Equal(t, byte(128), p.Channels[0])
	assert.Equal(t, "Standard", p.FixtureModes["fixture-1"])
}

func TestGet_RoundTrip(t *testing.T) {
	s, ctx := newTestStore(t)

	created, err := s.Create(ctx, "Preset A", []byte{1, 2, 3}, 0, "#fff", nil)
	require.NoError(t, err)

	fetched, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Channels, fetched.Channels)
	assert.Equal(t, created.Name, fetched.Name)
}

func TestGet_UnknownPreset(t *testing.T) {
	s, ctx := newTestStore(t)
	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestList_OrderedByID(t *testing.T) {
	s, ctx := newTestStore(t)

	_, err := s.Create(ctx, "One", nil, 0, "", nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, "Two", nil, 0, "", nil)
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].ID < all[1].ID)
}

func TestUpdate_PreservesIDAndCreatedAt(t *testing.T) {
	s, ctx := newTestStore(t)

	created, err := s.Create(ctx, "Preset A", []byte{1}, 0, "#fff", nil)
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, &Preset{
		Name:     "Renamed",
		Channels: padOrTrim([]byte{9, 9, 9}),
		FadeTime: 2000,
		Color:    "#000",
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, byte(9), updated.Channels[0])
}

func TestUpdate_UnknownPreset(t *testing.T) {
	s, ctx := newTestStore(t)
	_, err := s.Update(ctx, "nope", &Preset{})
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestDelete_ReturnsWhetherAnythingRemoved(t *testing.T) {
	s, ctx := newTestStore(t)

	created, err := s.Create(ctx, "Preset A", nil, 0, "", nil)
	require.NoError(t, err)

	removed, err := s.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}
