package liveserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lacylights/dmxengine/internal/fade"
	"github.com/lacylights/dmxengine/internal/fixture"
	"github.com/lacylights/dmxengine/internal/preset"
	"github.com/lacylights/dmxengine/internal/profile"
	"github.com/lacylights/dmxengine/internal/store"
	"github.com/lacylights/dmxengine/internal/transmitter"
	"github.com/lacylights/dmxengine/internal/universe"

	"github.com/lacylights/dmxengine/internal/coordinator"
)

type testHarness struct {
	coord *coordinator.Coordinator
	srv   *Server
	ts    *httptest.Server
	conn  *websocket.Conn
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	u := universe.New()
	tx := transmitter.New(transmitter.DefaultConfig(), u)
	fe := fade.NewEngine(u, 5*time.Millisecond)
	fe.Start()
	t.Cleanup(fe.Stop)

	loader, err := profile.Load()
	require.NoError(t, err)

	st, err := store.Open(store.Config{URL: ":memory:", MaxIdleConn: 1, MaxOpenConn: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fixtures := fixture.NewRegistry(st, loader)
	presets := preset.NewStore(st)

	coord := coordinator.New(u, tx, fe, loader, fixtures, presets)
	coord.Start()
	t.Cleanup(coord.Stop)

	srv := New(Config{ThrottleInterval: 10 * time.Millisecond}, coord)

	mux := httptest.NewServer(srv.http.Handler)
	t.Cleanup(mux.Close)

	go srv.throttleLoop()
	t.Cleanup(func() { close(srv.stopThrottle) })

	srv.universeToken = coord.SubscribeUniverse(srv.onUniverseChange)
	srv.statusToken = coord.SubscribeStatus(srv.onStatusChange)
	srv.presetToken = coord.SubscribePresetsChanged(srv.onPresetsChanged)
	srv.presetActivatedToken = coord.SubscribePresetActivated(srv.onPresetActivated)
	srv.fixturesToken = coord.SubscribeFixturesChanged(srv.onFixturesChanged)
	srv.conflictsToken = coord.SubscribeConflicts(srv.onConflicts)

	url := "ws" + strings.TrimPrefix(mux.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testHarness{coord: coord, srv: srv, ts: mux, conn: conn}
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func readEventRaw(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestConnectBurst_FixedOrderNoConflicts(t *testing.T) {
	h := newTestHarness(t)

	order := []string{"dmx:state", "dmx:status", "presets:list", "fixtures:list", "fixtures:profiles"}
	for _, want := range order {
		env := readEvent(t, h.conn)
		require.Equal(t, want, env.Type)
	}
}

func TestDispatch_SetChannelUpdatesUniverse(t *testing.T) {
	h := newTestHarness(t)

	// Drain the connect burst.
	for i := 0; i < 5; i++ {
		readEvent(t, h.conn)
	}

	require.NoError(t, h.conn.WriteJSON(map[string]interface{}{
		"type":    "dmx:set-channel",
		"channel": 1,
		"value":   200,
	}))

	require.Eventually(t, func() bool {
		return h.coord.Universe.GetRaw()[0] == 200
	}, time.Second, 5*time.Millisecond)
}

func TestDispatch_UnknownCommandIsIgnoredNotDisconnected(t *testing.T) {
	h := newTestHarness(t)
	for i := 0; i < 5; i++ {
		readEvent(t, h.conn)
	}

	require.NoError(t, h.conn.WriteJSON(map[string]interface{}{"type": "dmx:levitate"}))

	// Connection must stay open: prove it by issuing a real command next.
	require.NoError(t, h.conn.WriteJSON(map[string]interface{}{
		"type":    "dmx:set-channel",
		"channel": 2,
		"value":   77,
	}))
	require.Eventually(t, func() bool {
		return h.coord.Universe.GetRaw()[1] == 77
	}, time.Second, 5*time.Millisecond)
}

func TestDispatch_MalformedMessageRepliesError(t *testing.T) {
	h := newTestHarness(t)
	for i := 0; i < 5; i++ {
		readEvent(t, h.conn)
	}

	require.NoError(t, h.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	ev := readEventRaw(t, h.conn)
	require.Equal(t, "error", ev["type"])
}

func TestThrottle_ManyRapidChangesCoalesceIntoFewBroadcasts(t *testing.T) {
	h := newTestHarness(t)
	for i := 0; i < 5; i++ {
		readEvent(t, h.conn)
	}

	for i := 0; i < 200; i++ {
		h.coord.SetChannel(1, i%256)
	}

	count := 0
	deadline := time.After(200 * time.Millisecond)
	h.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
loop:
	for {
		select {
		case <-deadline:
			break loop
		default:
			_, data, err := h.conn.ReadMessage()
			if err != nil {
				break loop
			}
			var env envelope
			if json.Unmarshal(data, &env) == nil && env.Type == "dmx:state" {
				count++
			}
		}
	}

	require.Less(t, count, 200)
	require.Greater(t, count, 0)
}
