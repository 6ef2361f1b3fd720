// Package coordinator wires the universe, transmitter, fade engine,
// profile loader, fixture registry and preset store into one
// single-writer update context, and fans out the typed change events
// both protocol servers need (universe state, transmitter status,
// preset activation, preset list, fixture list, conflict report).
package coordinator

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/lacylights/dmxengine/internal/fade"
	"github.com/lacylights/dmxengine/internal/fixture"
	"github.com/lacylights/dmxengine/internal/preset"
	"github.com/lacylights/dmxengine/internal/profile"
	"github.com/lacylights/dmxengine/internal/transmitter"
	"github.com/lacylights/dmxengine/internal/universe"
)

// Coordinator is the single owner of cross-component mutations. Every
// mutating method runs on one internal goroutine (the single-writer
// boundary) so a websocket command, an automation command, and a
// preset recall can never interleave their multi-step writes.
type Coordinator struct {
	Universe    *universe.Universe
	Transmitter *transmitter.Transmitter
	Fades       *fade.Engine
	Profiles    *profile.Loader
	Fixtures    *fixture.Registry
	Presets     *preset.Store

	commands chan func()
	stopChan chan struct{}
	doneChan chan struct{}

	universeToken int
	statusToken   int

	universeBroker         *broker[UniverseState]
	statusBroker           *broker[transmitter.Status]
	presetActivatedBroker  *broker[PresetActivated]
	presetsChangedBroker   *broker[[]*preset.Preset]
	fixturesChangedBroker  *broker[[]*fixture.Fixture]
	conflictsBroker        *broker[[]string]
}

// New assembles a Coordinator from its already-constructed components.
func New(u *universe.Universe, tx *transmitter.Transmitter, fe *fade.Engine, profiles *profile.Loader, fixtures *fixture.Registry, presets *preset.Store) *Coordinator {
	return &Coordinator{
		Universe:    u,
		Transmitter: tx,
		Fades:       fe,
		Profiles:    profiles,
		Fixtures:    fixtures,
		Presets:     presets,

		commands: make(chan func()),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),

		universeBroker:        newBroker[UniverseState](),
		statusBroker:          newBroker[transmitter.Status](),
		presetActivatedBroker: newBroker[PresetActivated](),
		presetsChangedBroker:  newBroker[[]*preset.Preset](),
		fixturesChangedBroker: newBroker[[]*fixture.Fixture](),
		conflictsBroker:       newBroker[[]string](),
	}
}

// Start begins the command loop and bridges universe/transmitter
// change notifications into the coordinator's own brokers.
func (c *Coordinator) Start() {
	go c.runCommands()
	c.universeToken = c.Universe.Subscribe(c.onUniverseChange)
	c.statusToken = c.Transmitter.Subscribe(c.onTransmitterStatus)
}

// Stop unwinds the subscriptions and drains the command loop.
func (c *Coordinator) Stop() {
	c.Universe.Unsubscribe(c.universeToken)
	c.Transmitter.Unsubscribe(c.statusToken)
	close(c.stopChan)
	<-c.doneChan
}

func (c *Coordinator) runCommands() {
	for {
		select {
		case fn := <-c.commands:
			fn()
		case <-c.stopChan:
			close(c.doneChan)
			return
		}
	}
}

// exec runs fn on the single-writer goroutine and waits for it to finish.
func (c *Coordinator) exec(fn func()) {
	done := make(chan struct{})
	c.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

func (c *Coordinator) onUniverseChange(s universe.Snapshot) {
	c.universeBroker.Publish(UniverseState{Channels: s, Master: c.Universe.GetMaster()})
}

func (c *Coordinator) onTransmitterStatus(s transmitter.Status) {
	c.statusBroker.Publish(s)
}

// --- Subscriptions (used by both protocol servers) ---

func (c *Coordinator) SubscribeUniverse(fn func(UniverseState)) int  { return c.universeBroker.Subscribe(fn) }
func (c *Coordinator) UnsubscribeUniverse(token int)                { c.universeBroker.Unsubscribe(token) }
func (c *Coordinator) SubscribeStatus(fn func(transmitter.Status)) int {
	return c.statusBroker.Subscribe(fn)
}
func (c *Coordinator) UnsubscribeStatus(token int) { c.statusBroker.Unsubscribe(token) }
func (c *Coordinator) SubscribePresetActivated(fn func(PresetActivated)) int {
	return c.presetActivatedBroker.Subscribe(fn)
}
func (c *Coordinator) UnsubscribePresetActivated(token int) { c.presetActivatedBroker.Unsubscribe(token) }
func (c *Coordinator) SubscribePresetsChanged(fn func([]*preset.Preset)) int {
	return c.presetsChangedBroker.Subscribe(fn)
}
func (c *Coordinator) UnsubscribePresetsChanged(token int) { c.presetsChangedBroker.Unsubscribe(token) }
func (c *Coordinator) SubscribeFixturesChanged(fn func([]*fixture.Fixture)) int {
	return c.fixturesChangedBroker.Subscribe(fn)
}
func (c *Coordinator) UnsubscribeFixturesChanged(token int) { c.fixturesChangedBroker.Unsubscribe(token) }
func (c *Coordinator) SubscribeConflicts(fn func([]string)) int {
	return c.conflictsBroker.Subscribe(fn)
}
func (c *Coordinator) UnsubscribeConflicts(token int) { c.conflictsBroker.Unsubscribe(token) }

// --- Snapshot getters (used to build the on-connect burst) ---

func (c *Coordinator) CurrentUniverseState() UniverseState {
	return UniverseState{Channels: c.Universe.GetEffective(), Master: c.Universe.GetMaster()}
}

func (c *Coordinator) CurrentStatus() transmitter.Status {
	return transmitter.Status{Connected: c.Transmitter.State() == transmitter.StateConnected, Port: c.Transmitter.PortPath()}
}

func (c *Coordinator) ListPresets(ctx context.Context) ([]*preset.Preset, error) {
	return c.Presets.List(ctx)
}

func (c *Coordinator) ListFixtures(ctx context.Context) ([]*fixture.Fixture, error) {
	return c.Fixtures.List(ctx)
}

func (c *Coordinator) ListProfiles() []profile.Entry {
	return c.Profiles.ListProfiles()
}

func (c *Coordinator) ValidateConflicts(ctx context.Context) ([]string, error) {
	return c.Fixtures.ValidateChannelConflicts(ctx)
}

// --- DMX mutation commands ---

func (c *Coordinator) SetChannel(channel, value int) {
	c.exec(func() { c.Universe.SetChannel(channel, value) })
}

func (c *Coordinator) SetChannels(values map[int]int) {
	c.exec(func() { c.Universe.SetChannels(values) })
}

func (c *Coordinator) SetMaster(value int) {
	c.exec(func() { c.Universe.SetMasterDimmer(value) })
}

// Blackout zeroes every channel, fading over fadeTimeMs if positive.
// Per the source's behavior, the master dimmer is never touched.
func (c *Coordinator) Blackout(fadeTimeMs int) {
	c.exec(func() {
		if fadeTimeMs > 0 {
			c.Fades.FadeToBlackout(time.Duration(fadeTimeMs) * time.Millisecond)
		} else {
			c.Universe.Blackout()
		}
	})
}

// TriggerStart snaps channel to full. Used by momentary-style controls.
func (c *Coordinator) TriggerStart(channel int) {
	c.exec(func() { c.Universe.SetChannel(channel, 255) })
}

// TriggerEnd unconditionally zeroes channel, even if a fade or a
// profile default currently targets it — the trigger always wins.
func (c *Coordinator) TriggerEnd(channel int) {
	c.exec(func() { c.Universe.SetChannel(channel, 0) })
}

// --- Fixture commands ---

func (c *Coordinator) CreateFixture(ctx context.Context, name, fixtureType string, channels []fixture.Binding, colorMode fixture.ColorMode) (*fixture.Fixture, error) {
	var f *fixture.Fixture
	var err error
	c.exec(func() {
		f, err = c.Fixtures.Create(ctx, name, fixtureType, channels, colorMode)
	})
	if err != nil {
		return nil, err
	}
	c.broadcastFixtures(ctx)
	return f, nil
}

// CreateFixtureFromProfile materializes the fixture and, if the
// profile names a mode-select channel, applies its default mode's
// writes (plus the hygiene pass) to the universe immediately.
func (c *Coordinator) CreateFixtureFromProfile(ctx context.Context, name, profileID string, startAddress int) (*fixture.Fixture, error) {
	var f *fixture.Fixture
	var err error
	c.exec(func() {
		f, err = c.Fixtures.CreateFromProfile(ctx, name, profileID, startAddress)
		if err != nil {
			return
		}
		if f.Profile != nil && f.Profile.ModeChannel != nil && f.ActiveMode != "" {
			if modeErr := c.applyModeLocked(ctx, f.ID, f.ActiveMode); modeErr != nil {
				log.Printf("⚠️  coordinator: applying default mode for new fixture %s: %v", f.ID, modeErr)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	c.broadcastFixtures(ctx)
	return f, nil
}

func (c *Coordinator) UpdateFixture(ctx context.Context, id string, patch *fixture.Fixture) (*fixture.Fixture, error) {
	var f *fixture.Fixture
	var err error
	c.exec(func() { f, err = c.Fixtures.Update(ctx, id, patch) })
	if err != nil {
		return nil, err
	}
	c.broadcastFixtures(ctx)
	return f, nil
}

func (c *Coordinator) DeleteFixture(ctx context.Context, id string) (bool, error) {
	var removed bool
	var err error
	c.exec(func() { removed, err = c.Fixtures.Delete(ctx, id) })
	if err != nil {
		return false, err
	}
	c.broadcastFixtures(ctx)
	return removed, nil
}

// SetFixtureMode activates modeName on fixtureID: applies the mode's
// channel writes and then the dynamic-channel hygiene pass, per the
// mode-switch semantics the Registry leaves to its caller.
func (c *Coordinator) SetFixtureMode(ctx context.Context, fixtureID, modeName string) error {
	var err error
	c.exec(func() { err = c.applyModeLocked(ctx, fixtureID, modeName) })
	return err
}

// applyModeLocked must only be called from within exec.
func (c *Coordinator) applyModeLocked(ctx context.Context, fixtureID, modeName string) error {
	writes, err := c.Fixtures.SetActiveMode(ctx, fixtureID, modeName)
	if err != nil {
		return err
	}
	c.applyWritesLocked(writes)

	f, err := c.Fixtures.Get(ctx, fixtureID)
	if err != nil {
		return err
	}
	mode, ok := f.Profile.ModeByName(modeName)
	if !ok {
		return fixture.ErrUnknownMode
	}
	c.applyWritesLocked(fixture.HygieneWrites(f, mode))
	return nil
}

func (c *Coordinator) applyWritesLocked(writes []fixture.ChannelWrite) {
	if len(writes) == 0 {
		return
	}
	values := make(map[int]int, len(writes))
	for _, w := range writes {
		values[w.Channel] = int(w.Value)
	}
	c.Universe.SetChannels(values)
}

func (c *Coordinator) ExportFixtures(ctx context.Context) (*fixture.ExportDocument, error) {
	return c.Fixtures.Export(ctx)
}

func (c *Coordinator) ImportFixtures(ctx context.Context, incoming []*fixture.Fixture, strategy fixture.ImportStrategy) (*fixture.ImportResult, error) {
	var result *fixture.ImportResult
	var err error
	c.exec(func() { result, err = c.Fixtures.Import(ctx, incoming, strategy) })
	if err != nil {
		return nil, err
	}
	c.broadcastFixtures(ctx)
	return result, nil
}

// broadcastFixtures re-publishes the fixture list and, if non-empty,
// the conflict report. Must be called outside exec (it takes its own
// read-only pass through the registry).
func (c *Coordinator) broadcastFixtures(ctx context.Context) {
	list, err := c.Fixtures.List(ctx)
	if err != nil {
		log.Printf("⚠️  coordinator: listing fixtures after mutation: %v", err)
		return
	}
	c.fixturesChangedBroker.Publish(list)

	conflicts, err := c.Fixtures.ValidateChannelConflicts(ctx)
	if err != nil {
		log.Printf("⚠️  coordinator: validating conflicts after mutation: %v", err)
		return
	}
	if len(conflicts) > 0 {
		c.conflictsBroker.Publish(conflicts)
	}
}

// --- Preset commands ---

func (c *Coordinator) SavePreset(ctx context.Context, name string, fadeTime int, color string) (*preset.Preset, error) {
	var p *preset.Preset
	var err error
	c.exec(func() {
		fixtureModes := c.activeFixtureModesLocked(ctx)
		p, err = c.Presets.Capture(ctx, name, c.Universe, fadeTime, color, fixtureModes)
	})
	if err != nil {
		return nil, err
	}
	c.broadcastPresets(ctx)
	return p, nil
}

func (c *Coordinator) activeFixtureModesLocked(ctx context.Context) map[string]string {
	fixtures, err := c.Fixtures.List(ctx)
	if err != nil {
		log.Printf("⚠️  coordinator: listing fixtures while capturing preset: %v", err)
		return nil
	}
	modes := make(map[string]string)
	for _, f := range fixtures {
		if f.ActiveMode != "" {
			modes[f.ID] = f.ActiveMode
		}
	}
	return modes
}

func (c *Coordinator) UpdatePreset(ctx context.Context, id string, patch *preset.Preset) (*preset.Preset, error) {
	var p *preset.Preset
	var err error
	c.exec(func() { p, err = c.Presets.Update(ctx, id, patch) })
	if err != nil {
		return nil, err
	}
	c.broadcastPresets(ctx)
	return p, nil
}

func (c *Coordinator) DeletePreset(ctx context.Context, id string) (bool, error) {
	var removed bool
	var err error
	c.exec(func() { removed, err = c.Presets.Delete(ctx, id) })
	if err != nil {
		return false, err
	}
	c.broadcastPresets(ctx)
	return removed, nil
}

func (c *Coordinator) broadcastPresets(ctx context.Context) {
	list, err := c.Presets.List(ctx)
	if err != nil {
		log.Printf("⚠️  coordinator: listing presets after mutation: %v", err)
		return
	}
	c.presetsChangedBroker.Publish(list)
}

// RecallPreset executes the full recall sequence: apply channels
// (instantly or via a fade), apply each fixture's saved mode, and
// broadcast the activation. Per-fixture mode failures are logged but
// never abort the recall.
func (c *Coordinator) RecallPreset(ctx context.Context, id string, fadeTimeOverride *int) error {
	p, err := c.Presets.Get(ctx, id)
	if err != nil {
		return err
	}

	fadeTime := p.FadeTime
	if fadeTimeOverride != nil {
		fadeTime = *fadeTimeOverride
	}

	c.exec(func() {
		if fadeTime > 0 {
			c.Fades.FadeTo(universe.Snapshot(p.Channels), time.Duration(fadeTime)*time.Millisecond)
		} else {
			c.Universe.ApplySnapshotBytes(universe.Snapshot(p.Channels))
		}

		fixtureIDs := make([]string, 0, len(p.FixtureModes))
		for fid := range p.FixtureModes {
			fixtureIDs = append(fixtureIDs, fid)
		}
		sort.Strings(fixtureIDs)
		for _, fid := range fixtureIDs {
			if err := c.applyModeLocked(ctx, fid, p.FixtureModes[fid]); err != nil {
				log.Printf("⚠️  coordinator: preset %s: restoring mode for fixture %s: %v", id, fid, err)
			}
		}
	})

	c.presetActivatedBroker.Publish(PresetActivated{ID: p.ID, Name: p.Name})
	return nil
}
