package liveserver

import (
	"encoding/json"

	"github.com/lacylights/dmxengine/internal/coordinator"
	"github.com/lacylights/dmxengine/internal/fixture"
)

// envelope is the shape every inbound and outbound message shares:
// a "type" discriminator plus whatever fields that type carries.
type envelope struct {
	Type string `json:"type"`
}

func event(typ string, fields map[string]interface{}) []byte {
	out := map[string]interface{}{"type": typ}
	for k, v := range fields {
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		// fields are always JSON-marshalable server-side data; a
		// failure here means a programmer error, not bad input.
		panic(err)
	}
	return data
}

func dmxStateEvent(s coordinator.UniverseState) []byte {
	return event("dmx:state", map[string]interface{}{
		"channels": s.Channels[:],
		"master":   s.Master,
	})
}

func dmxStatusEvent(connected bool, port string) []byte {
	fields := map[string]interface{}{"connected": connected}
	if port != "" {
		fields["port"] = port
	} else {
		fields["port"] = nil
	}
	return event("dmx:status", fields)
}

func presetsListEvent(presets []presetSummary) []byte {
	return event("presets:list", map[string]interface{}{"presets": presets})
}

func fixturesListEvent(fixtures []*fixture.Fixture) []byte {
	return event("fixtures:list", map[string]interface{}{"fixtures": fixtures})
}

func fixturesProfilesEvent(profiles interface{}) []byte {
	return event("fixtures:profiles", map[string]interface{}{"profiles": profiles})
}

func fixturesConflictsEvent(conflicts []string) []byte {
	return event("fixtures:conflicts", map[string]interface{}{"conflicts": conflicts})
}

func presetActivatedEvent(id, name string) []byte {
	return event("preset:activated", map[string]interface{}{"id": id, "name": name})
}

func fixtureExportResultEvent(doc *fixture.ExportDocument) []byte {
	return event("fixture:export-result", map[string]interface{}{"export": doc})
}

func fixtureImportResultEvent(result *fixture.ImportResult) []byte {
	return event("fixture:import-result", map[string]interface{}{
		"added":     result.Added,
		"skipped":   result.Skipped,
		"conflicts": result.Conflicts,
	})
}

func errorEvent(message string) []byte {
	return event("error", map[string]interface{}{"message": message})
}

// presetSummary is the on-the-wire shape of a preset for presets:list;
// the full 512-byte channel array is never sent over the live protocol.
type presetSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FadeTime int    `json:"fadeTime"`
	Color    string `json:"color"`
}

// --- inbound command payloads ---

type setChannelCmd struct {
	Channel int `json:"channel"`
	Value   int `json:"value"`
}

type setChannelsCmd struct {
	Values map[string]int `json:"values"`
}

type masterCmd struct {
	Value int `json:"value"`
}

type blackoutCmd struct {
	FadeTime int `json:"fadeTime"`
}

type presetRecallCmd struct {
	ID       string `json:"id"`
	FadeTime *int   `json:"fadeTime"`
}

type presetSaveCmd struct {
	Name     string `json:"name"`
	FadeTime int    `json:"fadeTime"`
	Color    string `json:"color"`
}

type presetUpdateCmd struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	FadeTime *int    `json:"fadeTime"`
	Color    *string `json:"color"`
}

type presetDeleteCmd struct {
	ID string `json:"id"`
}

type fixtureCreateCmd struct {
	Name      string             `json:"name"`
	Type      string             `json:"type"`
	ColorMode string             `json:"colorMode"`
	Channels  []fixture.Binding  `json:"channels"`
}

type fixtureCreateFromProfileCmd struct {
	Name         string `json:"name"`
	ProfileID    string `json:"profileId"`
	StartAddress int    `json:"startAddress"`
}

type fixtureUpdateCmd struct {
	ID        string            `json:"id"`
	Name      *string           `json:"name"`
	Type      *string           `json:"type"`
	ColorMode *string           `json:"colorMode"`
	Channels  []fixture.Binding `json:"channels"`
}

type fixtureDeleteCmd struct {
	ID string `json:"id"`
}

type fixtureSetModeCmd struct {
	FixtureID string `json:"fixtureId"`
	ModeName  string `json:"modeName"`
}

type fixtureTriggerCmd struct {
	Channel int `json:"channel"`
}

type fixtureImportCmd struct {
	Fixtures []*fixture.Fixture `json:"fixtures"`
	Strategy string             `json:"strategy"`
}
