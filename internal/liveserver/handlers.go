package liveserver

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/lacylights/dmxengine/internal/fixture"
)

// handleCommand decodes data according to typ and invokes the
// matching coordinator operation. Unknown commands are logged and
// ignored; errors during handling are logged, never disconnecting the client.
func (s *Server) handleCommand(c *client, typ string, data []byte) {
	ctx := context.Background()

	switch typ {
	case "dmx:set-channel":
		var cmd setChannelCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid dmx:set-channel payload"))
			return
		}
		s.coord.SetChannel(cmd.Channel, cmd.Value)

	case "dmx:set-channels":
		var cmd setChannelsCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid dmx:set-channels payload"))
			return
		}
		values := make(map[int]int, len(cmd.Values))
		for k, v := range cmd.Values {
			ch, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			values[ch] = v
		}
		s.coord.SetChannels(values)

	case "dmx:master":
		var cmd masterCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid dmx:master payload"))
			return
		}
		s.coord.SetMaster(cmd.Value)

	case "dmx:blackout":
		var cmd blackoutCmd
		_ = json.Unmarshal(data, &cmd)
		s.coord.Blackout(cmd.FadeTime)

	case "preset:recall":
		var cmd presetRecallCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid preset:recall payload"))
			return
		}
		if err := s.coord.RecallPreset(ctx, cmd.ID, cmd.FadeTime); err != nil {
			log.Printf("⚠️  liveserver: preset:recall %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "preset:save":
		var cmd presetSaveCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid preset:save payload"))
			return
		}
		if _, err := s.coord.SavePreset(ctx, cmd.Name, cmd.FadeTime, cmd.Color); err != nil {
			log.Printf("⚠️  liveserver: preset:save: %v", err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "preset:update":
		var cmd presetUpdateCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid preset:update payload"))
			return
		}
		existing, err := s.coord.Presets.Get(ctx, cmd.ID)
		if err != nil {
			log.Printf("⚠️  liveserver: preset:update %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
			return
		}
		if cmd.Name != nil {
			existing.Name = *cmd.Name
		}
		if cmd.FadeTime != nil {
			existing.FadeTime = *cmd.FadeTime
		}
		if cmd.Color != nil {
			existing.Color = *cmd.Color
		}
		if _, err := s.coord.UpdatePreset(ctx, cmd.ID, existing); err != nil {
			log.Printf("⚠️  liveserver: preset:update %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "preset:delete":
		var cmd presetDeleteCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid preset:delete payload"))
			return
		}
		if _, err := s.coord.DeletePreset(ctx, cmd.ID); err != nil {
			log.Printf("⚠️  liveserver: preset:delete %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:create":
		var cmd fixtureCreateCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:create payload"))
			return
		}
		if _, err := s.coord.CreateFixture(ctx, cmd.Name, cmd.Type, cmd.Channels, fixture.ColorMode(cmd.ColorMode)); err != nil {
			log.Printf("⚠️  liveserver: fixture:create: %v", err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:create-from-profile":
		var cmd fixtureCreateFromProfileCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:create-from-profile payload"))
			return
		}
		if _, err := s.coord.CreateFixtureFromProfile(ctx, cmd.Name, cmd.ProfileID, cmd.StartAddress); err != nil {
			log.Printf("⚠️  liveserver: fixture:create-from-profile: %v", err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:update":
		var cmd fixtureUpdateCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:update payload"))
			return
		}
		existing, err := s.coord.Fixtures.Get(ctx, cmd.ID)
		if err != nil {
			log.Printf("⚠️  liveserver: fixture:update %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
			return
		}
		if cmd.Name != nil {
			existing.Name = *cmd.Name
		}
		if cmd.Type != nil {
			existing.Type = *cmd.Type
		}
		if cmd.ColorMode != nil {
			existing.ColorMode = fixture.ColorMode(*cmd.ColorMode)
		}
		if cmd.Channels != nil {
			existing.Channels = cmd.Channels
		}
		if _, err := s.coord.UpdateFixture(ctx, cmd.ID, existing); err != nil {
			log.Printf("⚠️  liveserver: fixture:update %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:delete":
		var cmd fixtureDeleteCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:delete payload"))
			return
		}
		if _, err := s.coord.DeleteFixture(ctx, cmd.ID); err != nil {
			log.Printf("⚠️  liveserver: fixture:delete %s: %v", cmd.ID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:set-mode":
		var cmd fixtureSetModeCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:set-mode payload"))
			return
		}
		if err := s.coord.SetFixtureMode(ctx, cmd.FixtureID, cmd.ModeName); err != nil {
			log.Printf("⚠️  liveserver: fixture:set-mode %s: %v", cmd.FixtureID, err)
			c.enqueue(errorEvent(err.Error()))
		}

	case "fixture:trigger-start":
		var cmd fixtureTriggerCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:trigger-start payload"))
			return
		}
		s.coord.TriggerStart(cmd.Channel)

	case "fixture:trigger-end":
		var cmd fixtureTriggerCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:trigger-end payload"))
			return
		}
		s.coord.TriggerEnd(cmd.Channel)

	case "fixture:get-profiles":
		c.enqueue(fixturesProfilesEvent(s.coord.ListProfiles()))

	case "fixture:export":
		doc, err := s.coord.ExportFixtures(ctx)
		if err != nil {
			log.Printf("⚠️  liveserver: fixture:export: %v", err)
			c.enqueue(errorEvent(err.Error()))
			return
		}
		c.enqueue(fixtureExportResultEvent(doc))

	case "fixture:import":
		var cmd fixtureImportCmd
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(errorEvent("invalid fixture:import payload"))
			return
		}
		result, err := s.coord.ImportFixtures(ctx, cmd.Fixtures, fixture.ImportStrategy(cmd.Strategy))
		if err != nil {
			log.Printf("⚠️  liveserver: fixture:import: %v", err)
			c.enqueue(errorEvent(err.Error()))
			return
		}
		c.enqueue(fixtureImportResultEvent(result))

	default:
		log.Printf("⚠️  liveserver: unknown command %q", typ)
	}
}
