package automationserver

import (
	"context"
	"encoding/json"
	"log"
)

// request is the shape of every inbound line: an action discriminator
// plus whatever fields that action needs. Fields required by a given
// action are pointers so a missing key is distinguishable from an
// explicit zero value/empty string.
type request struct {
	Action    string  `json:"action"`
	ID        *string `json:"id"`
	FadeTime  *int    `json:"fadeTime"`
	Channel   *int    `json:"channel"`
	Value     *int    `json:"value"`
	FixtureID *string `json:"fixtureId"`
	ModeName  *string `json:"modeName"`
	State     *string `json:"state"`
}

// response is the shape of every reply: action echoes the request
// (or "unknown" on a parse failure), status is "ok" or "error".
type response struct {
	Status  string      `json:"status"`
	Action  string      `json:"action"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type presetSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FadeTime int    `json:"fadeTime"`
	Color    string `json:"color"`
}

type statusEvent struct {
	Event     string `json:"event"`
	Connected bool   `json:"connected"`
}

type presetActivatedEvent struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

type presetsUpdatedEvent struct {
	Event   string          `json:"event"`
	Presets []presetSummary `json:"presets"`
}

func errorResponse(action, message string) response {
	return response{Status: "error", Action: action, Message: message}
}

func okResponse(action string, data interface{}) response {
	return response{Status: "ok", Action: action, Data: data}
}

// handle decodes line, dispatches the named action against the
// coordinator, and returns the response to write back. Never panics
// on bad input: a malformed line yields an "unknown" error response.
func (s *Server) handle(line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse("unknown", "malformed request")
	}

	ctx := context.Background()

	switch req.Action {
	case "recall_preset":
		if req.ID == nil {
			return errorResponse(req.Action, "missing required field: id")
		}
		if err := s.coord.RecallPreset(ctx, *req.ID, req.FadeTime); err != nil {
			return errorResponse(req.Action, err.Error())
		}
		return okResponse(req.Action, nil)

	case "blackout":
		fadeTime := 0
		if req.FadeTime != nil {
			fadeTime = *req.FadeTime
		}
		s.coord.Blackout(fadeTime)
		return okResponse(req.Action, nil)

	case "set_channel":
		if req.Channel == nil {
			return errorResponse(req.Action, "missing required field: channel")
		}
		if req.Value == nil {
			return errorResponse(req.Action, "missing required field: value")
		}
		s.coord.SetChannel(*req.Channel, *req.Value)
		return okResponse(req.Action, nil)

	case "master_dimmer":
		if req.Value == nil {
			return errorResponse(req.Action, "missing required field: value")
		}
		s.coord.SetMaster(*req.Value)
		return okResponse(req.Action, nil)

	case "set_mode":
		if req.FixtureID == nil {
			return errorResponse(req.Action, "missing required field: fixtureId")
		}
		if req.ModeName == nil {
			return errorResponse(req.Action, "missing required field: modeName")
		}
		if err := s.coord.SetFixtureMode(ctx, *req.FixtureID, *req.ModeName); err != nil {
			return errorResponse(req.Action, err.Error())
		}
		return okResponse(req.Action, nil)

	case "trigger":
		if req.Channel == nil {
			return errorResponse(req.Action, "missing required field: channel")
		}
		if req.State == nil {
			return errorResponse(req.Action, "missing required field: state")
		}
		if *req.State == "on" {
			s.coord.TriggerStart(*req.Channel)
		} else {
			s.coord.TriggerEnd(*req.Channel)
		}
		return okResponse(req.Action, nil)

	case "get_state":
		state := s.coord.CurrentUniverseState()
		status := s.coord.CurrentStatus()
		return okResponse(req.Action, map[string]interface{}{
			"channels":  state.Channels[:],
			"master":    state.Master,
			"connected": status.Connected,
		})

	case "list_presets":
		presets, err := s.coord.ListPresets(ctx)
		if err != nil {
			return errorResponse(req.Action, err.Error())
		}
		return okResponse(req.Action, summarizePresets(presets))

	default:
		log.Printf("⚠️  automationserver: unknown action %q", req.Action)
		return errorResponse("unknown", "unknown action")
	}
}
