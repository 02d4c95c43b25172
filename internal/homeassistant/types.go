package homeassistant

import "encoding/json"

// Websocket API message types used by the client.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"

	typeGetStates       = "get_states"
	typeSubscribeEvents = "subscribe_events"
	typeCallService     = "call_service"

	eventStateChanged = "state_changed"
)

// envelope is the common frame shape. Fields beyond ID/Type are only
// present for some message types.
type envelope struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

type subscribeRequest struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}

type getStatesRequest struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type callServiceRequest struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	Domain      string         `json:"domain"`
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data,omitempty"`
	Target      serviceTarget  `json:"target"`
}

type serviceTarget struct {
	EntityID string `json:"entity_id"`
}

// entityState is one element of a get_states result and the new_state
// of a state_changed event.
type entityState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

type stateChangedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *entityState `json:"new_state"`
	} `json:"data"`
}

// SensorUpdate is one raw sensor-changed notification pushed to the
// controller.
type SensorUpdate struct {
	EntityID string
	Value    string
}
