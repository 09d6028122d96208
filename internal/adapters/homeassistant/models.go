package homeassistant

import "time"

// EntityState is one entity's state as returned by the REST API.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// wsMessage is a Home Assistant WebSocket API frame.
type wsMessage struct {
	ID      int      `json:"id,omitempty"`
	Type    string   `json:"type"`
	Success *bool    `json:"success,omitempty"`
	Error   *wsError `json:"error,omitempty"`
	Event   *wsEvent `json:"event,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
	Origin    string      `json:"origin"`
	TimeFired string      `json:"time_fired"`
}

type wsEventData struct {
	EntityID string        `json:"entity_id"`
	NewState *wsStateValue `json:"new_state"`
	OldState *wsStateValue `json:"old_state"`
}

type wsStateValue struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}
