package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to connected clients.
const (
	MessageTypeConnection   = "connection"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypeSolarState   = "solar_state_updated"
	MessageTypeNotification = "solar_notification"
	MessageTypeStreamStatus = "stream_status"
)

// Message is one frame sent to WebSocket clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToJSON serializes the message, stamping the send time.
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}
