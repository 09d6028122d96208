package models

import "time"

// EventLogEntry records one fired notification event
type EventLogEntry struct {
	ID        int       `json:"id" db:"id"`
	Instance  string    `json:"instance" db:"instance"`
	EventType string    `json:"event_type" db:"event_type"`
	Message   string    `json:"message" db:"message"`
	Payload   string    `json:"payload" db:"payload"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
