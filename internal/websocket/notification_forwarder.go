package websocket

import "context"

// EventSink is the upstream event bus a NotificationForwarder mirrors into
// the hub. The Home Assistant REST client satisfies it.
type EventSink interface {
	FireEvent(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// NotificationForwarder relays fired notification events to connected
// browser clients in addition to the upstream event bus, so an open
// dashboard sees milestones and warnings without polling the event log.
type NotificationForwarder struct {
	upstream EventSink
	hub      *Hub
}

// NewNotificationForwarder wraps an upstream sink with hub mirroring.
func NewNotificationForwarder(upstream EventSink, hub *Hub) *NotificationForwarder {
	return &NotificationForwarder{upstream: upstream, hub: hub}
}

// FireEvent broadcasts the event to the hub and forwards it upstream. The
// broadcast is best-effort either way; the upstream result is returned.
func (f *NotificationForwarder) FireEvent(ctx context.Context, eventType string, payload map[string]interface{}) error {
	f.hub.BroadcastToAll(Message{
		Type: MessageTypeNotification,
		Data: map[string]interface{}{
			"event_type": eventType,
			"payload":    payload,
		},
	})
	return f.upstream.FireEvent(ctx, eventType, payload)
}
