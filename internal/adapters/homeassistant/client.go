package homeassistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StateChangeHandler receives numeric state changes for monitored entities.
type StateChangeHandler func(entityID string, value float64)

// StatusHandler is invoked when the event stream connects or drops.
type StatusHandler func(connected bool)

// Client maintains the WebSocket connection to Home Assistant, authenticates,
// subscribes to state_changed events and feeds numeric changes of the
// monitored entities to the registered handler. The connection reconnects
// automatically until Stop is called.
type Client struct {
	baseURL        string
	token          string
	reconnectDelay time.Duration
	logger         *logrus.Logger

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	messageID     int
	monitored     map[string]bool
	handler       StateChangeHandler
	statusHandler StatusHandler

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewClient creates a WebSocket client. Monitored entity ids and the handler
// must be set before Start.
func NewClient(baseURL, token string, reconnectDelay time.Duration, logger *logrus.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		token:          token,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		messageID:      1,
		monitored:      make(map[string]bool),
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// SetMonitoredEntities replaces the entity filter. Changes apply to events
// received after the call.
func (c *Client) SetMonitoredEntities(entityIDs []string) {
	m := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		m[id] = true
	}
	c.mu.Lock()
	c.monitored = m
	c.mu.Unlock()
}

// SetStateChangeHandler registers the callback for monitored numeric changes.
func (c *Client) SetStateChangeHandler(h StateChangeHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SetStatusHandler registers the callback for connection status transitions.
// It fires once per transition, not per reconnect attempt.
func (c *Client) SetStatusHandler(h StatusHandler) {
	c.mu.Lock()
	c.statusHandler = h
	c.mu.Unlock()
}

// IsConnected reports whether the event stream is currently established.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Start runs the connect-subscribe-listen loop until Stop. It returns
// immediately; connection failures are retried with a fixed delay.
func (c *Client) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			if err := c.runOnce(ctx); err != nil {
				c.logger.WithError(err).Warn("Home Assistant event stream lost, reconnecting")
			}
			c.setConnected(false)

			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
			}
		}
	}()
}

// Stop shuts the stream down and waits for the loop to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
		<-c.done
	})
}

// runOnce performs one full connection lifecycle: dial, authenticate,
// subscribe, then read events until the connection drops.
func (c *Client) runOnce(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.authenticate(conn); err != nil {
		return fmt.Errorf("websocket authentication failed: %w", err)
	}
	if err := c.subscribeStateChanges(conn); err != nil {
		return fmt.Errorf("subscribe_events failed: %w", err)
	}

	c.setConnected(true)
	c.logger.Info("Subscribed to Home Assistant state changes")

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.stopCh:
				return nil
			default:
			}
			return err
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/websocket"
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// authenticate runs the auth_required / auth / auth_ok handshake.
func (c *Client) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(10 * time.Second)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	defer func() {
		conn.SetReadDeadline(time.Time{})
		conn.SetWriteDeadline(time.Time{})
	}()

	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return err
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", hello.Type)
	}

	if err := conn.WriteJSON(map[string]interface{}{
		"type":         "auth",
		"access_token": c.token,
	}); err != nil {
		return err
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return err
	}
	if result.Type != "auth_ok" {
		return fmt.Errorf("authentication rejected: %s", result.Type)
	}
	return nil
}

func (c *Client) subscribeStateChanges(conn *websocket.Conn) error {
	c.mu.Lock()
	id := c.messageID
	c.messageID++
	c.mu.Unlock()

	return conn.WriteJSON(map[string]interface{}{
		"id":         id,
		"type":       "subscribe_events",
		"event_type": "state_changed",
	})
}

func (c *Client) handleMessage(msg *wsMessage) {
	switch msg.Type {
	case "event":
		if msg.Event != nil && msg.Event.EventType == "state_changed" {
			c.handleStateChanged(&msg.Event.Data)
		}
	case "result":
		if msg.Success != nil && !*msg.Success && msg.Error != nil {
			c.logger.WithFields(logrus.Fields{
				"code":    msg.Error.Code,
				"message": msg.Error.Message,
			}).Warn("Home Assistant command rejected")
		}
	}
}

func (c *Client) handleStateChanged(data *wsEventData) {
	if data.NewState == nil {
		return
	}

	c.mu.RLock()
	watched := c.monitored[data.EntityID]
	handler := c.handler
	c.mu.RUnlock()

	if !watched || handler == nil {
		return
	}

	value, ok := parseNumericState(data.NewState.State)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"entity_id": data.EntityID,
			"state":     data.NewState.State,
		}).Debug("Ignoring non-numeric state change")
		return
	}

	handler(data.EntityID, value)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	changed := c.connected != v
	c.connected = v
	handler := c.statusHandler
	c.mu.Unlock()

	if changed && handler != nil {
		handler(v)
	}
}
