package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RESTClient talks to the Home Assistant HTTP API. It doubles as the state
// reader and event firer for the accounting engine.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRESTClient creates a REST client for the given Home Assistant instance.
func NewRESTClient(baseURL, token string, logger *logrus.Logger) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// GetState retrieves a specific entity state.
func (c *RESTClient) GetState(ctx context.Context, entityID string) (*EntityState, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get state for entity %s: %w", entityID, err)
	}

	var state EntityState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state response for %s: %w", entityID, err)
	}
	return &state, nil
}

// GetNumericState returns the entity's state as a number. Unavailable,
// unknown, missing and non-numeric states all read as not-ok; the caller
// cannot and need not distinguish them.
func (c *RESTClient) GetNumericState(ctx context.Context, entityID string) (float64, bool) {
	state, err := c.GetState(ctx, entityID)
	if err != nil {
		c.logger.WithError(err).WithField("entity_id", entityID).Debug("Entity state not readable")
		return 0, false
	}
	return parseNumericState(state.State)
}

// FireEvent publishes an event of the given type on the Home Assistant event
// bus. Best-effort; there is no acknowledgment beyond the HTTP status.
func (c *RESTClient) FireEvent(ctx context.Context, eventType string, payload map[string]interface{}) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/events/"+eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to fire event %s: %w", eventType, err)
	}
	c.logger.WithField("event_type", eventType).Debug("Fired Home Assistant event")
	return nil
}

// CheckAPI verifies the API is reachable and the token is accepted.
func (c *RESTClient) CheckAPI(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/api/", nil); err != nil {
		return fmt.Errorf("home assistant API check failed: %w", err)
	}
	return nil
}

func (c *RESTClient) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// parseNumericState converts a raw state string to a float. The sentinel
// states "unavailable" and "unknown" are not numbers either.
func parseNumericState(raw string) (float64, bool) {
	if raw == "" || raw == "unavailable" || raw == "unknown" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
