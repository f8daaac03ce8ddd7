// Package hass talks to the Home Assistant REST API: scripts and buttons are invoked as cover actions,
// binary sensors are polled as contacts.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("homeassistant: url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	config.URL = strings.TrimRight(config.URL, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

type EntityState struct {
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

// service maps an entity to the service that triggers it.
func service(entityID string) (domain, name string, err error) {
	domain, _, found := strings.Cut(entityID, ".")
	if !found || domain == "" {
		return "", "", errors.Errorf("homeassistant: %q is not an entity id", entityID)
	}

	switch domain {
	case "button", "input_button":
		return domain, "press", nil
	default:
		return domain, "turn_on", nil
	}
}

// Invoke runs the script, presses the button or turns on the entity.
func (c *Client) Invoke(ctx context.Context, entityID string) error {
	domain, name, err := service(entityID)
	if err != nil {
		return err
	}

	logrus.Debugf("homeassistant: call %s.%s for %s", domain, name, entityID)

	return c.CallService(ctx, domain, name, map[string]interface{}{"entity_id": entityID})
}

func (c *Client) CallService(ctx context.Context, domain, service string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "homeassistant: encoding request")
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", domain, service), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	return nil
}

func (c *Client) State(ctx context.Context, entityID string) (EntityState, error) {
	var state EntityState

	resp, err := c.do(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return state, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return state, apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return state, errors.Wrap(err, "homeassistant: decoding response")
	}

	return state, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "homeassistant: creating request")
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "homeassistant: %s %s", method, path)
	}

	return resp, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return errors.Errorf("homeassistant: API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
