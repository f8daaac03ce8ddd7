package hass

import (
	"context"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/contact"
	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 2 * time.Second

// Signal polls the state of a binary sensor entity, "on" being active.
// Unavailable and unknown states are skipped.
type Signal struct {
	client   *Client
	entityID string
	interval time.Duration
}

func NewSignal(client *Client, entityID string, interval time.Duration) *Signal {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Signal{client: client, entityID: entityID, interval: interval}
}

func (s *Signal) Watch(ctx context.Context, fn func(active bool)) error {
	fn = contact.OnChange(fn)

	poll := func() {
		state, err := s.client.State(ctx, s.entityID)
		if err != nil {
			if ctx.Err() == nil {
				logrus.Warnf("homeassistant: %s poll failed: %s", s.entityID, err)
			}
			return
		}

		switch state.State {
		case "on":
			fn(true)
		case "off":
			fn(false)
		default:
			logrus.Debugf("homeassistant: %s is %s", s.entityID, state.State)
		}
	}

	poll()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return nil
}
