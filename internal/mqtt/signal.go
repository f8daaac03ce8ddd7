package mqtt

import (
	"context"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/contact"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Signal is a boolean state published on a topic, e.g. a door sensor bridged by zigbee2mqtt.
type Signal struct {
	client paho.Client
	topic  string

	mu      sync.Mutex
	handler paho.MessageHandler
}

func NewSignal(client paho.Client, topic string) *Signal {
	return &Signal{client: client, topic: topic}
}

func ParseActive(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1", "active":
		return true, nil
	case "off", "false", "0", "inactive":
		return false, nil
	}

	return false, errors.Errorf("%q is not a valid boolean state", payload)
}

func (s *Signal) Watch(ctx context.Context, fn func(active bool)) error {
	fn = contact.OnChange(fn)

	s.mu.Lock()
	s.handler = func(_ paho.Client, msg paho.Message) {
		active, err := ParseActive(string(msg.Payload()))
		if err != nil {
			logrus.Warnf("MQTT signal %s: %s", s.topic, err)
			return
		}
		fn(active)
	}
	s.mu.Unlock()

	if err := s.Resubscribe(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if token := s.client.Unsubscribe(s.topic); token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logrus.Errorf("MQTT signal %s unsubscribe failed: %s", s.topic, token.Error())
		}
	}()

	return nil
}

// Resubscribe subscribes the watched topic again, e.g. after a reconnect with a clean session.
func (s *Signal) Resubscribe() error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return nil
	}

	if token := s.client.Subscribe(s.topic, 0, handler); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "MQTT signal %s subscription failed", s.topic)
	}

	return nil
}
