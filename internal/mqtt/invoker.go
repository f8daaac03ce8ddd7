package mqtt

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPressPayload = "PRESS"

// Invoker triggers an action by publishing a press payload to the topic named by the action identifier,
// e.g. the command topic of an RF bridge button.
type Invoker struct {
	client  paho.Client
	payload string
}

func NewInvoker(client paho.Client, payload string) *Invoker {
	if payload == "" {
		payload = DefaultPressPayload
	}

	return &Invoker{client: client, payload: payload}
}

func (i *Invoker) Invoke(ctx context.Context, topic string) error {
	logrus.Debugf("MQTT invoke %s", topic)

	token := i.client.Publish(topic, 1, false, i.payload)
	select {
	case <-token.Done():
		return errors.Wrapf(token.Error(), "MQTT invoke %s", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}
