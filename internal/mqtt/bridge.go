package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttOpenCmd  = "open"
	mqttCloseCmd = "close"
	mqttStopCmd  = "stop"

	DefaultTopicPrefix = "cover2mqtt"

	publishTimeout = 5 * time.Second
)

type Bridge struct {
	mqtt    paho.Client
	shutter shutter.Shutter

	StateTopic      string
	PositionTopic   string
	AttributesTopic string
	NextActionTopic string
	MetadataTopic   string

	CommandTopic        string
	PositionChangeTopic string
	KnownPositionTopic  string
	KnownActionTopic    string
}

func NewBridge(client paho.Client, s shutter.Shutter, prefix string) *Bridge {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	topic := func(suffix string) string {
		return fmt.Sprintf("%s/%s/%s", prefix, s.Name(), suffix)
	}

	bridge := &Bridge{mqtt: client, shutter: s}
	bridge.StateTopic = topic("state")
	bridge.PositionTopic = topic("position")
	bridge.AttributesTopic = topic("attributes")
	bridge.NextActionTopic = topic("next_action")
	bridge.MetadataTopic = topic("metadata")
	bridge.CommandTopic = topic("set")
	bridge.PositionChangeTopic = topic("position/set")
	bridge.KnownPositionTopic = topic("known_position/set")
	bridge.KnownActionTopic = topic("known_action/set")

	s.OnUpdate(bridge.Publish)

	return bridge
}

func (b *Bridge) Shutter() shutter.Shutter {
	return b.shutter
}

func (b *Bridge) SetMetadata(value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "%s: metadata", b.shutter.Name())
	}

	return errors.Wrapf(b.publish(b.MetadataTopic, payload), "%s: MQTT metadata publish failed", b.shutter.Name())
}

func (b *Bridge) publish(topic string, payload interface{}) error {
	token := b.mqtt.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}

	return token.Error()
}

// Publish sends the status to the state, position, attributes and next action topics.
func (b *Bridge) Publish(status shutter.Status) {
	name := b.shutter.Name()

	if err := b.publish(b.StateTopic, string(status.State)); err != nil {
		logrus.Errorf("%s: MQTT state publish failed: %s", name, err)
	}
	if err := b.publish(b.PositionTopic, strconv.Itoa(int(math.Round(status.Position)))); err != nil {
		logrus.Errorf("%s: MQTT position publish failed: %s", name, err)
	}

	attributes, err := json.Marshal(status.Attributes())
	if err != nil {
		logrus.Errorf("%s: MQTT attributes marshal failed: %s", name, err)
	} else if err := b.publish(b.AttributesTopic, attributes); err != nil {
		logrus.Errorf("%s: MQTT attributes publish failed: %s", name, err)
	}

	if status.HasNextAction {
		if err := b.publish(b.NextActionTopic, status.NextAction.String()); err != nil {
			logrus.Errorf("%s: MQTT next action publish failed: %s", name, err)
		}
	}
}

func (b *Bridge) subscriptions(ctx context.Context) map[string]paho.MessageHandler {
	subscriptions := map[string]paho.MessageHandler{
		b.CommandTopic:        b.onCommandHandler(ctx),
		b.PositionChangeTopic: b.onPositionChangeHandler(ctx),
	}

	if known, ok := b.shutter.(shutter.KnownStateShutter); ok {
		subscriptions[b.KnownPositionTopic] = b.onKnownPositionHandler(ctx, known)
		subscriptions[b.KnownActionTopic] = b.onKnownActionHandler(ctx, known)
	}

	return subscriptions
}

// Subscribe subscribes command topics. It is called again on every reconnect, topics are unsubscribed when ctx is done.
func (b *Bridge) Subscribe(ctx context.Context) error {
	subscriptions := b.subscriptions(ctx)

	for topic, handler := range subscriptions {
		if token := b.mqtt.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			return errors.Wrapf(token.Error(), "%s: MQTT %s subscription failed", b.shutter.Name(), topic)
		}
		logrus.Infof("%s: MQTT %s subscribed", b.shutter.Name(), topic)
	}

	go func() {
		<-ctx.Done()

		topics := make([]string, 0, len(subscriptions))
		for topic := range subscriptions {
			topics = append(topics, topic)
		}
		if token := b.mqtt.Unsubscribe(topics...); token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.shutter.Name(), token.Error())
		}
	}()

	return nil
}

func (b *Bridge) onCommandHandler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var err error

		cmd := string(msg.Payload())
		switch cmd {
		case mqttOpenCmd:
			err = b.shutter.Open(ctx)
		case mqttCloseCmd:
			err = b.shutter.Close(ctx)
		case mqttStopCmd:
			err = b.shutter.Stop(ctx)
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.shutter.Name(), cmd)
		}

		if err != nil {
			logrus.Errorf("%s: MQTT %s command failed: %s", b.shutter.Name(), cmd, err)
		}
	}
}

func (b *Bridge) onPositionChangeHandler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		position, err := shutter.ParsePosition(msg.Payload())
		if err != nil {
			logrus.Errorf("%s: MQTT %s", b.shutter.Name(), err)
			return
		}
		if err := b.shutter.SetPosition(ctx, position); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onKnownPositionHandler(ctx context.Context, s shutter.KnownStateShutter) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		known, err := shutter.ParseKnownPosition(msg.Payload())
		if err != nil {
			logrus.Errorf("%s: MQTT %s", b.shutter.Name(), err)
			return
		}
		if err := s.SetKnownPosition(ctx, known.Position, known.Confident, known.PositionType); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onKnownActionHandler(ctx context.Context, s shutter.KnownStateShutter) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		action, err := shutter.ParseAction(string(msg.Payload()))
		if err != nil {
			logrus.Errorf("%s: MQTT %s", b.shutter.Name(), err)
			return
		}
		if err := s.SetKnownAction(ctx, action); err != nil {
			logrus.Error(err)
		}
	}
}

// RestorePosition resets a stateless shutter to the position retained on the position topic.
// The topic is unsubscribed after the first message.
func (b *Bridge) RestorePosition() error {
	s, ok := b.shutter.(shutter.StatelessShutter)
	if !ok {
		logrus.Warnf("%s: MQTT position restore: shutter is not stateless", b.shutter.Name())
		return nil
	}

	restoreHandler := func(c paho.Client, msg paho.Message) {
		defer func() {
			if token := c.Unsubscribe(b.PositionTopic); token.Wait() && token.Error() != nil {
				logrus.Errorf("%s: MQTT position restore topic unsubscribe failed: %s", b.shutter.Name(), token.Error())
				return
			}

			logrus.Debugf("%s: MQTT position restore topic unsubscribed", b.shutter.Name())
		}()

		position, err := shutter.ParsePosition(msg.Payload())
		if err != nil {
			logrus.Errorf("%s: MQTT position restore failed: %s", b.shutter.Name(), err)
			return
		}
		if err := s.ResetPosition(position); err != nil {
			logrus.Errorf("%s: MQTT position restore failed: %s", b.shutter.Name(), err)
			return
		}

		logrus.Infof("%s: MQTT position restored to %.0f", b.shutter.Name(), position)
	}

	if token := b.mqtt.Subscribe(b.PositionTopic, 0, restoreHandler); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position restore topic subscription failed", b.shutter.Name())
	}

	return nil
}
