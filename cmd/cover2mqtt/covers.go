package main

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/contact"
	"github.com/jkaflik/cover2mqtt/internal/hass"
	"github.com/jkaflik/cover2mqtt/internal/mqtt"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/actuator"
	"github.com/jkaflik/cover2mqtt/internal/shutter/driver/timebased"
	"github.com/pkg/errors"
)

// invokers holds the configured ways of triggering external actions, keyed by actuator.invoker.
type invokers map[string]shutter.Invoker

func (i invokers) get(name string) (shutter.Invoker, error) {
	if name == "" {
		name = "hass"
	}

	invoker, ok := i[name]
	if !ok {
		return nil, errors.Errorf("%s invoker is not configured", name)
	}
	return invoker, nil
}

func actuatorFromConfig(cfg cfgCover, invokers invokers) (shutter.Actuator, error) {
	invoker, err := invokers.get(cfg.Actuator.Invoker)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", cfg.Name)
	}

	switch cfg.Actuator.Kind {
	case "multi_script":
		return actuator.NewMultiScript(cfg.Name, invoker, actuator.Scripts{
			Open:  cfg.Actuator.Open,
			Close: cfg.Actuator.Close,
			Stop:  cfg.Actuator.Stop,
		}), nil
	case "single_button":
		return actuator.NewSingleButton(cfg.Name, invoker, cfg.Actuator.Button, cfg.Actuator.PulseDelay), nil
	}

	return nil, errors.Errorf("%s: %s is not supported actuator kind", cfg.Name, cfg.Actuator.Kind)
}

func coverFromConfig(cfg cfgCover, invokers invokers, store shutter.PositionStore) (*timebased.Cover, error) {
	profile, err := cfg.profile()
	if err != nil {
		return nil, err
	}

	a, err := actuatorFromConfig(cfg, invokers)
	if err != nil {
		return nil, err
	}

	var opts []timebased.Option
	if store != nil {
		opts = append(opts, timebased.WithStore(store))
	}

	return timebased.NewCover(timebased.Config{
		Name:    cfg.Name,
		Aliases: cfg.Aliases,
		Profile: profile,
		Policy:  cfg.Policy.policy(),
		Tick:    cfg.Tick,
	}, a, opts...)
}

// resubscriber is implemented by signals bound to an MQTT subscription.
type resubscriber interface {
	Resubscribe() error
}

// signalFromConfig returns a nil signal when the contact is not configured.
func signalFromConfig(cfg cfgContact, client paho.Client, ha *hass.Client) (shutter.Signal, resubscriber, error) {
	var (
		signal shutter.Signal
		resub  resubscriber
	)

	switch cfg.Kind {
	case "":
		return nil, nil, nil
	case "gpio":
		return contact.GPIO{Chip: cfg.Chip, Line: cfg.Line, ActiveLow: cfg.Inverted, Debounce: cfg.Debounce}, nil, nil
	case "mqtt":
		if cfg.Topic == "" {
			return nil, nil, errors.New("mqtt contact needs a topic")
		}
		s := mqtt.NewSignal(client, cfg.Topic)
		signal, resub = s, s
	case "hass":
		if ha == nil {
			return nil, nil, errors.New("hass contact needs homeassistant.url")
		}
		if cfg.Entity == "" {
			return nil, nil, errors.New("hass contact needs an entity")
		}
		signal = hass.NewSignal(ha, cfg.Entity, cfg.Poll)
	default:
		return nil, nil, errors.Errorf("%s is not supported contact kind", cfg.Kind)
	}

	if cfg.Inverted {
		signal = contact.Invert(signal)
	}
	return signal, resub, nil
}

// watchContacts binds the configured end of travel contacts to the cover.
func watchContacts(ctx context.Context, c *timebased.Cover, cfg cfgContacts, client paho.Client, ha *hass.Client) ([]resubscriber, error) {
	var resubs []resubscriber

	for _, binding := range []struct {
		contact timebased.Contact
		cfg     cfgContact
	}{
		{timebased.ContactClosed, cfg.Closed},
		{timebased.ContactOpen, cfg.Open},
	} {
		signal, resub, err := signalFromConfig(binding.cfg, client, ha)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: %s contact", c.Name(), binding.contact)
		}
		if signal == nil {
			continue
		}

		if err := c.WatchContact(ctx, binding.contact, signal); err != nil {
			return nil, err
		}
		if resub != nil {
			resubs = append(resubs, resub)
		}
	}

	return resubs, nil
}
