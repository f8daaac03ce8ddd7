// Package actuator turns open/close/stop actions into external named action invocations.
package actuator

import (
	"context"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/sirupsen/logrus"
)

// Scripts binds each action to an external action identifier. Empty identifiers are skipped.
type Scripts struct {
	Open  string
	Close string
	Stop  string
}

func (s Scripts) For(action shutter.Action) string {
	switch action {
	case shutter.ActionOpen:
		return s.Open
	case shutter.ActionClose:
		return s.Close
	default:
		return s.Stop
	}
}

// MultiScript addresses open, close and stop independently.
type MultiScript struct {
	name    string
	invoker shutter.Invoker
	scripts Scripts
}

func NewMultiScript(name string, invoker shutter.Invoker, scripts Scripts) *MultiScript {
	return &MultiScript{name: name, invoker: invoker, scripts: scripts}
}

func (m *MultiScript) Perform(ctx context.Context, action shutter.Action, _ shutter.Direction) error {
	id := m.scripts.For(action)
	if id == "" {
		logrus.Debugf("%s: no %s action configured", m.name, action)
		return nil
	}

	logrus.Debugf("%s: invoke %s action %s", m.name, action, id)
	if err := m.invoker.Invoke(ctx, id); err != nil {
		logrus.Errorf("%s: %s action %s failed: %s", m.name, action, id, err)
	}

	return nil
}

func (m *MultiScript) Observe(float64, shutter.Direction) {}
