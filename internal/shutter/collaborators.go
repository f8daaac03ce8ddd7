package shutter

import (
	"context"
)

// Invoker runs an external named action: a script, a relay pulse, an MQTT trigger.
// Implementations return once the action has been dispatched, there is no completion feedback.
type Invoker interface {
	Invoke(ctx context.Context, id string) error
}

type InvokerFunc func(ctx context.Context, id string) error

func (f InvokerFunc) Invoke(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Actuator performs open/close/stop on the physical cover.
type Actuator interface {
	// Perform drives the cover towards action. motion is the direction the cover is believed
	// to be travelling in when the action is requested.
	Perform(ctx context.Context, action Action, motion Direction) error

	// Observe informs the actuator about the position and motion the cover is now assumed to have.
	Observe(position float64, motion Direction)
}

// NextActioner is implemented by actuators that cannot address open/close/stop directly.
type NextActioner interface {
	NextAction() Action

	// Halted tells the actuator that the cover travelling in motion was stopped by something else.
	Halted(motion Direction)
}

type PositionStore interface {
	LoadPosition(ctx context.Context, name string) (position float64, found bool, err error)
	SavePosition(ctx context.Context, name string, position float64) error
}

// Signal is an observed boolean input, e.g. an end of travel contact.
// Watch registers fn and returns; fn is called with the current value when known and on every change
// until ctx is done.
type Signal interface {
	Watch(ctx context.Context, fn func(active bool)) error
}
