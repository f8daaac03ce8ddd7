package actuator

import (
	"context"
	"sync"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/sirupsen/logrus"
)

const DefaultPulseDelay = 500 * time.Millisecond

// SingleButton drives a cover through one undifferentiated trigger, e.g. an RF remote button,
// that cycles the motor through open, stop and close. The effect of the next pulse is inferred
// from the last actions taken; there is no way to query the hardware.
type SingleButton struct {
	name    string
	invoker shutter.Invoker
	button  string
	delay   time.Duration

	mu   sync.Mutex
	next shutter.Action
}

func NewSingleButton(name string, invoker shutter.Invoker, button string, delay time.Duration) *SingleButton {
	if delay <= 0 {
		delay = DefaultPulseDelay
	}

	return &SingleButton{
		name:    name,
		invoker: invoker,
		button:  button,
		delay:   delay,
		next:    shutter.ActionOpen,
	}
}

// NextAction is what a single pulse is believed to make the cover do.
func (b *SingleButton) NextAction() shutter.Action {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.next
}

// Plan returns how many pulses reach desired given the current motion and what the next pulse will do afterwards.
func Plan(next, desired shutter.Action, motion shutter.Direction) (pulses int, after shutter.Action) {
	switch desired {
	case shutter.ActionStop:
		if motion == shutter.Stopped {
			return 0, next
		}
		return 1, motion.Opposite().Action()
	case shutter.ActionOpen:
		if motion == shutter.Down {
			return 2, shutter.ActionStop
		}
		return 1, shutter.ActionStop
	case shutter.ActionClose:
		if motion == shutter.Up {
			return 2, shutter.ActionStop
		}
		return 1, shutter.ActionStop
	}

	return 0, next
}

func (b *SingleButton) Perform(ctx context.Context, desired shutter.Action, motion shutter.Direction) error {
	pulses, after := Plan(b.NextAction(), desired, motion)
	if pulses == 0 {
		logrus.Debugf("%s: %s while %s needs no pulse", b.name, desired, motion)
		return nil
	}

	if b.button == "" {
		logrus.Warnf("%s: single button action not configured, %s skipped", b.name, desired)
		return nil
	}

	for i := 1; i <= pulses; i++ {
		if i > 1 {
			select {
			case <-time.After(b.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		logrus.Debugf("%s: pulse %d/%d for %s", b.name, i, pulses, desired)
		if err := b.invoker.Invoke(ctx, b.button); err != nil {
			logrus.Errorf("%s: pulse %d/%d failed: %s", b.name, i, pulses, err)
		}
	}

	b.mu.Lock()
	b.next = after
	b.mu.Unlock()

	return nil
}

// Observe updates the belief from a position update: ends reverse the next action, travel makes it stop.
func (b *SingleButton) Observe(position float64, motion shutter.Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case motion != shutter.Stopped:
		b.next = shutter.ActionStop
	case position <= shutter.FullClosePosition:
		b.next = shutter.ActionOpen
	case position >= shutter.FullOpenPosition:
		b.next = shutter.ActionClose
	}
}

// Halted makes the next pulse reverse the direction the cover was stopped in, like a stop pulse does.
func (b *SingleButton) Halted(motion shutter.Direction) {
	if motion == shutter.Stopped {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next = motion.Opposite().Action()
}
