package relay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPulse = 300 * time.Millisecond

// Invoker enables the relay registered under an action identifier for a short pulse.
type Invoker struct {
	pulse time.Duration

	mu     sync.RWMutex
	relays map[string]Relay
}

func NewInvoker(pulse time.Duration) *Invoker {
	if pulse <= 0 {
		pulse = DefaultPulse
	}

	return &Invoker{pulse: pulse, relays: map[string]Relay{}}
}

func (i *Invoker) Add(id string, r Relay) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.relays[id] = r
}

func (i *Invoker) Invoke(ctx context.Context, id string) error {
	i.mu.RLock()
	r, ok := i.relays[id]
	i.mu.RUnlock()

	if !ok {
		return errors.Errorf("relay %s is not configured", id)
	}

	logrus.Debugf("relay %s: pulse for %s", id, i.pulse.String())

	return errors.Wrapf(r.EnableFor(ctx, i.pulse), "relay %s", id)
}
