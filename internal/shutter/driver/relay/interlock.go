package relay

import (
	"context"
	"sync"
	"time"
)

// Interlocked shares a lock with the rest of its group: no two relays of a group are enabled at once,
// e.g. the open and close inputs of the same motor.
type Interlocked struct {
	l *sync.Mutex
	r Relay
}

func NewInterlock(relays ...Relay) []*Interlocked {
	l := &sync.Mutex{}

	group := make([]*Interlocked, 0, len(relays))
	for _, r := range relays {
		group = append(group, &Interlocked{l: l, r: r})
	}

	return group
}

func NewRelayPair(up, down Relay) (*Interlocked, *Interlocked) {
	pair := NewInterlock(up, down)

	return pair[0], pair[1]
}

func (r *Interlocked) EnableFor(ctx context.Context, duration time.Duration) error {
	r.l.Lock()
	defer r.l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.r.EnableFor(ctx, duration)
}

func (r *Interlocked) IsEnabled() bool {
	return r.r.IsEnabled()
}
