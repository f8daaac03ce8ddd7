// Package relay pulses relays on behalf of cover actions, e.g. the open and close inputs of a motor controller.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Relay interface {
	EnableFor(ctx context.Context, duration time.Duration) error
	IsEnabled() bool
}

// PoolProxy limits how many relays sharing the pool are enabled at once.
type PoolProxy struct {
	r Relay
	c chan struct{}
}

func NewPoolProxy(r Relay, pool chan struct{}) *PoolProxy {
	return &PoolProxy{r: r, c: pool}
}

func (p *PoolProxy) EnableFor(ctx context.Context, duration time.Duration) error {
	select {
	case p.c <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		<-p.c
	}()

	return p.r.EnableFor(ctx, duration)
}

func (p *PoolProxy) IsEnabled() bool {
	return p.r.IsEnabled()
}

// Dumb is a relay without hardware, it only logs.
type Dumb struct {
	Name string

	enabled atomic.Bool
}

func (r *Dumb) EnableFor(ctx context.Context, duration time.Duration) error {
	r.enabled.Store(true)
	defer r.enabled.Store(false)

	logrus.Warnf("%s: dumb relay enabled (for %s)", r.Name, duration.String())

	select {
	case <-time.After(duration):
		logrus.Warnf("%s: dumb relay done", r.Name)
		return nil
	case <-ctx.Done():
		logrus.Warnf("%s: dumb relay exit", r.Name)
		return ctx.Err()
	}
}

func (r *Dumb) IsEnabled() bool {
	return r.enabled.Load()
}
