// Package contact provides end of travel contact signals.
// The GPIO implementation uses the Linux GPIO character device, Manual allows testing without hardware.
package contact

import (
	"context"
	"sync"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
)

// OnChange wraps fn so that it is only called when the value differs from the previous call.
func OnChange(fn func(active bool)) func(active bool) {
	var (
		mu    sync.Mutex
		known bool
		last  bool
	)

	return func(active bool) {
		mu.Lock()
		defer mu.Unlock()

		if known && last == active {
			return
		}
		known, last = true, active
		fn(active)
	}
}

type inverted struct {
	s shutter.Signal
}

// Invert reports active when s is inactive and the other way around.
func Invert(s shutter.Signal) shutter.Signal {
	return inverted{s: s}
}

func (i inverted) Watch(ctx context.Context, fn func(active bool)) error {
	return i.s.Watch(ctx, func(active bool) {
		fn(!active)
	})
}

// Manual is a signal set by hand.
type Manual struct {
	mu       sync.Mutex
	value    bool
	known    bool
	watchers []func(active bool)
}

func (m *Manual) Watch(ctx context.Context, fn func(active bool)) error {
	fn = OnChange(fn)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchers = append(m.watchers, fn)
	idx := len(m.watchers) - 1
	if m.known {
		fn(m.value)
	}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.watchers[idx] = nil
		m.mu.Unlock()
	}()

	return nil
}

func (m *Manual) Set(active bool) {
	m.mu.Lock()
	m.value, m.known = active, true
	watchers := append([]func(bool){}, m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		if fn != nil {
			fn(active)
		}
	}
}
