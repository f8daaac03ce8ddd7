package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterlockedEnableFor(t *testing.T) {
	first, second := NewRelayPair(&Dumb{}, &Dumb{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	t.Run("second relay will be not enabled until first gets released", func(t *testing.T) {
		start := time.Now()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			first.EnableFor(ctx, time.Millisecond*5)
			wg.Done()
		}()

		wg.Add(1)
		go func() {
			second.EnableFor(ctx, time.Millisecond*5)
			wg.Done()
		}()

		wg.Wait()
		assert.GreaterOrEqual(t, time.Since(start), time.Millisecond*10)
	})

	t.Run("group of three never overlaps", func(t *testing.T) {
		relays := []*Dumb{{}, {}, {}}
		group := NewInterlock(relays[0], relays[1], relays[2])

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			overlap bool
		)
		for _, r := range group {
			wg.Add(1)
			go func(r *Interlocked) {
				defer wg.Done()
				go func() {
					time.Sleep(time.Millisecond)
					enabled := 0
					for _, d := range relays {
						if d.IsEnabled() {
							enabled++
						}
					}
					mu.Lock()
					overlap = overlap || enabled > 1
					mu.Unlock()
				}()
				r.EnableFor(ctx, time.Millisecond*5)
			}(r)
		}
		wg.Wait()

		assert.False(t, overlap)
	})

	t.Run("cancelled context does not enable", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, first.EnableFor(cancelled, time.Millisecond), context.Canceled)
		assert.False(t, first.IsEnabled())
	})
}
