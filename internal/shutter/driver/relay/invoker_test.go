package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPin struct {
	mu     sync.Mutex
	levels []bool
}

func (p *recordingPin) High() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, true)
	return nil
}

func (p *recordingPin) Low() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, false)
	return nil
}

func TestInvoker(t *testing.T) {
	pin := &recordingPin{}
	invoker := NewInvoker(5 * time.Millisecond)
	invoker.Add("cover.open", &Wired{Pin: pin})

	start := time.Now()
	require.NoError(t, invoker.Invoke(context.Background(), "cover.open"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Equal(t, []bool{false, true}, pin.levels, "active low relay is pulled low for the pulse")

	assert.Error(t, invoker.Invoke(context.Background(), "cover.close"))
}

func TestWiredNormalClosed(t *testing.T) {
	pin := &recordingPin{}
	relay := &Wired{Pin: pin, NormalClosed: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		assert.NoError(t, relay.EnableFor(ctx, time.Hour))
		close(done)
	}()

	assert.Eventually(t, relay.IsEnabled, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.False(t, relay.IsEnabled())
	assert.Equal(t, []bool{true, false}, pin.levels)
}

func TestNewInvokerDefaultPulse(t *testing.T) {
	assert.Equal(t, DefaultPulse, NewInvoker(0).pulse)
}
