package timebased

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/actuator"
	"github.com/jkaflik/cover2mqtt/internal/shutter/travel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type recordingInvoker struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvoker) Invoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingInvoker) invoked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type memoryStore struct {
	mu        sync.Mutex
	positions map[string]float64
	err       error
}

func (m *memoryStore) LoadPosition(_ context.Context, name string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	p, ok := m.positions[name]
	return p, ok, nil
}

func (m *memoryStore) SavePosition(_ context.Context, name string, position float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[name] = position
	return nil
}

func (m *memoryStore) get(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[name]
	return p, ok
}

var scripts = actuator.Scripts{Open: "script.open", Close: "script.close", Stop: "script.stop"}

func newTestCover(t *testing.T, clock *fakeClock, policy travel.Policy, a shutter.Actuator, opts ...Option) *Cover {
	t.Helper()

	c, err := NewCover(Config{
		Name:    "test",
		Aliases: []string{"living room"},
		Profile: travel.Profile{Up: 20 * time.Second, Down: 20 * time.Second},
		Policy:  policy,
		Tick:    time.Millisecond,
	}, a, append(opts, WithClock(clock.Now))...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Shutdown()
	})

	return c
}

func stopsAtEnds() travel.Policy {
	policy := travel.DefaultPolicy()
	policy.StopAtEnds = true
	return policy
}

func waitStopped(t *testing.T, c *Cover) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Direction() == shutter.Stopped
	}, time.Second, time.Millisecond)
}

func TestNewCover(t *testing.T) {
	_, err := NewCover(Config{Name: "test"}, actuator.NewMultiScript("test", &recordingInvoker{}, scripts))
	assert.Error(t, err)

	_, err = NewCover(Config{Name: "test", Profile: travel.Profile{Up: time.Second, Down: time.Second}}, nil)
	assert.Error(t, err)

	c, err := NewCover(Config{Name: "test", Profile: travel.Profile{Up: time.Second, Down: time.Second}}, actuator.NewMultiScript("test", &recordingInvoker{}, scripts))
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Position())
	assert.Equal(t, shutter.ShutterClosedState, c.State())
	assert.True(t, c.Assumed())
	require.NoError(t, c.Shutdown())
}

func TestCoverOpenScenario(t *testing.T) {
	for _, stop := range []bool{false, true} {
		policy := travel.DefaultPolicy()
		policy.StopAtEnds = stop

		t.Run(map[bool]string{false: "without stop at ends", true: "with stop at ends"}[stop], func(t *testing.T) {
			clock := newFakeClock()
			invoker := &recordingInvoker{}
			c := newTestCover(t, clock, policy, actuator.NewMultiScript("test", invoker, scripts))

			require.NoError(t, c.Open(context.Background()))
			assert.Eventually(t, func() bool {
				return len(invoker.invoked()) == 1
			}, time.Second, time.Millisecond)
			assert.True(t, c.IsOpening())
			assert.Equal(t, shutter.ShutterOpeningState, c.State())

			clock.Add(10 * time.Second)
			assert.InDelta(t, 50.0, c.Position(), 1e-9)

			clock.Add(10 * time.Second)
			waitStopped(t, c)
			assert.Equal(t, 100.0, c.Position())
			assert.Equal(t, shutter.ShutterOpenState, c.State())

			expected := []string{"script.open"}
			if stop {
				expected = append(expected, "script.stop")
			}
			assert.Eventually(t, func() bool {
				return assert.ObjectsAreEqual(expected, invoker.invoked())
			}, time.Second, time.Millisecond)
		})
	}
}

func TestCoverSupersedingCommand(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	c := newTestCover(t, clock, stopsAtEnds(), actuator.NewMultiScript("test", invoker, scripts))
	ctx := context.Background()

	require.NoError(t, c.SetPosition(ctx, 100))
	clock.Add(5 * time.Second)
	require.NoError(t, c.SetPosition(ctx, 0))

	assert.InDelta(t, 25.0, c.Position(), 1e-9, "new movement starts where the previous one was cancelled")
	assert.True(t, c.IsClosing())
	assert.Equal(t, 0.0, c.Status().Target)

	clock.Add(5 * time.Second)
	waitStopped(t, c)
	assert.Equal(t, 0.0, c.Position())
	assert.True(t, c.IsClosed())

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"script.open", "script.close", "script.stop"}, invoker.invoked())
	}, time.Second, time.Millisecond)
}

func TestCoverMidrangeTarget(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	c := newTestCover(t, clock, stopsAtEnds(), actuator.NewMultiScript("test", invoker, scripts))

	require.NoError(t, c.SetPosition(context.Background(), 30))
	clock.Add(time.Minute)
	waitStopped(t, c)

	assert.Equal(t, 30.0, c.Position(), "position never runs past the target")
	assert.Equal(t, []string{"script.open"}, invoker.invoked(), "midrange without smart stop does not stop")
}

func TestCoverStopIsUnconditional(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", invoker, scripts))
	ctx := context.Background()

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, []string{"script.stop"}, invoker.invoked())

	require.NoError(t, c.SetPosition(ctx, 100))
	clock.Add(4 * time.Second)
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, shutter.Stopped, c.Direction())
	assert.InDelta(t, 20.0, c.Position(), 1e-9)
	assert.Equal(t, []string{"script.stop", "script.open", "script.stop"}, invoker.invoked())

	clock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.InDelta(t, 20.0, c.Position(), 1e-9, "cancelled movement applies no further updates")
}

func TestCoverAlreadyOnPosition(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	c := newTestCover(t, clock, stopsAtEnds(), actuator.NewMultiScript("test", invoker, scripts))
	ctx := context.Background()

	require.NoError(t, c.SetPosition(ctx, 0))
	assert.Equal(t, []string{"script.stop"}, invoker.invoked(), "end position applies the end stop rule")

	require.NoError(t, c.ResetPosition(40))
	require.NoError(t, c.SetPosition(ctx, 40))
	assert.Equal(t, []string{"script.stop"}, invoker.invoked())
	assert.Equal(t, shutter.Stopped, c.Direction())
}

func TestCoverClampsInput(t *testing.T) {
	clock := newFakeClock()
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts))
	ctx := context.Background()

	require.NoError(t, c.SetPosition(ctx, math.NaN()))
	assert.Equal(t, shutter.Stopped, c.Direction())
	assert.Equal(t, 0.0, c.Position())

	require.NoError(t, c.SetPosition(ctx, 150))
	assert.Equal(t, 100.0, c.Status().Target)
	require.NoError(t, c.Stop(ctx))

	require.NoError(t, c.ResetPosition(math.Inf(-1)))
	assert.Equal(t, 0.0, c.Position())
}

func TestCoverCancelledContext(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", invoker, scripts))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.SetPosition(ctx, 100), context.Canceled)
	assert.Equal(t, shutter.Stopped, c.Direction())
	assert.Empty(t, invoker.invoked())
}

func TestCoverSingleButton(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	button := actuator.NewSingleButton("test", invoker, "button.remote", time.Millisecond)
	c := newTestCover(t, clock, travel.DefaultPolicy(), button)
	ctx := context.Background()

	next, ok := c.NextAction()
	require.True(t, ok)
	assert.Equal(t, shutter.ActionOpen, next)

	require.NoError(t, c.Open(ctx))
	assert.Len(t, invoker.invoked(), 1)
	assert.Equal(t, shutter.ActionStop, c.Status().NextAction)

	clock.Add(5 * time.Second)
	require.NoError(t, c.Close(ctx))
	assert.Len(t, invoker.invoked(), 3, "reversal stops first and starts again")
	assert.True(t, c.IsClosing())

	require.NoError(t, c.Stop(ctx))
	assert.Len(t, invoker.invoked(), 4)
	assert.Equal(t, shutter.ActionOpen, c.Status().NextAction)
	assert.InDelta(t, 25.0, c.Position(), 1e-9)

	require.NoError(t, c.Stop(ctx))
	assert.Len(t, invoker.invoked(), 4, "stopping a stationary cover needs no pulse")
}

// cancellingInvoker cancels the caller's context once it has been invoked.
type cancellingInvoker struct {
	recordingInvoker

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *cancellingInvoker) Invoke(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	return c.recordingInvoker.Invoke(ctx, id)
}

func (c *cancellingInvoker) cancelOnInvoke(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
}

func TestCoverSingleButtonReversalOutlivesCaller(t *testing.T) {
	clock := newFakeClock()
	invoker := &cancellingInvoker{}
	button := actuator.NewSingleButton("test", invoker, "button.remote", 10*time.Millisecond)
	c := newTestCover(t, clock, travel.DefaultPolicy(), button)

	require.NoError(t, c.ResetPosition(100))
	require.NoError(t, c.Close(context.Background()))
	clock.Add(5 * time.Second)
	require.Len(t, invoker.invoked(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	invoker.cancelOnInvoke(cancel)

	require.NoError(t, c.Open(ctx))
	assert.Len(t, invoker.invoked(), 3, "both pulses of the reversal go out")
	assert.True(t, c.IsOpening())
	assert.InDelta(t, 75.0, c.Position(), 1e-9)
	next, _ := c.NextAction()
	assert.Equal(t, shutter.ActionStop, next)
}

func TestCoverSingleButtonArrival(t *testing.T) {
	clock := newFakeClock()
	invoker := &recordingInvoker{}
	button := actuator.NewSingleButton("test", invoker, "button.remote", time.Millisecond)
	c := newTestCover(t, clock, travel.DefaultPolicy(), button)

	require.NoError(t, c.Open(context.Background()))
	clock.Add(20 * time.Second)
	waitStopped(t, c)

	assert.Len(t, invoker.invoked(), 1)
	next, _ := c.NextAction()
	assert.Equal(t, shutter.ActionClose, next, "fully open cover closes on the next pulse")
}

func TestCoverUpdates(t *testing.T) {
	clock := newFakeClock()
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts))

	var (
		mu       sync.Mutex
		statuses []shutter.Status
	)
	c.OnUpdate(func(status shutter.Status) {
		mu.Lock()
		statuses = append(statuses, status)
		mu.Unlock()
	})

	require.NoError(t, c.Open(context.Background()))
	clock.Add(20 * time.Second)
	waitStopped(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, shutter.ShutterOpeningState, statuses[0].State)
	last := statuses[len(statuses)-1]
	assert.Equal(t, shutter.ShutterOpenState, last.State)
	assert.Equal(t, 100.0, last.Position)
	assert.Equal(t, []string{"living room"}, last.Aliases)
	assert.False(t, last.HasNextAction)
}

func TestCoverStore(t *testing.T) {
	clock := newFakeClock()
	store := &memoryStore{positions: map[string]float64{"test": 60}}
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts), WithStore(store))

	require.NoError(t, c.Restore(context.Background()))
	assert.Equal(t, 60.0, c.Position())

	require.NoError(t, c.SetPosition(context.Background(), 20))
	assert.Error(t, c.ResetPosition(10), "reset is refused while moving")

	clock.Add(20 * time.Second)
	waitStopped(t, c)
	assert.Eventually(t, func() bool {
		p, _ := store.get("test")
		return p == 20
	}, time.Second, time.Millisecond)

	t.Run("missing position keeps the default", func(t *testing.T) {
		c := newTestCover(t, newFakeClock(), travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts), WithStore(&memoryStore{positions: map[string]float64{}}))
		require.NoError(t, c.Restore(context.Background()))
		assert.Equal(t, 0.0, c.Position())
	})

	t.Run("load failure is returned", func(t *testing.T) {
		c := newTestCover(t, newFakeClock(), travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts), WithStore(&memoryStore{positions: map[string]float64{}, err: errors.New("disk full")}))
		assert.Error(t, c.Restore(context.Background()))
	})
}

func TestCoverConcurrentCommands(t *testing.T) {
	clock := newFakeClock()
	c := newTestCover(t, clock, travel.DefaultPolicy(), actuator.NewMultiScript("test", &recordingInvoker{}, scripts))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				_ = c.Stop(ctx)
				return
			}
			_ = c.SetPosition(ctx, float64(i*5))
			_ = c.Status()
		}(i)
	}
	wg.Wait()

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, shutter.Stopped, c.Direction())

	p := c.Position()
	clock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, p, c.Position(), "no movement survives a stop")
}
