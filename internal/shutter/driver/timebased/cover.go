// Package timebased implements a cover without position feedback: the position is estimated from travel time
// and reconciled with optional end of travel contacts.
package timebased

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/travel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Name    string
	Aliases []string
	Profile travel.Profile
	Policy  travel.Policy
	Tick    time.Duration
}

type Option func(c *Cover)

func WithStore(store shutter.PositionStore) Option {
	return func(c *Cover) {
		c.store = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cover) {
		c.now = now
	}
}

type Cover struct {
	name     string
	aliases  []string
	profile  travel.Profile
	policy   travel.Policy
	tick     time.Duration
	actuator shutter.Actuator
	store    shutter.PositionStore
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// cmd serializes operations, a new one cancels and awaits the running movement first.
	cmd sync.Mutex

	mu        sync.RWMutex
	snapshot  travel.Snapshot
	target    float64
	session   *travel.Session
	confident bool
	contacts  map[Contact]bool
	handlers  []shutter.ShutterUpdateHandler
}

func NewCover(cfg Config, actuator shutter.Actuator, opts ...Option) (*Cover, error) {
	if cfg.Name == "" {
		return nil, errors.New("cover name is required")
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", cfg.Name)
	}
	if actuator == nil {
		return nil, errors.Errorf("%s: actuator is required", cfg.Name)
	}

	c := &Cover{
		name:     cfg.Name,
		aliases:  cfg.Aliases,
		profile:  cfg.Profile,
		policy:   cfg.Policy,
		tick:     cfg.Tick,
		actuator: actuator,
		now:      time.Now,
		contacts: map[Contact]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.snapshot = travel.Snapshot{Position: shutter.FullClosePosition, At: c.now()}
	c.target = c.snapshot.Position

	return c, nil
}

func (c *Cover) Name() string {
	return c.name
}

func (c *Cover) Aliases() []string {
	return c.aliases
}

func (c *Cover) Position() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.positionLocked(c.now())
}

func (c *Cover) positionLocked(now time.Time) float64 {
	if c.session != nil {
		return c.session.PositionAt(now)
	}

	return c.snapshot.Position
}

func (c *Cover) Direction() shutter.Direction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session != nil {
		return c.session.Direction()
	}

	return shutter.Stopped
}

func (c *Cover) IsOpening() bool {
	return c.Direction() == shutter.Up
}

func (c *Cover) IsClosing() bool {
	return c.Direction() == shutter.Down
}

func (c *Cover) IsClosed() bool {
	return isClosed(c.Position())
}

func (c *Cover) State() shutter.State {
	return c.Status().State
}

// NextAction reports what a single pulse would do, for covers driven by a single button.
func (c *Cover) NextAction() (shutter.Action, bool) {
	if n, ok := c.actuator.(shutter.NextActioner); ok {
		return n.NextAction(), true
	}

	return shutter.ActionStop, false
}

// Assumed reports whether the position is an estimate rather than a confirmed one.
func (c *Cover) Assumed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return !c.policy.AlwaysConfident && !c.confident
}

func (c *Cover) Status() shutter.Status {
	c.mu.RLock()
	position := c.positionLocked(c.now())
	direction, target := shutter.Stopped, c.target
	if c.session != nil {
		direction, target = c.session.Direction(), c.session.Target()
	}
	assumed := !c.policy.AlwaysConfident && !c.confident
	c.mu.RUnlock()

	status := shutter.Status{
		State:     stateFor(position, direction),
		Position:  position,
		Target:    target,
		Direction: direction,
		Assumed:   assumed,
		Aliases:   c.aliases,
	}
	status.NextAction, status.HasNextAction = c.NextAction()

	return status
}

func stateFor(position float64, direction shutter.Direction) shutter.State {
	switch {
	case direction == shutter.Up:
		return shutter.ShutterOpeningState
	case direction == shutter.Down:
		return shutter.ShutterClosingState
	case isClosed(position):
		return shutter.ShutterClosedState
	default:
		return shutter.ShutterOpenState
	}
}

func isClosed(position float64) bool {
	return math.Round(position) <= shutter.FullClosePosition
}

// OnUpdate registers h, every registered handler is called on each status change.
func (c *Cover) OnUpdate(h shutter.ShutterUpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, h)
}

func (c *Cover) Open(ctx context.Context) error {
	logrus.Infof("%s: open", c.name)

	return c.SetPosition(ctx, shutter.FullOpenPosition)
}

func (c *Cover) Close(ctx context.Context) error {
	logrus.Infof("%s: close", c.name)

	return c.SetPosition(ctx, shutter.FullClosePosition)
}

// Stop always performs the stop action, whatever the stop policy says.
func (c *Cover) Stop(ctx context.Context) error {
	logrus.Infof("%s: stop", c.name)

	c.cmd.Lock()
	defer c.cmd.Unlock()

	_, motion := c.cancelSession()
	err := c.actuator.Perform(context.WithoutCancel(ctx), shutter.ActionStop, motion)
	c.settle()

	return err
}

func (c *Cover) SetPosition(ctx context.Context, target float64) error {
	target = travel.ClampPosition(target)
	logrus.Infof("%s: set position to %.1f", c.name, target)

	c.cmd.Lock()
	defer c.cmd.Unlock()

	return c.moveTo(ctx, target)
}

func (c *Cover) moveTo(ctx context.Context, target float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// the running movement is already cancelled, the actuation that follows must complete
	ctx = context.WithoutCancel(ctx)

	from, motion := c.cancelSession()
	if from.Position == target {
		logrus.Debugf("%s: already on a position %.1f", c.name, target)
		travel.Settle(ctx, c.name, c.policy, c.actuator, target, motion)
		c.settle()
		return nil
	}

	direction := travel.DirectionTo(from.Position, target)
	drive := true
	if c.singleButton() {
		// the pulse sequence depends on what the motor is doing now, so it goes out before the movement starts
		if err := c.actuator.Perform(ctx, direction.Action(), motion); err != nil {
			c.settle()
			return err
		}
		drive = false
	}

	c.start(target, drive, false)

	return nil
}

func (c *Cover) singleButton() bool {
	_, ok := c.actuator.(shutter.NextActioner)
	return ok
}

func (c *Cover) start(target float64, drive, virtual bool) {
	c.mu.Lock()
	intent := travel.NewIntent(travel.Snapshot{Position: c.snapshot.Position, At: c.now()}, target)
	c.actuator.Observe(intent.Start.Position, intent.Direction)

	s, err := travel.Start(c.ctx, intent, travel.Options{
		Name:     c.name,
		Profile:  c.profile,
		Policy:   c.policy,
		Actuator: c.actuator,
		Drive:    drive,
		Virtual:  virtual,
		Interval: c.tick,
		Now:      c.now,
		OnTick:   c.onTick,
		OnArrive: c.onArrive,
	})
	if err != nil {
		c.mu.Unlock()
		logrus.Errorf("%s: movement not started: %s", c.name, err)
		return
	}

	c.session = s
	c.target = intent.Target
	c.confident = false
	c.mu.Unlock()

	c.publish()
}

// cancelSession cancels and awaits the running movement, returning where the cover is now
// and the direction it was travelling in.
func (c *Cover) cancelSession() (travel.Snapshot, shutter.Direction) {
	c.mu.RLock()
	s := c.session
	snapshot := c.snapshot
	c.mu.RUnlock()

	if s == nil {
		return snapshot, shutter.Stopped
	}

	logrus.Debugf("%s: found running movement, cancel", c.name)
	end := s.Cancel()

	motion := s.Direction()
	if s.Outcome() == travel.Arrived {
		motion = shutter.Stopped
	}

	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.snapshot = end
	c.target = end.Position
	c.mu.Unlock()

	return end, motion
}

func (c *Cover) onTick(s *travel.Session, _ float64) {
	c.mu.RLock()
	current := c.session == s
	c.mu.RUnlock()

	if current {
		c.publish()
	}
}

func (c *Cover) onArrive(s *travel.Session, end travel.Snapshot) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.snapshot = end
	c.target = end.Position
	c.mu.Unlock()

	logrus.Infof("%s: updated state %s, position %.1f", c.name, stateFor(end.Position, shutter.Stopped), end.Position)

	c.publish()
	c.save(end.Position)
}

// force replaces the position without any movement, e.g. after a confirmation.
func (c *Cover) force(position float64) {
	c.mu.Lock()
	c.snapshot = travel.Snapshot{Position: position, At: c.now()}
	c.target = position
	c.mu.Unlock()

	c.actuator.Observe(position, shutter.Stopped)
}

func (c *Cover) settle() {
	c.publish()

	c.mu.RLock()
	position := c.snapshot.Position
	c.mu.RUnlock()

	c.save(position)
}

func (c *Cover) publish() {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	status := c.Status()
	for _, h := range handlers {
		h(status)
	}
}

func (c *Cover) save(position float64) {
	if c.store == nil {
		return
	}

	if err := c.store.SavePosition(c.ctx, c.name, position); err != nil {
		logrus.Errorf("%s: position save failed: %s", c.name, err)
	}
}

// ResetPosition sets the last known position of an idle cover, e.g. restored after a restart.
func (c *Cover) ResetPosition(position float64) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.RLock()
	moving := c.session != nil
	c.mu.RUnlock()
	if moving {
		return errors.Errorf("%s: position cannot be reset while moving", c.name)
	}

	c.force(travel.ClampPosition(position))
	c.publish()

	return nil
}

// Restore loads the last saved position from the store.
func (c *Cover) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	position, found, err := c.store.LoadPosition(ctx, c.name)
	if err != nil {
		return errors.Wrapf(err, "%s: position restore failed", c.name)
	}
	if !found {
		logrus.Debugf("%s: no saved position", c.name)
		return nil
	}

	if err := c.ResetPosition(position); err != nil {
		return err
	}

	logrus.Infof("%s: position restored to %.1f", c.name, position)

	return nil
}

// Shutdown cancels any movement without actuation and releases the cover.
func (c *Cover) Shutdown() error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	end, _ := c.cancelSession()
	c.save(end.Position)
	c.cancel()

	return nil
}
