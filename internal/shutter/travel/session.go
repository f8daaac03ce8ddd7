package travel

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultInterval = time.Second

var ErrDegenerate = errors.New("movement target equals start position")

// Intent is a movement from Start towards Target. Direction is always derived from both.
type Intent struct {
	Start     Snapshot
	Target    float64
	Direction shutter.Direction
}

func NewIntent(start Snapshot, target float64) Intent {
	target = ClampPosition(target)

	return Intent{
		Start:     start,
		Target:    target,
		Direction: DirectionTo(start.Position, target),
	}
}

func (i Intent) Degenerate() bool {
	return i.Direction == shutter.Stopped
}

// Bound keeps position from crossing the target in the direction of travel.
func (i Intent) Bound(position float64) float64 {
	switch i.Direction {
	case shutter.Up:
		return math.Min(position, i.Target)
	case shutter.Down:
		return math.Max(position, i.Target)
	default:
		return i.Start.Position
	}
}

type Outcome int

const (
	Running Outcome = iota
	Arrived
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Arrived:
		return "arrived"
	case Cancelled:
		return "cancelled"
	default:
		return "running"
	}
}

type Options struct {
	// Name prefixes log lines.
	Name string

	Profile  Profile
	Policy   Policy
	Actuator shutter.Actuator

	// Drive performs the open/close action when the movement starts.
	Drive bool
	// Virtual movements never actuate, they only track a movement caused elsewhere.
	Virtual bool

	Interval time.Duration
	Now      func() time.Time

	OnTick   func(s *Session, position float64)
	OnArrive func(s *Session, end Snapshot)
}

// Session owns one in-flight movement. It is started with Start and ends either by arriving
// or by Cancel, which waits for the tick loop to exit.
type Session struct {
	name     string
	intent   Intent
	profile  Profile
	policy   Policy
	actuator shutter.Actuator
	drive    bool
	virtual  bool
	interval time.Duration
	now      func() time.Time
	onTick   func(s *Session, position float64)
	onArrive func(s *Session, end Snapshot)

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	last    float64
	outcome Outcome
	end     Snapshot
}

func Start(ctx context.Context, intent Intent, opts Options) (*Session, error) {
	if intent.Degenerate() {
		return nil, ErrDegenerate
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		name:     opts.Name,
		intent:   intent,
		profile:  opts.Profile,
		policy:   opts.Policy,
		actuator: opts.Actuator,
		drive:    opts.Drive,
		virtual:  opts.Virtual,
		interval: opts.Interval,
		now:      opts.Now,
		onTick:   opts.OnTick,
		onArrive: opts.OnArrive,
		done:     make(chan struct{}),
		last:     intent.Start.Position,
	}

	ctx, s.cancel = context.WithCancel(ctx)

	logrus.Debugf(
		"%s: movement %s from %.1f to %.1f (%s, virtual: %t)",
		s.name,
		intent.Direction,
		intent.Start.Position,
		intent.Target,
		s.profile.TimeToTravel(intent.Start.Position, intent.Target),
		s.virtual,
	)

	go s.run(ctx)

	return s, nil
}

func (s *Session) Intent() Intent {
	return s.intent
}

func (s *Session) Direction() shutter.Direction {
	return s.intent.Direction
}

func (s *Session) Target() float64 {
	return s.intent.Target
}

func (s *Session) Virtual() bool {
	return s.virtual
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.outcome
}

// Last returns the most recently published position.
func (s *Session) Last() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// PositionAt returns the estimated position at now, never past the target.
func (s *Session) PositionAt(now time.Time) float64 {
	return s.intent.Bound(Estimate(s.intent.Start, s.intent.Direction, s.profile, now))
}

func (s *Session) reached(position float64) bool {
	if s.intent.Direction == shutter.Up {
		return position >= s.intent.Target || position >= shutter.FullOpenPosition
	}

	return position <= s.intent.Target || position <= shutter.FullClosePosition
}

// Cancel stops the tick loop, waits for it to exit and returns the position the movement is frozen at.
// No stop action is performed. Cancelling an arrived session returns the arrival snapshot.
func (s *Session) Cancel() Snapshot {
	s.mu.Lock()
	if s.outcome == Running {
		s.outcome = Cancelled
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.end.At.IsZero() {
		now := s.now()
		s.end = Snapshot{Position: s.PositionAt(now), At: now}
		s.last = s.end.Position
		logrus.Debugf("%s: movement cancelled at %.1f", s.name, s.end.Position)
	}

	return s.end
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	if s.drive && !s.virtual && s.actuator != nil {
		action := s.intent.Direction.Action()
		if err := s.actuator.Perform(ctx, action, shutter.Stopped); err != nil && ctx.Err() == nil {
			logrus.Errorf("%s: %s action failed: %s", s.name, action, err)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := s.now()
		position := s.PositionAt(now)
		arrived := s.reached(position)

		s.mu.Lock()
		if s.outcome != Running {
			s.mu.Unlock()
			return
		}
		s.last = position
		end := Snapshot{Position: position, At: now}
		if arrived {
			s.outcome = Arrived
			s.end = end
		}
		s.mu.Unlock()

		if !arrived {
			logrus.Tracef("%s: position %.2f", s.name, position)
			if s.onTick != nil {
				s.onTick(s, position)
			}
			continue
		}

		s.arrive(context.WithoutCancel(ctx), end)
		return
	}
}

func (s *Session) arrive(ctx context.Context, end Snapshot) {
	logrus.Debugf("%s: arrived at %.1f", s.name, end.Position)

	if !s.virtual {
		Settle(ctx, s.name, s.policy, s.actuator, end.Position, s.intent.Direction)
	}

	if s.actuator != nil {
		s.actuator.Observe(end.Position, shutter.Stopped)
	}

	if s.onArrive != nil {
		s.onArrive(s, end)
	}
}

// Settle applies the arrival stop rule once for a cover that is at position.
// motion is the direction the cover was travelling in.
func Settle(ctx context.Context, name string, policy Policy, actuator shutter.Actuator, position float64, motion shutter.Direction) {
	if actuator == nil || !policy.ShouldStopAt(position) {
		return
	}

	logrus.Debugf("%s: stop at %.1f", name, position)
	if err := actuator.Perform(ctx, shutter.ActionStop, motion); err != nil {
		logrus.Errorf("%s: stop action failed: %s", name, err)
	}
}
