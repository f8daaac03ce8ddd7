// Package travel estimates the position of a cover from elapsed time and drives a single movement towards a target.
package travel

import (
	"math"
	"time"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/pkg/errors"
)

// Profile holds the time a full 0..100 traverse takes in each direction.
type Profile struct {
	Up   time.Duration
	Down time.Duration
}

func NewProfile(up, down time.Duration) (Profile, error) {
	p := Profile{Up: up, Down: down}
	return p, p.Validate()
}

func (p Profile) Validate() error {
	if p.Up <= 0 {
		return errors.Errorf("travel time up must be positive, got %s", p.Up)
	}
	if p.Down <= 0 {
		return errors.Errorf("travel time down must be positive, got %s", p.Down)
	}

	return nil
}

func (p Profile) For(d shutter.Direction) time.Duration {
	if d == shutter.Down {
		return p.Down
	}

	return p.Up
}

// TimeToTravel returns how long moving from one position to another takes.
func (p Profile) TimeToTravel(from, to float64) time.Duration {
	d := DirectionTo(from, to)
	if d == shutter.Stopped {
		return 0
	}

	return time.Duration(math.Abs(to-from) / 100 * float64(p.For(d)))
}

// Snapshot is the last known or assumed position as of At.
type Snapshot struct {
	Position float64
	At       time.Time
}

// Estimate returns the position reached after travelling in d since start.
// The result is bounded by 0 and 100 only; bounding to a movement target is up to the caller.
// start.At and now should both carry a monotonic clock reading (time.Now does).
func Estimate(start Snapshot, d shutter.Direction, p Profile, now time.Time) float64 {
	if d == shutter.Stopped {
		return start.Position
	}

	elapsed := now.Sub(start.At)
	if elapsed < 0 {
		elapsed = 0
	}

	delta := 100.0
	if duration := p.For(d); duration > 0 {
		delta = elapsed.Seconds() / duration.Seconds() * 100
	}

	if d == shutter.Up {
		return math.Min(shutter.FullOpenPosition, start.Position+delta)
	}

	return math.Max(shutter.FullClosePosition, start.Position-delta)
}

// ClampPosition brings any input into 0..100. NaN is treated as fully closed.
func ClampPosition(position float64) float64 {
	if math.IsNaN(position) {
		return shutter.FullClosePosition
	}

	return math.Max(shutter.FullClosePosition, math.Min(shutter.FullOpenPosition, position))
}

func DirectionTo(from, to float64) shutter.Direction {
	switch {
	case to > from:
		return shutter.Up
	case to < from:
		return shutter.Down
	default:
		return shutter.Stopped
	}
}

// IsEnd reports whether position is a physical end of travel.
func IsEnd(position float64) bool {
	return position <= shutter.FullClosePosition || position >= shutter.FullOpenPosition
}
