package travel

import (
	"github.com/jkaflik/cover2mqtt/internal/shutter"
)

// Policy decides when a movement asserts an automatic stop.
type Policy struct {
	// StopAtEnds sends stop when 0 or 100 is reached.
	StopAtEnds bool

	// SmartStopMidrange sends stop when an intermediate target within MidrangeLow..MidrangeHigh is reached.
	SmartStopMidrange bool
	MidrangeLow       float64
	MidrangeHigh      float64

	// StopAtTarget sends stop at intermediate targets SmartStopMidrange does not cover.
	StopAtTarget bool

	// AlwaysConfident reports the position as known rather than assumed.
	AlwaysConfident bool

	// TrackContactRelease follows a cover leaving a confirmed end with a non-actuating movement.
	TrackContactRelease bool
}

func DefaultPolicy() Policy {
	return Policy{
		MidrangeLow:  shutter.FullClosePosition,
		MidrangeHigh: shutter.FullOpenPosition,
	}
}

// ShouldStopAt reports whether reaching position calls for a stop action.
func (p Policy) ShouldStopAt(position float64) bool {
	if IsEnd(position) {
		return p.StopAtEnds
	}

	if p.SmartStopMidrange && p.inMidrange(position) {
		return true
	}

	return p.StopAtTarget
}

func (p Policy) inMidrange(position float64) bool {
	low, high := p.MidrangeLow, p.MidrangeHigh
	if high <= low {
		low, high = shutter.FullClosePosition, shutter.FullOpenPosition
	}

	return position >= low && position <= high
}
