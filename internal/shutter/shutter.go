package shutter

import (
	"context"
)

const (
	FullOpenPosition  = 100
	FullClosePosition = 0
)

type State string

const (
	ShutterOpenState    State = "open"
	ShutterClosedState  State = "closed"
	ShutterOpeningState State = "opening"
	ShutterClosingState State = "closing"
)

// Status is a point-in-time view of a shutter published to hosts.
type Status struct {
	State     State
	Position  float64
	Target    float64
	Direction Direction

	// NextAction is only meaningful when HasNextAction is set (single button actuators).
	NextAction    Action
	HasNextAction bool

	Assumed bool
	Aliases []string
}

type ShutterUpdateHandler func(status Status)

type Shutter interface {
	Name() string

	Position() float64
	State() State
	Status() Status

	OnUpdate(h ShutterUpdateHandler)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPosition(ctx context.Context, position float64) error
}

// StatelessShutter has no position feedback, so its last known position can be restored from outside.
type StatelessShutter interface {
	Shutter

	ResetPosition(position float64) error
}

type PositionType string

const (
	PositionTypeCurrent PositionType = "current"
	PositionTypeTarget  PositionType = "target"
)

// KnownStateShutter accepts out-of-band knowledge about the physical cover, e.g. a manual remote press.
type KnownStateShutter interface {
	Shutter

	SetKnownPosition(ctx context.Context, position float64, confident bool, positionType PositionType) error
	SetKnownAction(ctx context.Context, action Action) error
}
