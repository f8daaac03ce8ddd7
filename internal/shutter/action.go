package shutter

import (
	"strings"

	"github.com/pkg/errors"
)

type Action int

const (
	ActionStop Action = iota
	ActionOpen
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	default:
		return "stop"
	}
}

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return ActionOpen, nil
	case "close":
		return ActionClose, nil
	case "stop":
		return ActionStop, nil
	}

	return ActionStop, errors.Errorf("%q is not a valid action", s)
}

// Direction is the direction of travel, Up meaning towards FullOpenPosition.
type Direction int

const (
	Stopped Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "stopped"
	}
}

// Action returns the action that starts travel in d.
func (d Direction) Action() Action {
	switch d {
	case Up:
		return ActionOpen
	case Down:
		return ActionClose
	default:
		return ActionStop
	}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	default:
		return Stopped
	}
}
