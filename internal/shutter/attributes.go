package shutter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Attributes are the extra state attributes published next to state and position.
type Attributes struct {
	CurrentPosition float64  `json:"current_position"`
	TargetPosition  float64  `json:"target_position"`
	TravelDirection string   `json:"travel_direction"`
	NextAction      string   `json:"next_action,omitempty"`
	AssumedState    bool     `json:"assumed_state"`
	Aliases         []string `json:"aliases,omitempty"`
}

func (s Status) Attributes() Attributes {
	a := Attributes{
		CurrentPosition: s.Position,
		TargetPosition:  s.Target,
		TravelDirection: s.Direction.String(),
		AssumedState:    s.Assumed,
		Aliases:         s.Aliases,
	}
	if s.HasNextAction {
		a.NextAction = s.NextAction.String()
	}

	return a
}

type KnownPosition struct {
	Position     float64      `json:"position"`
	Confident    bool         `json:"confident"`
	PositionType PositionType `json:"position_type"`
}

// ParseKnownPosition accepts either a bare number or a JSON object. A bare number is a non confident target.
func ParseKnownPosition(payload []byte) (KnownPosition, error) {
	if position, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64); err == nil {
		return KnownPosition{Position: position, PositionType: PositionTypeTarget}, nil
	}

	var raw struct {
		Position     *float64     `json:"position"`
		Confident    bool         `json:"confident"`
		PositionType PositionType `json:"position_type"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return KnownPosition{}, errors.Wrap(err, "known position payload")
	}
	if raw.Position == nil {
		return KnownPosition{}, errors.New("known position payload: position is required")
	}

	known := KnownPosition{Position: *raw.Position, Confident: raw.Confident, PositionType: raw.PositionType}
	switch known.PositionType {
	case "":
		known.PositionType = PositionTypeTarget
	case PositionTypeCurrent, PositionTypeTarget:
	default:
		return KnownPosition{}, errors.Errorf("known position payload: %q is not a valid position type", known.PositionType)
	}

	return known, nil
}

// ParsePosition parses a position command payload.
func ParsePosition(payload []byte) (float64, error) {
	position, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%q is not a valid position", string(payload))
	}

	return position, nil
}
