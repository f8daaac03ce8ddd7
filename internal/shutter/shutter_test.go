package shutter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for in, expected := range map[string]Action{"open": ActionOpen, " CLOSE ": ActionClose, "Stop": ActionStop} {
		action, err := ParseAction(in)
		require.NoError(t, err)
		assert.Equal(t, expected, action)
	}

	_, err := ParseAction("toggle")
	assert.Error(t, err)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, ActionOpen, Up.Action())
	assert.Equal(t, ActionClose, Down.Action())
	assert.Equal(t, ActionStop, Stopped.Action())
	assert.Equal(t, Down, Up.Opposite())
	assert.Equal(t, Stopped, Stopped.Opposite())
	assert.Equal(t, "up", Up.String())
}

func TestParseKnownPosition(t *testing.T) {
	t.Run("bare number is a non confident target", func(t *testing.T) {
		known, err := ParseKnownPosition([]byte(" 42 "))
		require.NoError(t, err)
		assert.Equal(t, KnownPosition{Position: 42, PositionType: PositionTypeTarget}, known)
	})

	t.Run("json object", func(t *testing.T) {
		known, err := ParseKnownPosition([]byte(`{"position": 10, "confident": true, "position_type": "current"}`))
		require.NoError(t, err)
		assert.Equal(t, KnownPosition{Position: 10, Confident: true, PositionType: PositionTypeCurrent}, known)
	})

	t.Run("position type defaults to target", func(t *testing.T) {
		known, err := ParseKnownPosition([]byte(`{"position": 0}`))
		require.NoError(t, err)
		assert.Equal(t, PositionTypeTarget, known.PositionType)
	})

	t.Run("invalid payloads", func(t *testing.T) {
		for _, payload := range []string{`{}`, `{"position": 1, "position_type": "past"}`, `open`} {
			_, err := ParseKnownPosition([]byte(payload))
			assert.Error(t, err, payload)
		}
	})
}

func TestStatusAttributes(t *testing.T) {
	status := Status{
		State:         ShutterOpeningState,
		Position:      37.5,
		Target:        100,
		Direction:     Up,
		NextAction:    ActionStop,
		HasNextAction: true,
		Assumed:       true,
		Aliases:       []string{"kitchen"},
	}

	assert.Equal(t, Attributes{
		CurrentPosition: 37.5,
		TargetPosition:  100,
		TravelDirection: "up",
		NextAction:      "stop",
		AssumedState:    true,
		Aliases:         []string{"kitchen"},
	}, status.Attributes())

	status.HasNextAction = false
	assert.Empty(t, status.Attributes().NextAction)
}
