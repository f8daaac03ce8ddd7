package timebased

import (
	"context"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/travel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SetKnownPosition tells the cover where it is, or where it is heading to, without actuating anything.
// A target position starts a virtual movement from the current estimate.
func (c *Cover) SetKnownPosition(ctx context.Context, position float64, confident bool, positionType shutter.PositionType) error {
	position = travel.ClampPosition(position)
	logrus.Infof("%s: known %s position %.1f (confident: %t)", c.name, positionType, position, confident)

	c.cmd.Lock()
	defer c.cmd.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	switch positionType {
	case shutter.PositionTypeCurrent, "":
		c.cancelSession()
		c.force(position)
	case shutter.PositionTypeTarget:
		c.track(position)
	default:
		return errors.Errorf("%s: unknown position type %q", c.name, positionType)
	}

	c.mu.Lock()
	c.confident = confident
	c.mu.Unlock()

	c.settle()

	return nil
}

// SetKnownAction tells the cover that it was started or stopped by something else, e.g. a wall switch.
func (c *Cover) SetKnownAction(ctx context.Context, action shutter.Action) error {
	logrus.Infof("%s: known action %s", c.name, action)

	c.cmd.Lock()
	defer c.cmd.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	switch action {
	case shutter.ActionOpen:
		c.track(shutter.FullOpenPosition)
	case shutter.ActionClose:
		c.track(shutter.FullClosePosition)
	case shutter.ActionStop:
		end, motion := c.cancelSession()
		c.actuator.Observe(end.Position, shutter.Stopped)
		if n, ok := c.actuator.(shutter.NextActioner); ok && !isEnd(end.Position) {
			n.Halted(motion)
		}
		c.settle()
	default:
		return errors.Errorf("%s: unknown action %d", c.name, action)
	}

	return nil
}

// track follows a movement towards target that is already happening.
func (c *Cover) track(target float64) {
	from, _ := c.cancelSession()
	if from.Position == target {
		c.actuator.Observe(target, shutter.Stopped)
		return
	}

	c.start(target, false, true)
}

func isEnd(position float64) bool {
	return position <= shutter.FullClosePosition || position >= shutter.FullOpenPosition
}
