package timebased

import (
	"context"

	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Contact is an end of travel sensor.
type Contact int

const (
	ContactClosed Contact = iota
	ContactOpen
)

func (k Contact) String() string {
	if k == ContactOpen {
		return "open"
	}

	return "closed"
}

// Position is the end confirmed by an active contact.
func (k Contact) Position() float64 {
	if k == ContactOpen {
		return shutter.FullOpenPosition
	}

	return shutter.FullClosePosition
}

func (k Contact) opposite() Contact {
	if k == ContactOpen {
		return ContactClosed
	}

	return ContactOpen
}

// WatchContact feeds signal changes into HandleContact until ctx is done.
func (c *Cover) WatchContact(ctx context.Context, contact Contact, signal shutter.Signal) error {
	err := signal.Watch(ctx, func(active bool) {
		c.HandleContact(ctx, contact, active)
	})

	return errors.Wrapf(err, "%s: %s contact watch failed", c.name, contact)
}

// HandleContact reconciles the estimate with a contact reading. Only changes count:
// an activation confirms the end position, a release optionally tracks the cover leaving it.
func (c *Cover) HandleContact(ctx context.Context, contact Contact, active bool) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	prev, known := c.contacts[contact]
	c.contacts[contact] = active
	c.mu.Unlock()

	switch {
	case active && !(known && prev):
		c.confirm(ctx, contact)
	case !active && known && prev:
		c.release(contact)
	}
}

func (c *Cover) confirm(ctx context.Context, contact Contact) {
	position := contact.Position()
	logrus.Infof("%s: %s contact active, position confirmed at %.0f", c.name, contact, position)

	_, motion := c.cancelSession()
	c.force(position)

	c.mu.Lock()
	c.confident = true
	c.mu.Unlock()

	// a pulse would start a single button cover again
	if c.policy.StopAtEnds && !c.singleButton() {
		if err := c.actuator.Perform(ctx, shutter.ActionStop, motion); err != nil {
			logrus.Errorf("%s: stop action failed: %s", c.name, err)
		}
	}

	c.settle()
}

func (c *Cover) release(contact Contact) {
	if !c.policy.TrackContactRelease {
		logrus.Debugf("%s: %s contact released", c.name, contact)
		return
	}

	c.mu.RLock()
	moving := c.session != nil
	c.mu.RUnlock()
	if moving {
		logrus.Debugf("%s: %s contact released during a movement", c.name, contact)
		return
	}

	target := contact.opposite().Position()
	logrus.Infof("%s: %s contact released, tracking movement to %.0f", c.name, contact, target)

	c.start(target, false, true)
}
