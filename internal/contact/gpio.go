//go:build linux

package contact

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

const DefaultDebounce = 20 * time.Millisecond

// GPIO is a contact wired to a GPIO line, active when the line is high.
type GPIO struct {
	Chip      string
	Line      int
	ActiveLow bool
	Debounce  time.Duration
}

func (g GPIO) Watch(ctx context.Context, fn func(active bool)) error {
	if g.Chip == "" {
		g.Chip = "gpiochip0"
	}
	if g.Debounce <= 0 {
		g.Debounce = DefaultDebounce
	}

	fn = OnChange(fn)

	options := []gpiocdev.LineReqOption{
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(g.Debounce),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			fn(evt.Type == gpiocdev.LineEventRisingEdge)
		}),
	}
	if g.ActiveLow {
		options = append(options, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(g.Chip, g.Line, options...)
	if err != nil {
		return errors.Wrapf(err, "gpio: request %s line %d", g.Chip, g.Line)
	}

	value, err := line.Value()
	if err != nil {
		line.Close()
		return errors.Wrapf(err, "gpio: read %s line %d", g.Chip, g.Line)
	}
	fn(value == 1)

	go func() {
		<-ctx.Done()
		if err := line.Close(); err != nil {
			logrus.Errorf("gpio: %s line %d close failed: %s", g.Chip, g.Line, err)
		}
	}()

	return nil
}
