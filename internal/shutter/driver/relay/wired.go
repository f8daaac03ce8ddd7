package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hjkoskel/govattu"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{}
	p.device = device
	p.pin = pin
	err = p.device.PinMode(pin, mcp23017.OUTPUT)
	return p, errors.Wrapf(err, "mcp23017: pin %d", pin)
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// VattuPin is a Raspberry Pi header pin driven through the BCM registers.
type VattuPin struct {
	hw  govattu.Vattu
	pin uint8
}

func NewVattuPin(hw govattu.Vattu, pin uint8) *VattuPin {
	hw.PinMode(pin, govattu.ALToutput)

	return &VattuPin{hw: hw, pin: pin}
}

func (v *VattuPin) High() error {
	v.hw.PinSet(v.pin)
	return nil
}

func (v *VattuPin) Low() error {
	v.hw.PinClear(v.pin)
	return nil
}

// Wired switches a SetPin. Relay boards are usually active low, NormalClosed inverts that.
type Wired struct {
	Pin          SetPin
	NormalClosed bool

	enabled atomic.Bool
}

func (p *Wired) EnableFor(ctx context.Context, duration time.Duration) error {
	after := time.After(duration)
	if err := p.enable(); err != nil {
		return err
	}
	p.enabled.Store(true)
	defer func() {
		if err := p.disable(); err != nil {
			logrus.Errorf("wired relay: disable failed: %s", err)
		}
		p.enabled.Store(false)
	}()

	select {
	case <-after:
	case <-ctx.Done():
		logrus.Debug("wired relay context exit")
	}

	return nil
}

func (p *Wired) IsEnabled() bool {
	return p.enabled.Load()
}

// Release puts the pin in the disabled state.
func (p *Wired) Release() error {
	return p.disable()
}

func (p *Wired) enable() error {
	if !p.NormalClosed {
		return p.Pin.Low()
	}

	return p.Pin.High()
}

func (p *Wired) disable() error {
	if !p.NormalClosed {
		return p.Pin.High()
	}

	return p.Pin.Low()
}
