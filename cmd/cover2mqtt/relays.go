package main

import (
	"context"
	"sort"

	"github.com/hjkoskel/govattu"
	"github.com/jkaflik/cover2mqtt/internal/shutter/driver/relay"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

// relayDriver builds relays from drivers.relay and keeps the hardware handles open until ctx is done.
type relayDriver struct {
	ctx  context.Context
	cfg  cfgRelayDriver
	pool chan struct{}

	mcpDevices map[int]*mcp23017.Device
	vattu      govattu.Vattu
	wired      []*relay.Wired
}

func newRelayDriver(ctx context.Context, cfg cfgRelayDriver) *relayDriver {
	d := &relayDriver{ctx: ctx, cfg: cfg, mcpDevices: map[int]*mcp23017.Device{}}
	if cfg.Pool > 0 {
		d.pool = make(chan struct{}, cfg.Pool)
	}

	return d
}

// invoker registers every configured relay under its id. Relays sharing an interlock name never overlap.
func (d *relayDriver) invoker() (*relay.Invoker, error) {
	invoker := relay.NewInvoker(d.cfg.Pulse)

	ids := make([]string, 0, len(d.cfg.Relays))
	for id := range d.cfg.Relays {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := map[string][]string{}
	built := map[string]relay.Relay{}
	for _, id := range ids {
		cfg := d.cfg.Relays[id]

		r, err := d.relayFromConfig(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "drivers.relay.relays.%s", id)
		}
		built[id] = r

		if cfg.Interlock == "" {
			invoker.Add(id, r)
			continue
		}
		groups[cfg.Interlock] = append(groups[cfg.Interlock], id)
	}

	for name, members := range groups {
		relays := make([]relay.Relay, 0, len(members))
		for _, id := range members {
			relays = append(relays, built[id])
		}
		for i, interlocked := range relay.NewInterlock(relays...) {
			invoker.Add(members[i], interlocked)
		}
		logrus.Debugf("relay: interlock %s groups %v", name, members)
	}

	return invoker, nil
}

func (d *relayDriver) relayFromConfig(cfg cfgRelay) (relay.Relay, error) {
	switch cfg.Kind {
	case "wired":
		pin, err := d.wiredRelaySetPinFromConfig(cfg.Pin)
		if err != nil {
			return nil, err
		}
		wired := &relay.Wired{Pin: pin, NormalClosed: cfg.NormalClosed}
		if err := wired.Release(); err != nil {
			return nil, errors.Wrap(err, "wired relay release")
		}
		d.wired = append(d.wired, wired)

		return d.wrapRelayWithPoolProxy(wired), nil
	case "dumb":
		return d.wrapRelayWithPoolProxy(&relay.Dumb{Name: cfg.Kind}), nil
	}

	return nil, errors.Errorf("%s is not supported relay kind", cfg.Kind)
}

func (d *relayDriver) wrapRelayWithPoolProxy(r relay.Relay) relay.Relay {
	if d.pool == nil {
		return r
	}

	return relay.NewPoolProxy(r, d.pool)
}

func (d *relayDriver) wiredRelaySetPinFromConfig(cfg cfgWiredRelaySetPin) (relay.SetPin, error) {
	switch cfg.Kind {
	case "mcp23017":
		device, err := d.mcp23017DeviceByID(cfg.Mcp23017)
		if err != nil {
			return nil, err
		}

		return relay.NewMcp23017Pin(device, cfg.Pin)
	case "vattu":
		hw, err := d.vattuDevice()
		if err != nil {
			return nil, err
		}

		return relay.NewVattuPin(hw, cfg.Pin), nil
	}

	return nil, errors.Errorf("%s is not supported wired relay set pin kind", cfg.Kind)
}

func (d *relayDriver) mcp23017DeviceByID(id int) (*mcp23017.Device, error) {
	if dev := d.mcpDevices[id]; dev != nil {
		return dev, nil
	}

	cfg, found := d.cfg.Mcp23017[id]
	if !found {
		return nil, errors.Errorf("%d is not valid defined drivers.relay.mcp23017", id)
	}

	dev, err := mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "mcp23017 %d", id)
	}
	if err := dev.Reset(); err != nil {
		return nil, errors.Wrapf(err, "mcp23017 %d reset", id)
	}

	go func() {
		<-d.ctx.Done()
		if err := dev.Close(); err != nil {
			logrus.Errorf("mcp23017: close failed %s", err)
			return
		}

		logrus.Infof("mcp23017: close")
	}()

	d.mcpDevices[id] = dev
	return dev, nil
}

func (d *relayDriver) vattuDevice() (govattu.Vattu, error) {
	if d.vattu != nil {
		return d.vattu, nil
	}

	hw, err := govattu.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open gpio")
	}

	go func() {
		<-d.ctx.Done()
		hw.Close()
		logrus.Infof("vattu: close")
	}()

	d.vattu = hw
	return hw, nil
}

// release puts every wired relay back in the disabled state.
func (d *relayDriver) release() {
	for _, w := range d.wired {
		if err := w.Release(); err != nil {
			logrus.Errorf("wired relay: release failed: %s", err)
		}
	}
}
