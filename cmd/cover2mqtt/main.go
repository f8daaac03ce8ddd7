package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/api"
	"github.com/jkaflik/cover2mqtt/internal/hass"
	"github.com/jkaflik/cover2mqtt/internal/mqtt"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/driver/timebased"
	"github.com/jkaflik/cover2mqtt/internal/storage"
	"github.com/jkaflik/cover2mqtt/internal/websocket"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debugf(".env not loaded: %s", err)
	}
	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	if err := loadConfigFromYamlFile(*configPath); err != nil {
		logrus.Fatal(err)
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	// hardware outlives the covers so they can release relays on shutdown
	hwCtx, hwCancel := context.WithCancel(context.Background())
	defer hwCancel()

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	var (
		db    *storage.DB
		store shutter.PositionStore
	)
	if Cfg.Storage.Path != "" {
		db, err = storage.NewDB(Cfg.Storage.Path)
		if err != nil {
			logrus.Fatal(err)
		}
		defer db.Close()

		if err := storage.RunMigrations(db); err != nil {
			logrus.Fatal(err)
		}
		store = storage.NewPositionRepository(db)
		logrus.Infof("positions are stored in %s", db.Path())
	}

	d := &daemon{availability: mqtt.AvailabilityTopic(Cfg.MQTT.TopicPrefix)}

	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		d.subscribe(ctx, m)
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	var ha *hass.Client
	if Cfg.HomeAssistant.URL != "" {
		ha, err = hass.NewClient(hass.Config{
			URL:     Cfg.HomeAssistant.URL,
			Token:   Cfg.HomeAssistant.Token,
			Timeout: Cfg.HomeAssistant.Timeout,
		})
		if err != nil {
			logrus.Fatal(err)
		}
	}

	relays := newRelayDriver(hwCtx, Cfg.Drivers.Relay)
	invokers, err := invokersFromConfig(m, ha, relays)
	if err != nil {
		logrus.Fatal(err)
	}

	covers, err := d.coversFromConfig(ctx, m, ha, invokers, store)
	if err != nil {
		logrus.Fatal(err)
	}
	d.subscribe(ctx, m)

	if Cfg.HTTP.Listen != "" {
		go serveHTTP(ctx, covers, m, db)
	}

	<-ctx.Done()

	logrus.Info("shutting down...")
	for _, cover := range covers {
		if err := cover.Shutdown(); err != nil {
			logrus.Error(err)
		}
	}
	relays.release()

	if err := mqtt.PublishAvailability(m, d.availability, mqtt.AvailabilityOffline); err != nil {
		logrus.Error(err)
	}
	m.Disconnect(uint(time.Second.Milliseconds()))
}

type daemon struct {
	availability string

	mu      sync.Mutex
	bridges []*mqtt.Bridge
	resubs  []resubscriber
}

// subscribe (re)establishes every MQTT subscription, it runs on each broker connection.
func (d *daemon) subscribe(ctx context.Context, m paho.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, bridge := range d.bridges {
		if Cfg.HASS.Enabled {
			entity := mqtt.NewHACoverFromMQTTBridge(bridge, d.availability)
			if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
				logrus.Error(err)
			}
		}

		if err := bridge.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}

	for _, r := range d.resubs {
		if err := r.Resubscribe(); err != nil {
			logrus.Error(err)
		}
	}

	if err := mqtt.PublishAvailability(m, d.availability, mqtt.AvailabilityOnline); err != nil {
		logrus.Error(err)
	}
}

func (d *daemon) coversFromConfig(ctx context.Context, m paho.Client, ha *hass.Client, invokers invokers, store shutter.PositionStore) ([]*timebased.Cover, error) {
	var covers []*timebased.Cover

	for _, cfg := range Cfg.Covers {
		cover, err := coverFromConfig(cfg, invokers, store)
		if err != nil {
			return nil, err
		}
		covers = append(covers, cover)

		bridge := mqtt.NewBridge(m, cover, Cfg.MQTT.TopicPrefix)
		if cfg.Metadata != nil {
			if err := bridge.SetMetadata(cfg.Metadata); err != nil {
				logrus.Error(err)
			}
		}

		if store != nil {
			if err := cover.Restore(ctx); err != nil {
				logrus.Error(err)
			}
		} else if err := bridge.RestorePosition(); err != nil {
			logrus.Error(err)
		}

		resubs, err := watchContacts(ctx, cover, cfg.Contacts, m, ha)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.bridges = append(d.bridges, bridge)
		d.resubs = append(d.resubs, resubs...)
		d.mu.Unlock()

		logrus.Infof("%s: cover ready at %.0f", cover.Name(), cover.Position())
	}

	return covers, nil
}

func invokersFromConfig(m paho.Client, ha *hass.Client, relays *relayDriver) (invokers, error) {
	i := invokers{
		"mqtt": mqtt.NewInvoker(m, Cfg.MQTT.PressPayload),
	}
	if ha != nil {
		i["hass"] = ha
	}
	if len(Cfg.Drivers.Relay.Relays) > 0 {
		r, err := relays.invoker()
		if err != nil {
			return nil, err
		}
		i["relay"] = r
	}

	return i, nil
}

func serveHTTP(ctx context.Context, covers []*timebased.Cover, m paho.Client, db *storage.DB) {
	shutters := make([]shutter.Shutter, 0, len(covers))
	for _, c := range covers {
		shutters = append(shutters, c)
	}
	registry := api.NewCovers(shutters...)

	hub := websocket.NewHub()
	go hub.Run(ctx)
	api.Feed(registry, hub)

	checks := map[string]api.HealthCheck{
		"mqtt": func(context.Context) error {
			if !m.IsConnectionOpen() {
				return errors.New("not connected")
			}
			return nil
		},
	}
	if db != nil {
		checks["storage"] = db.PingContext
	}

	server := &http.Server{
		Addr:              Cfg.HTTP.Listen,
		Handler:           api.NewRouter(registry, hub, checks),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("HTTP server shutdown failed: %s", err)
		}
	}()

	logrus.Infof("HTTP API listening on %s", Cfg.HTTP.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("HTTP server failed: %s", err)
	}
}
