package main

import (
	"io"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/mqtt"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/jkaflik/cover2mqtt/internal/shutter/actuator"
	"github.com/jkaflik/cover2mqtt/internal/shutter/travel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	defaultTravelTime = 25 * time.Second
	defaultTick       = time.Second
)

type cfgWiredRelaySetPin struct {
	Kind string `yaml:"kind"`

	Pin uint8 `yaml:"pin"`

	Mcp23017 int `yaml:"mcp23017"`
}

type cfgRelay struct {
	Kind string `yaml:"kind"`

	Pin          cfgWiredRelaySetPin `yaml:"pin"`
	NormalClosed bool                `yaml:"normal_closed"`

	// Interlock groups relays never enabled together, e.g. up and down of one motor.
	Interlock string `yaml:"interlock"`
}

type cfgMcp23017 struct {
	Bus          uint8 `yaml:"bus"`
	DeviceNumber uint8 `yaml:"device_number"`
}

type cfgRelayDriver struct {
	Pool     int                 `yaml:"pool" default:"0"`
	Pulse    time.Duration       `yaml:"pulse" default:"300ms"`
	Mcp23017 map[int]cfgMcp23017 `yaml:"mcp23017"`
	Relays   map[string]cfgRelay `yaml:"relays"`
}

type cfgDrivers struct {
	Relay cfgRelayDriver `yaml:"relay"`
}

type cfgPolicy struct {
	StopAtEnds          bool    `yaml:"stop_at_ends"`
	SmartStopMidrange   bool    `yaml:"smart_stop_midrange"`
	MidrangeLow         float64 `yaml:"midrange_low"`
	MidrangeHigh        float64 `yaml:"midrange_high"`
	StopAtTarget        bool    `yaml:"stop_at_target"`
	AlwaysConfident     bool    `yaml:"always_confident"`
	TrackContactRelease bool    `yaml:"track_contact_release"`
}

type cfgActuator struct {
	Kind string `yaml:"kind"`

	// Invoker is one of hass, mqtt or relay. Identifiers below are entity ids, topics or relay ids accordingly.
	Invoker string `yaml:"invoker"`

	Open  string `yaml:"open"`
	Close string `yaml:"close"`
	Stop  string `yaml:"stop"`

	Button     string        `yaml:"button"`
	PulseDelay time.Duration `yaml:"pulse_delay"`
}

type cfgContact struct {
	Kind string `yaml:"kind"`

	Chip     string        `yaml:"chip"`
	Line     int           `yaml:"line"`
	Debounce time.Duration `yaml:"debounce"`

	Topic string `yaml:"topic"`

	Entity string        `yaml:"entity"`
	Poll   time.Duration `yaml:"poll"`

	Inverted bool `yaml:"inverted"`
}

type cfgContacts struct {
	Closed cfgContact `yaml:"closed"`
	Open   cfgContact `yaml:"open"`
}

type cfgCover struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`

	TravelTimeUp   time.Duration `yaml:"travel_time_up"`
	TravelTimeDown time.Duration `yaml:"travel_time_down"`
	Tick           time.Duration `yaml:"tick"`

	Policy   cfgPolicy   `yaml:"policy"`
	Actuator cfgActuator `yaml:"actuator"`
	Contacts cfgContacts `yaml:"contacts"`

	Metadata map[string]interface{} `yaml:"metadata"`
}

type cfgMQTT struct {
	ClientID    string `yaml:"client_id" default:"cover2mqtt" env:"CLIENT_ID"`
	Broker      string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"password" env:"PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix" default:"cover2mqtt" env:"TOPIC_PREFIX"`

	PressPayload string `yaml:"press_payload" default:"PRESS" env:"PRESS_PAYLOAD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHomeAssistant struct {
	URL     string        `yaml:"url" env:"URL"`
	Token   string        `yaml:"token" env:"TOKEN"`
	Timeout time.Duration `yaml:"timeout" default:"10s" env:"TIMEOUT"`
}

type cfgHTTP struct {
	Listen string `yaml:"listen" default:":8080" env:"LISTEN"`
}

type cfgStorage struct {
	Path string `yaml:"path" env:"PATH"`
}

type config struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT          cfgMQTT          `yaml:"mqtt" env:"MQTT"`
	HASS          cfgHASS          `yaml:"hass" env:"HASS"`
	HomeAssistant cfgHomeAssistant `yaml:"homeassistant" env:"HOMEASSISTANT"`
	HTTP          cfgHTTP          `yaml:"http" env:"HTTP"`
	Storage       cfgStorage       `yaml:"storage" env:"STORAGE"`

	Covers []cfgCover `yaml:"covers"`

	Drivers cfgDrivers `yaml:"drivers"`
}

var Cfg config

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "C2M",
	SkipFlags: true,
	SkipFiles: true,
})

func loadConfigFromYamlFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "config")
	}
	defer f.Close()

	return decodeConfig(f, &Cfg)
}

func decodeConfig(r io.Reader, cfg *config) error {
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "config decode")
	}

	for i := range cfg.Covers {
		if err := cfg.Covers[i].normalize(); err != nil {
			return err
		}
	}

	return nil
}

// normalize fills defaults of a cover entry and validates it.
func (c *cfgCover) normalize() error {
	if c.Name == "" {
		return errors.New("covers: name is required")
	}
	if c.TravelTimeUp == 0 {
		c.TravelTimeUp = defaultTravelTime
	}
	if c.TravelTimeDown == 0 {
		c.TravelTimeDown = defaultTravelTime
	}
	if c.Tick == 0 {
		c.Tick = defaultTick
	}
	if c.Policy.MidrangeHigh == 0 {
		c.Policy.MidrangeHigh = shutter.FullOpenPosition
	}
	if c.Policy.MidrangeLow >= c.Policy.MidrangeHigh {
		return errors.Errorf("%s: midrange_low must be lower than midrange_high", c.Name)
	}

	switch c.Actuator.Kind {
	case "", "multi_script":
		c.Actuator.Kind = "multi_script"
		if c.Actuator.Open == "" || c.Actuator.Close == "" {
			return errors.Errorf("%s: multi_script actuator needs open and close identifiers", c.Name)
		}
	case "single_button":
		if c.Actuator.Button == "" {
			logrus.Warnf("%s: single_button actuator without a button, movements will not be actuated", c.Name)
		}
		if c.Actuator.PulseDelay == 0 {
			c.Actuator.PulseDelay = actuator.DefaultPulseDelay
		}
	default:
		return errors.Errorf("%s: %s is not supported actuator kind", c.Name, c.Actuator.Kind)
	}

	return nil
}

func (c cfgCover) profile() (travel.Profile, error) {
	p, err := travel.NewProfile(c.TravelTimeUp, c.TravelTimeDown)
	return p, errors.Wrapf(err, "%s", c.Name)
}

func (p cfgPolicy) policy() travel.Policy {
	return travel.Policy{
		StopAtEnds:          p.StopAtEnds,
		SmartStopMidrange:   p.SmartStopMidrange,
		MidrangeLow:         p.MidrangeLow,
		MidrangeHigh:        p.MidrangeHigh,
		StopAtTarget:        p.StopAtTarget,
		AlwaysConfident:     p.AlwaysConfident,
		TrackContactRelease: p.TrackContactRelease,
	}
}

func pahoOptsFromConfig() *paho.ClientOptions {
	availability := mqtt.AvailabilityTopic(Cfg.MQTT.TopicPrefix)

	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetWill(availability, mqtt.AvailabilityOffline, 0, true)
}
