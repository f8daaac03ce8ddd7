package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/pkg/errors"
)

const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	AttributesTopic  string `json:"json_attr_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadStop      string `json:"pl_stop"`
	PayloadClose     string `json:"pl_cls"`
	Optimistic       bool   `json:"opt"`
}

// AvailabilityTopic is where the daemon announces itself, the MQTT will sets it offline.
func AvailabilityTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return fmt.Sprintf("%s/status", prefix)
}

func NewHACoverFromMQTTBridge(bridge *Bridge, availabilityTopic string) haCover {
	name := bridge.shutter.Name()

	return haCover{
		haEntity: haEntity{
			AvailabilityTopic: availabilityTopic,
			UniqueID:          fmt.Sprintf("cover2mqtt_%s", name),
			Name:              name,
			DeviceClass:       "shutter",

			Device: haDevice{
				Identifiers:  []string{fmt.Sprintf("cover2mqtt_%s", name)},
				Manufacturer: "cover2mqtt",
				Model:        "time based cover",
				Name:         name,
				SWVersion:    "cover2mqtt",
			},
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.PositionChangeTopic,
		AttributesTopic:  bridge.AttributesTopic,
		PositionOpen:     shutter.FullOpenPosition,
		PositionClosed:   shutter.FullClosePosition,
		PayloadOpen:      mqttOpenCmd,
		PayloadStop:      mqttStopCmd,
		PayloadClose:     mqttCloseCmd,
	}
}

func PublishHAAutoDiscovery(client paho.Client, homeAssistantDiscoveryTopicPrefix string, haCover haCover) error {
	topic := fmt.Sprintf("%s/cover/cover2mqtt/%s/config", homeAssistantDiscoveryTopicPrefix, haCover.Name)

	payload, err := json.Marshal(haCover)
	if err != nil {
		return errors.Wrapf(err, "%s: HA discovery", haCover.Name)
	}

	if token := client.Publish(topic, 0, true, payload); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: HA discovery publish failed", haCover.Name)
	}

	return nil
}

// PublishAvailability sets the retained availability of the daemon, one of AvailabilityOnline or AvailabilityOffline.
func PublishAvailability(client paho.Client, topic, payload string) error {
	if token := client.Publish(topic, 0, true, payload); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return errors.Wrapf(token.Error(), "availability publish to %s failed", topic)
	}

	return nil
}
