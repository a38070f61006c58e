package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/rs/zerolog/log"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "hx711-client"
	DefaultStateTopic = "hx711/weight"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	deviceClassWeight      = "weight"
	stateClassMeasurement  = "measurement"
	valueTemplateWeight    = "{{ value_json.weight }}"
	disconnectQuiesceMs    = 250
)

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

// statePayload is the JSON document published for every reading.
type statePayload struct {
	Weight float64 `json:"weight"`
	Raw    int     `json:"raw"`
	Unit   string  `json:"unit"`
}

func NewMQTT(cfg config.MQTTConfig, unit string) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}

	// Publish Home Assistant discovery payload if requested
	if cfg.DiscoveryTopic != "" {
		payload := discoveryPayload(cfg, unit)
		if err := m.publishJSON(cfg.DiscoveryTopic, true, payload); err != nil {
			log.Error().Err(err).Str("topic", cfg.DiscoveryTopic).Msg("mqtt discovery publish")
		}
	}

	return m, nil
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		if err := m.publishJSON(m.stateTopic, false, newStatePayload(r)); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: fill in the server, client id and state topic when unset
func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

func newStatePayload(r sensor.Reading) statePayload {
	return statePayload{Weight: r.Value, Raw: r.Raw, Unit: r.Unit}
}

// helper: discovery payload for the weight sensor entity
func discoveryPayload(cfg config.MQTTConfig, unit string) map[string]interface{} {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("HX711 %s", cfg.ClientID)
	}
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          cfg.StateTopic,
		keyDeviceClass:         deviceClassWeight,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateWeight,
		keyJSONAttributesTopic: cfg.StateTopic,
	}
	if unit != "" {
		payload[keyUnitOfMeasurement] = unit
	}
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid != "" {
		payload[keyUniqueID] = uid
	}
	return payload
}

// helper: marshal and publish JSON payload
func (m *MQTTOutput) publishJSON(topic string, retained bool, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}
