package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty"`
}

type OutputConfig struct {
	Type       string      `json:"type"`
	IntervalMs int         `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty"`
}

type Config struct {
	// SPIBus is handed to the bus opener untouched: a periph.io SPI port
	// name such as "SPI0.0", or "gpio:<chip>:<clk>:<data>".
	SPIBus            string         `json:"spi_bus"`
	Gain              int            `json:"gain"`
	FrequencyHz       int            `json:"frequency_hz"`
	RateSPS           int            `json:"rate_sps"`
	Samples           int            `json:"samples"`
	CalibrationOffset int            `json:"calibration_offset"`
	CalibrationScale  float64        `json:"calibration_scale"`
	Unit              string         `json:"unit"`
	TareOnStart       bool           `json:"tare_on_start"`
	PollIntervalMs    int            `json:"poll_interval_ms"`
	ReadyTimeoutMs    int            `json:"ready_timeout_ms"`
	Outputs           []OutputConfig `json:"outputs"`
	SensorType        string         `json:"sensor_type"`
	IntervalMs        int            `json:"interval_ms"`
	LogLevel          string         `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		SPIBus:            "SPI0.0",
		Gain:              128,
		FrequencyHz:       115200,
		RateSPS:           10,
		Samples:           5,
		CalibrationOffset: 0,
		CalibrationScale:  1.0,
		Unit:              "g",
		PollIntervalMs:    1,
		ReadyTimeoutMs:    1000,
		Outputs:           []OutputConfig{{Type: "console", IntervalMs: 1000}},
		SensorType:        "real",
		IntervalMs:        1000,
		LogLevel:          "info",
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and the
// command line flags.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("hx711-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagSPIBus := fs.String("spi-bus", "", "SPI bus (e.g. 'SPI0.0', or 'gpio:gpiochip0:<clk>:<data>')")
	flagGain := fs.Int("gain", -1, "HX711 gain (32, 64 or 128)")
	flagFrequency := fs.Int("frequency", -1, "Bus clock in Hz")
	flagRate := fs.Int("rate", -1, "HX711 output rate (10 or 80 SPS)")
	flagSamples := fs.Int("samples", -1, "Samples averaged per reading")
	flagCalibration := fs.Float64("calibration", math.NaN(), "Calibration scale (raw units per unit)")
	flagCalOffset := fs.String("calibration-offset", "", "Calibration offset (raw units)")
	flagUnit := fs.String("unit", "", "Unit of the calibrated value (e.g. g, kg)")
	flagTare := fs.Bool("tare", false, "Tare on start")
	flagPoll := fs.Int("poll-interval-ms", -1, "Pause between readiness probes in ms (0 yields instead)")
	flagReadyTimeout := fs.Int("ready-timeout-ms", -1, "Readiness timeout in ms (0 waits forever)")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", -1, "Publish interval in ms")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagLogLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	cfg := DefaultConfig()
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagSPIBus != "" {
		cfg.SPIBus = *flagSPIBus
	}
	if *flagGain != -1 {
		cfg.Gain = *flagGain
	}
	if *flagFrequency != -1 {
		cfg.FrequencyHz = *flagFrequency
	}
	if *flagRate != -1 {
		cfg.RateSPS = *flagRate
	}
	if *flagSamples != -1 {
		cfg.Samples = *flagSamples
	}
	if !math.IsNaN(*flagCalibration) {
		cfg.CalibrationScale = *flagCalibration
	}
	if *flagCalOffset != "" {
		v, err := strconv.Atoi(*flagCalOffset)
		if err != nil {
			return cfg, fmt.Errorf("calibration-offset: %w", err)
		}
		cfg.CalibrationOffset = v
	}
	if *flagUnit != "" {
		cfg.Unit = *flagUnit
	}
	if *flagTare {
		cfg.TareOnStart = true
	}
	if *flagPoll != -1 {
		cfg.PollIntervalMs = *flagPoll
	}
	if *flagReadyTimeout != -1 {
		cfg.ReadyTimeoutMs = *flagReadyTimeout
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		outIntervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := outIntervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	// Apply MQTT flags to all mqtt outputs; if none exist, create one.
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	// ensure outputs have interval default
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports the first setting the service cannot run with.
func (c Config) Validate() error {
	switch c.Gain {
	case 32, 64, 128:
	default:
		return fmt.Errorf("gain must be 32, 64 or 128, got %d", c.Gain)
	}
	if c.RateSPS != 10 && c.RateSPS != 80 {
		return fmt.Errorf("rate must be 10 or 80 SPS, got %d", c.RateSPS)
	}
	if c.FrequencyHz <= 0 {
		return errors.New("frequency must be > 0")
	}
	if c.Samples <= 0 {
		return errors.New("samples must be > 0")
	}
	if c.CalibrationScale == 0 {
		return errors.New("calibration scale must not be 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.PollIntervalMs < 0 || c.ReadyTimeoutMs < 0 {
		return errors.New("poll and ready timeout must not be negative")
	}
	switch c.SensorType {
	case "real", "simulation":
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt":
			// unset mqtt settings fall back to the output's defaults
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyIntMap parses "a=1,b=2" into a map.
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s'", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in '%s': %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}
