package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
)

type Reading struct {
	// Raw is the averaged conversion less the tare offset.
	Raw       int       `json:"raw"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

type Sensor interface {
	Read(ctx context.Context) ([]Reading, error)
	Close() error
}

// New builds the sensor selected by cfg.SensorType.
func New(cfg config.Config) (Sensor, error) {
	switch cfg.SensorType {
	case "real":
		return NewHX711Sensor(cfg)
	case "simulation":
		return NewFakeSensor(cfg)
	}
	return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
}
