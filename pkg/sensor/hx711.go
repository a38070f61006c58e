package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/hx711"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"
)

type HX711Sensor struct {
	dev     *hx711.Dev
	samples int
	unit    string
}

// NewHX711Sensor opens the HX711 on the configured bus.
func NewHX711Sensor(cfg config.Config) (Sensor, error) {
	dev, err := OpenHostDevice(cfg)
	if err != nil {
		return nil, err
	}
	s, err := newHX711Sensor(context.Background(), cfg, dev)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenHostDevice initialises the host drivers and opens the HX711 on the
// configured bus.
func OpenHostDevice(cfg config.Config) (*hx711.Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	return OpenDevice(cfg, Opener(cfg.SPIBus))
}

// OpenDevice builds the driver and loads the stored calibration.
func OpenDevice(cfg config.Config, open hx711.Opener) (*hx711.Dev, error) {
	gain, err := hx711.ParseGain(cfg.Gain)
	if err != nil {
		return nil, err
	}
	dev, err := hx711.New(open, cfg.SPIBus, gain, buildDeviceOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("open hx711: %w", err)
	}
	dev.SetOffset(cfg.CalibrationOffset)
	dev.SetScale(cfg.CalibrationScale)
	return dev, nil
}

func newHX711Sensor(ctx context.Context, cfg config.Config, dev *hx711.Dev) (*HX711Sensor, error) {
	s := &HX711Sensor{dev: dev, samples: cfg.Samples, unit: cfg.Unit}
	if cfg.TareOnStart {
		offset, err := dev.Tare(ctx, cfg.Samples)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("tare: %w", err)
		}
		log.Info().Int("offset", offset).Str("device", dev.String()).Msg("tared")
	}
	return s, nil
}

func (s *HX711Sensor) Close() error {
	if s.dev != nil {
		return s.dev.Close()
	}
	return nil
}

func (s *HX711Sensor) Read(ctx context.Context) ([]Reading, error) {
	avg, err := s.dev.ReadAverage(ctx, s.samples)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.dev, err)
	}
	value := float64(avg) / s.dev.Scale()
	return []Reading{{Raw: avg, Value: value, Unit: s.unit, Timestamp: time.Now()}}, nil
}
