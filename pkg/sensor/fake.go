package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/hx711"
)

// simulated load in units, swinging around a base weight
const (
	fakeBaseLoad  = 500.0
	fakeSwing     = 50.0
	fakeNoise     = 40
	fakeSwingTime = time.Minute
)

// NewFakeSensor runs the HX711 driver against a simulated device that
// reports a slowly changing load in the configured calibration.
func NewFakeSensor(cfg config.Config) (Sensor, error) {
	dev, err := OpenSimulatedDevice(cfg)
	if err != nil {
		return nil, err
	}
	s, err := newHX711Sensor(context.Background(), cfg, dev)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSimulatedDevice is OpenDevice on a simulated bus.
func OpenSimulatedDevice(cfg config.Config) (*hx711.Dev, error) {
	sim := hx711.NewSimulator(simulatedLoad(cfg, time.Now))
	return OpenDevice(cfg, sim.Open)
}

func simulatedLoad(cfg config.Config, now func() time.Time) func(hx711.Gain) int32 {
	var mu sync.Mutex
	start := now()
	return func(g hx711.Gain) int32 {
		mu.Lock()
		defer mu.Unlock()
		phase := 2 * math.Pi * float64(now().Sub(start)) / float64(fakeSwingTime)
		load := fakeBaseLoad + fakeSwing*math.Sin(phase)
		raw := float64(cfg.CalibrationOffset) + load*cfg.CalibrationScale
		raw += float64(rand.Intn(2*fakeNoise+1) - fakeNoise)
		// clamp to the 24-bit range
		return int32(math.Max(-(1 << 23), math.Min(1<<23-1, raw)))
	}
}
