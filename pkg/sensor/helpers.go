package sensor

import (
	"strings"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/hx711"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
)

// buildDeviceOptions extracts the driver settings from the config.
func buildDeviceOptions(cfg config.Config) []hx711.Option {
	return []hx711.Option{
		hx711.WithFrequency(physic.Frequency(cfg.FrequencyHz) * physic.Hertz),
		hx711.WithPollInterval(time.Duration(cfg.PollIntervalMs) * time.Millisecond),
		hx711.WithReadyTimeout(time.Duration(cfg.ReadyTimeoutMs) * time.Millisecond),
	}
}

// Opener picks how the bus named by the config is opened.
func Opener(bus string) hx711.Opener {
	if strings.HasPrefix(bus, hx711.GPIOPrefix) {
		return hx711.OpenGPIO
	}
	return spireg.Open
}
