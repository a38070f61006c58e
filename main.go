package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/console"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

type outputEntry struct {
	Type       string
	Out        output.Output
	IntervalMs int
	last       time.Time
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hx711-to-mqtt: %s\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("hx711-to-mqtt")
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(cw).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg config.Config) (err error) {
	s, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	entries, err := initOutputs(&cfg, cfg.IntervalMs)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeOutputs(entries)) }()

	interval := time.Duration(computeSensorInterval(cfg)) * time.Millisecond
	log.Info().
		Str("bus", cfg.SPIBus).
		Int("gain", cfg.Gain).
		Int("samples", cfg.Samples).
		Dur("interval", interval).
		Int("outputs", len(entries)).
		Msg("started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping")
			return nil
		case now := <-ticker.C:
			readings, err := s.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Warn().Err(err).Msg("read failed")
				continue
			}
			log.Debug().Int("raw", readings[0].Raw).Float64("value", readings[0].Value).Msg("reading")
			publishDue(entries, readings, now)
		}
	}
}

// computeSensorInterval returns the time in ms needed for one averaged
// reading: a conversion period per sample plus one for the readiness wait.
func computeSensorInterval(cfg config.Config) int {
	rate := cfg.RateSPS
	if rate <= 0 {
		rate = 10
	}
	samples := cfg.Samples
	if samples <= 0 {
		samples = 1
	}
	return (samples + 1) * (1000 / rate)
}

// initOutputs builds every configured output, setting a missing interval to
// defaultInterval.
func initOutputs(cfg *config.Config, defaultInterval int) ([]*outputEntry, error) {
	entries := make([]*outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultInterval
		}
		out, err := newOutput(*oc, cfg.Unit)
		if err != nil {
			_ = closeOutputs(entries)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, &outputEntry{Type: oc.Type, Out: out, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}

func newOutput(oc config.OutputConfig, unit string) (output.Output, error) {
	switch strings.ToLower(oc.Type) {
	case "console":
		return console.NewConsole(), nil
	case "mqtt":
		var mc config.MQTTConfig
		if oc.MQTT != nil {
			mc = *oc.MQTT
		}
		return mqtt.NewMQTT(mc, unit)
	}
	return nil, fmt.Errorf("unknown output type %q", oc.Type)
}

// publishDue hands the readings to every output whose interval has elapsed.
func publishDue(entries []*outputEntry, readings []sensor.Reading, now time.Time) {
	for _, e := range entries {
		if !e.last.IsZero() && now.Sub(e.last) < time.Duration(e.IntervalMs)*time.Millisecond {
			continue
		}
		if err := e.Out.Publish(readings); err != nil {
			log.Warn().Err(err).Str("output", e.Type).Msg("publish failed")
			continue
		}
		e.last = now
	}
}

func closeOutputs(entries []*outputEntry) error {
	var err error
	for _, e := range entries {
		err = multierr.Append(err, e.Out.Close())
	}
	return err
}
