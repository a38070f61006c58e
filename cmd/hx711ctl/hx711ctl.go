// A utility to read, tare and calibrate a HX711 load cell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/hx711"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hx711ctl",
	Short: "hx711ctl is a utility to read and calibrate a HX711",
	Long:  "hx711ctl reads a HX711 load cell amplifier and derives the tare offset and scale used by hx711-to-mqtt",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

var rootOpts = struct {
	ConfigFile string
	Bus        string
	Gain       int
	Samples    int
	Offset     int
	Scale      float64
	Simulate   bool
}{}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootOpts.ConfigFile, "config", "c", "", "hx711-to-mqtt JSON config file")
	pf.StringVarP(&rootOpts.Bus, "bus", "b", "", "SPI bus, or gpio:<chip>:<clk>:<data>")
	pf.IntVarP(&rootOpts.Gain, "gain", "g", 0, "gain (32, 64 or 128)")
	pf.IntVarP(&rootOpts.Samples, "samples", "n", 0, "samples averaged per reading")
	pf.IntVar(&rootOpts.Offset, "offset", 0, "tare offset in raw units")
	pf.Float64Var(&rootOpts.Scale, "scale", 0, "raw units per unit")
	pf.BoolVar(&rootOpts.Simulate, "simulate", false, "use a simulated HX711")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig starts from the service defaults or config file and applies the
// flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var args []string
	if rootOpts.ConfigFile != "" {
		args = append(args, "-config", rootOpts.ConfigFile)
	}
	cfg, err := config.Load(args)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("bus") {
		cfg.SPIBus = rootOpts.Bus
	}
	if flags.Changed("gain") {
		cfg.Gain = rootOpts.Gain
	}
	if flags.Changed("samples") {
		cfg.Samples = rootOpts.Samples
	}
	if flags.Changed("offset") {
		cfg.CalibrationOffset = rootOpts.Offset
	}
	if flags.Changed("scale") {
		cfg.CalibrationScale = rootOpts.Scale
	}
	if rootOpts.Simulate {
		cfg.SensorType = "simulation"
	}
	return cfg, cfg.Validate()
}

func openDev(cmd *cobra.Command) (*hx711.Dev, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	var d *hx711.Dev
	if cfg.SensorType == "simulation" {
		d, err = sensor.OpenSimulatedDevice(cfg)
	} else {
		d, err = sensor.OpenHostDevice(cfg)
	}
	return d, cfg, err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
