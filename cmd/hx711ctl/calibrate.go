package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func init() {
	calibrateCmd.Flags().Float64VarP(&calibrateOpts.Weight, "weight", "w", 0, "known weight placed on the scale, in units")
	calibrateCmd.Flags().BoolVar(&calibrateOpts.KeepOffset, "keep-offset", false, "use the configured offset rather than taring first")
	calibrateCmd.MarkFlagRequired("weight")
	rootCmd.AddCommand(tareCmd, calibrateCmd)
}

var (
	tareCmd = &cobra.Command{
		Use:   "tare",
		Short: "Measure the tare offset of the empty scale",
		Args:  cobra.NoArgs,
		RunE:  tare,
	}
	calibrateCmd = &cobra.Command{
		Use:   "calibrate",
		Short: "Derive the scale from a known weight",
		Long: `Tare the empty scale, wait for the known weight to be placed and
derive the scale from the change in reading. Prints the settings to copy into
the hx711-to-mqtt config file.`,
		Args: cobra.NoArgs,
		RunE: calibrate,
	}
	calibrateOpts = struct {
		Weight     float64
		KeepOffset bool
	}{}
)

type calibration struct {
	Offset int     `json:"calibration_offset"`
	Scale  float64 `json:"calibration_scale"`
}

func tare(cmd *cobra.Command, args []string) error {
	d, cfg, err := openDev(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	offset, err := d.Tare(cmdContext(cmd), cfg.Samples)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "offset=%d\n", offset)
	return nil
}

func calibrate(cmd *cobra.Command, args []string) error {
	if calibrateOpts.Weight == 0 {
		return errors.New("weight must not be 0")
	}
	d, cfg, err := openDev(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	if !calibrateOpts.KeepOffset {
		fmt.Fprintln(out, "remove all load and press enter")
		if err := waitEnter(in); err != nil {
			return err
		}
		if _, err := d.Tare(ctx, cfg.Samples); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "place %g %s on the scale and press enter\n", calibrateOpts.Weight, cfg.Unit)
	if err := waitEnter(in); err != nil {
		return err
	}
	scale, err := d.CalibrateUnits(ctx, calibrateOpts.Weight, cfg.Samples)
	if err != nil {
		return err
	}
	b, err := json.Marshal(calibration{Offset: d.Offset(), Scale: scale})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(b))
	return nil
}

func waitEnter(r *bufio.Reader) error {
	_, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
