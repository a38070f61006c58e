package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(readyCmd, readCmd, unitsCmd)
}

var (
	readyCmd = &cobra.Command{
		Use:   "ready",
		Short: "Report whether a conversion is ready",
		Args:  cobra.NoArgs,
		RunE:  ready,
	}
	readCmd = &cobra.Command{
		Use:   "read",
		Short: "Read the averaged value in raw units, less the offset",
		Args:  cobra.NoArgs,
		RunE:  read,
	}
	unitsCmd = &cobra.Command{
		Use:   "units",
		Short: "Read the averaged value in calibrated units",
		Args:  cobra.NoArgs,
		RunE:  units,
	}
)

func ready(cmd *cobra.Command, args []string) error {
	d, _, err := openDev(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	r, err := d.IsReady(cmdContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), r)
	return nil
}

func read(cmd *cobra.Command, args []string) error {
	d, cfg, err := openDev(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	v, err := d.ReadAverage(cmdContext(cmd), cfg.Samples)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func units(cmd *cobra.Command, args []string) error {
	d, cfg, err := openDev(cmd)
	if err != nil {
		return err
	}
	defer d.Close()
	v, err := d.GetUnits(cmdContext(cmd), cfg.Samples)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.3f %s\n", v, cfg.Unit)
	return nil
}
