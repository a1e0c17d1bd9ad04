// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var (
	flagSerial         string
	flagChip           string
	flagSpeed          string
	flagVerbose        int
	flagNoDetach       bool
	flagNoReset        bool
	flagEnableSdiPrint bool
	flagWatchSerial    bool
)

var rootCmd = &cobra.Command{
	Use:   "wlink",
	Short: "command-line driver for WCH-Link USB debug probes",
	Long: `wlink talks to WCH-Link USB debug probes over the vendor bulk
protocol and drives the RISC-V debug module on attached CH32/CH5xx chips.

Examples:
  wlink flash firmware.hex
  wlink dump 0x08000000 1024 --out dump.bin
  wlink regs
  wlink status`,
	Version:            "0.1.0",
	PersistentPreRunE:  rootPreRun,
	PersistentPostRunE: rootPostRun,
}

func rootPostRun(cmd *cobra.Command, args []string) error {
	if flagWatchSerial {
		return watchSerial()
	}
	return nil
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	switch {
	case flagVerbose >= 2:
		wlink.SetLogLevel(logrus.TraceLevel)
	case flagVerbose == 1:
		wlink.SetLogLevel(logrus.DebugLevel)
	}
	return nil
}

// Execute runs the root command, exiting with a code derived from the
// returned error's ErrorKind (see exitCodeFor).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSerial, "serial", "", "probe serial number to match (default: any)")
	rootCmd.PersistentFlags().StringVar(&flagChip, "chip", "", "expected chip family tag, e.g. 0x09 (default: accept whatever the probe reports)")
	rootCmd.PersistentFlags().StringVar(&flagSpeed, "speed", "medium", "dmi speed: low, medium, high")
	rootCmd.PersistentFlags().BoolVar(&flagNoDetach, "no-detach", false, "leave the chip attached (skip end_process) when the session closes")
	rootCmd.PersistentFlags().BoolVar(&flagNoReset, "no-reset", false, "skip the post-flash core reset")
	rootCmd.PersistentFlags().BoolVar(&flagEnableSdiPrint, "enable-sdi-print", false, "enable SDI-print output on the attached chip (flash verb only)")
	rootCmd.PersistentFlags().BoolVar(&flagWatchSerial, "watch-serial", false, "stream the probe's CDC/SDI-print serial output once the verb completes")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase logging verbosity (-v debug, -vv trace)")
}

// exitCodeFor maps a returned *wlink.Error to the CLI's exit code
// contract: 0 success (never reached here), 1 generic failure, 2 probe
// protocol/hardware failure, 3 chip/flash-level rejection (bad input,
// unsupported capability, or a protected chip that wasn't unprotected).
func exitCodeFor(err error) int {
	var werr *wlink.Error
	if !asWlinkError(err, &werr) {
		return 1
	}

	switch werr.Kind {
	case wlink.ErrImageInvalid, wlink.ErrUnsupported, wlink.ErrFamilyMismatch, wlink.ErrFlashProtected:
		return 3
	case wlink.ErrTransportIo, wlink.ErrFrameMalformed, wlink.ErrProbeRefused,
		wlink.ErrNotAttached, wlink.ErrDmiBusy, wlink.ErrDmiFailed,
		wlink.ErrAbstractCmdError, wlink.ErrHaltTimeout, wlink.ErrEraseTimeout,
		wlink.ErrVerifyMismatch:
		return 2
	default:
		return 1
	}
}

func asWlinkError(err error, target **wlink.Error) bool {
	for err != nil {
		if werr, ok := err.(*wlink.Error); ok {
			*target = werr
			return true
		}

		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func buildOptions() (wlink.Options, error) {
	opts := wlink.Options{Serial: flagSerial, NoDetach: flagNoDetach, NoReset: flagNoReset}

	switch flagSpeed {
	case "low":
		opts.Speed = wlink.SpeedLow
	case "medium", "":
		opts.Speed = wlink.SpeedMedium
	case "high":
		opts.Speed = wlink.SpeedHigh
	default:
		return opts, fmt.Errorf("unknown --speed value %q", flagSpeed)
	}

	if flagChip != "" {
		v, err := wlink.ParseAddressLiteral(flagChip)
		if err != nil {
			return opts, err
		}
		tag := wlink.FamilyTag(v)
		opts.ExpectFamily = &tag
	}

	return opts, nil
}
