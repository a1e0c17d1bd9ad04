// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var modeSwitchCmd = &cobra.Command{
	Use:   "mode-switch <rv|dap>",
	Short: "ask the probe to re-enumerate under RISC-V or DAP mode",
	Long: `mode-switch only works on probe variants whose firmware supports
switching without the physical mode button (see "wlink status" for the
detected variant). On success the probe disconnects and re-enumerates
under the other USB product id.`,
	Args: cobra.ExactArgs(1),
	RunE: runModeSwitch,
}

func init() {
	rootCmd.AddCommand(modeSwitchCmd)
}

func runModeSwitch(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	var target wlink.ProbeMode
	switch args[0] {
	case "rv":
		target = wlink.ModeRv
	case "dap":
		target = wlink.ModeDap
	default:
		return fmt.Errorf("unknown mode %q, expected rv or dap", args[0])
	}

	return wlink.RunModeSwitch(opts, target)
}
