// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var flagEraseMethod string

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "bulk-erase the attached chip's flash",
	RunE:  runErase,
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	eraseCmd.Flags().StringVar(&flagEraseMethod, "method", "default", "erase method: default, power-off, pin-rst")
}

func runErase(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	var method wlink.EraseMethod
	switch flagEraseMethod {
	case "default", "":
		method = wlink.EraseDefault
	case "power-off":
		method = wlink.ErasePowerOff
	case "pin-rst":
		method = wlink.ErasePinRst
	default:
		return fmt.Errorf("unknown --method value %q", flagEraseMethod)
	}

	return wlink.RunErase(opts, method)
}
