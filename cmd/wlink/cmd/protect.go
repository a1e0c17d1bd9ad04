// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var protectCmd = &cobra.Command{
	Use:   "protect",
	Short: "enable flash read protection on the attached chip",
	RunE:  runProtect(true),
}

var unprotectCmd = &cobra.Command{
	Use:   "unprotect",
	Short: "disable flash read protection on the attached chip",
	RunE:  runProtect(false),
}

func init() {
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(unprotectCmd)
}

func runProtect(enable bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions()
		if err != nil {
			return err
		}

		return wlink.RunProtect(opts, enable)
	}
}
