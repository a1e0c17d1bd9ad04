// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var flagResetKind string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "reset the attached chip",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVar(&flagResetKind, "kind", "quit", "reset kind: quit, ch57x, normal")
}

func runReset(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	var kind wlink.ResetKind
	switch flagResetKind {
	case "quit", "":
		kind = wlink.ResetQuit
	case "ch57x":
		kind = wlink.ResetForCh57x
	case "normal":
		kind = wlink.ResetNormal
	default:
		return fmt.Errorf("unknown --kind value %q", flagResetKind)
	}

	return wlink.RunReset(opts, kind)
}
