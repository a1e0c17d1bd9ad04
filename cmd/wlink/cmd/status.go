// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print probe firmware version and attached chip identity",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	line, err := wlink.RunStatus(opts)
	if err != nil {
		return err
	}

	fmt.Println(line)
	return nil
}
