// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var flagDumpOut string

var dumpCmd = &cobra.Command{
	Use:   "dump <address> <length>",
	Short: "read a range of memory off the attached chip",
	Args:  cobra.ExactArgs(2),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&flagDumpOut, "out", "o", "", "write the dump to this file instead of stdout")
}

func runDump(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	addr, err := wlink.ParseAddressLiteral(args[0])
	if err != nil {
		return err
	}

	length, err := wlink.ParseAddressLiteral(args[1])
	if err != nil {
		return err
	}

	data, err := wlink.RunDump(opts, addr, length)
	if err != nil {
		return err
	}

	if flagDumpOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(flagDumpOut, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes to %s\n", len(data), flagDumpOut)
	return nil
}
