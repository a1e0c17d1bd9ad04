// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var regsCmd = &cobra.Command{
	Use:   "regs",
	Short: "halt the core and print its general-purpose registers",
	RunE:  runRegs,
}

var readRegCmd = &cobra.Command{
	Use:   "read-reg <csr>",
	Short: "halt the core and read one CSR",
	Args:  cobra.ExactArgs(1),
	RunE:  runReadReg,
}

var writeRegCmd = &cobra.Command{
	Use:   "write-reg <csr> <val>",
	Short: "halt the core and write one CSR",
	Args:  cobra.ExactArgs(2),
	RunE:  runWriteReg,
}

func init() {
	rootCmd.AddCommand(regsCmd)
	rootCmd.AddCommand(readRegCmd)
	rootCmd.AddCommand(writeRegCmd)
}

func runRegs(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	snap, err := wlink.RunRegs(opts)
	if err != nil {
		return err
	}

	fmt.Printf("pc  = 0x%08x\n", snap.Pc)
	for i := 1; i < 32; i++ {
		fmt.Printf("x%-2d = 0x%08x\n", i, snap.Gpr[i])
	}

	return nil
}

func runReadReg(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	csr, err := parseCsrLiteral(args[0])
	if err != nil {
		return err
	}

	value, err := wlink.RunReadReg(opts, csr)
	if err != nil {
		return err
	}

	fmt.Printf("0x%08x\n", value)
	return nil
}

func runWriteReg(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	csr, err := parseCsrLiteral(args[0])
	if err != nil {
		return err
	}

	value, err := wlink.ParseAddressLiteral(args[1])
	if err != nil {
		return err
	}

	return wlink.RunWriteReg(opts, csr, value)
}

func parseCsrLiteral(s string) (uint16, error) {
	v, err := wlink.ParseAddressLiteral(s)
	if err != nil {
		return 0, fmt.Errorf("invalid csr literal: %w", err)
	}

	if v > 0xfff {
		return 0, fmt.Errorf("csr literal 0x%x out of range (12 bits)", v)
	}

	return uint16(v), nil
}
