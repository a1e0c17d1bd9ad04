// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wlink "github.com/ch32-rs/go-wlink"
)

var (
	flagFlashAddress   string
	flagFlashErase     bool
	flagFlashUnprotect bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <image>",
	Short: "program a firmware image onto the attached chip",
	Long: `flash accepts raw binary, Intel HEX (.hex/.ihex), or ELF images,
detecting the format from the extension and falling back to magic-byte
sniffing. --address overrides the load address for raw images; HEX and
ELF images already carry their own addresses. By default flash does not
erase first -- pass --erase for a clean write, or --unprotect if the
chip's flash read protection needs clearing before it will accept one.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().StringVar(&flagFlashAddress, "address", "", "load address for raw images, e.g. 0x08000000")
	flashCmd.Flags().BoolVar(&flagFlashErase, "erase", false, "erase before programming")
	flashCmd.Flags().BoolVar(&flagFlashUnprotect, "unprotect", false, "unprotect, reset, and re-attach once if flash is protected")
}

func runFlash(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	var address *uint32
	if flagFlashAddress != "" {
		v, err := wlink.ParseAddressLiteral(flagFlashAddress)
		if err != nil {
			return err
		}
		address = &v
	}

	req := wlink.FlashRequest{
		Path:           args[0],
		Address:        address,
		Erase:          flagFlashErase,
		Unprotect:      flagFlashUnprotect,
		EnableSdiPrint: flagEnableSdiPrint,
	}

	return wlink.RunFlash(opts, req, func(stage wlink.ProgressStage, done, total uint32) {
		if total == 0 {
			fmt.Printf("%s\n", stage)
			return
		}
		fmt.Printf("%-10s %7d / %7d bytes\n", stage, done, total)
	})
}
