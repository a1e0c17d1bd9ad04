// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	wlink "github.com/ch32-rs/go-wlink"
)

var flagSerialPort string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSerialPort, "serial-port", "", "CDC/SDI-print serial port to watch, e.g. /dev/ttyACM0 (default: first port found)")
}

// watchSerial runs after a verb completes successfully when --watch-serial
// was given. It opens the probe's CDC/SDI-print endpoint, which by this
// point is free because the vendor bulk session that did the flashing has
// already released its USB handle, and streams lines to stdout until
// SIGINT/SIGTERM.
func watchSerial() error {
	port := flagSerialPort
	if port == "" {
		ports, err := wlink.ListSdiPrintPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return fmt.Errorf("watch-serial: no serial ports found")
		}
		port = ports[0]
	}

	reader, err := wlink.OpenSdiPrint(port)
	if err != nil {
		return err
	}
	defer reader.Close()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		close(stop)
	}()

	return reader.Stream(stop, func(line string) {
		fmt.Println(line)
	})
}
