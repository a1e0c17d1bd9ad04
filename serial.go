// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"bufio"
	"io"
	"time"

	"go.bug.st/serial"
)

// SdiPrintReader streams the text a CH32 core writes via its SDI-print
// pseudo-UART, surfaced by the probe's firmware as a plain CDC serial
// port once SetSdiPrintEnabled has been called.
type SdiPrintReader struct {
	port   serial.Port
	reader *bufio.Reader
}

// OpenSdiPrint opens portName (e.g. "/dev/ttyACM0", "COM5") at the fixed
// baud rate the probe firmware always uses for SDI-print passthrough.
func OpenSdiPrint(portName string) (*SdiPrintReader, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errTransportIo("could not open sdi-print serial port", err)
	}

	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return nil, errTransportIo("could not set sdi-print read timeout", err)
	}

	return &SdiPrintReader{port: port, reader: bufio.NewReader(port)}, nil
}

// ReadLine blocks until a full line has arrived or the read timeout set
// at open elapses. A read that ends without a newline (io.EOF) returns
// the partial text, possibly empty, with a nil error, so callers can
// retry in a loop alongside other event sources.
func (r *SdiPrintReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errTransportIo("sdi-print read failed", err)
	}

	return line, nil
}

// Stream calls onLine for every line read until stop is closed or a
// non-timeout read error occurs.
func (r *SdiPrintReader) Stream(stop <-chan struct{}, onLine func(string)) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		line, err := r.ReadLine()
		if err != nil {
			return err
		}

		if line != "" {
			onLine(line)
		}
	}
}

func (r *SdiPrintReader) Close() error {
	return r.port.Close()
}

// ListSdiPrintPorts enumerates serial ports the OS exposes, for CLI
// autodiscovery when the user does not pass --serial-port explicitly.
func ListSdiPrintPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errTransportIo("could not enumerate serial ports", err)
	}

	return ports, nil
}
