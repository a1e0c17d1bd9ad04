// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import "time"

type DmiOp byte

const (
	DmiNop   DmiOp = 0
	DmiRead  DmiOp = 1
	DmiWrite DmiOp = 2
)

type dmiStatus byte

const (
	dmiStatusOk       dmiStatus = 0
	dmiStatusReserved dmiStatus = 1
	dmiStatusFailed   dmiStatus = 2
	dmiStatusBusy     dmiStatus = 3
)

const (
	dmiBusyInitialDelay = 1 * time.Millisecond
	dmiBusyCapDelay     = 64 * time.Millisecond
	dmiBusyDeadline     = 500 * time.Millisecond
	dmiMaxRetries       = 8
)

// dmiTransaction issues one tunneled DMI round-trip through cmd 0x08,
// retrying on Busy up to dmiMaxRetries times with exponential spacing
// (1ms -> 16ms, capped at 64ms) and a 500ms total deadline as backstop.
func (s *ProbeSession) dmiTransaction(addr byte, data uint32, op DmiOp) (uint32, error) {
	delay := dmiBusyInitialDelay
	deadline := time.Now().Add(dmiBusyDeadline)
	retries := 0

	for {
		req := NewBuffer(6)
		req.WriteByte(addr)
		req.WriteUint32BE(data)
		req.WriteByte(byte(op))

		frame, err := s.doCommand(cmdDmi, -1, req.Bytes(), 6)
		if err != nil {
			return 0, err
		}

		if len(frame.Payload) < 6 {
			return 0, errFrameMalformed("dmi response too short")
		}

		status := dmiStatus(frame.Payload[5])
		respData := convertToUint32(frame.Payload[1:5], bigEndian)

		switch status {
		case dmiStatusOk, dmiStatusReserved:
			return respData, nil
		case dmiStatusFailed:
			return 0, errDmiFailed(addr)
		case dmiStatusBusy:
			if retries >= dmiMaxRetries || time.Now().After(deadline) {
				return 0, errDmiBusy(addr)
			}

			retries++
			logger.Debugf("dmi busy at addr 0x%02x, retry %d, delaying %s", addr, retries, delay)
			time.Sleep(delay)

			delay *= 2
			if delay > dmiBusyCapDelay {
				delay = dmiBusyCapDelay
			}
			continue
		default:
			return 0, errDmiFailed(addr)
		}
	}
}

func (s *ProbeSession) dmiRead(addr byte) (uint32, error) {
	return s.dmiTransaction(addr, 0, DmiRead)
}

func (s *ProbeSession) dmiWrite(addr byte, data uint32) error {
	_, err := s.dmiTransaction(addr, data, DmiWrite)
	return err
}
