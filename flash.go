// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"fmt"
)

type EraseMethod int

const (
	EraseDefault EraseMethod = iota
	ErasePowerOff
	ErasePinRst
)

// ProgressStage names one step of a flash run, reported through
// ProgressFunc as it happens.
type ProgressStage string

const (
	StageErase    ProgressStage = "erase"
	StageProgram  ProgressStage = "program"
	StageVerify   ProgressStage = "verify"
	StageComplete ProgressStage = "complete"
)

// ProgressFunc is called as a flash run advances. done/total are in bytes
// for program/verify stages, 0/0 for erase and complete.
type ProgressFunc func(stage ProgressStage, done, total uint32)

func noopProgress(ProgressStage, uint32, uint32) {}

// Erase runs the attached chip's bulk-erase sequence. method selects how
// the erase is carried out on chips that support more than one strategy;
// families that don't recognize a non-default method fall back to it
// silently rather than failing.
func (s *ProbeSession) Erase(method EraseMethod) error {
	if err := s.requireAttached(); err != nil {
		return err
	}

	sub := 0x00
	if method == ErasePowerOff && s.chip.Family.supportsSpecialErase() {
		sub = 0x01
	} else if method == ErasePinRst && s.chip.Family.supportsSpecialErase() {
		sub = 0x02
	}

	_, err := s.doCommand(cmdProgram, progErase, []byte{byte(sub)}, 0)
	if err != nil {
		return err
	}

	logger.Infof("erased chip %s", s.chip)
	return nil
}

func (t FamilyTag) supportsSpecialErase() bool {
	row, ok := LookupFamily(t)
	return ok && row.SupportsSpecialErase
}

// FlashOptions controls the two caller-visible deviations from the
// bare program/verify sequence: whether to erase before programming
// (default: no, per the v0.0.7 behavior change -- callers that need a
// clean slate erase explicitly) and whether a protected chip should be
// automatically unprotected, reset, and re-attached once before giving
// up.
type FlashOptions struct {
	Erase     bool
	Unprotect bool
}

// Flash programs segments onto the attached chip: check flash
// protection, set address/size, begin_xfer, stream pages, end_xfer,
// verify, end_program. A failure at any step aborts the remaining
// segments, but the caller (via the facade) always still issues
// EndProcess on the way out.
func (s *ProbeSession) Flash(segments []LoadSegment, opts FlashOptions, progress ProgressFunc) error {
	if err := s.requireAttached(); err != nil {
		return err
	}

	if progress == nil {
		progress = noopProgress
	}

	protected, err := s.CheckFlashProtected()
	if err != nil {
		return err
	}

	if protected {
		if !opts.Unprotect {
			return errFlashProtected()
		}

		if err := s.SetFlashProtected(false); err != nil {
			return err
		}

		if err := s.Reset(ResetQuit); err != nil {
			return err
		}

		if _, err := s.AttachChip(nil); err != nil {
			return err
		}
	}

	if opts.Erase {
		if err := s.Erase(EraseDefault); err != nil {
			return err
		}
		progress(StageErase, 0, 0)
	}

	var total uint32
	for _, seg := range segments {
		total += uint32(len(seg.Data))
	}

	var done uint32

	for _, seg := range segments {
		if err := s.flashSegment(seg, progress, &done, total); err != nil {
			return err
		}
	}

	if _, err := s.doCommand(cmdProgram, progEndProgram, nil, 0); err != nil {
		return err
	}

	progress(StageComplete, 0, 0)
	return nil
}

func (s *ProbeSession) flashSegment(seg LoadSegment, progress ProgressFunc, done *uint32, total uint32) error {
	addrSize := make([]byte, 8)
	putBeU32(addrSize[0:4], seg.Address)
	putBeU32(addrSize[4:8], uint32(len(seg.Data)))

	if _, err := s.doCommand(cmdSetAddr, -1, addrSize, 0); err != nil {
		return err
	}

	if _, err := s.doCommand(cmdProgram, progBeginXfer, nil, 0); err != nil {
		return err
	}

	for offset := 0; offset < len(seg.Data); offset += bulkFrameSize {
		end := offset + bulkFrameSize
		if end > len(seg.Data) {
			end = len(seg.Data)
		}

		chunk := seg.Data[offset:end]
		if _, err := s.transport.WriteBulk(chunk, bulkTimeout); err != nil {
			return errTransportIo("flash page write failed", err)
		}

		*done += uint32(len(chunk))
		progress(StageProgram, *done, total)
	}

	if _, err := s.doCommand(cmdProgram, progEndXfer, nil, 0); err != nil {
		return err
	}

	verifyOp := progVerify
	if row, ok := LookupFamily(s.chip.Family); ok && row.VerifyOpcode != 0 {
		verifyOp = int(row.VerifyOpcode)
	}

	frame, err := s.doCommand(cmdProgram, verifyOp, nil, 1)
	if err != nil {
		return err
	}

	if len(frame.Payload) > 0 && frame.Payload[0] != 0x00 {
		return errVerifyMismatch(seg.Address, 0x00, frame.Payload[0])
	}

	progress(StageVerify, *done, total)
	return nil
}

// Dump reads length bytes from the attached chip starting at addr,
// routed by the family registry: flash, SRAM, and boot-ROM ranges go
// through the bulk begin_read_memory path, everything else (CSR and
// other system-space addresses the bulk command can't reach) goes
// through the DMI/DM abstract-command path.
func (s *ProbeSession) Dump(addr, length uint32) ([]byte, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}

	if s.addrInBulkRange(addr, length) {
		return s.BeginReadMemory(addr, length)
	}

	return s.ReadMemory(addr, length)
}

func (s *ProbeSession) addrInBulkRange(addr, length uint32) bool {
	end := addr + length

	row, ok := LookupFamily(s.chip.Family)
	if !ok {
		return addr < systemSpaceAddr && end <= systemSpaceAddr
	}

	if addr >= row.FlashBase && end <= systemSpaceAddr {
		return true
	}

	if row.BootRomBase != 0 && addr >= row.BootRomBase && end <= row.BootRomBase+row.BootRomSize {
		return true
	}

	return false
}

// RegisterSnapshot is the set of core registers surfaced by the regs
// verb: x1-x31 plus the program counter (read from dpc).
type RegisterSnapshot struct {
	Gpr [32]uint32
	Pc  uint32
}

// Regs reads all general-purpose registers plus the program counter. It
// does not halt the core itself; RunRegs halts it before calling Regs.
func (s *ProbeSession) Regs() (*RegisterSnapshot, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}

	snap := &RegisterSnapshot{}

	for gpr := byte(1); gpr < 32; gpr++ {
		v, err := s.ReadGpr(gpr)
		if err != nil {
			return nil, fmt.Errorf("reading x%d: %w", gpr, err)
		}
		snap.Gpr[gpr] = v
	}

	pc, err := s.ReadCsr(0x7b1) // dpc
	if err != nil {
		return nil, err
	}

	snap.Pc = pc
	return snap, nil
}

