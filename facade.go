// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"errors"
	"fmt"
	"strings"
)

// Options carries the cross-verb session parameters the CLI collects
// from flags: which probe to open, which chip family to insist on, and
// the detach/reset overrides that apply no matter which verb runs.
type Options struct {
	Serial       string
	ExpectFamily *FamilyTag
	Speed        Speed
	NoDetach     bool
	NoReset      bool
}

// withSession opens a probe, attaches the expected chip, runs fn, and
// always tears the session back down on every exit path -- EndProcess
// then Close, unless NoDetach asked to leave the chip attached (the
// USB handle itself is still released; only the end_process control
// call is skipped).
func withSession(opts Options, fn func(*ProbeSession) error) error {
	session, err := Open(opts.Serial)
	if err != nil {
		return err
	}

	defer func() {
		if opts.NoDetach {
			session.chip = nil
		}
		if cerr := session.Close(); cerr != nil {
			logger.Warnf("closing probe session: %v", cerr)
		}
	}()

	if opts.Speed != 0 {
		if err := session.SetSpeed(opts.Speed); err != nil {
			return err
		}
	}

	if _, err := session.AttachChip(opts.ExpectFamily); err != nil {
		return err
	}

	return fn(session)
}

// FlashRequest bundles the flash verb's own flags on top of the shared
// Options: the image path, an optional explicit load address, whether
// to erase first (default: no, per the v0.0.7 behavior change) and
// whether to unprotect-and-retry on a protected chip.
type FlashRequest struct {
	Path            string
	Address         *uint32
	Erase           bool
	Unprotect       bool
	EnableSdiPrint  bool
}

// RunFlash loads path, programs it onto the attached chip, and reports
// progress through progress (nil is fine). Unless opts.NoReset is set,
// the core is reset to run the freshly written image once programming
// completes.
func RunFlash(opts Options, req FlashRequest, progress ProgressFunc) error {
	return withSession(opts, func(s *ProbeSession) error {
		fallback := uint32(0x08000000)
		if row, ok := LookupFamily(s.chip.Family); ok {
			fallback = row.FlashBase
		}

		segments, err := LoadFirmware(req.Path, req.Address, fallback)
		if err != nil {
			return err
		}

		flashOpts := FlashOptions{Erase: req.Erase, Unprotect: req.Unprotect}
		if err := s.Flash(segments, flashOpts, progress); err != nil {
			return err
		}

		if req.EnableSdiPrint {
			if err := s.SetSdiPrintEnabled(true); err != nil {
				return err
			}
		}

		if !opts.NoReset {
			return s.Reset(ResetNormal)
		}

		return nil
	})
}

// RunDump halts the core, reads length bytes starting at addr, and
// resumes it with a normal reset before returning (unless NoReset).
func RunDump(opts Options, addr, length uint32) ([]byte, error) {
	var out []byte

	err := withSession(opts, func(s *ProbeSession) error {
		if err := s.Halt(); err != nil {
			return err
		}

		data, err := s.Dump(addr, length)
		if err != nil {
			return err
		}
		out = data

		if !opts.NoReset {
			return s.Reset(ResetNormal)
		}

		return nil
	})

	return out, err
}

// RunErase erases the attached chip using method.
func RunErase(opts Options, method EraseMethod) error {
	return withSession(opts, func(s *ProbeSession) error {
		return s.Erase(method)
	})
}

// RunRegs halts and dumps the register file.
func RunRegs(opts Options) (*RegisterSnapshot, error) {
	var snap *RegisterSnapshot

	err := withSession(opts, func(s *ProbeSession) error {
		if err := s.Halt(); err != nil {
			return err
		}

		got, err := s.Regs()
		if err != nil {
			return err
		}

		snap = got
		return nil
	})

	return snap, err
}

// RunReadReg halts and reads one CSR, identified the way the read-reg
// verb takes it on the command line (a raw CSR number, e.g. 0x7b1).
func RunReadReg(opts Options, csr uint16) (uint32, error) {
	var value uint32

	err := withSession(opts, func(s *ProbeSession) error {
		if err := s.Halt(); err != nil {
			return err
		}

		v, err := s.ReadRegister(regnoForCsr(csr))
		if err != nil {
			return err
		}

		value = v
		return nil
	})

	return value, err
}

// RunWriteReg halts and writes one CSR.
func RunWriteReg(opts Options, csr uint16, value uint32) error {
	return withSession(opts, func(s *ProbeSession) error {
		if err := s.Halt(); err != nil {
			return err
		}

		return s.WriteRegister(regnoForCsr(csr), value)
	})
}

// RunReset resets the attached chip's core without tearing down the
// probe session.
func RunReset(opts Options, kind ResetKind) error {
	return withSession(opts, func(s *ProbeSession) error {
		return s.Reset(kind)
	})
}

// RunModeSwitch asks the probe to re-enumerate under target's product
// id. The session this call opened is invalid the moment it returns
// without error -- it is closed by the deferred Close below, but
// callers must not try to reuse opts.Serial against the same physical
// device until the re-enumeration settles.
func RunModeSwitch(opts Options, target ProbeMode) error {
	session, err := Open(opts.Serial)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.SwitchMode(target)
}

// RunProtect enables (enable=true) or disables flash read protection on
// the attached chip.
func RunProtect(opts Options, enable bool) error {
	return withSession(opts, func(s *ProbeSession) error {
		return s.SetFlashProtected(enable)
	})
}

// RunStatus reports the probe's firmware version, variant, and (if
// attached) chip identity -- including UID/electronic-signature, core
// version, and (for families that support the query) the ROM/RAM split
// -- as a single human-readable summary line, mirroring the status
// verb's contract.
func RunStatus(opts Options) (string, error) {
	session, err := Open(opts.Serial)
	if err != nil {
		return "", err
	}
	defer session.Close()

	chip, err := session.AttachChip(opts.ExpectFamily)
	if err != nil {
		return fmt.Sprintf("probe %s firmware %s: %v", session.Variant(), session.Version(), err), nil
	}

	line := fmt.Sprintf("probe %s firmware %s, chip %s", session.Variant(), session.Version(), chip)

	var details []string

	if sig, err := session.GetChipInfo(); err != nil {
		logger.Debugf("get_chip_info unavailable: %v", err)
	} else {
		details = append(details, fmt.Sprintf("uid %02x flash %dKB", sig.UID, sig.FlashSizeKb))
	}

	if version, err := session.ReadCoreVersion(); err != nil {
		logger.Debugf("read_core_version unavailable: %v", err)
	} else {
		details = append(details, fmt.Sprintf("core %s", version))
	}

	if split, err := session.GetChipRomRamSplit(); err != nil {
		if !isUnsupported(err) {
			logger.Debugf("rom/ram split unavailable: %v", err)
		}
	} else {
		details = append(details, fmt.Sprintf("rom/ram split 0x%02x", split))
	}

	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}

	return line, nil
}

func isUnsupported(err error) bool {
	var werr *Error
	return errors.As(err, &werr) && werr.Kind == ErrUnsupported
}
