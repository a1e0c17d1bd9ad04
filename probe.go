// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package wlink

import (
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
)

type ProbeVariantKind byte

const (
	VariantUnknown ProbeVariantKind = iota
	VariantCh549
	VariantLinkE
	VariantLinkW
	VariantLinkS
	VariantLinkB
)

func (v ProbeVariantKind) String() string {
	switch v {
	case VariantCh549:
		return "Ch549"
	case VariantLinkE:
		return "LinkE"
	case VariantLinkW:
		return "LinkW"
	case VariantLinkS:
		return "LinkS"
	case VariantLinkB:
		return "LinkB"
	default:
		return "Unknown"
	}
}

// probe variant capability flags, generalized from the bitmap-tracked
// "opened access port" pattern into a per-variant capability record.
const (
	capPowerRail           = 0
	capSdiPrint            = 1
	capModeSwitchFirmware  = 2
)

var variantCapabilities = map[ProbeVariantKind]bitmap.Bitmap{}

func init() {
	mk := func(bits ...int) bitmap.Bitmap {
		bm := bitmap.New(8)
		for _, b := range bits {
			bm.Set(b, true)
		}
		return bm
	}

	variantCapabilities[VariantCh549] = mk(capModeSwitchFirmware)
	variantCapabilities[VariantLinkE] = mk(capPowerRail, capSdiPrint)
	variantCapabilities[VariantLinkW] = mk(capPowerRail, capSdiPrint)
	variantCapabilities[VariantLinkS] = mk()
	variantCapabilities[VariantLinkB] = mk()
	variantCapabilities[VariantUnknown] = mk()
}

func (v ProbeVariantKind) supports(flag int) bool {
	bm, ok := variantCapabilities[v]
	if !ok {
		return false
	}
	return bm.Get(flag)
}

// FirmwareVersion is the canonical (major, minor) pair. The wire carries
// major and minor as two separate bytes; the combined major*10+minor
// form below is purely a display/canonicalization convention, never what
// is transmitted.
type FirmwareVersion struct {
	Major byte
	Minor byte
}

// wireDisplayByte folds (major, minor) into the legacy single-byte
// display convention used by vendor tooling (e.g. "v2.11" shows as v31).
func wireDisplayByte(major, minor byte) byte {
	return major*10 + minor
}

func wireDisplayVersion(b byte) FirmwareVersion {
	return FirmwareVersion{Major: b / 10, Minor: b % 10}
}

func (fv FirmwareVersion) String() string {
	return fmt.Sprintf("v%d.%d", fv.Major, fv.Minor)
}

// ProbeSession owns exactly one probe USB handle and the (at most one)
// ChipInstance attached through it. State machine:
// Closed -> Opened -> Attached(chip) -> Opened -> Closed.
type ProbeSession struct {
	transport Transport
	mode      ProbeMode
	variant   ProbeVariantKind
	version   FirmwareVersion
	speed     Speed
	chip      *ChipInstance
	serial    string
}

// Open claims the first WCH-Link probe matching serial (or any probe, if
// serial is empty) and reads its firmware version.
func Open(serial string) (*ProbeSession, error) {
	t, err := openGousbTransport(ModeRv, serial)
	if err != nil {
		return nil, err
	}

	session := &ProbeSession{transport: t, mode: ModeRv, variant: VariantLinkE, speed: SpeedMedium, serial: serial}

	if err := session.GetInfo(); err != nil {
		t.Close()
		return nil, err
	}

	logger.Infof("opened wch-link probe (%s), firmware %s", session.variant, session.version)
	return session, nil
}

func (s *ProbeSession) doCommand(cmd byte, subcmd int, payload []byte, expectLen int) (*Frame, error) {
	req := encodeFrame(cmd, subcmd, payload)

	if _, err := s.transport.WriteBulk(req, commandTimeout); err != nil {
		return nil, err
	}

	resp := make([]byte, 3+expectLen+1)
	n, err := s.transport.ReadBulk(resp, commandTimeout)
	if err != nil {
		return nil, err
	}

	return decodeFrame(resp[:n])
}

// GetInfo issues cmd 0x0d/0x01 and records the probe's firmware version.
func (s *ProbeSession) GetInfo() error {
	frame, err := s.doCommand(cmdControl, ctrlGetVersion, nil, 2)
	if err != nil {
		return err
	}

	if len(frame.Payload) < 2 {
		return errFrameMalformed("get_info response too short")
	}

	s.version = FirmwareVersion{Major: frame.Payload[0], Minor: frame.Payload[1]}
	return nil
}

func (s *ProbeSession) Version() FirmwareVersion     { return s.version }
func (s *ProbeSession) Variant() ProbeVariantKind    { return s.variant }
func (s *ProbeSession) Attached() *ChipInstance      { return s.chip }
func (s *ProbeSession) IsAttached() bool             { return s.chip != nil }

// AttachChip issues cmd 0x0d/0x02. If expected is non-nil and disagrees
// with the family reported by the probe, fails FamilyMismatch.
func (s *ProbeSession) AttachChip(expected *FamilyTag) (*ChipInstance, error) {
	var expectByte byte
	if expected != nil {
		expectByte = byte(*expected)
	}

	frame, err := s.doCommand(cmdControl, ctrlAttachChip, []byte{expectByte}, 5)
	if err != nil {
		return nil, err
	}

	if len(frame.Payload) < 5 {
		return nil, errFrameMalformed("attach_chip response too short")
	}

	family := FamilyTag(frame.Payload[0])
	chipID := beU32(frame.Payload[1:5])

	if expected != nil && *expected != family {
		return nil, errFamilyMismatch(fmt.Sprintf("expected family %s, probe reports %s", *expected, family))
	}

	chip := &ChipInstance{Family: family, ChipID: chipID}

	if row, ok := LookupFamily(family); ok && row.AttachSubStage != 0 {
		subFrame, err := s.doCommand(cmdControl, int(row.AttachSubStage), nil, 1)
		if err != nil {
			return nil, err
		}

		if row.RomRamSplitQuery && len(subFrame.Payload) > 0 {
			chip.SramCodeMode = subFrame.Payload[0]
		}
	}

	s.chip = chip
	logger.Infof("attached chip %s", chip)
	return chip, nil
}

// EndProcess issues cmd 0x0d/0xff. Always invoked on detach; swallows
// errors so detach remains best-effort.
func (s *ProbeSession) EndProcess() {
	if _, err := s.doCommand(cmdControl, ctrlEndProcess, nil, 0); err != nil {
		logger.Debugf("end_process returned error (ignored): %v", err)
	}

	s.chip = nil
}

func (s *ProbeSession) requireAttached() error {
	if s.chip == nil {
		return errNotAttached()
	}
	return nil
}

func (s *ProbeSession) SetSpeed(speed Speed) error {
	_, err := s.doCommand(cmdSetSpeed, int(speed), nil, 0)
	if err == nil {
		s.speed = speed
	}
	return err
}

func (s *ProbeSession) SetPower(rail PowerRail, enable bool) error {
	if !s.variant.supports(capPowerRail) {
		return errUnsupported(fmt.Sprintf("%s does not support power rail control", s.variant))
	}

	enableByte := 0
	if enable {
		enableByte = 1
	}

	_, err := s.doCommand(cmdControl, int(rail), []byte{byte(enableByte)}, 0)
	return err
}

func (s *ProbeSession) Reset(kind ResetKind) error {
	_, err := s.doCommand(cmdReset, int(kind), nil, 0)
	if err != nil {
		return err
	}

	if kind == ResetQuit {
		time.Sleep(300 * time.Millisecond)
	}

	return nil
}

func (s *ProbeSession) DisableDebug() error {
	if err := s.requireAttached(); err != nil {
		return err
	}

	row, ok := LookupFamily(s.chip.Family)
	if !ok || !row.DisableDebug {
		return errUnsupported(fmt.Sprintf("disable_debug not defined for family %s", s.chip.Family))
	}

	_, err := s.doCommand(cmdDisableDebug, 0x01, nil, 0)
	return err
}

func (s *ProbeSession) CheckFlashProtected() (bool, error) {
	if err := s.requireAttached(); err != nil {
		return false, err
	}

	frame, err := s.doCommand(cmdFlashProtect, flashProtectCheck, nil, 1)
	if err != nil {
		return false, err
	}

	if len(frame.Payload) < 1 {
		return false, errFrameMalformed("flash-protect check response too short")
	}

	protected := frame.Payload[0] == 0x01
	s.chip.FlashProtected = protected
	return protected, nil
}

func (s *ProbeSession) SetFlashProtected(enable bool) error {
	if err := s.requireAttached(); err != nil {
		return err
	}

	sub := flashProtectUnprotect
	if enable {
		sub = flashProtectProtect
	}

	if _, err := s.doCommand(cmdFlashProtect, sub, nil, 0); err != nil {
		return err
	}

	s.chip.FlashProtected = enable

	if s.chip.Family == FamilyCH32V103 {
		return s.Reset(ResetQuit)
	}

	return nil
}

// BeginReadMemory sets address/size via cmd 0x01, then streams length
// bytes from the probe in frames of at most bulkFrameSize bytes.
func (s *ProbeSession) BeginReadMemory(addr uint32, length uint32) ([]byte, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}

	addrSize := make([]byte, 8)
	putBeU32(addrSize[0:4], addr)
	putBeU32(addrSize[4:8], length)

	if _, err := s.doCommand(cmdSetAddr, -1, addrSize, 0); err != nil {
		return nil, err
	}

	if _, err := s.doCommand(cmdMemRead, -1, nil, 0); err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	for uint32(len(out)) < length {
		remaining := length - uint32(len(out))
		want := remaining
		if want > bulkFrameSize {
			want = bulkFrameSize
		}

		chunk := make([]byte, want)
		n, err := s.transport.ReadBulk(chunk, bulkTimeout)
		if err != nil {
			return nil, err
		}

		out = append(out, chunk[:n]...)
	}

	return out, nil
}

func (s *ProbeSession) GetChipRomRamSplit() (byte, error) {
	if err := s.requireAttached(); err != nil {
		return 0, err
	}

	row, ok := LookupFamily(s.chip.Family)
	if !ok || !row.RomRamSplitQuery {
		return 0, errUnsupported(fmt.Sprintf("rom/ram split not defined for family %s", s.chip.Family))
	}

	frame, err := s.doCommand(cmdControl, ctrlSubRomRam, []byte{0x00}, 1)
	if err != nil {
		return 0, err
	}

	if len(frame.Payload) < 1 {
		return 0, errFrameMalformed("rom/ram split response too short")
	}

	s.chip.SramCodeMode = frame.Payload[0]
	return frame.Payload[0], nil
}

func (s *ProbeSession) SetChipRomRamSplit(value byte) error {
	if err := s.requireAttached(); err != nil {
		return err
	}

	row, ok := LookupFamily(s.chip.Family)
	if !ok || !row.RomRamSplitQuery {
		return errUnsupported(fmt.Sprintf("rom/ram split not defined for family %s", s.chip.Family))
	}

	_, err := s.doCommand(cmdControl, ctrlSubRomRam, []byte{value}, 0)
	if err == nil {
		s.chip.SramCodeMode = value
	}
	return err
}

// ChipSignature is the flash size and UID reported by GetChipInfo (the
// probe's "electronic signature" query, also surfaced by wchisp).
type ChipSignature struct {
	FlashSizeKb uint16
	UID         [8]byte
}

// GetChipInfo reads the chip's flash size and 8-byte UID, surfaced by
// status. Supplemented from the original implementation's GetChipInfo
// command (cmd 0x11) -- unlike every other command here, its response
// does not follow the standard header/cmd/length envelope, so it is read
// raw rather than through doCommand/decodeFrame.
func (s *ProbeSession) GetChipInfo() (ChipSignature, error) {
	var sig ChipSignature

	if err := s.requireAttached(); err != nil {
		return sig, err
	}

	req := encodeFrame(cmdGetChipInfo, -1, []byte{chipInfoVariantV1})
	if _, err := s.transport.WriteBulk(req, commandTimeout); err != nil {
		return sig, err
	}

	resp := make([]byte, 32)
	n, err := s.transport.ReadBulk(resp, commandTimeout)
	if err != nil {
		return sig, err
	}
	resp = resp[:n]

	if len(resp) < 12 {
		return sig, errFrameMalformed("get_chip_info response shorter than electronic signature")
	}

	sig.FlashSizeKb = uint16(resp[2])<<8 | uint16(resp[3])

	var uid [8]byte
	putLeU32(uid[0:4], beU32(resp[4:8]))
	putLeU32(uid[4:8], beU32(resp[8:12]))
	sig.UID = uid

	s.chip.UID = uid
	return sig, nil
}

func (s *ProbeSession) SetRstPin(level bool) error {
	value := byte(0)
	if level {
		value = 1
	}

	_, err := s.doCommand(cmdReset, 0x04, []byte{value}, 0)
	return err
}

func (s *ProbeSession) SetSdiPrintEnabled(enable bool) error {
	if !s.variant.supports(capSdiPrint) {
		return errUnsupported(fmt.Sprintf("%s does not support sdi print", s.variant))
	}

	value := byte(0)
	if enable {
		value = 1
	}

	_, err := s.doCommand(cmdControl, 0x05, []byte{value}, 0)
	return err
}

// SwitchMode re-enumerates the device under the other product id. On
// success the current handle is no longer valid -- callers must Close
// and not issue further operations on this session.
func (s *ProbeSession) SwitchMode(target ProbeMode) error {
	if !s.variant.supports(capModeSwitchFirmware) {
		return errUnsupported(fmt.Sprintf("%s requires the physical mode button, firmware mode-switch is not available", s.variant))
	}

	subcmd := 0x01
	if target == ModeDap {
		subcmd = 0x02
	}

	_, err := s.doCommand(cmdControl, subcmd, nil, 0)
	return err
}

func (s *ProbeSession) Close() error {
	if s.chip != nil {
		s.EndProcess()
	}

	return s.transport.Close()
}
