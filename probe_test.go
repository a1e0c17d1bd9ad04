// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"errors"
	"testing"
	"time"
)

// queueTransport replays a fixed queue of raw response frames, one per
// ReadBulk call, ignoring what was written. It also records every
// WriteBulk payload for assertions on request shape.
type queueTransport struct {
	responses [][]byte
	writes    [][]byte
	reads     int
	closed    bool
}

func (q *queueTransport) WriteBulk(buffer []byte, timeout time.Duration) (int, error) {
	cp := make([]byte, len(buffer))
	copy(cp, buffer)
	q.writes = append(q.writes, cp)
	return len(buffer), nil
}

func (q *queueTransport) ReadBulk(buffer []byte, timeout time.Duration) (int, error) {
	if q.reads >= len(q.responses) {
		return 0, errors.New("queueTransport: no more scripted responses")
	}

	resp := q.responses[q.reads]
	q.reads++

	n := copy(buffer, resp)
	return n, nil
}

func (q *queueTransport) Close() error {
	q.closed = true
	return nil
}

func okFrame(cmd byte, payload []byte) []byte {
	buf := make([]byte, 0, 3+len(payload))
	buf = append(buf, hdrOkResponse, cmd, byte(len(payload)))
	buf = append(buf, payload...)
	return buf
}

func TestGetInfoParsesFirmwareVersion(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdControl, []byte{0x02, 0x0b}),
	}}

	session := &ProbeSession{transport: transport}

	if err := session.GetInfo(); err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}

	want := FirmwareVersion{Major: 2, Minor: 11}
	if session.Version() != want {
		t.Errorf("Version() = %+v, want %+v", session.Version(), want)
	}

	if got := session.Version().String(); got != "v2.11" {
		t.Errorf("Version().String() = %q, want %q", got, "v2.11")
	}
}

func TestGetChipInfoParsesRawElectronicSignature(t *testing.T) {
	// raw response layout, not the standard header/cmd/length envelope:
	// ffff0020 aeb4abcd 16c6bc45 (flash_size_kb at [2:4], uid words at
	// [4:8]/[8:12]), matching the worked example in the grounding
	// original source's GetChipInfo/ESignature comment.
	raw := []byte{0xff, 0xff, 0x00, 0x20, 0xae, 0xb4, 0xab, 0xcd, 0x16, 0xc6, 0xbc, 0x45}

	transport := &queueTransport{responses: [][]byte{raw}}
	session := attachedSession(transport)

	sig, err := session.GetChipInfo()
	if err != nil {
		t.Fatalf("GetChipInfo() error = %v", err)
	}

	if sig.FlashSizeKb != 32 {
		t.Errorf("FlashSizeKb = %d, want 32", sig.FlashSizeKb)
	}

	wantUID := [8]byte{0xcd, 0xab, 0xb4, 0xae, 0x45, 0xbc, 0xc6, 0x16}
	if sig.UID != wantUID {
		t.Errorf("UID = %x, want %x", sig.UID, wantUID)
	}

	if len(transport.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(transport.writes))
	}

	req := transport.writes[0]
	if req[1] != cmdGetChipInfo {
		t.Errorf("request cmd = 0x%02x, want 0x%02x (cmdGetChipInfo)", req[1], cmdGetChipInfo)
	}
}

func TestGetChipInfoRejectsShortResponse(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{{0x00, 0x00, 0x00}}}
	session := attachedSession(transport)

	if _, err := session.GetChipInfo(); err == nil {
		t.Fatal("GetChipInfo() expected error for a response shorter than the electronic signature, got nil")
	}
}

func TestFirmwareVersionWireDisplayConvention(t *testing.T) {
	fv := FirmwareVersion{Major: 2, Minor: 11}

	if got := wireDisplayByte(fv.Major, fv.Minor); got != 31 {
		t.Errorf("wireDisplayByte() = %d, want 31", got)
	}

	// the fold only round-trips for minor < 10: 31 decodes back as v3.1,
	// not v2.11.
	wantDecoded := FirmwareVersion{Major: 3, Minor: 1}
	if got := wireDisplayVersion(31); got != wantDecoded {
		t.Errorf("wireDisplayVersion(31) = %+v, want %+v", got, wantDecoded)
	}
}

func TestAttachChipParsesFamilyAndChipID(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdControl, []byte{0x09, 0x00, 0x30, 0x05, 0x00}),
		okFrame(cmdControl, []byte{0x00}),
	}}

	session := &ProbeSession{transport: transport, variant: VariantLinkE}

	chip, err := session.AttachChip(nil)
	if err != nil {
		t.Fatalf("AttachChip() error = %v", err)
	}

	if chip.Family != FamilyCH32V003 {
		t.Errorf("Family = %v, want FamilyCH32V003", chip.Family)
	}

	if chip.ChipID != 0x00300500 {
		t.Errorf("ChipID = 0x%08x, want 0x00300500", chip.ChipID)
	}

	if !session.IsAttached() {
		t.Error("IsAttached() = false after a successful AttachChip")
	}
}

func TestAttachChipFamilyMismatch(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdControl, []byte{0x09, 0x00, 0x30, 0x05, 0x00}),
	}}

	session := &ProbeSession{transport: transport, variant: VariantLinkE}

	expect := FamilyCH32V103
	_, err := session.AttachChip(&expect)
	if err == nil {
		t.Fatal("AttachChip() expected family mismatch error, got nil")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrFamilyMismatch {
		t.Errorf("expected ErrFamilyMismatch, got %v", err)
	}
}

func TestRequireAttachedFailsBeforeAttach(t *testing.T) {
	session := &ProbeSession{transport: &queueTransport{}}

	if err := session.requireAttached(); err == nil {
		t.Fatal("requireAttached() expected error before AttachChip, got nil")
	}
}

func TestEndProcessClearsAttachedChip(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdControl, nil),
	}}

	session := &ProbeSession{transport: transport, chip: &ChipInstance{Family: FamilyCH32V003}}
	session.EndProcess()

	if session.IsAttached() {
		t.Error("IsAttached() = true after EndProcess")
	}
}

func TestSetPowerRequiresCapability(t *testing.T) {
	session := &ProbeSession{transport: &queueTransport{}, variant: VariantLinkS}

	err := session.SetPower(PowerRail3v3, true)
	if err == nil {
		t.Fatal("SetPower() expected error for a variant without power rail capability, got nil")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestSwitchModeRequiresFirmwareCapability(t *testing.T) {
	session := &ProbeSession{transport: &queueTransport{}, variant: VariantLinkE}

	if err := session.SwitchMode(ModeDap); err == nil {
		t.Fatal("SwitchMode() expected error for a variant without firmware mode-switch, got nil")
	}
}
