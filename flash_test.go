// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"errors"
	"testing"
)

func attachedSession(transport *queueTransport) *ProbeSession {
	return &ProbeSession{
		transport: transport,
		variant:   VariantLinkE,
		chip:      &ChipInstance{Family: FamilyCH32V003},
	}
}

func TestEraseDefault(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdProgram, nil),
	}}

	session := attachedSession(transport)

	if err := session.Erase(EraseDefault); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}

	if len(transport.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(transport.writes))
	}
}

func TestEraseRequiresAttach(t *testing.T) {
	session := &ProbeSession{transport: &queueTransport{}}

	if err := session.Erase(EraseDefault); err == nil {
		t.Fatal("Erase() expected error without an attached chip, got nil")
	}
}

func TestFlashRefusesWhenProtected(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdFlashProtect, []byte{0x01}), // CheckFlashProtected -> protected
	}}

	session := attachedSession(transport)

	segments := []LoadSegment{{Address: 0x08000000, Data: []byte{0x01, 0x02, 0x03, 0x04}}}

	err := session.Flash(segments, FlashOptions{}, nil)
	if err == nil {
		t.Fatal("Flash() expected error when flash is protected, got nil")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrFlashProtected {
		t.Errorf("expected ErrFlashProtected, got %v", err)
	}
}

func TestFlashUnprotectsAndRetriesWhenRequested(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdFlashProtect, []byte{0x01}),             // CheckFlashProtected -> protected
		okFrame(cmdFlashProtect, nil),                      // SetFlashProtected(false)
		okFrame(cmdReset, nil),                             // Reset(ResetQuit)
		okFrame(cmdControl, []byte{0x09, 0x00, 0x30, 0x05, 0x00}), // AttachChip
		okFrame(cmdControl, []byte{0x00}),                  // AttachChip sub-stage
		okFrame(cmdSetAddr, nil),                           // set_addr/size
		okFrame(cmdProgram, nil),                           // begin_xfer
		okFrame(cmdProgram, nil),                           // end_xfer
		okFrame(cmdProgram, []byte{0x00}),                  // verify ok
		okFrame(cmdProgram, nil),                           // end_program
	}}

	session := attachedSession(transport)

	segments := []LoadSegment{{Address: 0x08000000, Data: []byte{0x01, 0x02, 0x03, 0x04}}}

	err := session.Flash(segments, FlashOptions{Unprotect: true}, nil)
	if err != nil {
		t.Fatalf("Flash() error = %v", err)
	}
}

func TestFlashSingleSegmentSuccess(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdFlashProtect, []byte{0x00}), // CheckFlashProtected -> not protected
		okFrame(cmdSetAddr, nil),               // set_addr/size
		okFrame(cmdProgram, nil),               // begin_xfer
		okFrame(cmdProgram, nil),               // end_xfer
		okFrame(cmdProgram, []byte{0x00}),      // verify ok
		okFrame(cmdProgram, nil),               // end_program
	}}

	session := attachedSession(transport)

	segments := []LoadSegment{{Address: 0x08000000, Data: []byte{0x01, 0x02, 0x03, 0x04}}}

	var stages []ProgressStage
	err := session.Flash(segments, FlashOptions{}, func(stage ProgressStage, done, total uint32) {
		stages = append(stages, stage)
	})

	if err != nil {
		t.Fatalf("Flash() error = %v", err)
	}

	if len(stages) == 0 || stages[len(stages)-1] != StageComplete {
		t.Errorf("expected last progress stage to be StageComplete, got %v", stages)
	}
}

func TestFlashVerifyMismatchAborts(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdFlashProtect, []byte{0x00}),
		okFrame(cmdSetAddr, nil),
		okFrame(cmdProgram, nil),
		okFrame(cmdProgram, nil),
		okFrame(cmdProgram, []byte{0x01}), // verify mismatch
	}}

	session := attachedSession(transport)

	segments := []LoadSegment{{Address: 0x08000000, Data: []byte{0x01, 0x02, 0x03, 0x04}}}

	err := session.Flash(segments, FlashOptions{}, nil)
	if err == nil {
		t.Fatal("Flash() expected verify mismatch error, got nil")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != ErrVerifyMismatch {
		t.Errorf("expected ErrVerifyMismatch, got %v", err)
	}

	// end_program must not have been reached after a failed verify.
	if transport.reads != 5 {
		t.Errorf("reads = %d, want 5 (stopped at verify)", transport.reads)
	}
}

func TestDumpRoutesFlashAddressThroughBulkRead(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdSetAddr, nil),
		okFrame(cmdMemRead, nil),
		{0xde, 0xad, 0xbe, 0xef},
	}}

	session := attachedSession(transport)

	got, err := session.Dump(0x08000000, 4)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	if len(transport.writes) != 2 {
		t.Fatalf("writes = %d, want 2 (set_addr/size, mem_read)", len(transport.writes))
	}

	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if string(got) != string(want) {
		t.Errorf("Dump() = %x, want %x", got, want)
	}
}

func TestAddrInBulkRangeCoversBootRom(t *testing.T) {
	session := &ProbeSession{
		transport: &queueTransport{},
		chip:      &ChipInstance{Family: FamilyCH32V103},
	}

	if !session.addrInBulkRange(wchBootRomBase, 16) {
		t.Error("addrInBulkRange() = false for a boot-ROM address, want true")
	}

	if session.addrInBulkRange(systemSpaceAddr, 4) {
		t.Error("addrInBulkRange() = true at the system-space boundary, want false")
	}
}

func TestCloseAlwaysEndsProcessWhenAttached(t *testing.T) {
	transport := &queueTransport{responses: [][]byte{
		okFrame(cmdControl, nil), // end_process
	}}

	session := attachedSession(transport)

	if err := session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if session.IsAttached() {
		t.Error("IsAttached() = true after Close")
	}

	if !transport.closed {
		t.Error("transport.closed = false after Close")
	}
}
