// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"bytes"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		path string
		head []byte
		want ImageFormat
	}{
		{"hex extension", "firmware.hex", nil, FormatIntelHex},
		{"elf extension", "firmware.elf", nil, FormatElf},
		{"elf magic", "firmware.bin", []byte{0x7f, 'E', 'L', 'F'}, FormatElf},
		{"colon magic", "firmware.bin", []byte(":10000000"), FormatIntelHex},
		{"raw fallback", "firmware.bin", []byte{0x00, 0x01, 0x02}, FormatRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.path, tt.head); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseIntelHexContiguous(t *testing.T) {
	hex := ":020000040800F2\n" +
		":10000000000102030405060708090A0B0C0D0E0F78\n" +
		":00000001FF\n"

	segments, err := parseIntelHex(strings.NewReader(hex))
	if err != nil {
		t.Fatalf("parseIntelHex() error = %v", err)
	}

	if len(segments) != 1 {
		t.Fatalf("len(segments) = %d, want 1", len(segments))
	}

	if segments[0].Address != 0x08000000 {
		t.Errorf("Address = 0x%08x, want 0x08000000", segments[0].Address)
	}

	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if !bytes.Equal(segments[0].Data, want) {
		t.Errorf("Data = %v, want %v", segments[0].Data, want)
	}
}

func TestParseIntelHexChecksumMismatch(t *testing.T) {
	hex := ":10000000000102030405060708090A0B0C0D0E0FFF\n"

	_, err := parseIntelHex(strings.NewReader(hex))
	if err == nil {
		t.Fatal("parseIntelHex() expected checksum error, got nil")
	}
}

func TestMergeGapsMergesSmallGap(t *testing.T) {
	segments := []LoadSegment{
		{Address: 0x1000, Data: []byte{0x01, 0x02}},
		{Address: 0x1010, Data: []byte{0x03, 0x04}},
	}

	merged := MergeGaps(segments)

	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1", len(merged))
	}

	want := append([]byte{0x01, 0x02}, bytes.Repeat([]byte{0xff}, 14)...)
	want = append(want, 0x03, 0x04)

	if !bytes.Equal(merged[0].Data, want) {
		t.Errorf("merged data = %v, want %v", merged[0].Data, want)
	}
}

func TestMergeGapsLeavesLargeGapSeparate(t *testing.T) {
	segments := []LoadSegment{
		{Address: 0x1000, Data: []byte{0x01}},
		{Address: 0x2000, Data: []byte{0x02}},
	}

	merged := MergeGaps(segments)
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
}

func TestMergeGapsIdempotent(t *testing.T) {
	segments := []LoadSegment{
		{Address: 0x1000, Data: []byte{0x01, 0x02}},
		{Address: 0x1010, Data: []byte{0x03, 0x04}},
	}

	once := MergeGaps(segments)
	twice := MergeGaps(once)

	if len(once) != len(twice) {
		t.Fatalf("len(twice) = %d, want %d", len(twice), len(once))
	}

	for i := range once {
		if !bytes.Equal(once[i].Data, twice[i].Data) || once[i].Address != twice[i].Address {
			t.Errorf("segment %d changed on second merge: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestCheckNonOverlappingDetectsOverlap(t *testing.T) {
	segments := []LoadSegment{
		{Address: 0x1000, Data: []byte{0x01, 0x02, 0x03, 0x04}},
		{Address: 0x1002, Data: []byte{0x05, 0x06}},
	}

	if err := checkNonOverlapping(segments); err == nil {
		t.Error("checkNonOverlapping() expected error for overlapping segments, got nil")
	}
}

func TestParseAddressLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"0x08000000", 0x08000000},
		{"0X1000", 0x1000},
		{"1_000_000", 1000000},
		{"255", 255},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddressLiteral(tt.in)
			if err != nil {
				t.Fatalf("ParseAddressLiteral(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddressLiteral(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAddressLiteralInvalid(t *testing.T) {
	if _, err := ParseAddressLiteral("not-a-number"); err == nil {
		t.Error("ParseAddressLiteral() expected error for invalid literal, got nil")
	}
}
