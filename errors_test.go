// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package wlink

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("broken pipe")
	wrapped := errTransportIo("bulk write failed", inner)

	if !errors.Is(wrapped, inner) {
		t.Errorf("errors.Is(wrapped, inner) = false, want true")
	}

	var werr *Error
	if !errors.As(wrapped, &werr) {
		t.Fatalf("errors.As() failed to extract *Error")
	}

	if werr.Kind != ErrTransportIo {
		t.Errorf("Kind = %v, want ErrTransportIo", werr.Kind)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"probe refused", errProbeRefused(0x55).(*Error), "probe refused request (reason 0x55)"},
		{"abstract cmd error", errAbstractCmdError(3).(*Error), "abstract command failed (cmderr 3)"},
		{"verify mismatch", errVerifyMismatch(0x08000000, 0xaa, 0xbb).(*Error), "verify mismatch at 0x08000000: expected 0xaa got 0xbb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorKindString(t *testing.T) {
	if got := ErrDmiBusy.String(); got != "dmi-busy" {
		t.Errorf("String() = %q, want %q", got, "dmi-busy")
	}

	if got := ErrorKind(999).String(); got != "unknown" {
		t.Errorf("String() for out-of-range kind = %q, want %q", got, "unknown")
	}
}
