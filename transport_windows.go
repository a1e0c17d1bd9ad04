// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

//go:build windows

package wlink

import "time"

// winDriverTransport is the alternate Transport implementation behind the
// vendor's CH375 Windows driver rather than libusb. The DLL exports a
// plain open/read/write/close call shape; wiring it requires cgo and the
// DLL itself, neither of which is available to this build, so the shape
// is documented here and selecting it fails with Unsupported rather than
// silently falling back to the gousb backend.
type winDriverTransport struct {
	devicePath string
}

func openWinDriverTransport(devicePath string) (*winDriverTransport, error) {
	return nil, errUnsupported("ch375 windows driver backend is not wired into this build")
}

func (t *winDriverTransport) WriteBulk(buffer []byte, timeout time.Duration) (int, error) {
	return 0, errUnsupported("ch375 windows driver backend is not wired into this build")
}

func (t *winDriverTransport) ReadBulk(buffer []byte, timeout time.Duration) (int, error) {
	return 0, errUnsupported("ch375 windows driver backend is not wired into this build")
}

func (t *winDriverTransport) Close() error {
	return nil
}
