// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package wlink

import (
	"context"
	"errors"
	"time"

	"github.com/google/gousb"
)

// Transport is the boundary the rest of the library is written against.
// The primary backend wraps gousb; an alternate backend may speak to the
// vendor's Windows CH375 driver through the same interface (see
// transport_windows.go). Both methods take an explicit timeout -- callers
// pass commandTimeout for request/response round trips and bulkTimeout
// for the chunked flash/dump transfers.
type Transport interface {
	WriteBulk(buffer []byte, timeout time.Duration) (int, error)
	ReadBulk(buffer []byte, timeout time.Duration) (int, error)
	Close() error
}

var usbCtx *gousb.Context = nil

func InitializeUSB() error {
	if usbCtx != nil {
		logger.Warn("usb already initialized")
		return nil
	}

	usbCtx = gousb.NewContext()

	if usbCtx == nil {
		return errors.New("could not initialize libusb")
	}

	logger.Debug("initialized libusb")
	return nil
}

func CloseUSB() {
	if usbCtx == nil {
		logger.Warn("could not close uninitialized usb context")
		return
	}

	usbCtx.Close()
	usbCtx = nil
}

func usbFindDevices(vids []gousb.ID, pids []uint16) ([]*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !idExistsVid(vids, desc.Vendor) {
			return false
		}

		if !idExistsU16(pids, uint16(desc.Product)) {
			return false
		}

		logger.Infof("found usb device [%04x:%04x] on bus %03d:%03d",
			uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)

		return true
	})

	if err != nil {
		logger.Error("got error during usb device scan", err)
		return nil, err
	}

	logger.Infof("found %d matching devices", len(devices))
	return devices, nil
}

func idExistsVid(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// gousbTransport is the default Transport, a thin wrapper over a claimed
// gousb interface exposing the probe's command bulk endpoints.
type gousbTransport struct {
	device    *gousb.Device
	config    *gousb.Config
	iface     *gousb.Interface
	outEp     *gousb.OutEndpoint
	inEp      *gousb.InEndpoint
}

func openGousbTransport(mode ProbeMode, serial string) (*gousbTransport, error) {
	if usbCtx == nil {
		if err := InitializeUSB(); err != nil {
			return nil, errTransportIo("usb context not initialized", err)
		}
	}

	pid := uint16(productIdRv)
	if mode == ModeDap {
		pid = productIdDap
	}

	devices, err := usbFindDevices([]gousb.ID{vendorIdWch}, []uint16{pid})
	if err != nil {
		return nil, errTransportIo("usb device scan failed", err)
	}

	if len(devices) == 0 {
		return nil, errTransportIo("no wch-link probe found", nil)
	}

	var dev *gousb.Device
	if serial == "" {
		dev = devices[0]
	} else {
		for _, d := range devices {
			sn, _ := d.SerialNumber()
			if sn == serial {
				dev = d
			} else {
				d.Close()
			}
		}
	}

	if dev == nil {
		return nil, errTransportIo("no wch-link probe matches requested serial number", nil)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, errTransportIo("could not select usb configuration", err)
	}

	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, errTransportIo("could not claim usb interface 0", err)
	}

	outEp, err := iface.OutEndpoint(epCommandOut & 0x0f)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return nil, errTransportIo("could not open command out endpoint", err)
	}

	inEp, err := iface.InEndpoint(epCommandIn & 0x0f)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return nil, errTransportIo("could not open command in endpoint", err)
	}

	return &gousbTransport{device: dev, config: cfg, iface: iface, outEp: outEp, inEp: inEp}, nil
}

func (t *gousbTransport) WriteBulk(buffer []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := t.outEp.WriteContext(ctx, buffer)
	if err != nil {
		return n, errTransportIo("bulk write failed", err)
	}

	logger.Tracef("wrote %d bytes to command endpoint", n)
	return n, nil
}

func (t *gousbTransport) ReadBulk(buffer []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := t.inEp.ReadContext(ctx, buffer)
	if err != nil {
		return n, errTransportIo("bulk read failed", err)
	}

	logger.Tracef("read %d bytes from command endpoint", n)
	return n, nil
}

func (t *gousbTransport) Close() error {
	t.iface.Close()
	t.config.Close()
	return t.device.Close()
}
