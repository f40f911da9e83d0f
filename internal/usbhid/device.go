// Package usbhid wraps github.com/google/gousb for the G13's specific
// USB shape: vendor 0x046d, product 0xc21c, interface 0, key endpoint 1
// (interrupt IN, 8-byte reports), LCD endpoint 2 (interrupt/bulk OUT).
// Grounded on the teacher's controller.go (claimInterface) and
// hidraw.go/main.go (device enumeration, hotplug key), generalized from
// the Pro Controller's bulk-report protocol to the G13's control-transfer
// based wake/backlight sequence per spec.md §6.
package usbhid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	VendorID  = 0x046d
	ProductID = 0xc21c

	interfaceNumber = 0
	configNumber    = 1
	keyEndpoint     = 1
	lcdEndpoint     = 2

	reportSize = 8

	readTimeout  = 100 * time.Millisecond
	writeTimeout = 1 * time.Second
)

var (
	// ErrNoDevice is returned by ReadReport when the device has been
	// surprise-removed. Workers treat this as spec.md's DeviceRemoved.
	ErrNoDevice = errors.New("usbhid: no device")
	// ErrTimeout is a non-fatal interrupt-read timeout.
	ErrTimeout = errors.New("usbhid: read timeout")
)

// Identity packs (bus, address) into the 16-bit device-identity key of
// spec.md §3. It is unique at any instant but may be reused once the
// device unplugs.
type Identity uint16

func NewIdentity(bus, addr int) Identity {
	return Identity(uint16(bus)<<8 | uint16(addr&0xff))
}

func (id Identity) String() string {
	return fmt.Sprintf("%d-%d", uint16(id)>>8, uint16(id)&0xff)
}

// Enumerate returns every attached device matching the G13's vendor and
// product IDs.
func Enumerate(ctx *gousb.Context) ([]*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	if err != nil {
		return nil, fmt.Errorf("usbhid: enumerate: %w", err)
	}
	return devs, nil
}

// Device is one opened, interface-claimed G13.
type Device struct {
	usb   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint
}

// Open claims interface 0 on an already-opened gousb.Device, detaching
// any active kernel HID driver first.
func Open(dev *gousb.Device) (*Device, error) {
	dev.SetAutoDetach(true)

	cfg, err := dev.Config(configNumber)
	if err != nil {
		return nil, fmt.Errorf("usbhid: config %d: %w", configNumber, err)
	}

	iface, err := cfg.Interface(interfaceNumber, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usbhid: claim interface %d: %w", interfaceNumber, err)
	}

	epIn, err := iface.InEndpoint(keyEndpoint)
	if err != nil {
		iface.Close()
		cfg.Close()
		return nil, fmt.Errorf("usbhid: key endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(lcdEndpoint)
	if err != nil {
		iface.Close()
		cfg.Close()
		return nil, fmt.Errorf("usbhid: lcd endpoint: %w", err)
	}

	return &Device{usb: dev, cfg: cfg, iface: iface, epIn: epIn, epOut: epOut}, nil
}

// Close releases interface 0 and the underlying gousb config.
func (d *Device) Close() {
	if d.iface != nil {
		d.iface.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
}

// WakeLCD sends the class control transfer that wakes the LCD
// controller: request=0x09, value=0x0300, index=0, data=[0x01].
func (d *Device) WakeLCD() error {
	_, err := d.usb.Control(
		uint8(gousb.ControlClass|gousb.ControlInterface),
		0x09, 0x0300, 0x00, []byte{0x01},
	)
	if err != nil {
		return fmt.Errorf("usbhid: wake lcd: %w", err)
	}
	return nil
}

// SetBacklight sends the class control transfer that sets the RGB
// backlight: request=9, value=0x307, index=0, data=[5, r, g, b, 0].
func (d *Device) SetBacklight(r, g, b byte) error {
	data := []byte{5, r, g, b, 0}
	_, err := d.usb.Control(
		uint8(gousb.ControlClass|gousb.ControlInterface),
		9, 0x307, 0x00, data,
	)
	if err != nil {
		return fmt.Errorf("usbhid: set backlight: %w", err)
	}
	return nil
}

// ReadReport performs one interrupt read from the key endpoint with a
// 100ms timeout. A timeout is reported as ErrTimeout (non-fatal); a
// surprise-removal is reported as ErrNoDevice.
func (d *Device) ReadReport() ([reportSize]byte, error) {
	var report [reportSize]byte
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	buf := make([]byte, reportSize)
	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return report, ErrTimeout
		}
		if isNoDevice(err) {
			return report, ErrNoDevice
		}
		return report, fmt.Errorf("usbhid: read report: %w", err)
	}
	if n != reportSize {
		return report, ErrTimeout
	}
	copy(report[:], buf)
	return report, nil
}

// WriteLCD sends a prepared LCD payload (see package lcd's Payload) over
// the LCD bulk/interrupt-out endpoint with a 1s timeout.
func (d *Device) WriteLCD(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := d.epOut.WriteContext(ctx, payload)
	if err != nil {
		if isNoDevice(err) {
			return ErrNoDevice
		}
		return fmt.Errorf("usbhid: write lcd: %w", err)
	}
	return nil
}

func isNoDevice(err error) bool {
	var gerr *gousb.Error
	if errors.As(err, &gerr) {
		return gerr.Code == gousb.ErrorNoDevice
	}
	return false
}
