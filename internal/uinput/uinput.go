// Package uinput implements the process-wide virtual input sink: a single
// kernel-visible keyboard/gamepad endpoint that every device worker and
// macro goroutine emits synthesized events through.
package uinput

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/dalmatheo/g13d/internal/macro"
)

// Error kinds returned by Create, matching spec.md's InitFailure taxonomy.
var (
	ErrNotFound         = errors.New("uinput: no /dev/uinput node found")
	ErrPermissionDenied = errors.New("uinput: permission denied opening /dev/uinput")
	ErrUnsupported      = errors.New("uinput: UI_DEV_SETUP/UI_DEV_CREATE rejected by kernel")
)

// candidatePaths are the two canonical locations searched in order.
var candidatePaths = []string{"/dev/uinput", "/dev/input/uinput"}

const (
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetAbsBit = 0x40045567
	uiSetMscBit = 0x40045568
	uiDevSetup  = 0x405c5503
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502
	uiAbsSetup  = 0x401c5504

	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03
	evMsc = 0x04

	synReport = 0
	mscScan   = 0x04

	absX = 0x00
	absY = 0x01

	btnThumb = 0x121

	busUSB = 0x03

	vendorID  = 0x046d
	productID = 0xc21c
	deviceName = "G13"
)

type inputEvent struct {
	time      syscall.Timeval
	typ, code uint16
	value     int32
}

type inputID struct {
	bustype, vendor, product, version uint16
}

type inputAbsinfo struct {
	value, min, max, fuzz, flat, resolution int32
}

type uinputAbsSetup struct {
	code uint16
	_    [2]byte
	info inputAbsinfo
	_    [4]byte
}

type uinputSetup struct {
	id           inputID
	name         [80]byte
	ffEffectsMax uint32
	absinfo      [0x40]uinputAbsSetup
}

// EventType is the subset of Linux input event types the sink emits.
// Aliased to macro.EventKind so *Sink satisfies macro.EventSink (and, by
// extension, action.EventSink) without any conversion at call sites.
type EventType = macro.EventKind

const (
	EventKey EventType = evKey
	EventAbs EventType = evAbs
	EventSyn EventType = evSyn
	EventMsc EventType = evMsc
)

// Sink is the process-wide virtual input endpoint. It outlives every
// device worker; callers obtain one via Create and Destroy it only at
// process shutdown.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// Create locates, opens and declares the virtual input device's
// capabilities: EV_KEY for scancodes 0-255 plus BTN_THUMB, EV_ABS for
// ABS_X/ABS_Y ranged 0-255, and MSC_SCAN.
func Create() (*Sink, error) {
	var f *os.File
	var lastErr error
	for _, p := range candidatePaths {
		var err error
		f, err = os.OpenFile(p, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
	}
	if f == nil {
		if errors.Is(lastErr, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		if errors.Is(lastErr, os.ErrPermission) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("uinput: open: %w", lastErr)
	}

	if err := declareCapabilities(f); err != nil {
		f.Close()
		return nil, err
	}

	var setup uinputSetup
	copy(setup.name[:], deviceName)
	setup.id.bustype = busUSB
	setup.id.vendor = vendorID
	setup.id.product = productID
	setup.id.version = 1

	if err := ioctlSetup(f.Fd(), uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: UI_DEV_SETUP: %v", ErrUnsupported, err)
	}

	for _, ax := range []uint16{absX, absY} {
		abs := uinputAbsSetup{code: ax, info: inputAbsinfo{min: 0, max: 255}}
		if err := ioctlSetup(f.Fd(), uiAbsSetup, unsafe.Pointer(&abs)); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: UI_ABS_SETUP(%d): %v", ErrUnsupported, ax, err)
		}
	}

	if err := ioctl(f.Fd(), uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: UI_DEV_CREATE: %v", ErrUnsupported, err)
	}

	return &Sink{file: f}, nil
}

func declareCapabilities(f *os.File) error {
	if err := ioctl(f.Fd(), uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("%w: EV_KEY: %v", ErrUnsupported, err)
	}
	if err := ioctl(f.Fd(), uiSetEvBit, evAbs); err != nil {
		return fmt.Errorf("%w: EV_ABS: %v", ErrUnsupported, err)
	}
	if err := ioctl(f.Fd(), uiSetEvBit, evSyn); err != nil {
		return fmt.Errorf("%w: EV_SYN: %v", ErrUnsupported, err)
	}
	if err := ioctl(f.Fd(), uiSetEvBit, evMsc); err != nil {
		return fmt.Errorf("%w: EV_MSC: %v", ErrUnsupported, err)
	}
	for code := 0; code <= 255; code++ {
		if err := ioctl(f.Fd(), uiSetKeyBit, uintptr(code)); err != nil {
			return fmt.Errorf("%w: KEY_BIT(%d): %v", ErrUnsupported, code, err)
		}
	}
	if err := ioctl(f.Fd(), uiSetKeyBit, btnThumb); err != nil {
		return fmt.Errorf("%w: BTN_THUMB: %v", ErrUnsupported, err)
	}
	for _, ax := range []uint16{absX, absY} {
		if err := ioctl(f.Fd(), uiSetAbsBit, uintptr(ax)); err != nil {
			return fmt.Errorf("%w: ABS_BIT(%d): %v", ErrUnsupported, ax, err)
		}
	}
	if err := ioctl(f.Fd(), uiSetMscBit, mscScan); err != nil {
		return fmt.Errorf("%w: MSC_SCAN: %v", ErrUnsupported, err)
	}
	return nil
}

// Emit appends one timestamped event under the sink's mutex, so emits from
// the worker poll loop and background macro goroutines never interleave
// within a single event.
func (s *Sink) Emit(typ EventType, code uint16, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(typ, code, value)
}

// EmitSync appends a synthesizing EV_SYN/SYN_REPORT event. Callers emit
// this after any multi-part logical event.
func (s *Sink) EmitSync() error {
	return s.Emit(EventSyn, synReport, 0)
}

func (s *Sink) write(typ EventType, code uint16, value int32) error {
	if s.file == nil {
		return errors.New("uinput: sink destroyed")
	}
	var tv syscall.Timeval
	syscall.Gettimeofday(&tv)
	ev := inputEvent{time: tv, typ: uint16(typ), code: code, value: value}
	buf := (*(*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev)))[:]
	_, err := s.file.Write(buf)
	return err
}

// Destroy removes the kernel endpoint and closes the handle. Idempotent.
func (s *Sink) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	ioctl(s.file.Fd(), uiDevDestroy, 0)
	err := s.file.Close()
	s.file = nil
	return err
}

func ioctl(fd uintptr, request uintptr, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlSetup(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
