package lcd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Fifo is the named-pipe consumer for the LCD's text protocol. It is
// created at worker startup: any stale node is removed, a new FIFO is
// created with world read/write permission, and a handle is opened in
// non-blocking read-write mode. Grounded on original_source's
// init_fifo/check_fifo/cleanup_fifo.
type Fifo struct {
	path string
	file *os.File
	buf  [4096]byte
}

// CreateFifo removes any stale node at path, creates a fresh FIFO (0666),
// and opens it non-blocking read-write. Creating the FIFO twice is
// equivalent to creating it once: the stale-node removal makes the
// operation idempotent.
func CreateFifo(path string) (*Fifo, error) {
	_ = os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return nil, fmt.Errorf("lcd: mkfifo %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		return nil, fmt.Errorf("lcd: chmod %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lcd: open %s: %w", path, err)
	}
	return &Fifo{path: path, file: f}, nil
}

// TryReadFrame performs a single non-blocking read. It returns the lines
// of a frame (split on '\n') and true if any bytes were read; otherwise
// it returns (nil, false). Embedded NULs truncate the frame at the first
// occurrence, matching the FIFO's UTF-8-ish ASCII assumption.
func (f *Fifo) TryReadFrame() ([]string, bool) {
	n, err := f.file.Read(f.buf[:])
	if err != nil || n <= 0 {
		return nil, false
	}
	data := f.buf[:n]
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	lines := strings.Split(string(data), "\n")
	return lines, true
}

// Close closes the handle and removes the FIFO node.
func (f *Fifo) Close() error {
	err := f.file.Close()
	os.Remove(f.path)
	return err
}

// PaintFrame applies lines to fb: clears it, draws each line at
// (x=2, y=8*index) using the 5x7 font, discarding lines at y >= Height.
func PaintFrame(fb *Framebuffer, lines []string) {
	fb.Clear()
	for i, line := range lines {
		y := 8 * i
		if y >= Height {
			break
		}
		fb.DrawText(2, y, line)
	}
}
