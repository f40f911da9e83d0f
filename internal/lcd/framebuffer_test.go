package lcd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetPixelGetPixelRoundTrip(t *testing.T) {
	var fb Framebuffer
	for _, p := range []struct{ x, y int }{{0, 0}, {159, 47}, {80, 24}, {5, 7}} {
		fb.SetPixel(p.x, p.y, true)
		require.True(t, fb.GetPixel(p.x, p.y))
		fb.SetPixel(p.x, p.y, false)
		require.False(t, fb.GetPixel(p.x, p.y))
	}
}

func TestSetPixelOutOfRangeIsNoOp(t *testing.T) {
	var fb Framebuffer
	fb.SetPixel(-1, 0, true)
	fb.SetPixel(0, -1, true)
	fb.SetPixel(Width, 0, true)
	fb.SetPixel(0, Height, true)
	require.Equal(t, [bufferSize]byte{}, fb.buf)
}

func TestGetPixelOutOfRangeReturnsFalse(t *testing.T) {
	var fb Framebuffer
	require.False(t, fb.GetPixel(-1, 0))
	require.False(t, fb.GetPixel(Width, 0))
	require.False(t, fb.GetPixel(0, Height))
}

func TestClearZeroesBuffer(t *testing.T) {
	var fb Framebuffer
	fb.SetPixel(10, 10, true)
	fb.Clear()
	require.Equal(t, [bufferSize]byte{}, fb.buf)
}

func TestDrawTextUnknownCharRendersBlank(t *testing.T) {
	var fb Framebuffer
	fb.DrawText(0, 0, "\x01")
	require.Equal(t, [bufferSize]byte{}, fb.buf)
}

func TestDrawTextSetsSomePixels(t *testing.T) {
	var fb Framebuffer
	fb.DrawText(0, 0, "A")
	found := false
	for y := 0; y < 7; y++ {
		for x := 0; x < 5; x++ {
			if fb.GetPixel(x, y) {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestPayloadHeaderAndSize(t *testing.T) {
	var fb Framebuffer
	fb.SetPixel(0, 0, true)
	payload := fb.Payload()

	require.Len(t, payload, frameSize)
	require.Equal(t, byte(0x03), payload[0])
	for i := 1; i < headerSize; i++ {
		require.Equal(t, byte(0), payload[i])
	}
	require.Equal(t, fb.buf[0], payload[headerSize])
}
