package usbhid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityPacksBusAndAddress(t *testing.T) {
	id := NewIdentity(1, 5)
	require.Equal(t, "1-5", id.String())
}

func TestIdentityDistinguishesAddresses(t *testing.T) {
	require.NotEqual(t, NewIdentity(1, 5), NewIdentity(1, 6))
	require.NotEqual(t, NewIdentity(1, 5), NewIdentity(2, 5))
}
