//go:build linux

package netif

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions enables SO_REUSEADDR and, where the kernel supports
// it, SO_REUSEPORT, so a discovery/LLRP socket can coexist with other
// processes bound to the same multicast port.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("netif: set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		if err != unix.ENOPROTOOPT {
			return fmt.Errorf("netif: set SO_REUSEPORT: %w", err)
		}
	}
	return nil
}

// PlatformControl is the net.ListenConfig.Control function used when
// binding LLRP/discovery sockets.
func PlatformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	if err := c.Control(func(fd uintptr) { sockoptErr = setSocketOptions(fd) }); err != nil {
		return fmt.Errorf("netif: raw conn control: %w", err)
	}
	return sockoptErr
}
