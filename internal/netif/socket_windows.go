//go:build windows

package netif

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions enables SO_REUSEADDR, the closest Windows equivalent
// to POSIX SO_REUSEPORT for port-sharing purposes; Windows has no
// SO_REUSEPORT option.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("netif: set SO_REUSEADDR: %w", err)
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
