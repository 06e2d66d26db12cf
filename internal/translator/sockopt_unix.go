//go:build !windows

package translator

import "syscall"

// applyUDPSocketOptions sets SO_REUSEADDR so a restarted listener can
// rebind to the same port without waiting out the prior socket's
// TIME_WAIT. SO_REUSEPORT is intentionally omitted: not defined on all
// Unix targets and not needed for a single listener socket.
func applyUDPSocketOptions(network, address string, rc syscall.RawConn) error {
	var retErr error
	_ = rc.Control(func(fd uintptr) {
		if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil && retErr == nil {
			retErr = err
		}
	})
	return retErr
}
