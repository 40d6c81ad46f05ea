//go:build !linux

package discovery

import "syscall"

// controlReusePort is a no-op on platforms without SO_REUSEPORT; the
// socket still binds, it just cannot share the port with a sibling
// process.
func controlReusePort(network, address string, c syscall.RawConn) error {
	return nil
}
