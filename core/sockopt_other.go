//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package core

import "syscall"

func controlListener(network, address string, rc syscall.RawConn) error {
	return nil
}
