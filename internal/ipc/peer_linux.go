//go:build linux

package ipc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerIdentity names the process on the other end of a unix socket
func peerIdentity(conn net.Conn) (string, bool) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return "", false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return "", false
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return "", false
	}
	return fmt.Sprintf("uid:%d/pid:%d", cred.Uid, cred.Pid), true
}
