//go:build !linux

package ipc

import "net"

// peerIdentity is unavailable here; callers fall back to per-connection identities
func peerIdentity(conn net.Conn) (string, bool) {
	return "", false
}
