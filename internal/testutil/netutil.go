package testutil

import (
	"net"
	"testing"
)

// PipeConn creates a connected net.Conn pair via net.Pipe. Both ends are
// closed when the test finishes.
func PipeConn(t testing.TB) (client, server net.Conn) {
	t.Helper()

	server, client = net.Pipe()

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return client, server
}
