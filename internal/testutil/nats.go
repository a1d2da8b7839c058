package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// JetStream is an embedded NATS server with JetStream storage in a test
// temp dir. Connections opened through it are closed when the test ends.
type JetStream struct {
	Server *server.Server
}

// NewJetStream starts an embedded JetStream server on a random local port
func NewJetStream(t *testing.T) *JetStream {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "embedded NATS server not ready")
	t.Cleanup(srv.Shutdown)

	return &JetStream{Server: srv}
}

// Connect opens a new client connection and returns its JetStream context.
// Each call behaves like a separate bridge process.
func (j *JetStream) Connect(t *testing.T) nats.JetStreamContext {
	t.Helper()

	nc, err := nats.Connect(j.Server.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)
	return js
}

// RequireStream waits until the named stream exists
func RequireStream(t *testing.T, js nats.JetStreamContext, name string) *nats.StreamInfo {
	t.Helper()

	var info *nats.StreamInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = js.StreamInfo(name)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "stream %s not created", name)
	return info
}
