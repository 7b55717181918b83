package gateway_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/signalnine/triage/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFreePort(t *testing.T) {
	port, err := gateway.FindFreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err, "port %d should be free", port)
	ln.Close()
}

func TestGatewayURL(t *testing.T) {
	gw := &gateway.Gateway{Port: 8080}
	assert.Equal(t, "http://localhost:8080", gw.URL())
}

func TestStartMissingBinary(t *testing.T) {
	_, err := gateway.Start(context.Background(), gateway.Options{
		Binary:       "triage-no-such-proxy-binary",
		LogDir:       t.TempDir(),
		StartTimeout: time.Second,
	})
	assert.Error(t, err)
}

func TestStartMissingSecrets(t *testing.T) {
	_, err := gateway.Start(context.Background(), gateway.Options{
		Binary:         "true",
		SecretsEnvFile: t.TempDir() + "/missing.env",
		LogDir:         t.TempDir(),
	})
	assert.Error(t, err)
}
