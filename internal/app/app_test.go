package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/infrastructure/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestNewFromConfig_BuildsFullDependencyGraph(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &config.Config{}
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Server.Port = freePort(t)

	a, err := NewFromConfig(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer a.Stop(context.Background())

	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Cooldown)
	assert.NotNil(t, a.Accounts)
	assert.NotNil(t, a.Dispatcher)
	assert.Same(t, a.Router, a.Dispatcher.Router)
}

func TestAppLifecycle_StartServesHealthAndStopShutsDown(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	port := freePort(t)
	cfg := &config.Config{}
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Server.Port = port

	a, err := NewFromConfig(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "server never came up on %s", url)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Stop(ctx))

	_, err = http.Get(url)
	assert.Error(t, err, "server still accepting connections after Stop")
}

func TestAppStop_IsIdempotentOnBackendClose(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &config.Config{}
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Server.Port = freePort(t)

	a, err := NewFromConfig(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()), "second Stop must also succeed")
}
