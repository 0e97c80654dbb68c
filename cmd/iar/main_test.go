package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/iar/pkg/config"
	"github.com/platinummonkey/iar/pkg/observability"
)

// closedAddr returns a local address nothing listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServe_StartupFailure(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Database.URL = "postgres://iar:iar@" + closedAddr(t) + "/iar?sslmode=disable"
	cfg.Database.Timeout = time.Second

	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), cfg, observability.NewNopLogger())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping database")
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after the database failed")
	}
}
