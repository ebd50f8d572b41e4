// Tests for the replay API server lifecycle
package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/andrewh/clicktrace/pkg/server"
	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServeAPI(t *testing.T) {
	t.Parallel()
	src, err := source.OpenFile(backendFixture, source.FormatAuto, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- serveAPI(ctx, ln, server.NewRouter(src, nil), zap.NewNop(), &out)
	}()

	client, err := source.NewHTTPSource("http://" + ln.Addr().String())
	require.NoError(t, err)
	tr, err := client.Trace(context.Background(), "t-checkout")
	require.NoError(t, err)
	assert.Len(t, tr.Spans, 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, out.String(), "Serving trace API on http://127.0.0.1:")
}

func TestServeCommand_ListenError(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, "--file", backendFixture, "serve", "--addr", "256.0.0.1:bad")
	assert.ErrorContains(t, err, "listening on")
}

func TestServeCommand_RequiresSource(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, "serve", "--addr", "127.0.0.1:0")
	assert.ErrorContains(t, err, "no trace source configured")
}
