package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewh/clicktrace/pkg/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace query API from the configured source",
		Long: "Serve the trace query API from the configured source.\n\n" +
			"With --file this replays an export file to any API client, including\n" +
			"clicktrace --endpoint. With --endpoint it proxies another API through\n" +
			"the lookup cache.",
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			src, err := a.openSource(cmd)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveAPI(ctx, ln, server.NewRouter(src, a.logger), a.logger, cmd.OutOrStdout())
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	return cmd
}

// serveAPI serves h on ln until ctx is cancelled, then shuts down gracefully.
func serveAPI(ctx context.Context, ln net.Listener, h http.Handler, logger *zap.Logger, out io.Writer) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	_, _ = fmt.Fprintf(out, "Serving trace API on http://%s\n", ln.Addr())
	logger.Info("server started", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
