package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/docs-hound/docshound/internal/api"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the site registry, discovery, indexing and search over HTTP.

Discovery and indexing requests run in the background. On SIGINT or SIGTERM
the server stops accepting requests, running crawls are cancelled and the
database is closed once they return.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				if cmd.Flags().Changed("addr") {
					a.config.Serve.Addr = addr
				}
				return a.serve()
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default 127.0.0.1:8080)")
	return cmd
}

// serve blocks until the command context is cancelled or the listener
// fails. The server and background runs are stopped by the shutdown
// handler.
func (a *app) serve() error {
	server := api.NewServer(a.ctx(), api.Config{
		Registry: a.registry,
		Pipeline: a.pipeline,
		Store:    a.store,
		Metrics:  a.metrics,
		Logger:   a.log,
	})
	httpServer := &http.Server{
		Addr:              a.config.Serve.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Registered first so it runs after the listener has stopped.
	a.shutdown.Register("background runs", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			server.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	a.shutdown.RegisterServer("http server", httpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	a.log.Infof("Listening on %s", httpServer.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
	case <-a.ctx().Done():
		return nil
	}
}
