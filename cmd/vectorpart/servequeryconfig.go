package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vectorpart/internal/queryconfig"
)

// serveQueryConfigCmd exposes the query config builder as a small HTTP
// service so an external query-routing process can fetch the current
// record-type -> collection mapping without scanning the partition tree
// itself. The config is rebuilt on every request: build is cheap (a
// lexicographic directory scan) and this avoids serving a mapping that's
// gone stale behind a long-lived process.
func serveQueryConfigCmd() *cobra.Command {
	var root string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-query-config",
		Short: "Serve the query config builder's output over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			mux.HandleFunc("/query-config", func(w http.ResponseWriter, r *http.Request) {
				cfg, err := queryconfig.Build(root)
				if err != nil {
					logger.Errorw("query config build failed", "error", err)
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				if err := json.NewEncoder(w).Encode(cfg); err != nil {
					logger.Errorw("query config encode failed", "error", err)
				}
			})

			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Infow("serving query config", "addr", addr, "root", root)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Partition root directory (required)")
	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")

	_ = cmd.MarkFlagRequired("root")

	return cmd
}
