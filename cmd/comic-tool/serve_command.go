package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

const (
	sweepInterval    = time.Minute
	processRetention = 7 * 24 * time.Hour
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for editing sessions and batch runs",
		Example: `  comic-tool serve
  comic-tool serve --listen 0.0.0.0:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.serving = true
			app, err := ctx.app(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				app.Config.Server.Listen = listen
			}
			server, err := newServer(cmd.Context(), app)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), app, server)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default from config)")
	return cmd
}

func newServer(ctx context.Context, app *AppContext) (*http.Server, error) {
	if err := app.InitServer(ctx); err != nil {
		return nil, err
	}
	if n := app.ProcessManager.CleanupOldProcesses(processRetention); n > 0 {
		app.Logger.Info(fmt.Sprintf("Removed %d old processes from history", n))
	}

	r := mux.NewRouter()
	RegisterRoutes(r, app)
	return &http.Server{
		Addr:              app.Config.Server.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func runServer(ctx context.Context, app *AppContext, server *http.Server) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go app.Sessions.Run(sweepCtx, sweepInterval)

	serverErr := make(chan error, 1)
	go func() {
		app.Logger.Slog.Info("comic-tool API available", "addr", server.Addr, "tools", app.Tools.RarDecoder())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		app.Logger.Slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		app.Close()
		if err != nil {
			app.Logger.Slog.Error("Server shutdown failed", "err", err)
			return err
		}
		app.Logger.Slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		app.Close()
		return err
	}
}
