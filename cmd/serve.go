package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipgrab/clipgrab_server/internal"
	"github.com/clipgrab/clipgrab_server/internal/download"
	"github.com/clipgrab/clipgrab_server/internal/extractor"
	"github.com/clipgrab/clipgrab_server/internal/health"
	"github.com/clipgrab/clipgrab_server/internal/status"
	"github.com/clipgrab/clipgrab_server/internal/websocket"
	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := workspace.New(workspace.Config{
		Dir:             config.Staging.Dir,
		ResolveAttempts: config.Staging.ResolveAttempts,
		ResolveInterval: config.Staging.ResolveInterval,
	})
	if err != nil {
		return err
	}

	ytdlp := extractor.New(
		extractor.WithBinary(config.Extractor.Binary),
		extractor.WithTimeouts(config.Extractor.WholeTimeout, config.Extractor.SegmentTimeout),
		extractor.WithVideoBaseURL(config.Extractor.VideoBaseURL),
	)
	if toolVersion, err := ytdlp.VerifyInstalled(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("yt-dlp is not available; downloads will fail until it is installed")
	} else {
		log.Info().Str("version", toolVersion).Msg("yt-dlp found")
	}

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	scheduler := workspace.NewCleanupScheduler(manager, config.Staging.Retention, config.Staging.SweepInterval)
	scheduler.Start()
	defer scheduler.Stop()

	service := download.NewService(manager, ytdlp, hub, config.Staging.Retention)
	requestHandler := internal.NewRequestHandler(
		config,
		download.NewEndpoints(service),
		status.NewEndpoints(Version, manager, hub, config.Staging.Retention),
		health.NewEndpoints(Version, ytdlp),
		websocket.NewHandler(hub, config.Server.AllowedOrigins),
	)

	server := &fasthttp.Server{
		Handler:            requestHandler,
		Name:               "clipgrab",
		MaxRequestBodySize: config.Server.MaxBodyBytes,
		ReadTimeout:        30 * time.Second,
		IdleTimeout:        2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", config.Server.Addr).
			Str("stagingDir", manager.Dir()).
			Dur("retention", config.Staging.Retention).
			Msg("Starting server")
		serveErr <- server.ListenAndServe(config.Server.Addr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
