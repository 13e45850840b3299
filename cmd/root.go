package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/clipgrab/clipgrab_server/internal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clipgrab",
	Short: "Download whole videos or clips through yt-dlp over HTTP",
	Long: `clipgrab runs an HTTP service that accepts a video URL (or a video id
plus start and end timestamps), runs yt-dlp into a private staging file and
streams the result back as an attachment.

Example:
  clipgrab serve --config files/config.yaml
  clipgrab sweep --max-age 30m`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+internal.DefaultConfigFile+")")
}

func loadConfig() (*internal.Config, error) {
	config, err := internal.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	configureLogging(config.Logging)
	return config, nil
}

func configureLogging(config internal.LoggingConfig) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if config.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
