package cmd

import (
	"fmt"
	"os"

	"hlswatch/config"
	"hlswatch/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hlswatch [dir]",
	Short: "Watch a directory tree for live HLS playlists and dispatch new segments.",
	Long: `hlswatch watches dir (default: the current directory) and every directory below it.
Each *.m3u8 playlist that appears gets its own monitor, which forwards the newest
segment of the playlist every time the file changes. Stop with Ctrl+C.

The words "redis" and "minio" name diagnostic subcommands. To watch a directory
with one of those names, give it as a path: hlswatch ./redis`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if len(args) == 1 {
			cfg.WatchRoot = args[0]
		}
		if err := initLogger(cfg); err != nil {
			return err
		}
		defer logger.Sync()
		return runWatch(cmd.Context(), cfg)
	},
}

func initLogger(cfg *config.Config) error {
	err := logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
