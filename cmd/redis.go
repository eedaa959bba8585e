package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"hlswatch/cache"
	"hlswatch/config"

	"github.com/spf13/cobra"
)

var redisHistory int

var redisCmd = &cobra.Command{
	Use:   "redis [playlist]",
	Short: "Check the Redis connection and show recorded segments",
	Long: `Pings the configured Redis server and prints the last dispatched segment of every
playlist. With a playlist path, prints that playlist's recent history instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		client, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintln(out, "connected")

		sink := cache.NewRedisSink(client, cfg.RedisHistory, cfg.RedisTTL)
		if len(args) == 1 {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			records, err := sink.History(ctx, path, redisHistory)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(out, "%s  %s  %.3fs  %s\n", rec.DispatchedAt.Format(time.RFC3339), rec.URI, rec.Duration, formatStart(rec.StartTime))
			}
			return nil
		}

		records, err := sink.LastSegments(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "no segments recorded")
			return nil
		}
		for _, rec := range records {
			fmt.Fprintf(out, "%s\n  last: %s  start: %s  dispatched: %s\n",
				rec.Playlist, rec.URI, formatStart(rec.StartTime), rec.DispatchedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02T15:04:05.000000Z07:00")
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().IntVarP(&redisHistory, "limit", "n", 20, "number of history entries to show for a playlist")
}
