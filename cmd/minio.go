package cmd

import (
	"context"
	"fmt"
	"time"

	"hlswatch/config"
	"hlswatch/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "List archived segments in the MinIO bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if !cfg.MinioEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is not set")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		client, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return err
		}

		objects, stats, err := storage.ListSegments(ctx, client, cfg.MinioBucket, minioPrefix)
		if err != nil {
			return err
		}
		if !minioStats {
			for _, obj := range objects {
				fmt.Fprintf(out, "%s  %s  %s\n", obj.LastModified.Format(time.RFC3339), storage.FormatSize(obj.Size), obj.Key)
			}
		}
		fmt.Fprintf(out, "\nobjects: %d, total size: %s", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		if stats.TotalObjects > 0 {
			fmt.Fprintf(out, ", last modified: %s", stats.LastModified.Format(time.RFC3339))
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object prefix to list (default: every archived segment)")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "only print bucket totals")

	minioCmd.Example = `  # list every archived segment
  hlswatch minio

  # segments of one playlist
  hlswatch minio -p segments/cam1/index/

  # totals only
  hlswatch minio -s`
}
