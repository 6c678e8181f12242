package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/tagger"
)

var mergeMetadataCmd = &cobra.Command{
	Use:   "merge-metadata <root>",
	Short: "Write sidecar metadata into the images themselves",
	Long: `Walk <root> and copy each image's JSON sidecar (capture time, description,
keywords and GPS position) into the image's EXIF/IPTC tags, so the metadata
survives without the sidecar.

Requires exiftool on PATH.

Examples:
  familyman merge-metadata ~/Takeout/Photos
  familyman merge-metadata ~/Takeout/Photos --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runMergeMetadata,
}

func init() {
	rootCmd.AddCommand(mergeMetadataCmd)
	mergeMetadataCmd.Flags().Bool("dry-run", false, "Show what would be written without writing")
}

func runMergeMetadata(cmd *cobra.Command, args []string) error {
	_, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	writer, err := tagger.New(mustGetBool(cmd, "dry-run"), log)
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := tagger.MergeSidecars(ctx, args[0], writer, log)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d image(s): %d updated, %d without sidecar, %d failed\n",
		report.Scanned, report.Written, report.NoSidecar, len(report.Errors))
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d image(s) could not be updated", len(report.Errors))
	}
	return nil
}
