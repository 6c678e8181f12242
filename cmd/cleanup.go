package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/dedup"
	"github.com/ap0ught/familyman/fingerprint"
	"github.com/ap0ught/familyman/repository"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-duplicates",
	Short: "Find and remove photos stored more than once",
	Long: `Report or delete photo records that share a content fingerprint.

Records imported before fingerprints existed have none; --compute-hashes
hashes their files first. In each duplicate group the oldest record is kept.

Examples:
  # Fingerprint legacy records and list duplicate groups
  familyman cleanup-duplicates --compute-hashes

  # Delete every copy but the oldest
  familyman cleanup-duplicates --action delete`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Bool("compute-hashes", false, "Fingerprint records that have none")
	cleanupCmd.Flags().String("action", string(dedup.ActionReport), "What to do with duplicate groups: report or delete")
	cleanupCmd.Flags().Bool("dry-run", false, "Show what would change without writing")
	cleanupCmd.Flags().Int("workers", 0, "Parallel hashing workers (default from IMPORT_WORKERS)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	action, err := dedup.ParseAction(mustGetString(cmd, "action"))
	if err != nil {
		return err
	}
	algo, err := fingerprint.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return err
	}
	hasher, err := fingerprint.New(algo)
	if err != nil {
		return err
	}
	workers := mustGetInt(cmd, "workers")
	if workers <= 0 {
		workers = cfg.ImportWorkers
	}

	db, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	opts := dedup.CleanupOptions{
		ComputeHashes: mustGetBool(cmd, "compute-hashes"),
		Action:        action,
		DryRun:        mustGetBool(cmd, "dry-run"),
		Workers:       workers,
	}
	var bar *progressbar.ProgressBar
	if opts.ComputeHashes {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Computing hashes"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		opts.Progress = func() { _ = bar.Add(1) }
	}

	cleaner := &dedup.Cleaner{
		Store:  repository.NewPhotoRepository(db),
		DB:     sqlDB,
		Hasher: hasher,
		Logger: log,
	}
	report, err := cleaner.Cleanup(context.Background(), opts)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	printCleanupReport(report, opts)
	return nil
}

func printCleanupReport(report dedup.CleanupReport, opts dedup.CleanupOptions) {
	if opts.ComputeHashes {
		fmt.Printf("Fingerprinted %d record(s), %d could not be read\n", report.Computed, len(report.HashFailures))
		for _, f := range report.HashFailures {
			fmt.Printf("  photo %d (%s): %v\n", f.PhotoID, f.Path, f.Err)
		}
	}

	if len(report.Groups) == 0 {
		fmt.Println("No duplicates found.")
		return
	}

	rows := make([][]string, 0)
	for _, g := range report.Groups {
		keep := g.Keep()
		rows = append(rows, []string{short(g.Fingerprint), "keep", strconv.FormatUint(uint64(keep.ID), 10), keep.OriginalPath})
		for _, p := range g.Remove() {
			rows = append(rows, []string{"", "remove", strconv.FormatUint(uint64(p.ID), 10), p.OriginalPath})
		}
	}
	fmt.Println(renderTable([]string{"Fingerprint", "", "ID", "Path"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))

	redundant := 0
	for _, g := range report.Groups {
		redundant += len(g.Remove())
	}
	switch {
	case opts.Action != dedup.ActionDelete:
		fmt.Printf("%d duplicate group(s), %d redundant record(s). Use --action delete to remove them.\n", len(report.Groups), redundant)
	case opts.DryRun:
		fmt.Printf("Dry run: would delete %d record(s) in %d group(s).\n", redundant, len(report.Groups))
	default:
		fmt.Printf("Deleted %d record(s) in %d group(s).\n", report.Deleted, len(report.Groups))
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
