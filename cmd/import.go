package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/dedup"
	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/fingerprint"
	"github.com/ap0ught/familyman/importer"
	"github.com/ap0ught/familyman/media"
	"github.com/ap0ught/familyman/repository"
)

var importCmd = &cobra.Command{
	Use:   "import <source>",
	Short: "Import photos from a directory, an image or a zip archive",
	Long: `Import every image found under <source> into the photo database.

Each file is hashed; a file whose content is already known is handled by the
duplicate action (skip, replace or error). Faces are detected in every new
file. With --people-only, files without any face are moved into the
to-be-processed directory instead of being imported. After all files are done
the faces of the run are clustered and written to the manifest.

Zip archives in the source, and in the intake directory, are unpacked into
the processed directory and moved there once all their images are done. A
directory or archive that cannot be read is reported as an errored entry.

Examples:
  # Import a Takeout export, keeping only photos with people
  familyman import ~/Takeout/Photos --people-only

  # See what would happen without touching anything
  familyman import takeout.zip --dry-run

  # Re-import and overwrite metadata of known photos
  familyman import ~/Takeout/Photos --duplicate-action replace`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "Compute every decision but write nothing")
	importCmd.Flags().Bool("people-only", false, "Route photos without faces to the to-be-processed directory")
	importCmd.Flags().String("duplicate-action", string(dedup.PolicySkip), "What to do with known content: skip, replace or error")
	importCmd.Flags().Bool("halt-on-error", false, "Stop at the first file that errors and exit non-zero")
	importCmd.Flags().String("intake-dir", "", "Directory of archives waiting to be imported (default from INTAKE_DIR)")
	importCmd.Flags().String("processed-dir", "", "Directory consumed archives are moved to (default from PROCESSED_DIR)")
	importCmd.Flags().String("to-be-processed-dir", "", "Directory face-less photos are routed to (default from TO_BE_PROCESSED_DIR)")
	importCmd.Flags().Int("workers", 0, "Number of parallel workers (default from IMPORT_WORKERS)")
	importCmd.Flags().Duration("file-timeout", 0, "Face extraction budget per file (default from IMPORT_FILE_TIMEOUT)")
	importCmd.Flags().String("detector", "", "Face detector: fast or accurate (default from FACE_DETECTOR)")
	importCmd.Flags().Bool("no-progress", false, "Do not show a progress bar")
	addClusterFlags(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if v := mustGetString(cmd, "intake-dir"); v != "" {
		cfg.IntakeDir = v
	}
	if v := mustGetString(cmd, "processed-dir"); v != "" {
		cfg.ProcessedDir = v
	}
	if v := mustGetString(cmd, "to-be-processed-dir"); v != "" {
		cfg.ToBeProcessedDir = v
	}
	if v := mustGetInt(cmd, "workers"); v > 0 {
		cfg.ImportWorkers = v
	}
	if v := mustGetDuration(cmd, "file-timeout"); v > 0 {
		cfg.ImportFileTimeout = v
	}
	if v := mustGetString(cmd, "detector"); v != "" {
		cfg.FaceDetector = v
	}
	applyClusterFlags(cmd, &cfg.ClusterEps, &cfg.ClusterMinSamples)
	if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := dedup.ParsePolicy(mustGetString(cmd, "duplicate-action"))
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

	source, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid source '%s': %w", args[0], err)
	}
	dryRun := mustGetBool(cmd, "dry-run")
	haltOnError := mustGetBool(cmd, "halt-on-error")

	db, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	extractorCfg := media.ExtractorConfigFromConfig(cfg, log)
	newExtractor := func() (face.Extractor, error) {
		ext, err := media.NewExtractor(extractorCfg)
		if err != nil {
			return nil, err
		}
		return ext, nil
	}

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "no-progress") {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	im, err := importer.New(importer.Deps{
		Photos:       repository.NewPhotoRepository(db),
		Hasher:       hasher,
		NewExtractor: newExtractor,
		Logger:       log,
		Planned: func(files int) {
			if bar != nil {
				bar.ChangeMax(files)
			}
		},
		Progress: func(string, importer.Outcome) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	}, importer.Options{
		Source:           source,
		DryRun:           dryRun,
		PeopleOnly:       mustGetBool(cmd, "people-only"),
		DuplicatePolicy:  policy,
		HaltOnError:      haltOnError,
		Workers:          cfg.ImportWorkers,
		QueueSize:        cfg.ImportQueueSize,
		FileTimeout:      cfg.ImportFileTimeout,
		IntakeDir:        cfg.IntakeDir,
		ProcessedDir:     cfg.ProcessedDir,
		ToBeProcessedDir: cfg.ToBeProcessedDir,
		ManifestPath:     mustGetString(cmd, "manifest"),
		MontageDir:       mustGetString(cmd, "montage-dir"),
		Cluster:          cfg.ClusterParams(),
		EmbeddingModel:   cfg.FaceRecognitionModel,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := im.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	printImportSummary(summary)

	if errors.Is(runErr, importer.ErrHalted) {
		return fmt.Errorf("%w: %d file(s) errored", runErr, summary.Counts[importer.OutcomeErrored])
	}
	return runErr
}

func printImportSummary(s importer.Summary) {
	if s.DryRun {
		fmt.Println("Dry run: nothing was written.")
	}

	rows := make([][]string, 0, len(importer.Outcomes)+1)
	for _, o := range importer.Outcomes {
		rows = append(rows, []string{string(o), strconv.Itoa(s.Counts[o])})
	}
	rows = append(rows, []string{"total", strconv.Itoa(s.Total())})
	fmt.Println(renderTable([]string{"Outcome", "Files"}, rows, []columnAlignment{alignLeft, alignRight}))

	fmt.Printf("Faces: %d in %d clusters, %d unclustered\n", s.Faces, s.Clusters, s.Noise)
	if s.ManifestPath != "" {
		fmt.Printf("Manifest: %s\n", s.ManifestPath)
	}

	if len(s.Errors) > 0 {
		errRows := make([][]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			errRows = append(errRows, []string{e.Path, string(e.Stage), e.Err.Error()})
		}
		fmt.Println()
		fmt.Println(renderTable([]string{"File", "Stage", "Reason"}, errRows, nil))
	}
	if s.Halted {
		fmt.Println("Run halted after the first error; remaining files were not processed.")
	}
}
