package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/manifest"
	"github.com/ap0ught/familyman/repository"
	"github.com/ap0ught/familyman/tagger"
)

var writeNamesCmd = &cobra.Command{
	Use:   "write-names",
	Short: "Write reviewer-chosen names into photos",
	Long: `Read a cluster manifest and a cluster_id,person_name mapping and add each
name as a keyword to the photos whose faces are in that cluster. The faces are
also assigned to the named person in the photo database.

Requires exiftool on PATH.

Examples:
  familyman write-names --clusters clusters.csv --mapping names.csv
  familyman write-names --clusters clusters.csv --mapping names.csv --dry-run`,
	Args: cobra.NoArgs,
	RunE: runWriteNames,
}

func init() {
	rootCmd.AddCommand(writeNamesCmd)

	writeNamesCmd.Flags().String("clusters", "clusters.csv", "Cluster manifest CSV")
	writeNamesCmd.Flags().String("mapping", "", "CSV of cluster_id,person_name")
	writeNamesCmd.Flags().Bool("dry-run", false, "Show which keywords would be added without writing")
	writeNamesCmd.Flags().Bool("no-db", false, "Only tag files, do not assign faces in the database")
	_ = writeNamesCmd.MarkFlagRequired("mapping")
}

func runWriteNames(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	dryRun := mustGetBool(cmd, "dry-run")
	rows, err := manifest.ReadFile(mustGetString(cmd, "clusters"))
	if err != nil {
		return err
	}
	mapping, err := manifest.ReadMappingFile(mustGetString(cmd, "mapping"))
	if err != nil {
		return err
	}
	if len(mapping) == 0 {
		fmt.Println("Mapping names no clusters; nothing to do.")
		return nil
	}

	writer, err := tagger.New(dryRun, log)
	if err != nil {
		return err
	}
	defer writer.Close()

	namer := &tagger.Namer{Keywords: writer, DryRun: dryRun, Logger: log}
	if !mustGetBool(cmd, "no-db") {
		db, closeStore, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()
		namer.People = repository.NewPersonRepository(db)
		namer.Faces = repository.NewFaceRepository(db)
	}

	report := namer.Apply(rows, mapping)

	fmt.Println(renderTable(
		[]string{"Named faces", "Files tagged", "Keywords added", "Faces assigned", "Missing files", "Errors"},
		[][]string{{
			strconv.Itoa(report.Named),
			strconv.Itoa(report.FilesTagged),
			strconv.Itoa(report.KeywordsAdded),
			strconv.Itoa(report.FacesTagged),
			strconv.Itoa(len(report.Missing)),
			strconv.Itoa(len(report.Errors)),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	for _, e := range report.Errors {
		fmt.Printf("  %v\n", e)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d name(s) could not be written", len(report.Errors))
	}
	return nil
}
