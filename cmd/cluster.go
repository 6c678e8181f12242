package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/importer"
	"github.com/ap0ught/familyman/repository"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster every stored face and write the manifest",
	Long: `Cluster all face embeddings in the photo database in one batch and write
the cluster manifest, plus one contact sheet per cluster when --montage-dir is
given. Cluster labels are only meaningful within one manifest.

Examples:
  familyman cluster --manifest clusters.csv --montage-dir montages
  familyman cluster --eps 0.45 --min-samples 3`,
	Args: cobra.NoArgs,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	addClusterFlags(clusterCmd)
	clusterCmd.Flags().Bool("dry-run", false, "Cluster and report without writing the manifest")
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	applyClusterFlags(cmd, &cfg.ClusterEps, &cfg.ClusterMinSamples)
	if err := cfg.ClusterParams().Validate(); err != nil {
		return err
	}

	db, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := importer.ClusterStored(context.Background(), repository.NewFaceRepository(db), importer.ClusterOptions{
		Params:       cfg.ClusterParams(),
		ManifestPath: mustGetString(cmd, "manifest"),
		MontageDir:   mustGetString(cmd, "montage-dir"),
		DryRun:       mustGetBool(cmd, "dry-run"),
	}, log)
	if err != nil {
		return err
	}

	fmt.Printf("Faces: %d in %d clusters, %d unclustered\n", report.Faces, report.Clusters, report.Noise)
	if len(report.Montages) > 0 {
		fmt.Printf("Montages: %d written\n", len(report.Montages))
	}
	return nil
}
