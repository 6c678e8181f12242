package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetFloat64 gets a float64 flag value or panics if the flag doesn't exist.
func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	val, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetDuration gets a duration flag value or panics if the flag doesn't exist.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addClusterFlags registers the clustering parameters shared by import and cluster.
func addClusterFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("eps", 0, "Cluster neighborhood radius (default from CLUSTER_EPS)")
	cmd.Flags().Int("min-samples", 0, "Faces needed to form a cluster (default from CLUSTER_MIN_SAMPLES)")
	cmd.Flags().String("manifest", "clusters.csv", "Path of the cluster manifest CSV")
	cmd.Flags().String("montage-dir", "", "Write one contact sheet per cluster into this directory")
}

// applyClusterFlags overrides the configured clustering parameters with
// flags the user set.
func applyClusterFlags(cmd *cobra.Command, eps *float64, minSamples *int) {
	if cmd.Flags().Changed("eps") {
		*eps = mustGetFloat64(cmd, "eps")
	}
	if cmd.Flags().Changed("min-samples") {
		*minSamples = mustGetInt(cmd, "min-samples")
	}
}
