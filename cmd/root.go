package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ap0ught/familyman/config"
	"github.com/ap0ught/familyman/logger"
)

var (
	configFile string
	logMode    string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "familyman",
	Short: "Import a photo export, drop duplicates and group faces into people",
	Long: `familyman imports a bulk photo export (for example a Google Takeout
archive with JSON sidecars) into a local photo database. Every image is
identified by the hash of its content, so importing the same export twice is
a no-op. Faces are detected and embedded while importing and grouped into
unnamed clusters that a reviewer can later name.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides FAMILYMAN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: dev or prod (overrides LOG_MODE)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configFile != "" {
		os.Setenv("FAMILYMAN_CONFIG", configFile)
	}
}

// loadConfig reads the configuration, applies the persistent flags and
// builds the logger.
func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logMode != "" {
		cfg.LogMode = logMode
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
