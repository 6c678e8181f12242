package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/fingerprint"
)

const (
	DefaultIntakeSubDir        = "intake"
	DefaultProcessedSubDir     = "processed"
	DefaultToBeProcessedSubDir = "to_be_processed"
)

const (
	DetectorFast     = "fast"
	DetectorAccurate = "accurate"
)

const (
	defaultDatabasePath     = "familyman.db"
	defaultMaxOpenConns     = 1
	defaultHashAlgorithm    = "sha256"
	defaultDetector         = DetectorFast
	defaultRecognitionModel = "arcface"
	defaultClusterEps       = 0.5
	defaultClusterMinSample = 2
	defaultImportWorkers    = 4
	defaultImportQueueSize  = 200
	defaultFileTimeout      = 2 * time.Minute
)

type Config struct {
	// database path (sqlite)
	DatabasePath         string
	DatabaseMaxOpenConns int

	// content fingerprint algorithm: sha256 or blake2b
	HashAlgorithm string

	// face detection strategy and model paths
	FaceDetector             string
	FaceDNNNetConfigPath     string
	FaceDNNNetModelPath      string
	FaceRetinaFaceModelPath  string
	FaceRecognitionModelPath string
	FaceRecognitionModel     string

	// density clustering parameters
	ClusterEps        float64
	ClusterMinSamples int

	// worker settings
	ImportWorkers     int
	ImportQueueSize   int
	ImportFileTimeout time.Duration

	// review holding areas
	IntakeDir        string
	ProcessedDir     string
	ToBeProcessedDir string

	LogMode string
}

// fileConfig mirrors Config for the optional YAML file. Zero values mean
// "not set" and fall through to the built-in defaults.
type fileConfig struct {
	Database struct {
		Path         string `yaml:"path"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	} `yaml:"database"`
	HashAlgorithm string `yaml:"hash_algorithm"`
	Faces         struct {
		Detector             string `yaml:"detector"`
		DNNConfigPath        string `yaml:"dnn_config_path"`
		DNNModelPath         string `yaml:"dnn_model_path"`
		RetinaFaceModelPath  string `yaml:"retinaface_model_path"`
		RecognitionModelPath string `yaml:"recognition_model_path"`
		RecognitionModel     string `yaml:"recognition_model"`
	} `yaml:"faces"`
	Cluster struct {
		Eps        float64 `yaml:"eps"`
		MinSamples int     `yaml:"min_samples"`
	} `yaml:"cluster"`
	Import struct {
		Workers     int    `yaml:"workers"`
		QueueSize   int    `yaml:"queue_size"`
		FileTimeout string `yaml:"file_timeout"`
	} `yaml:"import"`
	Areas struct {
		Intake        string `yaml:"intake"`
		Processed     string `yaml:"processed"`
		ToBeProcessed string `yaml:"to_be_processed"`
	} `yaml:"areas"`
	LogMode string `yaml:"log_mode"`
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func readFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return fc, nil
}

// LoadConfig builds the configuration from the optional YAML file named by
// FAMILYMAN_CONFIG, overridden by environment variables.
func LoadConfig() (Config, error) {
	fc, err := readFileConfig(os.Getenv("FAMILYMAN_CONFIG"))
	if err != nil {
		return Config{}, err
	}

	fileTimeout := defaultFileTimeout
	if fc.Import.FileTimeout != "" {
		d, err := time.ParseDuration(fc.Import.FileTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid import.file_timeout '%s': %w", fc.Import.FileTimeout, err)
		}
		fileTimeout = d
	}

	reviewRoot := getEnvOrDefault("REVIEW_ROOT", filepath.Join(".", "review"))
	absReviewRoot, err := filepath.Abs(reviewRoot)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for review root '%s': %w", reviewRoot, err)
	}

	cfg := Config{
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", orString(fc.Database.Path, defaultDatabasePath)),
		DatabaseMaxOpenConns: getEnvIntOrDefault("DATABASE_MAX_OPEN_CONNS", orInt(fc.Database.MaxOpenConns, defaultMaxOpenConns)),

		HashAlgorithm: getEnvOrDefault("HASH_ALGORITHM", orString(fc.HashAlgorithm, defaultHashAlgorithm)),

		FaceDetector:             getEnvOrDefault("FACE_DETECTOR", orString(fc.Faces.Detector, defaultDetector)),
		FaceDNNNetConfigPath:     getEnvOrDefault("FACE_DNN_CONFIG_PATH", orString(fc.Faces.DNNConfigPath, "./models/deploy.prototxt.txt")),
		FaceDNNNetModelPath:      getEnvOrDefault("FACE_DNN_MODEL_PATH", orString(fc.Faces.DNNModelPath, "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel")),
		FaceRetinaFaceModelPath:  getEnvOrDefault("FACE_RETINAFACE_MODEL_PATH", orString(fc.Faces.RetinaFaceModelPath, "./models/retinaface.onnx")),
		FaceRecognitionModelPath: getEnvOrDefault("FACE_RECOGNITION_MODEL_PATH", orString(fc.Faces.RecognitionModelPath, "./models/arcface.onnx")),
		FaceRecognitionModel:     getEnvOrDefault("FACE_RECOGNITION_MODEL", orString(fc.Faces.RecognitionModel, defaultRecognitionModel)),

		ClusterEps:        getEnvFloatOrDefault("CLUSTER_EPS", orFloat(fc.Cluster.Eps, defaultClusterEps)),
		ClusterMinSamples: getEnvIntOrDefault("CLUSTER_MIN_SAMPLES", orInt(fc.Cluster.MinSamples, defaultClusterMinSample)),

		ImportWorkers:     getEnvIntOrDefault("IMPORT_WORKERS", orInt(fc.Import.Workers, defaultImportWorkers)),
		ImportQueueSize:   getEnvIntOrDefault("IMPORT_QUEUE_SIZE", orInt(fc.Import.QueueSize, defaultImportQueueSize)),
		ImportFileTimeout: getEnvDurationOrDefault("IMPORT_FILE_TIMEOUT", fileTimeout),

		IntakeDir:        getEnvOrDefault("INTAKE_DIR", orString(fc.Areas.Intake, filepath.Join(absReviewRoot, DefaultIntakeSubDir))),
		ProcessedDir:     getEnvOrDefault("PROCESSED_DIR", orString(fc.Areas.Processed, filepath.Join(absReviewRoot, DefaultProcessedSubDir))),
		ToBeProcessedDir: getEnvOrDefault("TO_BE_PROCESSED_DIR", orString(fc.Areas.ToBeProcessed, filepath.Join(absReviewRoot, DefaultToBeProcessedSubDir))),

		LogMode: getEnvOrDefault("LOG_MODE", orString(fc.LogMode, "dev")),
	}

	return cfg, nil
}

// ClusterParams returns the density clustering parameters.
func (c Config) ClusterParams() cluster.Params {
	return cluster.Params{Eps: c.ClusterEps, MinSamples: c.ClusterMinSamples}
}

// Validate checks values that would invalidate a whole run. It is called
// after flags have been applied and before any file is touched.
func (c Config) Validate() error {
	if err := c.ClusterParams().Validate(); err != nil {
		return err
	}
	switch c.FaceDetector {
	case DetectorFast, DetectorAccurate:
	default:
		return fmt.Errorf("invalid face detector '%s': must be %s or %s", c.FaceDetector, DetectorFast, DetectorAccurate)
	}
	if _, err := fingerprint.ParseAlgorithm(c.HashAlgorithm); err != nil {
		return err
	}
	if c.ImportWorkers <= 0 {
		return fmt.Errorf("import workers must be positive, got %d", c.ImportWorkers)
	}
	if c.ImportFileTimeout <= 0 {
		return fmt.Errorf("import file timeout must be positive, got %s", c.ImportFileTimeout)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	return nil
}
