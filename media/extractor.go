// Package media runs the gocv face detectors and the embedding model behind
// the face.Extractor contract.
package media

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ap0ught/familyman/config"
	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
)

type ExtractorConfig struct {
	Detector             string // config.DetectorFast or config.DetectorAccurate
	DNNConfigPath        string
	DNNModelPath         string
	RetinaFaceModelPath  string
	RecognitionModelPath string
	RecognitionModel     string
	Logger               *logger.Logger
}

// ExtractorConfigFromConfig picks the model settings out of the app config.
func ExtractorConfigFromConfig(cfg config.Config, log *logger.Logger) ExtractorConfig {
	return ExtractorConfig{
		Detector:             cfg.FaceDetector,
		DNNConfigPath:        cfg.FaceDNNNetConfigPath,
		DNNModelPath:         cfg.FaceDNNNetModelPath,
		RetinaFaceModelPath:  cfg.FaceRetinaFaceModelPath,
		RecognitionModelPath: cfg.FaceRecognitionModelPath,
		RecognitionModel:     cfg.FaceRecognitionModel,
		Logger:               log,
	}
}

type detector interface {
	DetectFaces(img gocv.Mat) []face.Detection
	Close()
}

// Extractor owns one detector and one embedding network. Not safe for
// concurrent use.
type Extractor struct {
	detector   detector
	recognizer *FaceRecognitionModel
}

var _ face.Extractor = (*Extractor)(nil)

// NewExtractor loads the configured detector and the embedding model.
// Models are loaded once here and reused for every Extract call.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	var (
		det detector
		err error
	)
	switch cfg.Detector {
	case config.DetectorFast, "":
		det, err = NewDNNFaceDetector(cfg.DNNConfigPath, cfg.DNNModelPath, log)
	case config.DetectorAccurate:
		det, err = NewRetinaFaceDetector(cfg.RetinaFaceModelPath, log)
	default:
		return nil, fmt.Errorf("unknown face detector '%s': must be %s or %s", cfg.Detector, config.DetectorFast, config.DetectorAccurate)
	}
	if err != nil {
		return nil, err
	}

	recognizer, err := NewFaceRecognitionModel(cfg.RecognitionModelPath, cfg.RecognitionModel, log)
	if err != nil {
		det.Close()
		return nil, err
	}

	return &Extractor{detector: det, recognizer: recognizer}, nil
}

// Extract decodes the image, detects faces in reading order and embeds each.
func (e *Extractor) Extract(data []byte) ([]face.Result, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, &face.ImageDecodeError{Err: err}
	}
	defer img.Close()
	if img.Empty() {
		return nil, &face.ImageDecodeError{Err: errors.New("unsupported or corrupt image data")}
	}

	detections := e.detector.DetectFaces(img)
	face.SortReadingOrder(detections)

	results := make([]face.Result, 0, len(detections))
	for i, d := range detections {
		region := img.Region(d.Box.Rect())
		embedding, err := e.recognizer.ExtractEmbedding(region)
		region.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to embed face %d: %w", i, err)
		}
		results = append(results, face.Result{Box: d.Box, Embedding: embedding, Confidence: d.Confidence})
	}
	return results, nil
}

func (e *Extractor) Close() error {
	e.detector.Close()
	e.recognizer.Close()
	return nil
}
