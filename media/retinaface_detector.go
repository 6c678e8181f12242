package media

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
)

// RetinaFaceDetector is the accurate strategy: a RetinaFace ONNX export with
// bbox, confidence and landmark outputs.
type RetinaFaceDetector struct {
	Net gocv.Net

	// Configuration parameters
	InputSizeW    int
	InputSizeH    int
	MeanVal       gocv.Scalar
	ConfThreshold float32
	IoUThreshold  float32

	priors []face.PriorBox
	log    *logger.Logger
}

var retinaFaceVariances = [2]float32{0.1, 0.2}

// NewRetinaFaceDetector loads the RetinaFace model
func NewRetinaFaceDetector(modelPath string, log *logger.Logger) (*RetinaFaceDetector, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("retinaface detector needs a model path")
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load retinaface model %s", modelPath)
	}
	preferCUDA(&net, "detection(retinaface)", log)
	log.Info("detection(retinaface): loaded RetinaFace model", "model", modelPath)

	return &RetinaFaceDetector{
		Net:           net,
		InputSizeW:    640,
		InputSizeH:    640,
		MeanVal:       gocv.NewScalar(104.0, 117.0, 123.0, 0),
		ConfThreshold: 0.5,
		IoUThreshold:  0.4,
		priors:        face.RetinaFacePriors(640, 640),
		log:           log,
	}, nil
}

func (r *RetinaFaceDetector) Close() {
	if r != nil {
		r.Net.Close()
	}
}

// DetectFaces runs face detection using RetinaFace
func (r *RetinaFaceDetector) DetectFaces(img gocv.Mat) []face.Detection {
	if r == nil || img.Empty() {
		return nil
	}

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(r.InputSizeW, r.InputSizeH), r.MeanVal, false, false)
	defer blob.Close()

	r.Net.SetInput(blob, "input")
	outputs := r.Net.ForwardLayers([]string{"bbox", "confidence", "landmark"})
	defer func() {
		for _, mat := range outputs {
			mat.Close()
		}
	}()
	if len(outputs) < 2 {
		r.log.Warn("detection(retinaface): unexpected number of outputs", "outputs", len(outputs))
		return nil
	}

	return r.parseOutput(outputs[0], outputs[1], img.Cols(), img.Rows())
}

// parseOutput decodes the [1, N, 4] boxes and [1, N, 2] scores against the
// priors, keeps confident boxes and suppresses overlaps.
func (r *RetinaFaceDetector) parseOutput(boxes, scores gocv.Mat, width, height int) []face.Detection {
	sizes := boxes.Size()
	if len(sizes) < 2 {
		return nil
	}
	numDetections := sizes[1]
	if numDetections != len(r.priors) {
		r.log.Warn("detection(retinaface): prior count does not match output", "priors", len(r.priors), "detections", numDetections)
		return nil
	}

	imgW, imgH := float32(width), float32(height)
	var detections []face.Detection
	for i := 0; i < numDetections; i++ {
		score := scores.GetFloatAt(0, i*2+1)
		if score < r.ConfThreshold {
			continue
		}

		var raw [4]float32
		for j := 0; j < 4; j++ {
			raw[j] = boxes.GetFloatAt(0, i*4+j)
		}
		decoded := face.DecodeBox(raw, r.priors[i], retinaFaceVariances)
		box := face.Box{
			Left:   int(decoded[0] * imgW),
			Top:    int(decoded[1] * imgH),
			Right:  int(decoded[2] * imgW),
			Bottom: int(decoded[3] * imgH),
		}
		if clamped, ok := face.ClampBox(box, width, height); ok {
			detections = append(detections, face.Detection{Box: clamped, Confidence: score})
		}
	}

	return face.NonMaxSuppression(detections, r.IoUThreshold)
}
