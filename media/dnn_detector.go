package media

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
)

// DNNFaceDetector is the fast strategy: OpenCV's res10 SSD Caffe model.
type DNNFaceDetector struct {
	Net gocv.Net

	// configuration parameters used during detection
	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32

	log *logger.Logger
}

// NewDNNFaceDetector loads the DNN model
func NewDNNFaceDetector(configPath, modelPath string, log *logger.Logger) (*DNNFaceDetector, error) {
	if configPath == "" || modelPath == "" {
		return nil, fmt.Errorf("dnn detector needs both a config and a model path")
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load dnn face model: config=%s, model=%s", configPath, modelPath)
	}
	preferCUDA(&net, "detection(dnn)", log)
	log.Info("detection(dnn): loaded face detection model", "model", modelPath)

	return &DNNFaceDetector{
		Net:           net,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: 0.5,
		log:           log,
	}, nil
}

func (d *DNNFaceDetector) Close() {
	if d != nil {
		d.Net.Close()
	}
}

// DetectFaces runs face detection using the loaded DNN model
func (d *DNNFaceDetector) DetectFaces(img gocv.Mat) []face.Detection {
	if d == nil || img.Empty() {
		return nil
	}

	imgHeight := float32(img.Rows())
	imgWidth := float32(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) != 4 {
		d.log.Warn("detection(dnn): unexpected output matrix dimensions", "sizes", sizes)
		return nil
	}

	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	// reshape to [N, 7] for GetFloatAt(row, col)
	detectionsData := detectionsMat.Reshape(1, numDetections)
	defer detectionsData.Close()

	var results []face.Detection
	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)
		if confidence <= d.ConfThreshold {
			continue
		}

		box := face.Box{
			Left:   int(detectionsData.GetFloatAt(i, 3) * imgWidth),
			Top:    int(detectionsData.GetFloatAt(i, 4) * imgHeight),
			Right:  int(detectionsData.GetFloatAt(i, 5) * imgWidth),
			Bottom: int(detectionsData.GetFloatAt(i, 6) * imgHeight),
		}
		if clamped, ok := face.ClampBox(box, img.Cols(), img.Rows()); ok {
			results = append(results, face.Detection{Box: clamped, Confidence: confidence})
		}
	}
	return results
}
