package media

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
)

// FaceRecognitionModel turns an aligned face crop into an embedding vector.
type FaceRecognitionModel struct {
	Net       gocv.Net
	ModelName string

	InputSizeW int
	InputSizeH int
}

// NewFaceRecognitionModel loads a face recognition model (ArcFace, FaceNet)
func NewFaceRecognitionModel(modelPath, modelName string, log *logger.Logger) (*FaceRecognitionModel, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("recognition model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("recognition model %s: %w", modelPath, err)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load %s model %s", modelName, modelPath)
	}
	preferCUDA(&net, "recognition", log)
	log.Info("recognition: loaded model", "model", modelName, "path", modelPath)

	inputSize := 112
	if modelName == "facenet" {
		inputSize = 160
	}

	return &FaceRecognitionModel{
		Net:        net,
		ModelName:  modelName,
		InputSizeW: inputSize,
		InputSizeH: inputSize,
	}, nil
}

func (f *FaceRecognitionModel) Close() {
	if f != nil {
		f.Net.Close()
	}
}

// ExtractEmbedding returns the L2-normalised embedding of a face region.
func (f *FaceRecognitionModel) ExtractEmbedding(faceRegion gocv.Mat) ([]float32, error) {
	if faceRegion.Empty() {
		return nil, fmt.Errorf("empty face region")
	}

	processed := f.preprocessFace(faceRegion)
	defer processed.Close()

	blob := gocv.BlobFromImage(processed, 1.0/255.0, image.Pt(f.InputSizeW, f.InputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	f.Net.SetInput(blob, "")
	output := f.Net.Forward("")
	defer output.Close()

	embedding := extractEmbeddingVector(output)
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%s model returned an empty embedding", f.ModelName)
	}
	return face.L2Normalize(embedding), nil
}

// preprocessFace converts BGR to RGB, resizes to the model input and
// converts to float32.
func (f *FaceRecognitionModel) preprocessFace(faceRegion gocv.Mat) gocv.Mat {
	var processed gocv.Mat
	if faceRegion.Channels() == 3 {
		processed = gocv.NewMat()
		gocv.CvtColor(faceRegion, &processed, gocv.ColorBGRToRGB)
	} else {
		processed = faceRegion.Clone()
	}
	defer processed.Close()

	resized := gocv.NewMat()
	gocv.Resize(processed, &resized, image.Pt(f.InputSizeW, f.InputSizeH), 0, 0, gocv.InterpolationLinear)

	normalized := gocv.NewMat()
	resized.ConvertTo(&normalized, gocv.MatTypeCV32F)
	resized.Close()
	return normalized
}

func extractEmbeddingVector(output gocv.Mat) []float32 {
	if len(output.Size()) == 0 {
		return nil
	}

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make([]float32, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return embedding
}
