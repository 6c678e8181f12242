// Package face defines the face extraction contract shared by the import
// pipeline and the gocv detectors, plus the box geometry they rely on.
package face

import (
	"fmt"
	"image"
)

// Box is a face bounding box in pixels, in the top/right/bottom/left order
// used by the cluster manifest.
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

func (b Box) Width() int  { return b.Right - b.Left }
func (b Box) Height() int { return b.Bottom - b.Top }

// BoxFromXYWH builds a Box from a detector's x, y, width and height.
func BoxFromXYWH(x, y, w, h int) Box {
	return Box{Top: y, Right: x + w, Bottom: y + h, Left: x}
}

// Result is one detected face with its embedding.
type Result struct {
	Box        Box
	Embedding  []float32
	Confidence float32
}

// Extractor finds faces in encoded image bytes and returns one embedding per
// face. Results are ordered top-to-bottom, left-to-right. Implementations are
// not safe for concurrent use; each worker owns its own.
type Extractor interface {
	Extract(data []byte) ([]Result, error)
	Close() error
}

// ImageDecodeError reports bytes that could not be decoded as an image.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }
