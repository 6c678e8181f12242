package face

import (
	"math"
	"sort"
)

// Detection is a raw detector hit before embedding.
type Detection struct {
	Box        Box
	Confidence float32
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b Box) float32 {
	left := max(a.Left, b.Left)
	top := max(a.Top, b.Top)
	right := min(a.Right, b.Right)
	bottom := min(a.Bottom, b.Bottom)
	if right <= left || bottom <= top {
		return 0
	}

	intersection := float32((right - left) * (bottom - top))
	union := float32(a.Width()*a.Height()+b.Width()*b.Height()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// NonMaxSuppression keeps the most confident detection of every group that
// overlaps by more than threshold.
func NonMaxSuppression(detections []Detection, threshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var result []Detection
	used := make([]bool, len(sorted))
	for i := range sorted {
		if used[i] {
			continue
		}
		result = append(result, sorted[i])
		used[i] = true
		for j := i + 1; j < len(sorted); j++ {
			if !used[j] && IoU(sorted[i].Box, sorted[j].Box) > threshold {
				used[j] = true
			}
		}
	}
	return result
}

// SortReadingOrder orders detections top-to-bottom, then left-to-right, so
// face indexes are stable for the same image.
func SortReadingOrder(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		a, b := detections[i].Box, detections[j].Box
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return detections[i].Confidence > detections[j].Confidence
	})
}

// ClampBox limits a box to the image bounds. ok is false when nothing is left.
func ClampBox(b Box, width, height int) (Box, bool) {
	b.Left = max(0, b.Left)
	b.Top = max(0, b.Top)
	b.Right = min(width, b.Right)
	b.Bottom = min(height, b.Bottom)
	return b, b.Right > b.Left && b.Bottom > b.Top
}

// L2Normalize returns the vector scaled to unit length. A zero vector is
// returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// PriorBox is an anchor box as (center x, center y, width, height), all
// relative to the network input size.
type PriorBox struct {
	Cx, Cy, W, H float32
}

// RetinaFacePriors generates the anchors of the standard RetinaFace config
// for an input of imgW x imgH pixels.
func RetinaFacePriors(imgW, imgH int) []PriorBox {
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}

	var priors []PriorBox
	for k, step := range steps {
		fmH, fmW := imgH/step, imgW/step
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, minSize := range minSizes[k] {
					priors = append(priors, PriorBox{
						Cx: (float32(j) + 0.5) * float32(step) / float32(imgW),
						Cy: (float32(i) + 0.5) * float32(step) / float32(imgH),
						W:  float32(minSize) / float32(imgW),
						H:  float32(minSize) / float32(imgH),
					})
				}
			}
		}
	}
	return priors
}

// DecodeBox decodes a [dx, dy, dw, dh] regression against its prior into
// relative corner coordinates [x1, y1, x2, y2].
func DecodeBox(raw [4]float32, prior PriorBox, variances [2]float32) [4]float32 {
	cx := prior.Cx + raw[0]*variances[0]*prior.W
	cy := prior.Cy + raw[1]*variances[0]*prior.H
	w := prior.W * float32(math.Exp(float64(raw[2]*variances[1])))
	h := prior.H * float32(math.Exp(float64(raw[3]*variances[1])))
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}
