// Package detect is the Detector (C5): given a frame and the current
// detection config, produces bounding boxes and optional landmarks for
// faces present in it.
package detect

import (
	"errors"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// ErrCropOutOfBounds is returned when a caller (typically the Matcher)
// asks for a crop whose bbox does not fit inside the source frame.
var ErrCropOutOfBounds = errors.New("detect: crop out of bounds")

// Point2D is one facial landmark in frame pixel coordinates.
type Point2D struct {
	X, Y float32
}

// Detection is one face found in a frame.
type Detection struct {
	BBox       image.Rectangle
	Confidence float32
	Landmarks  []Point2D // nil if the detector does not produce landmarks
}

// Config is the subset of store.DetectionConfig the Detector needs.
type Config struct {
	MinConfidence    float64
	MinFaceSizePx    int
	MaxFacesPerFrame int
}

// Detector produces face detections for one BGR frame.
//
// Contract (spec.md §4.5): no detection with confidence < MinConfidence
// is emitted; no detection whose bbox shorter side is smaller than
// MinFaceSizePx is emitted; detections are emitted ordered by
// descending confidence; results are capped at MaxFacesPerFrame.
type Detector interface {
	Detect(frame gocv.Mat, cfg Config) ([]Detection, error)
	Close() error
}

// ApplyContract filters and orders raw detections per the Detector
// contract, shared by every backend so the ordering/cap logic is
// written once.
func ApplyContract(raw []Detection, cfg Config) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if float64(d.Confidence) < cfg.MinConfidence {
			continue
		}
		shortSide := d.BBox.Dx()
		if d.BBox.Dy() < shortSide {
			shortSide = d.BBox.Dy()
		}
		if shortSide < cfg.MinFaceSizePx {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if cfg.MaxFacesPerFrame > 0 && len(out) > cfg.MaxFacesPerFrame {
		out = out[:cfg.MaxFacesPerFrame]
	}
	return out
}

// Crop extracts the region of frame described by bbox, clamped to the
// frame's bounds. It returns ErrCropOutOfBounds if bbox does not
// intersect the frame at all.
func Crop(frame gocv.Mat, bbox image.Rectangle) (gocv.Mat, error) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	clamped := bbox.Intersect(bounds)
	if clamped.Empty() {
		return gocv.Mat{}, ErrCropOutOfBounds
	}
	return frame.Region(clamped), nil
}
