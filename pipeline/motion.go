package pipeline

import (
	"image"

	"gocv.io/x/gocv"
)

// motionGate implements the frame-delta motion detector named in
// DESIGN.md's process_every_n_frames/motion_detection_enabled ordering
// decision: grayscale + blur the frame, diff it against the previous
// one, and call it motion if enough pixels changed. One instance is
// owned per camera task; it is not safe for concurrent use.
type motionGate struct {
	prev      gocv.Mat
	hasPrev   bool
	threshold float64 // fraction of pixels that must change, 0..1
}

func newMotionGate(threshold float64) *motionGate {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &motionGate{threshold: threshold}
}

// Check reports whether frame differs enough from the previous frame
// to count as motion. The first frame it ever sees always reports
// motion, since there is nothing to diff against yet.
func (g *motionGate) Check(frame gocv.Mat) bool {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(gray, &gray, image.Pt(21, 21), 0, 0, gocv.BorderDefault)

	if !g.hasPrev {
		g.prev = gray.Clone()
		g.hasPrev = true
		return true
	}
	defer func() {
		g.prev.Close()
		g.prev = gray.Clone()
	}()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, g.prev, &diff)
	gocv.Threshold(diff, &diff, 25, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(diff)
	total := diff.Rows() * diff.Cols()
	if total == 0 {
		return false
	}
	return float64(changed)/float64(total) >= g.threshold
}

// Close releases the retained previous-frame Mat.
func (g *motionGate) Close() {
	if g.hasPrev {
		g.prev.Close()
		g.hasPrev = false
	}
}
