package detect_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/detect"
)

func TestApplyContractFiltersAndOrders(t *testing.T) {
	raw := []detect.Detection{
		{BBox: image.Rect(0, 0, 100, 100), Confidence: 0.4},  // below min_confidence
		{BBox: image.Rect(0, 0, 10, 10), Confidence: 0.9},    // below min_face_size_px
		{BBox: image.Rect(0, 0, 50, 60), Confidence: 0.6},
		{BBox: image.Rect(0, 0, 80, 80), Confidence: 0.95},
	}
	cfg := detect.Config{MinConfidence: 0.5, MinFaceSizePx: 40, MaxFacesPerFrame: 10}

	got := detect.ApplyContract(raw, cfg)
	require.Len(t, got, 2)
	require.InDelta(t, 0.95, got[0].Confidence, 1e-6)
	require.InDelta(t, 0.6, got[1].Confidence, 1e-6)
}

func TestApplyContractCapsAtMaxFacesPerFrame(t *testing.T) {
	var raw []detect.Detection
	for i := 0; i < 5; i++ {
		raw = append(raw, detect.Detection{BBox: image.Rect(0, 0, 60, 60), Confidence: float32(i) / 10})
	}
	cfg := detect.Config{MinConfidence: 0, MinFaceSizePx: 0, MaxFacesPerFrame: 2}
	got := detect.ApplyContract(raw, cfg)
	require.Len(t, got, 2)
}

func TestCropClampsToFrameBounds(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	region, err := detect.Crop(frame, image.Rect(-10, -10, 50, 50))
	require.NoError(t, err)
	defer region.Close()
	require.Equal(t, 50, region.Cols())
	require.Equal(t, 50, region.Rows())
}

func TestCropOutOfBoundsErrors(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := detect.Crop(frame, image.Rect(200, 200, 250, 250))
	require.ErrorIs(t, err, detect.ErrCropOutOfBounds)
}
