// Package dnndetect wraps gocv DNN nets as detect.Detector
// implementations: a Caffe SSD net (grounded on utils/detection.go's
// DNNFaceDetector) as the default/fast path, and a RetinaFace ONNX net
// with landmarks (grounded on media/retinaface_detector.go) as the
// higher-accuracy path.
package dnndetect

import (
	"fmt"
	"image"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/detect"
)

// SSD is a Caffe SSD-based face detector, the fast default path.
type SSD struct {
	net           gocv.Net
	inputSize     image.Point
	scaleFactor   float64
	mean          gocv.Scalar
	rawConfFloor  float32
	log           *zap.SugaredLogger
}

var _ detect.Detector = (*SSD)(nil)

// NewSSD loads a Caffe SSD model. rawConfFloor is a cheap pre-filter
// applied before detect.ApplyContract's MinConfidence check, avoiding
// building Detection structs for near-zero-confidence proposals.
func NewSSD(prototxtPath, caffeModelPath string, log *zap.SugaredLogger) (*SSD, error) {
	net := gocv.ReadNet(caffeModelPath, prototxtPath)
	if net.Empty() {
		return nil, fmt.Errorf("dnndetect: failed to load SSD model %q / %q", caffeModelPath, prototxtPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		log.Warnw("failed to set SSD backend", "error", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		log.Warnw("failed to set SSD target", "error", err)
	}
	return &SSD{
		net:          net,
		inputSize:    image.Pt(300, 300),
		scaleFactor:  1.0,
		mean:         gocv.NewScalar(104.0, 177.0, 123.0, 0),
		rawConfFloor: 0.1,
		log:          log,
	}, nil
}

func (s *SSD) Detect(frame gocv.Mat, cfg detect.Config) ([]detect.Detection, error) {
	if frame.Empty() {
		return nil, nil
	}
	imgW := float32(frame.Cols())
	imgH := float32(frame.Rows())

	blob := gocv.BlobFromImage(frame, s.scaleFactor, s.inputSize, s.mean, false, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) < 3 {
		return nil, nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil, nil
	}
	flat := out.Reshape(1, numDetections)
	defer flat.Close()

	raw := make([]detect.Detection, 0, numDetections)
	for i := 0; i < numDetections; i++ {
		conf := flat.GetFloatAt(i, 2)
		if conf < s.rawConfFloor {
			continue
		}
		x1 := clampF(flat.GetFloatAt(i, 3)*imgW, 0, imgW)
		y1 := clampF(flat.GetFloatAt(i, 4)*imgH, 0, imgH)
		x2 := clampF(flat.GetFloatAt(i, 5)*imgW, 0, imgW)
		y2 := clampF(flat.GetFloatAt(i, 6)*imgH, 0, imgH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		raw = append(raw, detect.Detection{
			BBox:       image.Rect(int(x1), int(y1), int(x2), int(y2)),
			Confidence: conf,
		})
	}
	return detect.ApplyContract(raw, cfg), nil
}

func (s *SSD) Close() error {
	s.net.Close()
	return nil
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
