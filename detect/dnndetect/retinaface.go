package dnndetect

import (
	"fmt"
	"image"
	"math"
	"sort"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/detect"
)

// prior is a RetinaFace anchor box in normalized (center_x, center_y,
// width, height) coordinates.
type prior struct {
	cx, cy, w, h float32
}

// RetinaFace is a RetinaFace ONNX net, the higher-accuracy path with
// 5-point landmarks, grounded on media/retinaface_detector.go.
type RetinaFace struct {
	net          gocv.Net
	inputSize    int // square input, e.g. 640
	iouThreshold float32
	priors       []prior
	log          *zap.SugaredLogger
}

var _ detect.Detector = (*RetinaFace)(nil)

// NewRetinaFace loads a RetinaFace ONNX model.
func NewRetinaFace(modelPath string, log *zap.SugaredLogger) (*RetinaFace, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("dnndetect: failed to load RetinaFace model %q", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		log.Warnw("failed to set RetinaFace backend", "error", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		log.Warnw("failed to set RetinaFace target", "error", err)
	}
	const inputSize = 640
	return &RetinaFace{
		net:          net,
		inputSize:    inputSize,
		iouThreshold: 0.5,
		priors:       generatePriors(inputSize, inputSize),
		log:          log,
	}, nil
}

// generatePriors builds the standard RetinaFace anchor set for a
// square imgSize x imgSize input.
func generatePriors(imgW, imgH int) []prior {
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}
	var priors []prior
	for k, step := range steps {
		fmH, fmW := imgH/step, imgW/step
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, minSize := range minSizes[k] {
					priors = append(priors, prior{
						cx: (float32(j) + 0.5) * float32(step) / float32(imgW),
						cy: (float32(i) + 0.5) * float32(step) / float32(imgH),
						w:  float32(minSize) / float32(imgW),
						h:  float32(minSize) / float32(imgH),
					})
				}
			}
		}
	}
	return priors
}

func decodeBox(raw [4]float32, p prior, variances [2]float32) (x1, y1, x2, y2 float32) {
	cx := p.cx + raw[0]*variances[0]*p.w
	cy := p.cy + raw[1]*variances[0]*p.h
	w := p.w * float32(math.Exp(float64(raw[2]*variances[1])))
	h := p.h * float32(math.Exp(float64(raw[3]*variances[1])))
	return cx - w/2, cy - h/2, cx + w/2, cy + h/2
}

func (r *RetinaFace) Detect(frame gocv.Mat, cfg detect.Config) ([]detect.Detection, error) {
	if frame.Empty() {
		return nil, nil
	}
	imgW := float32(frame.Cols())
	imgH := float32(frame.Rows())

	blob := gocv.BlobFromImage(frame, 1.0, image.Pt(r.inputSize, r.inputSize), gocv.NewScalar(104.0, 117.0, 123.0, 0), false, false)
	defer blob.Close()

	r.net.SetInput(blob, "input")
	outputs := r.net.ForwardLayers([]string{"bbox", "confidence", "landmark"})
	if len(outputs) < 3 {
		return nil, fmt.Errorf("dnndetect: retinaface expected 3 outputs, got %d", len(outputs))
	}
	defer func() {
		for _, m := range outputs {
			m.Close()
		}
	}()
	boxes, scores, landmarks := outputs[0], outputs[1], outputs[2]

	numDetections := boxes.Size()[1]
	if numDetections != len(r.priors) {
		return nil, fmt.Errorf("dnndetect: retinaface prior count %d != detection count %d", len(r.priors), numDetections)
	}
	variances := [2]float32{0.1, 0.2}

	raw := make([]detect.Detection, 0, numDetections)
	for i := 0; i < numDetections; i++ {
		score := scores.GetFloatAt(0, i*2+1)
		if score < 0.01 {
			continue
		}
		var rawBox [4]float32
		for j := 0; j < 4; j++ {
			rawBox[j] = boxes.GetFloatAt(0, i*4+j)
		}
		x1n, y1n, x2n, y2n := decodeBox(rawBox, r.priors[i], variances)
		x1 := clampF(x1n*imgW, 0, imgW)
		y1 := clampF(y1n*imgH, 0, imgH)
		x2 := clampF(x2n*imgW, 0, imgW)
		y2 := clampF(y2n*imgH, 0, imgH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		pts := make([]detect.Point2D, 5)
		for j := 0; j < 5; j++ {
			pts[j] = detect.Point2D{
				X: landmarks.GetFloatAt(0, i*10+j*2+0) * imgW,
				Y: landmarks.GetFloatAt(0, i*10+j*2+1) * imgH,
			}
		}
		raw = append(raw, detect.Detection{
			BBox:       image.Rect(int(x1), int(y1), int(x2), int(y2)),
			Confidence: score,
			Landmarks:  pts,
		})
	}

	raw = nonMaxSuppression(raw, r.iouThreshold)
	return detect.ApplyContract(raw, cfg), nil
}

func nonMaxSuppression(dets []detect.Detection, iouThreshold float32) []detect.Detection {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	used := make([]bool, len(dets))
	var kept []detect.Detection
	for i := range dets {
		if used[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if used[j] {
				continue
			}
			if iou(dets[i].BBox, dets[j].BBox) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func (r *RetinaFace) Close() error {
	r.net.Close()
	return nil
}
