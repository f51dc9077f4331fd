// Package arcface wraps an ArcFace (or FaceNet) gocv.Net as an
// embedder.Embedder, grounded on media/face_recognition.go's
// FaceRecognitionModel, generalized to perform 5-point similarity-
// transform alignment when the detector supplied landmarks, falling
// back to a straight resize+crop when it did not.
package arcface

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/detect"
	"github.com/watchtower-nvr/core/embedder"
	"github.com/watchtower-nvr/core/embedding"
)

// referenceLandmarks are the canonical 112x112 ArcFace alignment
// targets (left eye, right eye, nose, left mouth corner, right mouth
// corner).
var referenceLandmarks = []gocv.Point2f{
	{X: 38.2946, Y: 51.6963},
	{X: 73.5318, Y: 51.5014},
	{X: 56.0252, Y: 71.7366},
	{X: 41.5493, Y: 92.3655},
	{X: 70.7299, Y: 92.2041},
}

// Model wraps an ArcFace/FaceNet embedding net.
type Model struct {
	net       gocv.Net
	modelName string
	inputSize image.Point
	log       *zap.SugaredLogger
}

var _ embedder.Embedder = (*Model)(nil)

// New loads an ArcFace ("arcface") or FaceNet ("facenet") model.
func New(modelPath, modelName string, log *zap.SugaredLogger) (*Model, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load %s model %q", embedder.ErrUnavailable, modelName, modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		log.Warnw("failed to set embedder backend", "error", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		log.Warnw("failed to set embedder target", "error", err)
	}

	inputSize := image.Pt(112, 112)
	if modelName == "facenet" {
		inputSize = image.Pt(160, 160)
	}
	return &Model{net: net, modelName: modelName, inputSize: inputSize, log: log}, nil
}

func (m *Model) Embed(crop gocv.Mat, landmarks []detect.Point2D) (embedding.Embedding, error) {
	if crop.Empty() {
		return embedding.Embedding{}, errors.New("arcface: empty crop")
	}
	aligned := m.align(crop, landmarks)
	defer aligned.Close()

	blob := gocv.BlobFromImage(aligned, 1.0/255.0, m.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	flat := out.Reshape(1, 1)
	defer flat.Close()

	values := make([]float32, embedding.Dim)
	n := flat.Cols()
	if n > embedding.Dim {
		n = embedding.Dim
	}
	for i := 0; i < n; i++ {
		values[i] = flat.GetFloatAt(0, i)
	}
	return embedding.From(values)
}

func (m *Model) EmbedBatch(crops []gocv.Mat, landmarks [][]detect.Point2D) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, len(crops))
	for i, crop := range crops {
		var lm []detect.Point2D
		if i < len(landmarks) {
			lm = landmarks[i]
		}
		e, err := m.Embed(crop, lm)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// align performs a 5-point similarity-transform alignment when
// landmarks are present, otherwise a plain BGR->RGB convert and resize.
func (m *Model) align(crop gocv.Mat, landmarks []detect.Point2D) gocv.Mat {
	rgb := gocv.NewMat()
	if crop.Channels() == 3 {
		gocv.CvtColor(crop, &rgb, gocv.ColorBGRToRGB)
	} else {
		rgb = crop.Clone()
	}
	defer rgb.Close()

	if len(landmarks) != 5 {
		resized := gocv.NewMat()
		gocv.Resize(rgb, &resized, m.inputSize, 0, 0, gocv.InterpolationLinear)
		return resized
	}

	src := make([]gocv.Point2f, 5)
	for i, p := range landmarks {
		src[i] = gocv.Point2f{X: p.X, Y: p.Y}
	}
	dst := scaleReference(m.inputSize)

	srcVec := gocv.NewPoint2fVectorFromPoints(src)
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(dst)
	defer dstVec.Close()

	transform := gocv.EstimateAffinePartial2D(srcVec, dstVec)
	defer transform.Close()

	if transform.Empty() {
		resized := gocv.NewMat()
		gocv.Resize(rgb, &resized, m.inputSize, 0, 0, gocv.InterpolationLinear)
		return resized
	}

	aligned := gocv.NewMat()
	gocv.WarpAffine(rgb, &aligned, transform, m.inputSize)
	return aligned
}

// scaleReference scales the canonical 112x112 reference landmarks to
// the model's actual input size (a no-op for ArcFace's own 112x112).
func scaleReference(inputSize image.Point) []gocv.Point2f {
	scaleX := float32(inputSize.X) / 112.0
	scaleY := float32(inputSize.Y) / 112.0
	out := make([]gocv.Point2f, len(referenceLandmarks))
	for i, p := range referenceLandmarks {
		out[i] = gocv.Point2f{X: p.X * scaleX, Y: p.Y * scaleY}
	}
	return out
}

func (m *Model) Close() error {
	m.net.Close()
	return nil
}
