package arcface

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScaleReferenceIsIdentityAt112(t *testing.T) {
	scaled := scaleReference(image.Pt(112, 112))
	require.Len(t, scaled, len(referenceLandmarks))
	for i, p := range scaled {
		require.InDelta(t, referenceLandmarks[i].X, p.X, 1e-4)
		require.InDelta(t, referenceLandmarks[i].Y, p.Y, 1e-4)
	}
}

func TestScaleReferenceScalesProportionally(t *testing.T) {
	scaled := scaleReference(image.Pt(224, 224))
	for i, p := range scaled {
		require.InDelta(t, referenceLandmarks[i].X*2, p.X, 1e-3)
		require.InDelta(t, referenceLandmarks[i].Y*2, p.Y, 1e-3)
	}
}
