package pushsrc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
	"github.com/watchtower-nvr/core/capture/pushsrc"
)

func TestPushFrameDeliversToChannel(t *testing.T) {
	src := pushsrc.New("cam-browser", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go src.Run(ctx)

	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer mat.Close()
	src.PushFrame(mat)

	select {
	case f := <-src.Frames():
		require.Equal(t, "cam-browser", f.CameraID)
		f.Close()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed frame")
	}
}

func TestFailsAfterPushIdleTimeout(t *testing.T) {
	src := pushsrc.New("cam-browser", 20*time.Millisecond)
	err := src.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, capture.StateFailed, src.State())
}

func TestPushFrameDropsWhenChannelFull(t *testing.T) {
	src := pushsrc.New("cam-browser", time.Second)
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer mat.Close()

	for i := 0; i < 10; i++ {
		src.PushFrame(mat)
	}
	require.Greater(t, src.Dropped(), int64(0))
}
