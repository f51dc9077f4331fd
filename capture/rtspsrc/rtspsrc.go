// Package rtspsrc implements capture.Source for the rtsp camera kind
// using GStreamer, grounded on e7canasta-orion-care-sensor's
// modules/stream-capture/internal/rtsp pipeline and reconnect shape,
// generalized from a raw-bytes Frame to a gocv.Mat-backed
// capture.Frame.
package rtspsrc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/capture"
)

// Source captures an RTSP stream via a GStreamer pipeline that decodes
// to raw BGR frames delivered through an appsink.
type Source struct {
	cameraID string
	url      string
	width    int
	height   int
	backoff  capture.BackoffConfig
	log      *zap.SugaredLogger

	frames  chan capture.Frame
	state   atomic.Int32
	seq     atomic.Uint64
	dropped atomic.Int64

	pipeline *gst.Pipeline
}

var _ capture.Source = (*Source)(nil)

// New constructs an rtspsrc.Source. width/height must match the
// camera's configured target resolution; the pipeline forces raw BGR at
// that size via a capsfilter so the resulting bytes convert directly
// into a gocv.Mat without an extra decode step downstream.
func New(cameraID, url string, width, height int, log *zap.SugaredLogger) *Source {
	s := &Source{
		cameraID: cameraID,
		url:      url,
		width:    width,
		height:   height,
		backoff:  capture.DefaultBackoffConfig(),
		log:      log,
		frames:   make(chan capture.Frame, 4),
	}
	s.state.Store(int32(capture.StateStarting))
	return s
}

func (s *Source) Frames() <-chan capture.Frame { return s.frames }
func (s *Source) State() capture.State         { return capture.State(s.state.Load()) }

// Dropped reports how many frames this source has drop-newested at its
// bounded outbound channel.
func (s *Source) Dropped() int64 { return s.dropped.Load() }

func (s *Source) launchDescription() string {
	return fmt.Sprintf(
		"rtspsrc location=%s latency=200 ! decodebin ! videoconvert ! "+
			"video/x-raw,format=BGR,width=%d,height=%d ! "+
			"appsink name=sink sync=false max-buffers=1 drop=true qos=true",
		s.url, s.width, s.height)
}

func (s *Source) open() error {
	pipelineElem, err := gst.NewPipelineFromString(s.launchDescription())
	if err != nil {
		return fmt.Errorf("rtspsrc: parse launch: %w", err)
	}
	s.pipeline = pipelineElem
	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("rtspsrc: set playing: %w", err)
	}
	return nil
}

func (s *Source) appSink() (*app.Sink, error) {
	elem, err := s.pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("rtspsrc: find appsink: %w", err)
	}
	return app.SinkFromElement(elem), nil
}

// Run drives the GStreamer pipeline, reconnecting with exponential
// backoff on pipeline error, until ctx is cancelled or N_retry
// consecutive reconnects fail.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.frames)
	gst.Init(nil)

	attempt := 0
	for {
		if ctx.Err() != nil {
			s.state.Store(int32(capture.StateStopped))
			return ctx.Err()
		}

		if err := s.open(); err != nil {
			attempt++
			if attempt > s.backoff.MaxRetries {
				s.state.Store(int32(capture.StateFailed))
				return fmt.Errorf("rtspsrc[%s]: exceeded max reconnect attempts: %w", s.cameraID, err)
			}
			s.state.Store(int32(capture.StateDegraded))
			delay := s.backoff.Delay(attempt)
			s.log.Warnw("rtsp pipeline open failed, backing off", "camera_id", s.cameraID, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				s.state.Store(int32(capture.StateStopped))
				return ctx.Err()
			}
		}

		attempt = 0
		s.state.Store(int32(capture.StateRunning))
		if err := s.pullLoop(ctx); err != nil {
			s.log.Warnw("rtsp pull loop ended, reconnecting", "camera_id", s.cameraID, "error", err)
			s.teardown()
			continue
		}
		s.state.Store(int32(capture.StateStopped))
		return nil
	}
}

func (s *Source) pullLoop(ctx context.Context) error {
	sink, err := s.appSink()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sample := sink.PullSample()
		if sample == nil {
			return fmt.Errorf("appsink returned no sample (stream ended or errored)")
		}
		buf := sample.GetBuffer()
		if buf == nil {
			continue
		}
		mapInfo := buf.Map(gst.MapRead)
		data := mapInfo.Bytes()
		if len(data) != s.width*s.height*3 {
			buf.Unmap()
			continue
		}
		mat, err := gocv.NewMatFromBytes(s.height, s.width, gocv.MatTypeCV8UC3, data)
		buf.Unmap()
		if err != nil {
			continue
		}

		frame := capture.Frame{
			Mat:        mat.Clone(),
			CameraID:   s.cameraID,
			Sequence:   s.seq.Add(1),
			CapturedAt: time.Now(),
		}
		mat.Close()
		select {
		case s.frames <- frame:
		default:
			s.dropped.Add(1)
			frame.Close()
		}
	}
}

func (s *Source) teardown() {
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
		s.pipeline = nil
	}
}

func (s *Source) Close() error {
	s.teardown()
	return nil
}
