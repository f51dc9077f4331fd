package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchtower-nvr/core/events"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := events.NewBus(nil)
	ch, unsub := bus.Subscribe("sub-1")
	defer unsub()

	bus.Publish(events.FaceDetected(events.FaceDetectedPayload{
		CameraID:   "cam-1",
		Confidence: 0.9,
		DetectedAt: time.Unix(0, 0),
	}))

	env := <-ch
	require.NotNil(t, env.Event)
	require.Equal(t, events.TypeFaceDetected, env.Event.Type)
	require.Equal(t, 0, env.Lagged)
}

func TestPublishNeverBlocksAndReportsLagged(t *testing.T) {
	bus := events.NewBus(nil)
	ch, unsub := bus.SubscribeSized("sub-1", 2)
	defer unsub()

	for i := 0; i < 5; i++ {
		bus.Publish(events.CameraStatusChanged(events.CameraStatusChangedPayload{CameraID: "cam-1"}, time.Unix(0, 0)))
	}

	first := <-ch
	require.NotNil(t, first.Event)
	second := <-ch
	require.NotNil(t, second.Event)

	bus.Publish(events.CameraStatusChanged(events.CameraStatusChangedPayload{CameraID: "cam-1"}, time.Unix(0, 0)))
	lagged := <-ch
	require.Nil(t, lagged.Event)
	require.Greater(t, lagged.Lagged, 0)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := events.NewBus(nil)
	ch, unsub := bus.Subscribe("sub-1")
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestSubscriberCount(t *testing.T) {
	bus := events.NewBus(nil)
	require.Equal(t, 0, bus.SubscriberCount())
	_, unsub1 := bus.Subscribe("a")
	_, unsub2 := bus.Subscribe("b")
	require.Equal(t, 2, bus.SubscriberCount())
	unsub1()
	unsub2()
	require.Equal(t, 0, bus.SubscriberCount())
}
