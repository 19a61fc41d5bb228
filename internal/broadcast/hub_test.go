package broadcast

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func recvOne(t *testing.T, sub *Subscriber) Message {
	t.Helper()
	select {
	case msg := <-sub.C:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestHub_BroadcastAllReachesEverySubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())

	a, cancelA := hub.Subscribe(nil)
	defer cancelA()
	b, cancelB := hub.Subscribe(&model.BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1})
	defer cancelB()

	hub.BroadcastAll("staticData", "payload")

	assert.Equal(t, "staticData", recvOne(t, a).Type)
	assert.Equal(t, "staticData", recvOne(t, b).Type)
}

func TestHub_BroadcastFilteredHonorsBounds(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())

	sf := &model.BoundingBox{MinLat: 37.0, MinLon: -123.0, MaxLat: 38.5, MaxLon: -121.5}
	inArea, cancelIn := hub.Subscribe(sf)
	defer cancelIn()
	unbounded, cancelAll := hub.Subscribe(nil)
	defer cancelAll()

	// Inside the subscriber's box.
	hub.BroadcastFiltered("position", "golden gate", 37.81, -122.47)
	assert.Equal(t, "golden gate", recvOne(t, inArea).Data)
	assert.Equal(t, "golden gate", recvOne(t, unbounded).Data)

	// Tokyo Bay: outside the box, only the unbounded subscriber sees it.
	hub.BroadcastFiltered("position", "tokyo", 35.44, 139.84)
	assert.Equal(t, "tokyo", recvOne(t, unbounded).Data)
	select {
	case msg := <-inArea.C:
		t.Fatalf("bounded subscriber received out-of-area message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())

	sub, cancel := hub.Subscribe(nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overfill the buffer; sends past capacity must drop, not block.
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.BroadcastAll("position", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}

	// The buffer holds exactly its capacity; the rest were dropped.
	drained := 0
	for {
		select {
		case <-sub.C:
			drained++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, drained)
}

func TestHub_CancelIsIdempotentAndClosesChannel(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())

	sub, cancel := hub.Subscribe(nil)
	require.Equal(t, 1, hub.SubscriberCount())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Broadcasting after cancel must not panic on the closed channel.
	hub.BroadcastAll("position", "late")
}

func TestHub_CloseUnregistersEveryone(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())

	subA, _ := hub.Subscribe(nil)
	subB, _ := hub.Subscribe(nil)
	require.Equal(t, 2, hub.SubscriberCount())

	hub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())

	_, openA := <-subA.C
	_, openB := <-subB.C
	assert.False(t, openA)
	assert.False(t, openB)
}
