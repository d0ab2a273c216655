package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	received := make(chan string, 1)

	require.NoError(t, bus.Subscribe(TopicQuery, func(topic string, payload []byte) {
		received <- string(payload)
	}))
	require.NoError(t, bus.Publish(TopicQuery, 1, false, []byte(`{"seq":1}`)))

	select {
	case msg := <-received:
		require.Equal(t, `{"seq":1}`, msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBus_WildcardMatch(t *testing.T) {
	bus := NewMemoryBus()
	received := make(chan string, 1)

	require.NoError(t, bus.Subscribe("MOI/file/#", func(topic string, payload []byte) {
		received <- topic
	}))
	require.NoError(t, bus.Publish(TopicFile(7), 1, true, []byte("bytes")))

	select {
	case topic := <-received:
		require.Equal(t, "MOI/file/7", topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBus_RetainedReplayedToLateSubscriber(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(TopicFile(3), 1, true, []byte("payload")))

	received := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe(TopicFile(3), func(_ string, payload []byte) {
		received <- payload
	}))

	select {
	case payload := <-received:
		require.Equal(t, []byte("payload"), payload)
	case <-time.After(time.Second):
		t.Fatal("retained message was not replayed")
	}
}

func TestMemoryBus_ClearingRetainedTopic(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Publish(TopicFile(3), 1, true, []byte("payload")))
	require.NoError(t, bus.Publish(TopicFile(3), 1, true, nil))

	received := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe(TopicFile(3), func(_ string, payload []byte) {
		received <- payload
	}))

	select {
	case <-received:
		t.Fatal("expected no retained replay after clearing")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	received := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(TopicAlive, func(string, []byte) { received <- struct{}{} }))
	require.NoError(t, bus.Unsubscribe(TopicAlive))
	require.NoError(t, bus.Publish(TopicAlive, 0, false, []byte("x")))

	select {
	case <-received:
		t.Fatal("handler fired after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTopicHelpers(t *testing.T) {
	require.Equal(t, "MOI/query/10.0.0.1", TopicQueryFor("10.0.0.1"))
	require.Equal(t, "MOI/file/5", TopicFile(5))
	require.Equal(t, "MOI/fetch/5/10.0.0.1/app.log", TopicFetch(5, "10.0.0.1", "app.log"))
}
