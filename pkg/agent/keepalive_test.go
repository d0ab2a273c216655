package agent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/fleetmq/pkg/transport"
)

func TestKeepalive_PublishesAddrOnInterval(t *testing.T) {
	bus := transport.NewMemoryBus()
	received := make(chan []byte, 4)
	require.NoError(t, bus.Subscribe(transport.TopicAlive, func(_ string, payload []byte) {
		received <- payload
	}))

	k := NewKeepalive(bus, "10.0.0.5", KeepaliveConfig{Interval: 10 * time.Millisecond, Reconnect: true}, nil, nil)
	go k.Run()
	defer k.Stop()

	select {
	case payload := <-received:
		var body map[string]string
		require.NoError(t, json.Unmarshal(payload, &body))
		require.Equal(t, "10.0.0.5", body["addr"])
	case <-time.After(time.Second):
		t.Fatal("no alive message published")
	}
}

type failingBus struct {
	*transport.MemoryBus
}

func (f failingBus) Publish(string, byte, bool, []byte) error {
	return errPublishAlwaysFails
}

var errPublishAlwaysFails = &publishError{}

type publishError struct{}

func (*publishError) Error() string { return "publish always fails" }

func TestKeepalive_ThreeFailuresTriggerReconnect(t *testing.T) {
	bus := failingBus{transport.NewMemoryBus()}
	reconnected := make(chan struct{}, 1)

	k := NewKeepalive(bus, "10.0.0.5", KeepaliveConfig{Interval: 5 * time.Millisecond, Reconnect: true}, nil, func() error {
		reconnected <- struct{}{}
		return nil
	})
	go k.Run()
	defer k.Stop()

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("reconnect callback never fired after three failures")
	}
}
