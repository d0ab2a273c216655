package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/fleetmq/pkg/envelope"
	"github.com/freitascorp/fleetmq/pkg/predicate"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/transport"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

func newTestDaemon(t *testing.T, data map[string]any) (*Daemon, *Executor, transport.Bus) {
	t.Helper()
	backend := store.NewFileBackend(filepath.Join(t.TempDir(), "store.json"))
	s := store.New(data, backend)
	e := NewExecutor(s, Config{Home: t.TempDir()}, nil)
	bus := transport.NewMemoryBus()
	d := NewDaemon(bus, e, s, nil)
	require.NoError(t, d.Start())
	return d, e, bus
}

func TestDaemon_BroadcastQueryPublishesResponse(t *testing.T) {
	_, _, bus := newTestDaemon(t, map[string]any{"addr": "10.0.0.1", "name": "web-1", "role": "web"})

	results := make(chan envelope.Response, 1)
	require.NoError(t, bus.Subscribe(transport.TopicResultQuery, func(_ string, payload []byte) {
		resp, err := envelope.DecodeResponse(payload)
		require.NoError(t, err)
		results <- resp
	}))

	q := envelope.Query{Seq: 1, Which: predicate.Equals("role", "web"), What: verb.Ping()}
	raw, err := envelope.EncodeQuery(q)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(transport.TopicQuery, 1, false, raw))

	select {
	case resp := <-results:
		require.False(t, resp.IsError())
		require.Equal(t, "10.0.0.1", resp.ID)
	case <-time.After(time.Second):
		t.Fatal("no response published")
	}
}

func TestDaemon_NonMatchingQueryStaysSilent(t *testing.T) {
	_, _, bus := newTestDaemon(t, map[string]any{"addr": "10.0.0.1", "name": "web-1", "role": "web"})

	results := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(transport.TopicResultQuery, func(string, []byte) { results <- struct{}{} }))

	q := envelope.Query{Seq: 1, Which: predicate.Equals("role", "db"), What: verb.Ping()}
	raw, err := envelope.EncodeQuery(q)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(transport.TopicQuery, 1, false, raw))

	select {
	case <-results:
		t.Fatal("a non-matching query must not produce a response")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDaemon_CopyThenFileTopicRoundTrip(t *testing.T) {
	home := t.TempDir()
	_, e, bus := newTestDaemon(t, map[string]any{"addr": "10.0.0.1", "name": "web-1"})
	e.destinations = map[string]string{"drop": home}
	e.home = home

	fileResults := make(chan envelope.Response, 1)
	require.NoError(t, bus.Subscribe(transport.TopicResultFile, func(_ string, payload []byte) {
		resp, err := envelope.DecodeResponse(payload)
		require.NoError(t, err)
		fileResults <- resp
	}))

	q := envelope.Query{Seq: 7, Which: predicate.None(), What: verb.Copy(verb.CopyFile{Filename: "out.bin", Dest: "drop"})}
	raw, err := envelope.EncodeQuery(q)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(transport.TopicQuery, 1, false, raw))

	require.Eventually(t, func() bool { return e.HasPendingFile() }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(transport.TopicFile(7), 1, true, []byte("file contents")))

	select {
	case resp := <-fileResults:
		require.False(t, resp.IsError())
		require.Equal(t, 7, resp.Seq)
	case <-time.After(time.Second):
		t.Fatal("no file response published")
	}
}

func TestDaemon_FetchPublishesRawBytesOnFetchTopic(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("report body"), 0644))

	_, e, bus := newTestDaemon(t, map[string]any{"addr": "10.0.0.1", "name": "web-1"})
	e.home = home

	fetched := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe(transport.TopicFetch(3, "10.0.0.1", "web-1"), func(_ string, payload []byte) {
		fetched <- payload
	}))

	q := envelope.Query{Seq: 3, Which: predicate.None(), What: verb.Fetch("report.txt")}
	raw, err := envelope.EncodeQuery(q)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(transport.TopicQuery, 1, false, raw))

	select {
	case payload := <-fetched:
		require.Equal(t, "report body", string(payload))
	case <-time.After(time.Second):
		t.Fatal("no fetch payload published")
	}
}

func TestDaemon_QuitDisconnectsBus(t *testing.T) {
	_, _, bus := newTestDaemon(t, map[string]any{"addr": "10.0.0.1", "name": "web-1"})
	require.NoError(t, bus.Publish(transport.TopicQuit, 1, false, nil))

	responses := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe(transport.TopicResultQuery, func(_ string, payload []byte) {
		responses <- payload
	}))
	raw, err := envelope.EncodeQuery(envelope.Query{Seq: 1, Which: predicate.None(), What: verb.Ping()})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(transport.TopicQuery, 1, false, raw))

	select {
	case <-responses:
		t.Fatal("daemon answered a query after quit")
	case <-time.After(50 * time.Millisecond):
	}
}
