package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledremote/internal/core"
	"ledremote/internal/metrics"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	cmds []core.Command
}

func (d *recordingDispatcher) Dispatch(cmd core.Command) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	return true
}

func (d *recordingDispatcher) Commands() []core.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Command(nil), d.cmds...)
}

type testEnv struct {
	srv        *Server
	http       *httptest.Server
	dispatcher *recordingDispatcher
	metrics    *metrics.Metrics
	state      *core.State
	cancel     context.CancelFunc
}

func newTestEnv(t *testing.T, maxClients int, origins []string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile),
		[]byte(`<html><body class="%STATE%">%OTHER% 100%</body></html>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("// js"), 0644))

	m := metrics.New()
	hub := NewHub(maxClients, func(n int) { m.WSClients.Set(float64(n)) })
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	env := &testEnv{
		dispatcher: &recordingDispatcher{},
		metrics:    m,
		state:      core.NewState(),
		cancel:     cancel,
	}
	env.srv = NewServer(hub, env.dispatcher, env.state.Snapshot, m, "0", dir, origins)
	env.http = httptest.NewServer(env.srv.Routes())
	t.Cleanup(func() {
		env.http.Close()
		cancel()
	})
	return env
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) StatusMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StatusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRootDocumentSubstitutesPlaceholders(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	resp, err := http.Get(env.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<html><body class="off">off 100%</body></html>`, string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	resp, err := http.Get(env.http.URL + "/index.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "// js", string(body))

	resp2, err := http.Get(env.http.URL + "/missing.css")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	env.state.Toggle(core.Yellow)
	env.state.TogglePrimary()

	resp, err := http.Get(env.http.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, StatusResponse{Status: "yellow", Primary: true, Hex: "#808000"}, got)
}

func TestWebSocketSendsInitialStatus(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	env.state.Toggle(core.Green)

	conn := env.dial(t)
	assert.Equal(t, StatusMessage{Status: "green"}, readStatus(t, conn))
}

func TestWebSocketDispatchesActions(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	conn := env.dial(t)
	readStatus(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"blue"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"purple"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"action":"red"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"yellow"}`)))

	require.Eventually(t, func() bool { return len(env.dispatcher.Commands()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cmds := env.dispatcher.Commands()
	assert.Equal(t, core.Command{Type: core.CmdToggle, Color: core.Blue, Source: core.SourceWS}, cmds[0])
	assert.Equal(t, core.Yellow, cmds[1].Color)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.WSMalformed))
}

func TestWebSocketActionsMatchExactly(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	for _, action := range []string{"RED", " red ", "Green"} {
		env.srv.handleMessage([]byte(`{"action":"` + action + `"}`))
	}
	assert.Empty(t, env.dispatcher.Commands())

	env.srv.handleMessage([]byte(`{"action":"green"}`))
	assert.Equal(t, []core.Command{{Type: core.CmdToggle, Color: core.Green, Source: core.SourceWS}}, env.dispatcher.Commands())
}

func TestHubBroadcast(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	a := env.dial(t)
	b := env.dial(t)
	readStatus(t, a)
	readStatus(t, b)
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.WSClients))

	env.srv.Hub.Broadcast(NewStatusMessage(core.Red))
	assert.Equal(t, StatusMessage{Status: "red"}, readStatus(t, a))
	assert.Equal(t, StatusMessage{Status: "red"}, readStatus(t, b))

	a.Close()
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubCleanupClosesOldest(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	oldest := env.dial(t)
	readStatus(t, oldest)
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	newest := env.dial(t)
	readStatus(t, newest)
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 2 }, 2*time.Second, 5*time.Millisecond)

	env.srv.Hub.Cleanup()
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	oldest.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := oldest.ReadMessage()
	assert.Error(t, err, "oldest client is closed")

	env.srv.Hub.Broadcast(NewStatusMessage(core.Blue))
	assert.Equal(t, StatusMessage{Status: "blue"}, readStatus(t, newest))
}

func TestOriginAllowList(t *testing.T) {
	env := newTestEnv(t, 8, []string{"http://4.3.2.1"})
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://4.3.2.1"}})
	require.NoError(t, err)
	conn.Close()
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < 32; i++ {
		hub.Broadcast(NewStatusMessage(core.Off))
	}
	hub.Cleanup()
	assert.Equal(t, 0, hub.Count())
}

func TestBroadcastNeverBlocksWhenQueueIsFull(t *testing.T) {
	hub := NewHub(0, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			hub.Broadcast(NewStatusMessage(core.Red))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
	assert.Equal(t, uint64(64-cap(hub.broadcast)), hub.Dropped())
}

func TestInitialStatusPrecedesBroadcasts(t *testing.T) {
	env := newTestEnv(t, 8, nil)
	env.state.Toggle(core.Blue)

	conn := env.dial(t)
	require.Eventually(t, func() bool { return env.srv.Hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	env.srv.Hub.Broadcast(NewStatusMessage(core.Yellow))

	assert.Equal(t, StatusMessage{Status: "blue"}, readStatus(t, conn))
	assert.Equal(t, StatusMessage{Status: "yellow"}, readStatus(t, conn))
}

func TestListenReportsBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	_, port, err := net.SplitHostPort(busy.Addr().String())
	require.NoError(t, err)

	srv := NewServer(NewHub(0, nil), &recordingDispatcher{}, core.NewState().Snapshot, nil, port, t.TempDir(), nil)
	require.Error(t, srv.Listen())
	assert.Nil(t, srv.Addr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestListenThenServe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("ok"), 0644))
	srv := NewServer(NewHub(0, nil), &recordingDispatcher{}, core.NewState().Snapshot, nil, "0", dir, nil)
	require.NoError(t, srv.Listen())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	_, port, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-served)
}
