package ws_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/transport/ws"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const page = `<!DOCTYPE html><html><body><p id="p">hi</p></body></html>`

type harness struct {
	loop *loop.Loop
	c    *inspector.Controller
	srv  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{loop: loop.New()}
	h.c = inspector.New(inspector.Options{Enabled: true})

	registry := dispatcher.NewRegistry()
	h.c.RegisterCommands(registry)
	d := dispatcher.New(registry, dispatcher.DefaultConfig().WithMetrics(), nil)

	errc := make(chan error, 1)
	go func() { errc <- h.loop.Run(context.Background()) }()
	require.NoError(t, h.loop.Call(context.Background(), func() error {
		h.c.DidCommitLoad("https://example.test/", mustParse(t, page))
		return nil
	}))

	h.srv = httptest.NewServer(ws.NewServer(h.loop, d, h.c, ws.Options{}).Handler())
	t.Cleanup(func() {
		h.srv.Close()
		h.loop.Stop()
		<-errc
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.srv.URL, "http")+"/inspector", nil)
	require.NoError(t, err)
	return conn
}

// readUntil reads messages until one satisfies match and returns it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(string) bool) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		if match(string(data)) {
			return string(data)
		}
	}
}

func withID(id int64) func(string) bool {
	return func(msg string) bool { return gjson.Get(msg, "id").Int() == id && gjson.Get(msg, "id").Exists() }
}

func method(name string) func(string) bool {
	return func(msg string) bool { return gjson.Get(msg, "method").String() == name }
}

func TestServer_AttachPushesDocument(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readUntil(t, conn, method("setDocument"))
	assert.Equal(t, "#document", gjson.Get(msg, "params.root.nodeName").String())
}

func TestServer_CommandRoundTrip(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx := context.Background()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"id":1,"method":"DOM.getDocument"}`)))
	resp := readUntil(t, conn, withID(1))
	assert.True(t, gjson.Get(resp, "result.nodeId").Exists(), resp)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"id":2,"method":"No.such"}`)))
	resp = readUntil(t, conn, withID(2))
	assert.True(t, gjson.Get(resp, "error.message").Exists(), resp)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"id":3,"method":"Timeline.start"}`)))
	started := false
	resp = readUntil(t, conn, func(m string) bool {
		if method("timelineProfilerWasStarted")(m) {
			started = true
		}
		return withID(3)(m)
	})
	assert.True(t, started, "events a command emits precede its response")
	assert.False(t, gjson.Get(resp, "error").Exists())
}

func TestServer_SecondFrontendIsRefused(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t)
	defer first.Close(websocket.StatusNormalClosure, "")
	readUntil(t, first, method("setDocument"))

	second := h.dial(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := second.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestServer_DisconnectDetaches(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readUntil(t, conn, method("setDocument"))
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		var state inspector.SessionState
		_ = h.loop.Call(context.Background(), func() error {
			state = h.c.State()
			return nil
		})
		return state == inspector.StateDetached
	}, 2*time.Second, 10*time.Millisecond)

	again := h.dial(t)
	defer again.Close(websocket.StatusNormalClosure, "")
	readUntil(t, again, method("setDocument"))
}

func TestServer_HTTPEndpoints(t *testing.T) {
	h := newHarness(t)
	client := &http.Client{Timeout: 2 * time.Second}
	defer client.CloseIdleConnections()

	body := get(t, client, h.srv.URL+"/methods")
	assert.Contains(t, gjson.Get(body, "methods").String(), "DOM.getDocument")

	body = get(t, client, h.srv.URL+"/metrics")
	assert.True(t, gjson.Get(body, "connections").Exists(), body)
	assert.True(t, gjson.Get(body, "dispatch.total").Exists(), body)

	resp, err := client.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- ws.Serve(ctx, ln, http.NotFoundHandler(), nil)
	}()
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
