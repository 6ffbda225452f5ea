package inspector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/webinspector/internal/dispatcher"
)

func newCommandSession(t *testing.T) (*session, *dispatcher.Dispatcher) {
	t.Helper()
	s := newSession(t, 0)
	registry := dispatcher.NewRegistry()
	s.c.RegisterCommands(registry)
	return s, dispatcher.New(registry, dispatcher.DefaultConfig(), nil)
}

func TestCommands_Registered(t *testing.T) {
	_, d := newCommandSession(t)
	assert.Equal(t, []string{"Console", "DOM", "Debugger", "Network", "Settings", "Timeline"}, d.Registry().Domains())
	for _, m := range []string{
		"DOM.getDocument", "DOM.setDOMBreakpoint", "Debugger.pause",
		"Debugger.setStickyBreakpoints", "Timeline.start", "Network.getResourceContent",
	} {
		assert.True(t, d.Registry().Has(m), m)
	}
}

func TestCommands_GetDocument(t *testing.T) {
	s, d := newCommandSession(t)
	resp := d.Dispatch(context.Background(), `{"id":1,"method":"DOM.getDocument"}`)
	require.True(t, gjson.Get(resp, "result.nodeId").Exists(), resp)
	assert.Equal(t, int64(s.c.Registry().IDOf(s.doc)), gjson.Get(resp, "result.nodeId").Int())
}

func TestCommands_UnknownNodeIsPerCommandError(t *testing.T) {
	_, d := newCommandSession(t)
	resp := d.Dispatch(context.Background(), `{"id":2,"method":"DOM.getChildNodes","params":{"nodeId":4242}}`)
	assert.Equal(t, int64(2), gjson.Get(resp, "id").Int())
	assert.Contains(t, gjson.Get(resp, "error.message").String(), "no node with given id found")

	resp = d.Dispatch(context.Background(), `{"id":3,"method":"DOM.getChildNodes","params":{"nodeId":"x"}}`)
	assert.Equal(t, int64(dispatcher.CodeInvalidParams), gjson.Get(resp, "error.code").Int())
}

func TestCommands_Breakpoints(t *testing.T) {
	s, d := newCommandSession(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, `{"id":1,"method":"Debugger.setEventListenerBreakpoint","params":{"eventName":"listener:click"}}`)
	assert.False(t, gjson.Get(resp, "error").Exists(), resp)
	assert.Equal(t, []string{"listener:click"}, s.c.Matcher().EventListeners())

	resp = d.Dispatch(ctx, `{"id":2,"method":"Debugger.setEventListenerBreakpoint","params":{"eventName":"click"}}`)
	assert.True(t, gjson.Get(resp, "error").Exists())

	d.Dispatch(ctx, `{"id":3,"method":"Debugger.setXHRBreakpoint","params":{"url":"/api/"}}`)
	_, ok := s.c.Matcher().MatchesXHRBreakpoint("https://x/api/v1")
	assert.True(t, ok)
	d.Dispatch(ctx, `{"id":4,"method":"Debugger.removeXHRBreakpoint","params":{"url":"/api/"}}`)
	_, ok = s.c.Matcher().MatchesXHRBreakpoint("https://x/api/v1")
	assert.False(t, ok)
}

func TestCommands_DebuggerEnableAlwaysPersists(t *testing.T) {
	s, d := newCommandSession(t)
	d.Dispatch(context.Background(), `{"id":1,"method":"Debugger.enable","params":{"always":true}}`)
	assert.True(t, s.c.DebuggerEnabled())
	assert.Contains(t, s.store.blobs["test"], "debuggerEnabled")

	resp := d.Dispatch(context.Background(), `{"id":2,"method":"Debugger.pause"}`)
	assert.False(t, gjson.Get(resp, "error").Exists(), resp)
	assert.Len(t, s.dbg.schedules, 1)
}

func TestCommands_Settings(t *testing.T) {
	_, d := newCommandSession(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, `{"id":1,"method":"Settings.get","params":{"key":"theme"}}`)
	assert.Equal(t, gjson.Null, gjson.Get(resp, "result.value").Type)

	d.Dispatch(ctx, `{"id":2,"method":"Settings.set","params":{"key":"theme","value":"dark"}}`)
	resp = d.Dispatch(ctx, `{"id":3,"method":"Settings.get","params":{"key":"theme"}}`)
	assert.Equal(t, "dark", gjson.Get(resp, "result.value").String())
}

func TestCommands_TimelineStartStop(t *testing.T) {
	s, d := newCommandSession(t)
	d.Dispatch(context.Background(), `{"id":1,"method":"Timeline.start"}`)
	assert.NotZero(t, s.c.TimelineEpoch())
	d.Dispatch(context.Background(), `{"id":2,"method":"Timeline.stop"}`)
	assert.Zero(t, s.c.TimelineEpoch())
	assert.Len(t, s.fe.Find("timelineProfilerWasStarted"), 1)
	assert.Len(t, s.fe.Find("timelineProfilerWasStopped"), 1)
}

func TestCommands_ResourceContent(t *testing.T) {
	s, d := newCommandSession(t)
	s.ins.IdentifierForInitialRequest(5, "https://x/lib.lua", "https://x/", false)
	s.ins.ScriptImported(5, "print(1)")

	resp := d.Dispatch(context.Background(), `{"id":1,"method":"Network.getResourceContent","params":{"identifier":5}}`)
	assert.Equal(t, "print(1)", gjson.Get(resp, "result.content").String())

	resp = d.Dispatch(context.Background(), `{"id":2,"method":"Network.getResourceContent","params":{"identifier":6}}`)
	assert.True(t, gjson.Get(resp, "error").Exists())
}
