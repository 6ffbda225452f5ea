package dispatcher_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/protocol/value"
)

func newDispatcher(t *testing.T, config dispatcher.Config) *dispatcher.Dispatcher {
	t.Helper()
	registry := dispatcher.NewRegistry()
	registry.Register("Test.echo", func(ctx context.Context, params *value.Object) (*value.Object, error) {
		text, err := dispatcher.StringParam(params, "text")
		if err != nil {
			return nil, err
		}
		result := value.NewObject()
		result.SetString("text", text)
		return result, nil
	})
	registry.Register("Test.fail", func(ctx context.Context, params *value.Object) (*value.Object, error) {
		return nil, errors.New("no node with given id found")
	})
	registry.Register("Test.panic", func(ctx context.Context, params *value.Object) (*value.Object, error) {
		panic("boom")
	})
	registry.Register("Test.empty", noop)
	return dispatcher.New(registry, config, nil)
}

func TestDispatchResult(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	resp := d.Dispatch(context.Background(), `{"id":1,"method":"Test.echo","params":{"text":"hi"}}`)

	if want := `{"id":1,"result":{"text":"hi"}}`; resp != want {
		t.Errorf("response = %s, want %s", resp, want)
	}
}

func TestDispatchNilResult(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	resp := d.Dispatch(context.Background(), `{"id":2,"method":"Test.empty"}`)

	if want := `{"id":2,"result":{}}`; resp != want {
		t.Errorf("response = %s, want %s", resp, want)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	resp := d.Dispatch(context.Background(), `{"id":3,"method":"Nope.nothing"}`)

	if got := gjson.Get(resp, "id").Int(); got != 3 {
		t.Errorf("id = %d, want 3", got)
	}
	if got := gjson.Get(resp, "error.code").Int(); got != dispatcher.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", got, dispatcher.CodeMethodNotFound)
	}
	msg := gjson.Get(resp, "error.message").String()
	if !strings.Contains(msg, dispatcher.ErrUnknownMethod.Error()) || !strings.Contains(msg, "Nope.nothing") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestDispatchInvalidParams(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	resp := d.Dispatch(context.Background(), `{"id":4,"method":"Test.echo","params":{"text":5}}`)

	if got := gjson.Get(resp, "error.code").Int(); got != dispatcher.CodeInvalidParams {
		t.Errorf("code = %d, want %d", got, dispatcher.CodeInvalidParams)
	}
}

func TestDispatchHandlerErrorIsPerCommand(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	failed := d.Dispatch(context.Background(), `{"id":5,"method":"Test.fail"}`)
	ok := d.Dispatch(context.Background(), `{"id":6,"method":"Test.echo","params":{"text":"still here"}}`)

	if got := gjson.Get(failed, "error.message").String(); got != "no node with given id found" {
		t.Errorf("message = %q", got)
	}
	if got := gjson.Get(failed, "error.code").Int(); got != dispatcher.CodeServerError {
		t.Errorf("code = %d, want %d", got, dispatcher.CodeServerError)
	}
	if got := gjson.Get(ok, "result.text").String(); got != "still here" {
		t.Errorf("follow-up command result = %q", got)
	}
}

func TestDispatchMalformed(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())

	tests := []struct {
		name string
		msg  string
		code int64
	}{
		{"not json", `{"id":1,`, dispatcher.CodeParseError},
		{"no id", `{"method":"Test.echo"}`, dispatcher.CodeInvalidRequest},
		{"no method", `{"id":1}`, dispatcher.CodeInvalidRequest},
		{"params not object", `{"id":1,"method":"Test.echo","params":[1]}`, dispatcher.CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(context.Background(), tt.msg)
			if got := gjson.Get(resp, "error.code").Int(); got != tt.code {
				t.Errorf("code = %d, want %d (response %s)", got, tt.code, resp)
			}
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig().WithMetrics())

	resp := d.Dispatch(context.Background(), `{"id":9,"method":"Test.panic"}`)

	if msg := gjson.Get(resp, "error.message").String(); !strings.Contains(msg, "boom") {
		t.Errorf("message = %q, want panic value", msg)
	}
	if d.Metrics().TotalPanics() != 1 {
		t.Errorf("TotalPanics() = %d, want 1", d.Metrics().TotalPanics())
	}
	if stats := d.Metrics().MethodStats("Test.panic"); stats == nil || stats.PanicCount != 1 {
		t.Errorf("MethodStats(Test.panic) = %+v", stats)
	}
}

func TestDispatchMetrics(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig().WithMetrics())
	ctx := context.Background()

	d.Dispatch(ctx, `{"id":1,"method":"Test.echo","params":{"text":"a"}}`)
	d.Dispatch(ctx, `{"id":2,"method":"Test.echo","params":{"text":"b"}}`)
	d.Dispatch(ctx, `{"id":3,"method":"Test.fail"}`)

	m := d.Metrics()
	if m.TotalDispatches() != 3 {
		t.Errorf("TotalDispatches() = %d, want 3", m.TotalDispatches())
	}
	if m.TotalErrors() != 1 {
		t.Errorf("TotalErrors() = %d, want 1", m.TotalErrors())
	}
	top := m.TopMethods(1)
	if len(top) != 1 || top[0].Name != "Test.echo" || top[0].DispatchCount != 2 {
		t.Errorf("TopMethods(1) = %+v", top)
	}
	if stats := m.MethodStats("Test.fail"); stats == nil || stats.ErrorCount != 1 {
		t.Errorf("MethodStats(Test.fail) = %+v", stats)
	}
	if got := m.DomainCounts()["Test"]; got != 3 {
		t.Errorf("DomainCounts()[Test] = %d, want 3", got)
	}
	if m.MethodStats("Test.missing") != nil {
		t.Error("expected nil stats for an unused method")
	}
}

func TestMetricsDisabledByDefault(t *testing.T) {
	d := newDispatcher(t, dispatcher.DefaultConfig())
	if d.Metrics() != nil {
		t.Error("expected nil metrics by default")
	}
}

func TestDispatchWarnsOnSlowCommand(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	registry := dispatcher.NewRegistry()
	registry.Register("Test.slow", func(ctx context.Context, params *value.Object) (*value.Object, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	registry.Register("Test.fast", noop)
	d := dispatcher.New(registry, dispatcher.DefaultConfig().WithSlowCommand(time.Millisecond), zap.New(core))

	d.Dispatch(context.Background(), `{"id":1,"method":"Test.fast"}`)
	d.Dispatch(context.Background(), `{"id":2,"method":"Test.slow"}`)

	entries := logs.FilterMessage("slow command").All()
	if len(entries) != 1 {
		t.Fatalf("slow command warnings = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["method"]; got != "Test.slow" {
		t.Errorf("method = %v, want Test.slow", got)
	}
}
