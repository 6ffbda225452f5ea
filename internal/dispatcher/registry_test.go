package dispatcher_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/dshills/webinspector/internal/dispatcher"
	"github.com/dshills/webinspector/internal/protocol/value"
)

func noop(ctx context.Context, params *value.Object) (*value.Object, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := dispatcher.NewRegistry()
	registry.Register("DOM.getDocument", noop)

	if _, ok := registry.Get("DOM.getDocument"); !ok {
		t.Fatal("expected handler to be registered")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("expected no handler for missing method")
	}
	if !registry.Has("DOM.getDocument") {
		t.Error("expected Has to return true")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	registry := dispatcher.NewRegistry()
	registry.Register("Console.clearMessages", noop)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	registry.Register("Console.clearMessages", noop)
}

func TestRegistryNilHandlerPanics(t *testing.T) {
	registry := dispatcher.NewRegistry()
	defer func() {
		if recover() == nil {
			t.Error("expected nil handler to panic")
		}
	}()
	registry.Register("DOM.removeNode", nil)
}

func TestRegistryListAndDomains(t *testing.T) {
	registry := dispatcher.NewRegistry()
	for _, m := range []string{"DOM.removeNode", "Debugger.resume", "DOM.getDocument", "Console.clearMessages"} {
		registry.Register(m, noop)
	}

	wantList := []string{"Console.clearMessages", "DOM.getDocument", "DOM.removeNode", "Debugger.resume"}
	if got := registry.List(); !reflect.DeepEqual(got, wantList) {
		t.Errorf("List() = %v, want %v", got, wantList)
	}
	wantDomains := []string{"Console", "DOM", "Debugger"}
	if got := registry.Domains(); !reflect.DeepEqual(got, wantDomains) {
		t.Errorf("Domains() = %v, want %v", got, wantDomains)
	}
	if registry.Count() != 4 {
		t.Errorf("Count() = %d, want 4", registry.Count())
	}
}
