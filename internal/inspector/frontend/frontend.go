// Package frontend defines the outbound side of an inspector session.
package frontend

import (
	"sync"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// Frontend receives serialized protocol messages. Messages sent on one
// Frontend must be delivered in order.
type Frontend interface {
	Send(message string) error
}

// Func adapts a function to the Frontend interface.
type Func func(message string) error

// Send calls f.
func (f Func) Send(message string) error { return f(message) }

// Event builds the {"method": ..., "params": ...} envelope of an event. A nil
// params object is sent as an empty object.
func Event(method string, params *value.Object) *value.Object {
	if params == nil {
		params = value.NewObject()
	}
	msg := value.NewObject()
	msg.SetString("method", method)
	msg.Set("params", params)
	return msg
}

// Recorder is a Frontend that keeps every message it receives.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

// Send records message and returns r.Err.
func (r *Recorder) Send(message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.Err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Events parses the recorded messages. Messages that do not parse as objects
// are skipped.
func (r *Recorder) Events() []*value.Object {
	var out []*value.Object
	for _, m := range r.Messages() {
		obj, err := value.ParseObject(m)
		if err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// Methods returns the method name of every recorded event.
func (r *Recorder) Methods() []string {
	var out []string
	for _, e := range r.Events() {
		method, _ := e.GetString("method")
		out = append(out, method)
	}
	return out
}

// Find returns the params of every recorded event named method.
func (r *Recorder) Find(method string) []*value.Object {
	var out []*value.Object
	for _, e := range r.Events() {
		if m, _ := e.GetString("method"); m != method {
			continue
		}
		params, _ := e.GetObject("params")
		out = append(out, params)
	}
	return out
}

// Reset drops every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
