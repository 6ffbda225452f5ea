package page

import "golang.org/x/net/html"

// Event is delivered to listeners.
type Event struct {
	Type string

	// Target is the node the event was dispatched at, nil for the window.
	Target *html.Node

	// CurrentTarget is the node whose listener is running.
	CurrentTarget *html.Node
}

// Listener handles an event.
type Listener func(Event)

// AddEventListener registers fn for eventType on target. A nil target
// registers on the window.
func (p *Page) AddEventListener(target *html.Node, eventType string, fn Listener) {
	if target == nil {
		p.window[eventType] = append(p.window[eventType], fn)
		return
	}
	byType := p.listeners[target]
	if byType == nil {
		byType = make(map[string][]Listener)
		p.listeners[target] = byType
	}
	byType[eventType] = append(byType[eventType], fn)
}

// ListenerCount returns the number of listeners for eventType on target.
func (p *Page) ListenerCount(target *html.Node, eventType string) int {
	if target == nil {
		return len(p.window[eventType])
	}
	return len(p.listeners[target][eventType])
}

// DispatchEvent delivers an event at target and bubbles it through the
// target's ancestors. It returns the number of listeners run.
func (p *Page) DispatchEvent(target *html.Node, eventType string) int {
	if target == nil {
		return p.DispatchWindowEvent(eventType)
	}
	var path []*html.Node
	for n := target; n != nil; n = n.Parent {
		if len(p.listeners[n][eventType]) > 0 {
			path = append(path, n)
		}
	}
	if len(path) == 0 {
		return 0
	}

	k := p.ins.WillDispatchEvent(eventType, target)
	ran := 0
	for _, n := range path {
		for _, fn := range append([]Listener(nil), p.listeners[n][eventType]...) {
			fn(Event{Type: eventType, Target: target, CurrentTarget: n})
			ran++
		}
	}
	p.ins.DidDispatchEvent(k)
	p.Render()
	return ran
}

// DispatchWindowEvent delivers an event to the window's listeners.
func (p *Page) DispatchWindowEvent(eventType string) int {
	listeners := append([]Listener(nil), p.window[eventType]...)
	if len(listeners) == 0 {
		return 0
	}
	k := p.ins.WillDispatchEventOnWindow(eventType)
	for _, fn := range listeners {
		fn(Event{Type: eventType})
	}
	p.ins.DidDispatchEventOnWindow(k)
	p.Render()
	return len(listeners)
}
