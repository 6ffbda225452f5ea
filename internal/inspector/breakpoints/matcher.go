// Package breakpoints decides whether an instrumented operation matches a
// frontend-installed DOM, event-listener or XHR breakpoint.
//
// Breakpoint specifications are validated when they are set, so everything
// stored in a Matcher is well formed at match time.
package breakpoints

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// ErrInvalidBreakpoint is returned for malformed breakpoint specifications.
var ErrInvalidBreakpoint = errors.New("invalid breakpoint")

// DOMType is a DOM breakpoint kind.
type DOMType int

const (
	// SubtreeModified fires when a child is inserted into or removed from the node.
	SubtreeModified DOMType = iota
	// AttributeModified fires when an attribute of the node changes.
	AttributeModified
	// NodeRemoved fires when the node itself is removed.
	NodeRemoved

	domTypeCount
)

// String returns a string representation of the DOM breakpoint type.
func (t DOMType) String() string {
	switch t {
	case SubtreeModified:
		return "subtree-modified"
	case AttributeModified:
		return "attribute-modified"
	case NodeRemoved:
		return "node-removed"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known DOM breakpoint type.
func (t DOMType) Valid() bool { return t >= 0 && t < domTypeCount }

const (
	// derivedShift moves a root bit into the "inherited from an ancestor" half
	// of the mask.
	derivedShift    = 16
	inheritableMask = uint32(1) << SubtreeModified
)

// Event breakpoint categories.
const (
	CategoryListener        = "listener"
	CategoryInstrumentation = "instrumentation"
)

// Instrumentation event names.
const (
	EventSetTimer   = "setTimer"
	EventClearTimer = "clearTimer"
	EventTimerFired = "timerFired"
)

// EventName builds the composite "category:eventName" key.
func EventName(category, event string) string {
	return category + ":" + event
}

// Matcher holds the breakpoint sets of one inspected page.
type Matcher struct {
	dom    map[*html.Node]uint32
	events map[string]struct{}
	xhr    []string
	xhrAny bool
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		dom:    make(map[*html.Node]uint32),
		events: make(map[string]struct{}),
	}
}

// SetDOM sets a DOM breakpoint on node. A SubtreeModified breakpoint is also
// ORed into every current descendant as a derived bit. Nodes inserted later
// do not inherit it.
func (m *Matcher) SetDOM(node *html.Node, t DOMType) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidBreakpoint)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: unknown DOM breakpoint type %d", ErrInvalidBreakpoint, int(t))
	}
	rootBit := uint32(1) << t
	m.dom[node] |= rootBit
	if rootBit&inheritableMask != 0 {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			m.updateSubtree(c, rootBit, true)
		}
	}
	return nil
}

// RemoveDOM clears a DOM breakpoint from node and the derived bits it put on
// descendants, leaving subtrees covered by another breakpoint untouched.
func (m *Matcher) RemoveDOM(node *html.Node, t DOMType) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidBreakpoint)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: unknown DOM breakpoint type %d", ErrInvalidBreakpoint, int(t))
	}
	rootBit := uint32(1) << t
	m.store(node, m.dom[node]&^rootBit)
	// An ancestor's breakpoint still covers the subtree.
	if m.dom[node]&(rootBit<<derivedShift) != 0 {
		return nil
	}
	if rootBit&inheritableMask != 0 {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			m.updateSubtree(c, rootBit, false)
		}
	}
	return nil
}

// updateSubtree sets or clears the derived bits for rootMask on root and its
// descendants. A node holding one of those root bits itself keeps its own
// subtree, so the walk stops below it.
func (m *Matcher) updateSubtree(root *html.Node, rootMask uint32, set bool) {
	type item struct {
		n    *html.Node
		mask uint32
	}
	stack := []item{{root, rootMask}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		derived := it.mask << derivedShift
		mask := m.dom[it.n]
		if set {
			mask |= derived
		} else {
			mask &^= derived
		}
		m.store(it.n, mask)

		next := it.mask &^ mask
		if next == 0 {
			continue
		}
		for c := it.n.FirstChild; c != nil; c = c.NextSibling {
			stack = append(stack, item{c, next})
		}
	}
}

func (m *Matcher) store(n *html.Node, mask uint32) {
	if mask == 0 {
		delete(m.dom, n)
		return
	}
	m.dom[n] = mask
}

// MatchesDOM reports whether node carries a breakpoint of type t, either set
// on it directly or inherited at set time.
func (m *Matcher) MatchesDOM(node *html.Node, t DOMType) bool {
	if node == nil || len(m.dom) == 0 || !t.Valid() {
		return false
	}
	rootBit := uint32(1) << t
	return m.dom[node]&(rootBit|rootBit<<derivedShift) != 0
}

// Owner returns the node the matching breakpoint was set on: node itself for
// a root bit, otherwise the nearest ancestor holding the root bit.
func (m *Matcher) Owner(node *html.Node, t DOMType) *html.Node {
	rootBit := uint32(1) << t
	for n := node; n != nil; n = n.Parent {
		if m.dom[n]&rootBit != 0 {
			return n
		}
	}
	return node
}

// ForgetSubtree drops every mask held by root and its descendants.
func (m *Matcher) ForgetSubtree(root *html.Node) {
	if root == nil || len(m.dom) == 0 {
		return
	}
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(m.dom, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			stack = append(stack, c)
		}
	}
}

// HasDOMBreakpoints reports whether any DOM mask is set.
func (m *Matcher) HasDOMBreakpoints() bool { return len(m.dom) > 0 }

// ClearDOM drops every DOM breakpoint.
func (m *Matcher) ClearDOM() {
	m.dom = make(map[*html.Node]uint32)
}

// SetEventListener installs an event breakpoint named "category:eventName".
func (m *Matcher) SetEventListener(name string) error {
	category, event, ok := strings.Cut(name, ":")
	if !ok || category == "" || event == "" {
		return fmt.Errorf("%w: event breakpoint %q is not of the form category:eventName", ErrInvalidBreakpoint, name)
	}
	m.events[name] = struct{}{}
	return nil
}

// RemoveEventListener removes an event breakpoint.
func (m *Matcher) RemoveEventListener(name string) {
	delete(m.events, name)
}

// MatchesEventBreakpoint reports whether "category:eventName" is installed.
func (m *Matcher) MatchesEventBreakpoint(category, event string) bool {
	if len(m.events) == 0 {
		return false
	}
	_, ok := m.events[EventName(category, event)]
	return ok
}

// EventListeners returns the installed event breakpoint names, sorted.
func (m *Matcher) EventListeners() []string {
	out := make([]string, 0, len(m.events))
	for name := range m.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetXHR installs an XHR breakpoint. The empty pattern matches every URL.
func (m *Matcher) SetXHR(pattern string) {
	if pattern == "" {
		m.xhrAny = true
		return
	}
	for _, p := range m.xhr {
		if p == pattern {
			return
		}
	}
	m.xhr = append(m.xhr, pattern)
}

// RemoveXHR removes an XHR breakpoint.
func (m *Matcher) RemoveXHR(pattern string) {
	if pattern == "" {
		m.xhrAny = false
		return
	}
	for i, p := range m.xhr {
		if p == pattern {
			m.xhr = append(m.xhr[:i], m.xhr[i+1:]...)
			return
		}
	}
}

// MatchesXHRBreakpoint reports whether url hits an XHR breakpoint and returns
// the matching pattern ("" for the match-any breakpoint). Patterns are tried
// in the order they were set.
func (m *Matcher) MatchesXHRBreakpoint(url string) (string, bool) {
	if m.xhrAny {
		return "", true
	}
	for _, p := range m.xhr {
		if strings.Contains(url, p) {
			return p, true
		}
	}
	return "", false
}

// XHRPatterns returns the installed XHR patterns in set order, plus whether
// the match-any breakpoint is installed.
func (m *Matcher) XHRPatterns() ([]string, bool) {
	out := make([]string, len(m.xhr))
	copy(out, m.xhr)
	return out, m.xhrAny
}

// ClearSession drops the event and XHR sets.
func (m *Matcher) ClearSession() {
	m.events = make(map[string]struct{})
	m.xhr = nil
	m.xhrAny = false
}
