// Package nodes maps live DOM nodes to protocol NodeIDs.
//
// The registry never owns nodes. The engine owns node lifetime and must tell
// the registry when a node leaves the document (Unbind, UnbindSubtree) so no
// id keeps resolving to a node the engine has discarded.
//
// Ids come from one monotonic counter shared by the active scope and all
// dangling scopes, so the id ranges of different scopes never overlap and an
// id is never reissued, not even after Reset.
package nodes

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
)

// NodeID identifies a node across the protocol boundary.
type NodeID int

// Unbound is the reserved "no id" sentinel.
const Unbound NodeID = 0

// ErrUnknownNodeID is returned when an id does not resolve in any scope.
var ErrUnknownNodeID = errors.New("no node with given id found")

// Scope is one id<->node map: the active document map or a dangling map.
type Scope struct {
	registry *Registry
	nodeToID map[*html.Node]NodeID
	idToNode map[NodeID]*html.Node
	dangling bool
}

func newScope(r *Registry, dangling bool) *Scope {
	return &Scope{
		registry: r,
		nodeToID: make(map[*html.Node]NodeID),
		idToNode: make(map[NodeID]*html.Node),
		dangling: dangling,
	}
}

// Bind returns the id of node in this scope, allocating one on first use.
func (s *Scope) Bind(node *html.Node) NodeID {
	if node == nil {
		return Unbound
	}
	if id, ok := s.nodeToID[node]; ok {
		return id
	}
	id := s.registry.allocate()
	s.nodeToID[node] = id
	s.idToNode[id] = node
	return id
}

// Unbind removes node from this scope. It reports the id that was removed.
func (s *Scope) Unbind(node *html.Node) NodeID {
	id, ok := s.nodeToID[node]
	if !ok {
		return Unbound
	}
	delete(s.nodeToID, node)
	delete(s.idToNode, id)
	delete(s.registry.childrenRequested, id)
	return id
}

// IDOf returns the id bound to node, or Unbound.
func (s *Scope) IDOf(node *html.Node) NodeID {
	return s.nodeToID[node]
}

// Lookup returns the node bound to id in this scope.
func (s *Scope) Lookup(id NodeID) (*html.Node, bool) {
	n, ok := s.idToNode[id]
	return n, ok
}

// Len returns the number of bound nodes.
func (s *Scope) Len() int { return len(s.nodeToID) }

// Dangling reports whether this is a dangling scope.
func (s *Scope) Dangling() bool { return s.dangling }

// Registry is the bidirectional id<->node registry for one inspected page.
type Registry struct {
	lastID            NodeID
	document          *Scope
	dangling          []*Scope
	childrenRequested map[NodeID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{childrenRequested: make(map[NodeID]struct{})}
	r.document = newScope(r, false)
	return r
}

func (r *Registry) allocate() NodeID {
	r.lastID++
	return r.lastID
}

// Document returns the active scope.
func (r *Registry) Document() *Scope { return r.document }

// Bind binds node in the active scope.
func (r *Registry) Bind(node *html.Node) NodeID { return r.document.Bind(node) }

// IDOf returns the active-scope id of node, or Unbound.
func (r *Registry) IDOf(node *html.Node) NodeID { return r.document.IDOf(node) }

// Unbind removes node from the active scope only. Descendants keep their ids.
func (r *Registry) Unbind(node *html.Node) {
	r.document.Unbind(node)
}

// UnbindSubtree removes root and every descendant from the active scope.
// Entries copied into dangling scopes are left alone and stay resolvable
// until ReleaseDangling.
func (r *Registry) UnbindSubtree(root *html.Node) {
	if root == nil {
		return
	}
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r.document.Unbind(n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			stack = append(stack, c)
		}
	}
}

// CreateDanglingMap opens a secondary scope for nodes outside the document.
func (r *Registry) CreateDanglingMap() *Scope {
	s := newScope(r, true)
	r.dangling = append(r.dangling, s)
	return s
}

// ReleaseDangling drops every dangling scope.
func (r *Registry) ReleaseDangling() {
	for _, s := range r.dangling {
		for id := range s.idToNode {
			delete(r.childrenRequested, id)
		}
	}
	r.dangling = nil
}

// DanglingCount returns the number of open dangling scopes.
func (r *Registry) DanglingCount() int { return len(r.dangling) }

// Resolve finds the node for id, searching the active scope and then the
// dangling scopes in creation order.
func (r *Registry) Resolve(id NodeID) (*html.Node, error) {
	if n, ok := r.document.Lookup(id); ok {
		return n, nil
	}
	for _, s := range r.dangling {
		if n, ok := s.Lookup(id); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("node %d: %w", id, ErrUnknownNodeID)
}

// ScopeOf returns the scope holding id.
func (r *Registry) ScopeOf(id NodeID) (*Scope, bool) {
	if _, ok := r.document.Lookup(id); ok {
		return r.document, true
	}
	for _, s := range r.dangling {
		if _, ok := s.Lookup(id); ok {
			return s, true
		}
	}
	return nil, false
}

// MarkChildrenRequested records that the children of id were sent.
func (r *Registry) MarkChildrenRequested(id NodeID) {
	if id != Unbound {
		r.childrenRequested[id] = struct{}{}
	}
}

// ChildrenRequested reports whether the children of id were sent.
func (r *Registry) ChildrenRequested(id NodeID) bool {
	_, ok := r.childrenRequested[id]
	return ok
}

// Reset invalidates every id in every scope. The id counter keeps running so
// stale ids never resolve to new nodes.
func (r *Registry) Reset() {
	r.document = newScope(r, false)
	r.dangling = nil
	r.childrenRequested = make(map[NodeID]struct{})
}
