package inspector

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/inspector/nodes"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// DOMEditor applies frontend edits to the live document. Implementations
// perform the mutation through the engine so the usual hooks fire.
type DOMEditor interface {
	SetAttribute(element *html.Node, name, value string) error
	RemoveAttribute(element *html.Node, name string) error
	RemoveNode(node *html.Node) error
	SetTextNodeValue(node *html.Node, text string) error
}

// DOM node types as reported to the frontend.
const (
	domElementNode  = 1
	domTextNode     = 3
	domCommentNode  = 8
	domDocumentNode = 9
	domDoctypeNode  = 10
)

func domNodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return domElementNode
	case html.TextNode:
		return domTextNode
	case html.CommentNode:
		return domCommentNode
	case html.DocumentNode:
		return domDocumentNode
	case html.DoctypeNode:
		return domDoctypeNode
	default:
		return 0
	}
}

func domNodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	default:
		return n.Data
	}
}

func isContainer(n *html.Node) bool {
	return n.Type == html.ElementNode || n.Type == html.DocumentNode
}

func isWhitespace(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode && strings.TrimSpace(n.Data) == ""
}

func innerChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !isWhitespace(c) {
			out = append(out, c)
		}
	}
	return out
}

func innerChildCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !isWhitespace(c) {
			count++
		}
	}
	return count
}

func innerPreviousSibling(n *html.Node) *html.Node {
	p := n.PrevSibling
	for p != nil && isWhitespace(p) {
		p = p.PrevSibling
	}
	return p
}

func attributeName(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

func attributesArray(n *html.Node) *value.Array {
	arr := value.NewArray()
	for _, a := range n.Attr {
		arr.PushString(attributeName(a))
		arr.PushString(a.Val)
	}
	return arr
}

// buildObjectForNode describes n to the frontend, binding it in scope. depth
// counts the levels of children to include; -1 means the whole subtree.
func (c *Controller) buildObjectForNode(n *html.Node, depth int, scope *nodes.Scope) *value.Object {
	id := scope.Bind(n)
	obj := value.NewObject()
	obj.SetInt("id", int(id))
	obj.SetInt("nodeType", domNodeType(n))
	obj.SetString("nodeName", domNodeName(n))
	obj.SetString("localName", localName(n))
	nodeValue := ""
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		nodeValue = n.Data
	}
	obj.SetString("nodeValue", nodeValue)

	switch n.Type {
	case html.ElementNode:
		obj.Set("attributes", attributesArray(n))
	case html.DocumentNode:
		obj.SetString("documentURL", c.documentURL)
	case html.DoctypeNode:
		obj.SetString("name", n.Data)
		for _, a := range n.Attr {
			switch a.Key {
			case "public":
				obj.SetString("publicId", a.Val)
			case "system":
				obj.SetString("systemId", a.Val)
			}
		}
	}

	if isContainer(n) {
		obj.SetInt("childNodeCount", innerChildCount(n))
		if children := c.buildChildren(n, id, depth, scope); children != nil {
			obj.Set("children", children)
		}
	}
	return obj
}

func localName(n *html.Node) string {
	if n.Type == html.ElementNode {
		return n.Data
	}
	return ""
}

// buildChildren returns the children of container n, or nil when depth
// stops the walk. A lone text child is always included so small elements
// render without a round-trip.
func (c *Controller) buildChildren(n *html.Node, id nodes.NodeID, depth int, scope *nodes.Scope) *value.Array {
	children := innerChildren(n)
	if depth == 0 {
		if len(children) != 1 || children[0].Type != html.TextNode {
			return nil
		}
		arr := value.NewArray()
		arr.Push(c.buildObjectForNode(children[0], 0, scope))
		c.registry.MarkChildrenRequested(id)
		return arr
	}
	next := depth - 1
	if depth < 0 {
		next = depth
	}
	arr := value.NewArray()
	for _, child := range children {
		arr.Push(c.buildObjectForNode(child, next, scope))
	}
	c.registry.MarkChildrenRequested(id)
	return arr
}

func (c *Controller) pushDocument() {
	if c.document == nil || c.state != StateAttached {
		return
	}
	c.registry.Reset()
	params := value.NewObject()
	params.Set("root", c.buildObjectForNode(c.document, 2, c.registry.Document()))
	c.emit("setDocument", params)
}

// GetDocument resends the document and returns its node id. Ids issued
// earlier stop resolving.
func (c *Controller) GetDocument() (nodes.NodeID, error) {
	if c.state != StateAttached {
		return nodes.Unbound, NewOperationError("getDocument", "", ErrNotAttached)
	}
	if c.document == nil {
		return nodes.Unbound, NewOperationError("getDocument", "", ErrNoDocument)
	}
	c.pushDocument()
	return c.registry.IDOf(c.document), nil
}

func (c *Controller) resolve(op string, id nodes.NodeID) (*html.Node, error) {
	n, err := c.registry.Resolve(id)
	if err != nil {
		return nil, NewOperationError(op, strconv.Itoa(int(id)), err)
	}
	return n, nil
}

// GetChildNodes sends the children of the container id.
func (c *Controller) GetChildNodes(id nodes.NodeID) error {
	n, err := c.resolve("getChildNodes", id)
	if err != nil {
		return err
	}
	if !isContainer(n) {
		return NewOperationError("getChildNodes", strconv.Itoa(int(id)), ErrNodeType)
	}
	scope, _ := c.registry.ScopeOf(id)
	c.pushChildNodes(n, id, scope)
	return nil
}

func (c *Controller) pushChildNodes(n *html.Node, id nodes.NodeID, scope *nodes.Scope) {
	if c.registry.ChildrenRequested(id) {
		return
	}
	params := value.NewObject()
	params.SetInt("parentId", int(id))
	params.Set("nodes", c.buildChildren(n, id, 1, scope))
	c.emit("setChildNodes", params)
}

// PushNodePathToFrontend makes node known to the frontend by sending the
// children of each unexpanded ancestor, and returns its id. A node outside
// the document is sent as a detached root in a new dangling scope.
func (c *Controller) PushNodePathToFrontend(node *html.Node) nodes.NodeID {
	if node == nil || c.document == nil || c.registry.IDOf(c.document) == nodes.Unbound {
		return nodes.Unbound
	}
	if id := c.registry.IDOf(node); id != nodes.Unbound {
		return id
	}

	scope := c.registry.Document()
	var path []*html.Node
	for n := node; ; {
		parent := n.Parent
		if parent == nil {
			scope = c.registry.CreateDanglingMap()
			params := value.NewObject()
			params.Set("root", c.buildObjectForNode(n, 0, scope))
			c.emit("setDetachedRoot", params)
			break
		}
		path = append(path, parent)
		if c.registry.IDOf(parent) != nodes.Unbound {
			break
		}
		n = parent
	}
	for i := len(path) - 1; i >= 0; i-- {
		p := path[i]
		c.pushChildNodes(p, scope.IDOf(p), scope)
	}
	return scope.IDOf(node)
}

// QueryDetached sends a node that is not part of the document, together
// with its children, in a fresh dangling scope.
func (c *Controller) QueryDetached(node *html.Node) nodes.NodeID {
	if node == nil || c.state != StateAttached {
		return nodes.Unbound
	}
	scope := c.registry.CreateDanglingMap()
	params := value.NewObject()
	params.Set("root", c.buildObjectForNode(node, 1, scope))
	c.emit("setDetachedRoot", params)
	return scope.IDOf(node)
}

// ReleaseDanglingNodes forgets every id handed out for detached nodes.
func (c *Controller) ReleaseDanglingNodes() {
	c.registry.ReleaseDangling()
}

func (c *Controller) requireEditor(op string) (DOMEditor, error) {
	if c.editor == nil {
		return nil, NewOperationError(op, "", ErrNotSupported)
	}
	return c.editor, nil
}

func (c *Controller) element(op string, id nodes.NodeID) (*html.Node, error) {
	n, err := c.resolve(op, id)
	if err != nil {
		return nil, err
	}
	if n.Type != html.ElementNode {
		return nil, NewOperationError(op, strconv.Itoa(int(id)), ErrNodeType)
	}
	return n, nil
}

// SetAttribute sets an attribute on the element id.
func (c *Controller) SetAttribute(id nodes.NodeID, name, val string) error {
	ed, err := c.requireEditor("setAttribute")
	if err != nil {
		return err
	}
	n, err := c.element("setAttribute", id)
	if err != nil {
		return err
	}
	return ed.SetAttribute(n, name, val)
}

// RemoveAttribute removes an attribute from the element id.
func (c *Controller) RemoveAttribute(id nodes.NodeID, name string) error {
	ed, err := c.requireEditor("removeAttribute")
	if err != nil {
		return err
	}
	n, err := c.element("removeAttribute", id)
	if err != nil {
		return err
	}
	return ed.RemoveAttribute(n, name)
}

// RemoveNode detaches the node id from its parent.
func (c *Controller) RemoveNode(id nodes.NodeID) error {
	ed, err := c.requireEditor("removeNode")
	if err != nil {
		return err
	}
	n, err := c.resolve("removeNode", id)
	if err != nil {
		return err
	}
	if n.Parent == nil || n.Type == html.DocumentNode {
		return NewOperationError("removeNode", strconv.Itoa(int(id)), ErrNodeType)
	}
	return ed.RemoveNode(n)
}

// SetTextNodeValue replaces the text of the text node id.
func (c *Controller) SetTextNodeValue(id nodes.NodeID, text string) error {
	ed, err := c.requireEditor("setTextNodeValue")
	if err != nil {
		return err
	}
	n, err := c.resolve("setTextNodeValue", id)
	if err != nil {
		return err
	}
	if n.Type != html.TextNode {
		return NewOperationError("setTextNodeValue", strconv.Itoa(int(id)), ErrNodeType)
	}
	return ed.SetTextNodeValue(n, text)
}

// SetDOMBreakpoint installs a DOM breakpoint on the node id.
func (c *Controller) SetDOMBreakpoint(id nodes.NodeID, t breakpoints.DOMType) error {
	n, err := c.resolve("setDOMBreakpoint", id)
	if err != nil {
		return err
	}
	if err := c.matcher.SetDOM(n, t); err != nil {
		return NewOperationError("setDOMBreakpoint", strconv.Itoa(int(id)), err)
	}
	return nil
}

// RemoveDOMBreakpoint removes a DOM breakpoint from the node id.
func (c *Controller) RemoveDOMBreakpoint(id nodes.NodeID, t breakpoints.DOMType) error {
	n, err := c.resolve("removeDOMBreakpoint", id)
	if err != nil {
		return err
	}
	if err := c.matcher.RemoveDOM(n, t); err != nil {
		return NewOperationError("removeDOMBreakpoint", strconv.Itoa(int(id)), err)
	}
	return nil
}

// domBreakDetails describes a DOM breakpoint hit on target. For inherited
// breakpoints the owner is the ancestor the breakpoint was set on.
func (c *Controller) domBreakDetails(target *html.Node, t breakpoints.DOMType, insertion bool) *value.Object {
	details := value.NewObject()
	details.SetInt("type", int(t))
	owner := target
	if t == breakpoints.SubtreeModified {
		owner = c.matcher.Owner(target, t)
		if owner != target {
			details.SetInt("targetNodeId", int(c.PushNodePathToFrontend(target)))
		}
		details.SetBool("insertion", insertion)
	}
	details.SetInt("nodeId", int(c.PushNodePathToFrontend(owner)))
	details.SetString("breakpointType", breakpointDOM)
	return details
}

// breakOnDOM pauses for a DOM breakpoint hit. Nothing is pushed to the
// frontend unless the debugger can actually pause.
func (c *Controller) breakOnDOM(target *html.Node, t breakpoints.DOMType, insertion bool) {
	if !c.canPause() {
		return
	}
	c.breakProgram(c.domBreakDetails(target, t, insertion))
}

func (c *Controller) willInsertDOMNode(parent *html.Node) {
	if !c.matcher.MatchesDOM(parent, breakpoints.SubtreeModified) {
		return
	}
	c.breakOnDOM(parent, breakpoints.SubtreeModified, true)
}

func (c *Controller) willRemoveDOMNode(node *html.Node) {
	if c.matcher.MatchesDOM(node, breakpoints.NodeRemoved) {
		c.breakOnDOM(node, breakpoints.NodeRemoved, false)
		return
	}
	if node.Parent != nil && c.matcher.MatchesDOM(node.Parent, breakpoints.SubtreeModified) {
		c.breakOnDOM(node, breakpoints.SubtreeModified, false)
	}
}

func (c *Controller) willModifyDOMAttr(element *html.Node) {
	if !c.matcher.MatchesDOM(element, breakpoints.AttributeModified) {
		return
	}
	c.breakOnDOM(element, breakpoints.AttributeModified, false)
}

func (c *Controller) didInsertDOMNode(node *html.Node) {
	if isWhitespace(node) || node.Parent == nil {
		return
	}
	parent := node.Parent
	parentID := c.registry.IDOf(parent)
	if parentID == nodes.Unbound {
		return
	}
	if !c.registry.ChildrenRequested(parentID) {
		params := value.NewObject()
		params.SetInt("id", int(parentID))
		params.SetInt("newValue", innerChildCount(parent))
		c.emit("childNodeCountUpdated", params)
		return
	}
	prevID := nodes.Unbound
	if prev := innerPreviousSibling(node); prev != nil {
		prevID = c.registry.IDOf(prev)
	}
	params := value.NewObject()
	params.SetInt("parentId", int(parentID))
	params.SetInt("prevId", int(prevID))
	params.Set("node", c.buildObjectForNode(node, 0, c.registry.Document()))
	c.emit("childNodeInserted", params)
}

func (c *Controller) didRemoveDOMNode(parent, node *html.Node) {
	defer func() {
		c.matcher.ForgetSubtree(node)
		c.registry.UnbindSubtree(node)
	}()
	if isWhitespace(node) || parent == nil {
		return
	}
	parentID := c.registry.IDOf(parent)
	if parentID == nodes.Unbound {
		return
	}
	if !c.registry.ChildrenRequested(parentID) {
		params := value.NewObject()
		params.SetInt("id", int(parentID))
		params.SetInt("newValue", innerChildCount(parent))
		c.emit("childNodeCountUpdated", params)
		return
	}
	params := value.NewObject()
	params.SetInt("parentId", int(parentID))
	params.SetInt("id", int(c.registry.IDOf(node)))
	c.emit("childNodeRemoved", params)
}

func (c *Controller) didModifyDOMAttr(element *html.Node) {
	id := c.registry.IDOf(element)
	if id == nodes.Unbound {
		return
	}
	params := value.NewObject()
	params.SetInt("id", int(id))
	params.Set("attributes", attributesArray(element))
	c.emit("attributesUpdated", params)
}

func (c *Controller) characterDataModified(node *html.Node) {
	id := c.registry.IDOf(node)
	if id == nodes.Unbound {
		return
	}
	params := value.NewObject()
	params.SetInt("id", int(id))
	params.SetString("newValue", node.Data)
	c.emit("characterDataModified", params)
}
