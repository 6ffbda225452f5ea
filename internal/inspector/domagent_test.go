package inspector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/inspector/frontend"
	"github.com/dshills/webinspector/internal/inspector/nodes"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// directEditor applies edits the way the engine does, calling the hooks.
type directEditor struct {
	ins *inspector.Instrumentation
	err error
}

func (e *directEditor) SetAttribute(el *html.Node, name, val string) error {
	if e.err != nil {
		return e.err
	}
	e.ins.WillModifyDOMAttr(el)
	for i := range el.Attr {
		if el.Attr[i].Key == name {
			el.Attr[i].Val = val
			e.ins.DidModifyDOMAttr(el)
			return nil
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: name, Val: val})
	e.ins.DidModifyDOMAttr(el)
	return nil
}

func (e *directEditor) RemoveAttribute(el *html.Node, name string) error {
	e.ins.WillModifyDOMAttr(el)
	kept := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	el.Attr = kept
	e.ins.DidModifyDOMAttr(el)
	return nil
}

func (e *directEditor) RemoveNode(n *html.Node) error {
	parent := n.Parent
	e.ins.WillRemoveDOMNode(n)
	parent.RemoveChild(n)
	e.ins.DidRemoveDOMNode(parent, n)
	return nil
}

func (e *directEditor) SetTextNodeValue(n *html.Node, text string) error {
	n.Data = text
	e.ins.CharacterDataModified(n)
	return nil
}

func TestDOM_SetDocumentShape(t *testing.T) {
	s := newSession(t, 0)

	docs := s.fe.Find("setDocument")
	require.Len(t, docs, 1)
	root, ok := docs[0].GetObject("root")
	require.True(t, ok)
	assert.Equal(t, 9, num(t, root, "nodeType"))
	url, _ := root.GetString("documentURL")
	assert.Equal(t, "https://x/", url)

	children, ok := root.GetArray("children")
	require.True(t, ok)
	require.Equal(t, 2, children.Len())
	doctype, _ := children.Get(0)
	dt, _ := doctype.AsObject()
	assert.Equal(t, 10, num(t, dt, "nodeType"))

	htmlValue, _ := children.Get(1)
	htmlObj, _ := htmlValue.AsObject()
	name, _ := htmlObj.GetString("nodeName")
	assert.Equal(t, "HTML", name)
	inner, ok := htmlObj.GetArray("children")
	require.True(t, ok)
	assert.Equal(t, 2, inner.Len())

	bodyValue, _ := inner.Get(1)
	body, _ := bodyValue.AsObject()
	assert.Equal(t, 2, num(t, body, "childNodeCount"))
	_, hasChildren := body.Get("children")
	assert.False(t, hasChildren)
}

func TestDOM_GetDocumentInvalidatesOldIDs(t *testing.T) {
	s := newSession(t, 0)
	idA := s.c.PushNodePathToFrontend(byID(s.doc, "a"))
	require.NotZero(t, idA)

	docID, err := s.c.GetDocument()
	require.NoError(t, err)
	assert.NotZero(t, docID)
	_, err = s.c.Registry().Resolve(idA)
	assert.ErrorIs(t, err, nodes.ErrUnknownNodeID)
}

func TestDOM_GetDocumentWithoutDocument(t *testing.T) {
	c := inspector.New(inspector.Options{Enabled: true})
	require.NoError(t, c.Attach(context.Background(), &frontend.Recorder{}))
	_, err := c.GetDocument()
	assert.ErrorIs(t, err, inspector.ErrNoDocument)
}

func TestDOM_GetChildNodes(t *testing.T) {
	s := newSession(t, 0)
	body := byID(s.doc, "a").Parent
	bodyID := s.c.Registry().IDOf(body)
	require.NotZero(t, bodyID)
	s.fe.Reset()

	require.NoError(t, s.c.GetChildNodes(bodyID))
	sets := s.fe.Find("setChildNodes")
	require.Len(t, sets, 1)
	assert.Equal(t, int(bodyID), num(t, sets[0], "parentId"))
	list, _ := sets[0].GetArray("nodes")
	assert.Equal(t, 2, list.Len())
	assert.True(t, s.c.Registry().ChildrenRequested(bodyID))

	// A second request sends nothing new.
	require.NoError(t, s.c.GetChildNodes(bodyID))
	assert.Len(t, s.fe.Find("setChildNodes"), 1)

	assert.ErrorIs(t, s.c.GetChildNodes(9999), nodes.ErrUnknownNodeID)
}

func TestDOM_GetChildNodesRejectsText(t *testing.T) {
	s := newSession(t, 0)
	p := byID(s.doc, "p")
	id := s.c.PushNodePathToFrontend(p.FirstChild)
	require.NotZero(t, id)
	assert.ErrorIs(t, s.c.GetChildNodes(id), inspector.ErrNodeType)
}

func TestDOM_PushNodePathSendsAncestors(t *testing.T) {
	s := newSession(t, 0)
	s.fe.Reset()

	p := byID(s.doc, "p")
	id := s.c.PushNodePathToFrontend(p)
	require.NotZero(t, id)
	assert.Equal(t, []string{"setChildNodes", "setChildNodes"}, s.fe.Methods())
	assert.Equal(t, id, s.c.PushNodePathToFrontend(p))
}

func TestDOM_DetachedNodeGoesToDanglingScope(t *testing.T) {
	s := newSession(t, 0)
	s.fe.Reset()

	orphan := elem("section")
	orphan.AppendChild(elem("em"))
	id := s.c.PushNodePathToFrontend(orphan.FirstChild)
	require.NotZero(t, id)
	assert.Equal(t, []string{"setDetachedRoot", "setChildNodes"}, s.fe.Methods())
	assert.Equal(t, 1, s.c.Registry().DanglingCount())

	scope, ok := s.c.Registry().ScopeOf(id)
	require.True(t, ok)
	assert.True(t, scope.Dangling())

	s.c.ReleaseDanglingNodes()
	_, err := s.c.Registry().Resolve(id)
	assert.ErrorIs(t, err, nodes.ErrUnknownNodeID)
}

func TestDOM_QueryDetached(t *testing.T) {
	s := newSession(t, 0)
	orphan := elem("ul")
	orphan.AppendChild(elem("li"))
	orphan.AppendChild(elem("li"))

	id := s.c.QueryDetached(orphan)
	require.NotZero(t, id)
	roots := s.fe.Find("setDetachedRoot")
	require.Len(t, roots, 1)
	root, _ := roots[0].GetObject("root")
	children, ok := root.GetArray("children")
	require.True(t, ok)
	assert.Equal(t, 2, children.Len())
}

func TestDOM_NodeInsertedUnderExpandedParent(t *testing.T) {
	s := newSession(t, 0)
	a := byID(s.doc, "a")
	body := a.Parent
	bodyID := s.c.Registry().IDOf(body)
	require.NoError(t, s.c.GetChildNodes(bodyID))
	s.fe.Reset()

	s.insert(body, elem("footer"))
	inserted := s.fe.Find("childNodeInserted")
	require.Len(t, inserted, 1)
	assert.Equal(t, int(bodyID), num(t, inserted[0], "parentId"))
	assert.Equal(t, int(s.c.Registry().IDOf(byID(s.doc, "x"))), num(t, inserted[0], "prevId"))

	s.insert(body, &html.Node{Type: html.TextNode, Data: "\n  "})
	assert.Len(t, s.fe.Messages(), 1, "whitespace text is not reported")
}

func TestDOM_RemovalUnbindsSubtree(t *testing.T) {
	s := newSession(t, 0)
	x := byID(s.doc, "x")
	p := byID(s.doc, "p")
	idX := s.c.PushNodePathToFrontend(x)
	idP := s.c.PushNodePathToFrontend(p)
	require.NoError(t, s.c.SetDOMBreakpoint(idX, breakpoints.AttributeModified))
	s.fe.Reset()

	s.remove(x)

	removed := s.fe.Find("childNodeRemoved")
	require.Len(t, removed, 1)
	assert.Equal(t, int(idX), num(t, removed[0], "id"))
	_, err := s.c.Registry().Resolve(idX)
	assert.Error(t, err)
	_, err = s.c.Registry().Resolve(idP)
	assert.Error(t, err)
	assert.False(t, s.c.Matcher().MatchesDOM(x, breakpoints.AttributeModified))
}

func TestDOM_AttributeBreakpointBreaksBeforeMutation(t *testing.T) {
	s := newSession(t, 0)
	a := byID(s.doc, "a")
	id := s.c.PushNodePathToFrontend(a)
	require.NoError(t, s.c.SetDOMBreakpoint(id, breakpoints.AttributeModified))
	s.c.EnableDebugger(false)

	ed := &directEditor{ins: s.ins}
	s.c.SetEditor(ed)
	s.fe.Reset()
	require.NoError(t, s.c.SetAttribute(id, "class", "hot"))

	require.Len(t, s.dbg.breaks, 1)
	details := s.dbg.breaks[0].data
	assert.Equal(t, []string{"type", "nodeId", "breakpointType"}, details.Keys())
	assert.Equal(t, int(breakpoints.AttributeModified), num(t, details, "type"))
	assert.Equal(t, int(id), num(t, details, "nodeId"))

	updated := s.fe.Find("attributesUpdated")
	require.Len(t, updated, 1)
	attrs, _ := updated[0].GetArray("attributes")
	assert.Equal(t, 4, attrs.Len())
}

func TestDOM_SubtreeBreakpointDetails(t *testing.T) {
	s := newSession(t, 0)
	a := byID(s.doc, "a")
	body := a.Parent
	bodyID := s.c.Registry().IDOf(body)
	require.NoError(t, s.c.SetDOMBreakpoint(bodyID, breakpoints.SubtreeModified))
	s.c.EnableDebugger(false)

	s.insert(a, elem("i"))
	require.Len(t, s.dbg.breaks, 1)
	details := s.dbg.breaks[0].data
	assert.Equal(t, []string{"type", "targetNodeId", "insertion", "nodeId", "breakpointType"}, details.Keys())
	assert.Equal(t, int(s.c.Registry().IDOf(a)), num(t, details, "targetNodeId"))
	assert.Equal(t, int(bodyID), num(t, details, "nodeId"))
	insertion, _ := details.GetBool("insertion")
	assert.True(t, insertion)
}

func TestDOM_SubtreeBreakpointIsStaleForLaterNodes(t *testing.T) {
	s := newSession(t, 0)
	body := byID(s.doc, "a").Parent
	require.NoError(t, s.c.SetDOMBreakpoint(s.c.Registry().IDOf(body), breakpoints.SubtreeModified))
	s.c.EnableDebugger(false)

	late := elem("article")
	s.insert(body, late)
	require.Len(t, s.dbg.breaks, 1)

	s.insert(late, elem("h1"))
	assert.Len(t, s.dbg.breaks, 1)
}

func TestDOM_RemovalBreakpoints(t *testing.T) {
	s := newSession(t, 0)
	x := byID(s.doc, "x")
	idX := s.c.PushNodePathToFrontend(x)
	require.NoError(t, s.c.SetDOMBreakpoint(idX, breakpoints.NodeRemoved))
	s.c.EnableDebugger(false)

	s.ins.WillRemoveDOMNode(x)
	require.Len(t, s.dbg.breaks, 1)
	details := s.dbg.breaks[0].data
	assert.Equal(t, int(breakpoints.NodeRemoved), num(t, details, "type"))
	assert.Equal(t, int(idX), num(t, details, "nodeId"))

	require.NoError(t, s.c.RemoveDOMBreakpoint(idX, breakpoints.NodeRemoved))
	require.NoError(t, s.c.SetDOMBreakpoint(idX, breakpoints.SubtreeModified))
	p := byID(s.doc, "p")
	s.ins.WillRemoveDOMNode(p)
	require.Len(t, s.dbg.breaks, 2)
	details = s.dbg.breaks[1].data
	insertion, _ := details.GetBool("insertion")
	assert.False(t, insertion)
	assert.Equal(t, int(idX), num(t, details, "nodeId"))
	assert.Equal(t, int(s.c.Registry().IDOf(p)), num(t, details, "targetNodeId"))
}

func TestDOM_BreakpointHitWithDebuggerOffPushesNothing(t *testing.T) {
	s := newSession(t, 0)
	body := byID(s.doc, "a").Parent
	require.NoError(t, s.c.SetDOMBreakpoint(s.c.Registry().IDOf(body), breakpoints.SubtreeModified))
	s.fe.Reset()

	p := byID(s.doc, "p")
	s.insert(p, elem("b"))
	s.remove(p.FirstChild)

	assert.Empty(t, s.dbg.breaks)
	assert.Empty(t, s.fe.Methods())
	assert.Equal(t, nodes.Unbound, s.c.Registry().IDOf(p))
	assert.Zero(t, s.c.Registry().DanglingCount())
}

func TestDOM_RemoveOverlappingSubtreeBreakpoint(t *testing.T) {
	s := newSession(t, 0)
	body := byID(s.doc, "a").Parent
	x := byID(s.doc, "x")
	bodyID := s.c.Registry().IDOf(body)
	idX := s.c.PushNodePathToFrontend(x)
	require.NoError(t, s.c.SetDOMBreakpoint(bodyID, breakpoints.SubtreeModified))
	require.NoError(t, s.c.SetDOMBreakpoint(idX, breakpoints.SubtreeModified))
	s.c.EnableDebugger(false)

	require.NoError(t, s.c.RemoveDOMBreakpoint(bodyID, breakpoints.SubtreeModified))
	s.insert(byID(s.doc, "p"), elem("b"))
	require.Len(t, s.dbg.breaks, 1, "x still covers its subtree")
	assert.Equal(t, int(idX), num(t, s.dbg.breaks[0].data, "nodeId"))

	s.insert(byID(s.doc, "a"), elem("i"))
	assert.Len(t, s.dbg.breaks, 1)
}

func TestDOM_InvalidBreakpointType(t *testing.T) {
	s := newSession(t, 0)
	id := s.c.PushNodePathToFrontend(byID(s.doc, "a"))
	err := s.c.SetDOMBreakpoint(id, breakpoints.DOMType(9))
	assert.ErrorIs(t, err, breakpoints.ErrInvalidBreakpoint)
}

func TestDOM_EditsNeedEditor(t *testing.T) {
	s := newSession(t, 0)
	id := s.c.PushNodePathToFrontend(byID(s.doc, "a"))
	assert.ErrorIs(t, s.c.SetAttribute(id, "k", "v"), inspector.ErrNotSupported)

	s.c.SetEditor(&directEditor{ins: s.ins, err: errors.New("readonly")})
	assert.EqualError(t, s.c.SetAttribute(id, "k", "v"), "readonly")
}

func TestDOM_EditCommands(t *testing.T) {
	s := newSession(t, 0)
	s.c.SetEditor(&directEditor{ins: s.ins})
	p := byID(s.doc, "p")
	idP := s.c.PushNodePathToFrontend(p)
	idText := s.c.PushNodePathToFrontend(p.FirstChild)

	require.NoError(t, s.c.SetTextNodeValue(idText, "changed"))
	assert.Equal(t, "changed", p.FirstChild.Data)
	modified := s.fe.Find("characterDataModified")
	require.Len(t, modified, 1)
	v, _ := modified[0].GetString("newValue")
	assert.Equal(t, "changed", v)

	assert.ErrorIs(t, s.c.SetTextNodeValue(idP, "x"), inspector.ErrNodeType)
	assert.ErrorIs(t, s.c.SetAttribute(idText, "k", "v"), inspector.ErrNodeType)

	require.NoError(t, s.c.RemoveAttribute(idP, "id"))
	assert.Empty(t, p.Attr)

	require.NoError(t, s.c.RemoveNode(idP))
	assert.Nil(t, p.Parent)
	_, err := s.c.Registry().Resolve(idP)
	assert.Error(t, err)
}

func TestDOM_AttributesFlattened(t *testing.T) {
	s := newSession(t, 0)
	a := byID(s.doc, "a")
	a.Attr = append(a.Attr, html.Attribute{Namespace: "xlink", Key: "href", Val: "#t"})
	id := s.c.PushNodePathToFrontend(a)
	s.fe.Reset()

	s.ins.DidModifyDOMAttr(a)
	updated := s.fe.Find("attributesUpdated")
	require.Len(t, updated, 1)
	assert.Equal(t, int(id), num(t, updated[0], "id"))
	attrs, _ := updated[0].GetArray("attributes")
	name, _ := attrs.Get(2)
	assert.True(t, value.Equal(value.String("xlink:href"), name))
}
