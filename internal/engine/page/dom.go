package page

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/webinspector/internal/inspector"
)

var _ inspector.DOMEditor = (*Page)(nil)

// CreateElement returns a detached element.
func (p *Page) CreateElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// CreateTextNode returns a detached text node.
func (p *Page) CreateTextNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// ElementByID returns the first element whose id attribute is id.
func (p *Page) ElementByID(id string) *html.Node {
	if p.doc == nil {
		return nil
	}
	var found *html.Node
	walk(p.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Body returns the body element, if any.
func (p *Page) Body() *html.Node {
	if p.doc == nil {
		return nil
	}
	var body *html.Node
	walk(p.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return body
}

// walk visits n and its descendants in document order until visit returns
// false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

func attrIndex(n *html.Node, name string) int {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return i
		}
	}
	return -1
}

func isAncestor(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// AppendChild inserts child as the last child of parent.
func (p *Page) AppendChild(parent, child *html.Node) error {
	return p.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child under parent before ref, or last when ref is
// nil. A child that is already in the tree is moved.
func (p *Page) InsertBefore(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return ErrHierarchy
	}
	if parent.Type != html.ElementNode && parent.Type != html.DocumentNode {
		return fmt.Errorf("insert into %s: %w", describe(parent), ErrHierarchy)
	}
	if isAncestor(child, parent) {
		return fmt.Errorf("insert %s: %w", describe(child), ErrHierarchy)
	}
	if ref != nil && ref.Parent != parent {
		return fmt.Errorf("insert before %s: %w", describe(ref), ErrHierarchy)
	}
	if child.Parent != nil {
		if err := p.RemoveNode(child); err != nil {
			return err
		}
	}
	p.ins.WillInsertDOMNode(child, parent)
	// The hook may pause, and the frontend may edit the tree meanwhile.
	if child.Parent != nil || (ref != nil && ref.Parent != parent) || isAncestor(child, parent) {
		return fmt.Errorf("insert %s: tree changed: %w", describe(child), ErrHierarchy)
	}
	parent.InsertBefore(child, ref)
	p.ins.DidInsertDOMNode(child)
	p.dirty = true
	return nil
}

// RemoveNode detaches node from its parent.
func (p *Page) RemoveNode(node *html.Node) error {
	if node == nil || node.Parent == nil {
		return fmt.Errorf("remove %s: %w", describe(node), ErrHierarchy)
	}
	parent := node.Parent
	p.ins.WillRemoveDOMNode(node)
	if node.Parent != parent {
		return fmt.Errorf("remove %s: tree changed: %w", describe(node), ErrHierarchy)
	}
	parent.RemoveChild(node)
	p.ins.DidRemoveDOMNode(parent, node)
	p.dirty = true
	return nil
}

// SetAttribute sets or replaces an attribute of element.
func (p *Page) SetAttribute(element *html.Node, name, value string) error {
	if element == nil || element.Type != html.ElementNode {
		return fmt.Errorf("set attribute %q: %w", name, ErrNodeType)
	}
	p.ins.WillModifyDOMAttr(element)
	replaced := false
	for i := range element.Attr {
		if element.Attr[i].Namespace == "" && element.Attr[i].Key == name {
			element.Attr[i].Val = value
			replaced = true
			break
		}
	}
	if !replaced {
		element.Attr = append(element.Attr, html.Attribute{Key: name, Val: value})
	}
	p.ins.DidModifyDOMAttr(element)
	p.dirty = true
	return nil
}

// RemoveAttribute removes an attribute of element. Removing an absent
// attribute is not an error and fires no hooks.
func (p *Page) RemoveAttribute(element *html.Node, name string) error {
	if element == nil || element.Type != html.ElementNode {
		return fmt.Errorf("remove attribute %q: %w", name, ErrNodeType)
	}
	if attrIndex(element, name) < 0 {
		return nil
	}
	p.ins.WillModifyDOMAttr(element)
	idx := attrIndex(element, name)
	if idx < 0 {
		return nil
	}
	element.Attr = append(element.Attr[:idx], element.Attr[idx+1:]...)
	p.ins.DidModifyDOMAttr(element)
	p.dirty = true
	return nil
}

// SetTextNodeValue replaces the character data of a text or comment node.
func (p *Page) SetTextNodeValue(node *html.Node, text string) error {
	if node == nil || (node.Type != html.TextNode && node.Type != html.CommentNode) {
		return fmt.Errorf("set text: %w", ErrNodeType)
	}
	node.Data = text
	p.ins.CharacterDataModified(node)
	p.dirty = true
	return nil
}

// SetTextContent replaces the children of element with one text node.
func (p *Page) SetTextContent(element *html.Node, text string) error {
	if element == nil || element.Type != html.ElementNode {
		return fmt.Errorf("set text content: %w", ErrNodeType)
	}
	if c := element.FirstChild; c != nil && c == element.LastChild && c.Type == html.TextNode {
		return p.SetTextNodeValue(c, text)
	}
	for element.FirstChild != nil {
		if err := p.RemoveNode(element.FirstChild); err != nil {
			return err
		}
	}
	if text == "" {
		return nil
	}
	return p.AppendChild(element, p.CreateTextNode(text))
}

func describe(n *html.Node) string {
	if n == nil {
		return "<nil>"
	}
	switch n.Type {
	case html.ElementNode:
		return "<" + n.Data + ">"
	case html.TextNode:
		return "#text"
	case html.DocumentNode:
		return "#document"
	case html.CommentNode:
		return "#comment"
	default:
		return "node"
	}
}
