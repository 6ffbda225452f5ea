package inspector_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/inspector/frontend"
	"github.com/dshills/webinspector/internal/protocol/value"
)

type pauseCall struct {
	reason string
	data   *value.Object
}

// recordingDebugger records every pause request.
type recordingDebugger struct {
	breaks    []pauseCall
	schedules []pauseCall
	cancels   int
	resumes   int
}

func (d *recordingDebugger) BreakProgram(reason string, data *value.Object) {
	d.breaks = append(d.breaks, pauseCall{reason, data})
}

func (d *recordingDebugger) SchedulePauseOnNextStatement(reason string, data *value.Object) {
	d.schedules = append(d.schedules, pauseCall{reason, data})
}

func (d *recordingDebugger) CancelPauseOnNextStatement() { d.cancels++ }

func (d *recordingDebugger) Resume() { d.resumes++ }

type memStore struct {
	mu    sync.Mutex
	blobs map[string]string
	err   error
}

func newMemStore() *memStore { return &memStore{blobs: make(map[string]string)} }

func (s *memStore) Load(_ context.Context, group string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[group], s.err
}

func (s *memStore) Save(_ context.Context, group, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blobs[group] = blob
	return nil
}

func stepClock() func() time.Time {
	t := time.Unix(1000, 0)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

const testPage = `<!DOCTYPE html><html><head><title>t</title></head>` +
	`<body><div id="a"></div><div id="x"><p id="p">text</p></div></body></html>`

func parsePage(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func byID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := byID(c, id); found != nil {
			return found
		}
	}
	return nil
}

type session struct {
	c     *inspector.Controller
	ins   *inspector.Instrumentation
	fe    *frontend.Recorder
	dbg   *recordingDebugger
	store *memStore
	doc   *html.Node
}

func newSession(t *testing.T, capacity int) *session {
	t.Helper()
	s := &session{
		fe:    &frontend.Recorder{},
		dbg:   &recordingDebugger{},
		store: newMemStore(),
	}
	s.c = inspector.New(inspector.Options{
		PageGroup:       "test",
		ConsoleCapacity: capacity,
		Enabled:         true,
		Store:           s.store,
		Debugger:        s.dbg,
		Clock:           stepClock(),
	})
	s.ins = s.c.Instrumentation()
	s.doc = parsePage(t, testPage)
	s.c.DidCommitLoad("https://x/", s.doc)
	require.NoError(t, s.c.Attach(context.Background(), s.fe))
	return s
}

func (s *session) reattach(t *testing.T) {
	t.Helper()
	require.NoError(t, s.c.Detach(context.Background()))
	s.fe.Reset()
	require.NoError(t, s.c.Attach(context.Background(), s.fe))
}

// insert performs an instrumented append of child under parent.
func (s *session) insert(parent, child *html.Node) {
	s.ins.WillInsertDOMNode(child, parent)
	parent.AppendChild(child)
	s.ins.DidInsertDOMNode(child)
}

// remove performs an instrumented removal of node.
func (s *session) remove(node *html.Node) {
	parent := node.Parent
	s.ins.WillRemoveDOMNode(node)
	parent.RemoveChild(node)
	s.ins.DidRemoveDOMNode(parent, node)
}

func elem(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}

func num(t *testing.T, obj *value.Object, key string) int {
	t.Helper()
	f, ok := obj.GetNumber(key)
	require.True(t, ok, "missing number %q", key)
	return int(f)
}
