// Package page is a small single-threaded page model: an HTML document whose
// mutations, timers, event dispatch and network loads report to the
// inspector through its instrumentation hooks.
//
// A Page is not safe for concurrent use. All methods run on the loop
// goroutine; background fetches post their completion back to the loop.
package page

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/inspector/console"
	"github.com/dshills/webinspector/internal/inspector/resources"
)

// Page errors.
var (
	// ErrNoDocument indicates an operation ran before the first Load.
	ErrNoDocument = errors.New("no document loaded")

	// ErrHierarchy indicates a mutation would corrupt the tree.
	ErrHierarchy = errors.New("hierarchy request error")

	// ErrNodeType indicates a mutation was applied to the wrong kind of node.
	ErrNodeType = errors.New("unexpected node type")

	// ErrClosed indicates the page was closed.
	ErrClosed = errors.New("page closed")
)

// Options configures a Page.
type Options struct {
	Fetcher Fetcher
	Logger  *zap.Logger

	// Viewport is the paint rectangle reported for each render.
	Width, Height int
}

// Page is a loaded document plus its timers, listeners and loads.
type Page struct {
	loop    *loop.Loop
	ins     *inspector.Instrumentation
	fetcher Fetcher
	logger  *zap.Logger

	width, height int

	url string
	doc *html.Node

	nextResource uint64
	cache        map[string]*Fetched

	nextTimer int
	timers    map[int]*timer

	listeners map[*html.Node]map[string][]Listener
	window    map[string][]Listener

	dirty  bool
	runner ScriptRunner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty page. ins may be nil for an uninstrumented page.
func New(l *loop.Loop, ins *inspector.Instrumentation, opts Options) *Page {
	if opts.Fetcher == nil {
		opts.Fetcher = DefaultFetcher()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Width == 0 {
		opts.Width, opts.Height = 800, 600
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{
		loop:      l,
		ins:       ins,
		fetcher:   opts.Fetcher,
		logger:    opts.Logger,
		width:     opts.Width,
		height:    opts.Height,
		cache:     make(map[string]*Fetched),
		timers:    make(map[int]*timer),
		listeners: make(map[*html.Node]map[string][]Listener),
		window:    make(map[string][]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScriptRunner evaluates one script of the document. url is the script's
// own URL for external scripts and the document URL for inline ones.
type ScriptRunner func(url, src string) error

// SetScriptRunner installs the evaluator for the document's script elements.
func (p *Page) SetScriptRunner(r ScriptRunner) { p.runner = r }

// Instrumentation returns the hook layer the page reports to.
func (p *Page) Instrumentation() *inspector.Instrumentation { return p.ins }

// URL returns the URL of the committed document.
func (p *Page) URL() string { return p.url }

// Document returns the committed document, or nil before the first Load.
func (p *Page) Document() *html.Node { return p.doc }

func (p *Page) resourceID() uint64 {
	p.nextResource++
	return p.nextResource
}

// Navigate fetches url and loads it as the main resource.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.closed {
		return ErrClosed
	}
	id := p.resourceID()
	req := resources.Request{URL: url, Method: "GET"}
	p.ins.IdentifierForInitialRequest(id, url, url, true)
	p.ins.WillSendRequest(id, req)

	f, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		p.ins.DidFailLoading(id, err.Error())
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	p.commit(id, url, f)
	return nil
}

// Load commits src as the document at url without touching the network.
func (p *Page) Load(url, src string) {
	if p.closed {
		return
	}
	id := p.resourceID()
	p.ins.IdentifierForInitialRequest(id, url, url, true)
	p.ins.WillSendRequest(id, resources.Request{URL: url, Method: "GET"})
	p.commit(id, url, &Fetched{
		Response: resources.Response{
			URL:                   url,
			MIMEType:              "text/html",
			StatusCode:            200,
			StatusText:            "OK",
			ExpectedContentLength: int64(len(src)),
		},
		Body: src,
	})
}

func (p *Page) commit(id uint64, url string, f *Fetched) {
	p.receive(id, f)

	k := p.ins.WillWriteHTML(len(f.Body), 1)
	doc, err := html.Parse(strings.NewReader(f.Body))
	if err != nil {
		// html.Parse only fails on reader errors.
		p.logger.Warn("parse document", zap.String("url", url), zap.Error(err))
		doc = &html.Node{Type: html.DocumentNode}
	}
	p.ins.DidWriteHTML(k, strings.Count(f.Body, "\n")+1)

	p.stopTimers()
	p.listeners = make(map[*html.Node]map[string][]Listener)
	p.window = make(map[string][]Listener)
	p.url = url
	p.doc = doc
	p.ins.DidCommitLoad(url, doc)
	p.ins.DidFinishLoading(id)
	p.runScripts()

	p.ins.MainResourceFiredDOMContentEvent()
	p.DispatchWindowEvent("DOMContentLoaded")
	p.ins.MainResourceFiredLoadEvent()
	p.DispatchWindowEvent("load")
	p.dirty = true
	p.Render()
}

// runScripts evaluates the document's script elements in document order.
func (p *Page) runScripts() {
	if p.runner == nil {
		return
	}
	var scripts []*html.Node
	walk(p.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			scripts = append(scripts, n)
		}
		return true
	})
	for _, s := range scripts {
		url, src := p.url, ""
		if ref := attr(s, "src"); ref != "" {
			url = p.resolve(ref)
			var err error
			if src, err = p.ImportScript(p.ctx, url); err != nil {
				p.logger.Warn("script load failed", zap.String("url", url), zap.Error(err))
				continue
			}
		} else if s.FirstChild != nil {
			src = s.FirstChild.Data
		}
		err := p.EvaluateScript(url, 1, func() error { return p.runner(url, src) })
		if err != nil {
			p.ReportError(url, 0, err)
		}
	}
}

// ReportError logs a script error to the console.
func (p *Page) ReportError(url string, line int, err error) {
	p.ins.AddMessageToConsole(console.Message{
		Source: console.SourceJS,
		Kind:   console.KindLog,
		Level:  console.LevelError,
		Text:   err.Error(),
		Line:   line,
		URL:    url,
	})
}

// resolve resolves ref against the document URL.
func (p *Page) resolve(ref string) string {
	base, err := neturl.Parse(p.url)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// receive reports a response and its body to the hooks.
func (p *Page) receive(id uint64, f *Fetched) {
	k := p.ins.WillReceiveResourceResponse(id, f.Response)
	p.ins.DidReceiveResourceResponse(k)
	k = p.ins.WillReceiveResourceData(id)
	p.ins.DidReceiveContentLength(id, len(f.Body))
	p.ins.DidReceiveResourceData(k)
}

// Render recalculates style, lays out and paints if the document changed
// since the last render.
func (p *Page) Render() {
	if !p.dirty || p.doc == nil {
		return
	}
	p.dirty = false
	k := p.ins.WillRecalculateStyle()
	p.ins.DidRecalculateStyle(k)
	k = p.ins.WillLayout()
	p.ins.DidLayout(k)
	k = p.ins.WillPaint(0, 0, p.width, p.height)
	p.ins.DidPaint(k)
}

// EvaluateScript runs fn as the evaluation of the script at url.
func (p *Page) EvaluateScript(url string, line int, fn func() error) error {
	k := p.ins.WillEvaluateScript(url, line)
	err := fn()
	p.ins.DidEvaluateScript(k)
	p.Render()
	return err
}

// Close stops timers and waits for background loads to finish.
func (p *Page) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.stopTimers()
	p.cancel()
	p.wg.Wait()
}
