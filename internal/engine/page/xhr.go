package page

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/inspector/resources"
)

// XHR ready states.
const (
	XHRUnsent = iota
	XHROpened
	XHRHeadersReceived
	XHRLoading
	XHRDone
)

// XHRResult is delivered to a request's completion callback.
type XHRResult struct {
	Identifier uint64
	Status     int
	Body       string
	Err        error
}

// SendXHR starts an asynchronous request. done runs on the loop once the
// request completes or fails.
func (p *Page) SendXHR(method, url, body string, done func(XHRResult)) (uint64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.doc == nil {
		return 0, ErrNoDocument
	}
	p.ins.WillSendXMLHttpRequest(url)

	id := p.resourceID()
	req := resources.Request{URL: url, Method: method, Body: body}
	p.ins.IdentifierForInitialRequest(id, url, p.url, false)
	p.ins.WillSendRequest(id, req)
	p.ins.DidScheduleResourceRequest(url)

	sendURL := p.url
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		f, err := p.fetcher.Fetch(p.ctx, req)
		postErr := p.loop.Schedule(func() {
			p.completeXHR(id, url, sendURL, f, err, done)
		})
		if postErr != nil {
			p.logger.Debug("xhr completion dropped", zap.Uint64("identifier", id), zap.Error(postErr))
		}
	}()
	return id, nil
}

func (p *Page) completeXHR(id uint64, url, sendURL string, f *Fetched, err error, done func(XHRResult)) {
	if p.closed {
		return
	}
	if done == nil {
		done = func(XHRResult) {}
	}
	if err != nil {
		p.ins.DidFailLoading(id, err.Error())
		k := p.ins.WillChangeXHRReadyState(url, XHRDone)
		done(XHRResult{Identifier: id, Err: err})
		p.ins.DidChangeXHRReadyState(k)
		p.Render()
		return
	}

	p.receive(id, f)
	k := p.ins.WillChangeXHRReadyState(url, XHRDone)
	p.ins.DidChangeXHRReadyState(k)
	k = p.ins.WillLoadXHR(url)
	done(XHRResult{Identifier: id, Status: f.Response.StatusCode, Body: f.Body})
	p.ins.DidLoadXHR(k)
	p.ins.ResourceRetrievedByXMLHttpRequest(id, f.Body, url, sendURL, 0)
	p.ins.DidFinishLoading(id)
	p.Render()
}

// ImportScript loads a script synchronously. A URL loaded before is served
// from the page's memory cache.
func (p *Page) ImportScript(ctx context.Context, url string) (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	id := p.resourceID()
	if f, ok := p.cache[url]; ok {
		resp := f.Response
		resp.Cached = true
		p.ins.DidLoadResourceFromMemoryCache(id, p.url, resp, len(f.Body))
		p.ins.ScriptImported(id, f.Body)
		return f.Body, nil
	}

	req := resources.Request{URL: url, Method: "GET"}
	p.ins.IdentifierForInitialRequest(id, url, p.url, false)
	p.ins.WillSendRequest(id, req)
	f, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		p.ins.DidFailLoading(id, err.Error())
		return "", fmt.Errorf("import %s: %w", url, err)
	}
	p.receive(id, f)
	if f.Response.StatusCode >= 400 {
		p.ins.DidFailLoading(id, f.Response.StatusText)
		return "", fmt.Errorf("import %s: status %d", url, f.Response.StatusCode)
	}
	p.ins.ScriptImported(id, f.Body)
	p.ins.DidFinishLoading(id)
	p.cache[url] = f
	return f.Body, nil
}
