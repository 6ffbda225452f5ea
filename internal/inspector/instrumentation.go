package inspector

import (
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/inspector/console"
	"github.com/dshills/webinspector/internal/inspector/resources"
	"github.com/dshills/webinspector/internal/inspector/timeline"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// Instrumentation is the set of hooks the engine calls at instrumented
// points. All methods are safe on a nil receiver and return after a single
// branch when no session is active.
//
// Paired hooks return a Cookie from the will* call that must be handed to
// the matching did* call.
type Instrumentation struct {
	c *Controller
}

func (i *Instrumentation) active() bool {
	return i != nil && i.c.active()
}

func (i *Instrumentation) enabled() bool {
	return i != nil && i.c.enabled
}

// cookie snapshots the agent a will* hook consulted.
func (c *Controller) cookie() Cookie {
	epoch := c.sessionEpoch
	if c.timeline != nil {
		epoch = c.timeline.Epoch()
	}
	return Cookie{sessionWasActive: true, agentEpoch: epoch}
}

// valid reports whether the session a cookie was issued in is still the
// current one.
func (c *Controller) valid(k Cookie) bool {
	return k.sessionWasActive && c.active() && k.agentEpoch >= c.sessionEpoch
}

// timelineFor returns the timeline agent k was issued for, if it still runs.
func (c *Controller) timelineFor(k Cookie) *timeline.Agent {
	if !c.valid(k) || c.timeline == nil || c.timeline.Epoch() != k.agentEpoch {
		return nil
	}
	return c.timeline
}

func (c *Controller) begin(t timeline.RecordType, data *value.Object) Cookie {
	if c.timeline != nil {
		c.timeline.Begin(t, data)
	}
	return c.cookie()
}

func (c *Controller) end(k Cookie, t timeline.RecordType) {
	if tl := c.timelineFor(k); tl != nil {
		tl.End(t)
	}
}

func (c *Controller) instant(t timeline.RecordType, data *value.Object) {
	if c.timeline != nil {
		c.timeline.Instant(t, data)
	}
}

// WillInstallTimer runs before a timer is registered. It schedules a pause
// when an instrumentation:setTimer breakpoint is set.
func (i *Instrumentation) WillInstallTimer(timerID int, timeout time.Duration, singleShot bool) Cookie {
	if !i.active() {
		return Cookie{}
	}
	i.c.pauseOnEvent(breakpoints.CategoryInstrumentation, breakpoints.EventSetTimer)
	return i.c.cookie()
}

// DidInstallTimer runs after a timer is registered. It never cancels a
// scheduled pause: the pause belongs to the script that installed the timer.
func (i *Instrumentation) DidInstallTimer(k Cookie, timerID int, timeout time.Duration, singleShot bool) {
	if !i.active() || !i.c.valid(k) {
		return
	}
	if tl := i.c.timelineFor(k); tl != nil {
		data := value.NewObject()
		data.SetInt("timerId", timerID)
		data.SetInt("timeout", int(timeout/time.Millisecond))
		data.SetBool("singleShot", singleShot)
		tl.Instant(timeline.TimerInstall, data)
	}
}

// DidRemoveTimer runs when a timer is cleared.
func (i *Instrumentation) DidRemoveTimer(timerID int) {
	if !i.active() {
		return
	}
	i.c.breakOnEvent(breakpoints.CategoryInstrumentation, breakpoints.EventClearTimer)
	data := value.NewObject()
	data.SetInt("timerId", timerID)
	i.c.instant(timeline.TimerRemove, data)
}

// WillFireTimer runs before a timer callback.
func (i *Instrumentation) WillFireTimer(timerID int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	i.c.pauseOnEvent(breakpoints.CategoryInstrumentation, breakpoints.EventTimerFired)
	data := value.NewObject()
	data.SetInt("timerId", timerID)
	return i.c.begin(timeline.TimerFire, data)
}

// DidFireTimer runs after a timer callback and cancels a pause the callback
// did not reach.
func (i *Instrumentation) DidFireTimer(k Cookie) {
	if !i.active() || !i.c.valid(k) {
		return
	}
	i.c.cancelScheduledPause()
	i.c.end(k, timeline.TimerFire)
}

// WillCallFunction runs before a script function is called from native code.
func (i *Instrumentation) WillCallFunction(scriptName string, scriptLine int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetString("scriptName", scriptName)
	data.SetInt("scriptLine", scriptLine)
	return i.c.begin(timeline.FunctionCall, data)
}

// DidCallFunction runs after the call.
func (i *Instrumentation) DidCallFunction(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.FunctionCall)
}

// WillChangeXHRReadyState runs before readystatechange handlers.
func (i *Instrumentation) WillChangeXHRReadyState(url string, readyState int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetString("url", url)
	data.SetInt("readyState", readyState)
	return i.c.begin(timeline.XHRReadyStateChange, data)
}

// DidChangeXHRReadyState runs after readystatechange handlers.
func (i *Instrumentation) DidChangeXHRReadyState(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.XHRReadyStateChange)
}

// WillLoadXHR runs before load handlers of a request.
func (i *Instrumentation) WillLoadXHR(url string) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetString("url", url)
	return i.c.begin(timeline.XHRLoad, data)
}

// DidLoadXHR runs after load handlers.
func (i *Instrumentation) DidLoadXHR(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.XHRLoad)
}

// WillDispatchEvent runs before an event is dispatched to a node. It
// schedules a pause when a listener breakpoint for the event type is set.
func (i *Instrumentation) WillDispatchEvent(eventType string, target *html.Node) Cookie {
	if !i.active() {
		return Cookie{}
	}
	i.c.pauseOnEvent(breakpoints.CategoryListener, eventType)
	data := value.NewObject()
	data.SetString("type", eventType)
	return i.c.begin(timeline.EventDispatch, data)
}

// DidDispatchEvent runs after dispatch and cancels a pause no listener
// reached.
func (i *Instrumentation) DidDispatchEvent(k Cookie) {
	if !i.active() || !i.c.valid(k) {
		return
	}
	i.c.cancelScheduledPause()
	i.c.end(k, timeline.EventDispatch)
}

// WillDispatchEventOnWindow runs before an event is dispatched to the window.
func (i *Instrumentation) WillDispatchEventOnWindow(eventType string) Cookie {
	return i.WillDispatchEvent(eventType, nil)
}

// DidDispatchEventOnWindow runs after a window event dispatch.
func (i *Instrumentation) DidDispatchEventOnWindow(k Cookie) {
	i.DidDispatchEvent(k)
}

// WillEvaluateScript runs before a script block is evaluated.
func (i *Instrumentation) WillEvaluateScript(url string, line int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetString("url", url)
	data.SetInt("lineNumber", line)
	return i.c.begin(timeline.EvaluateScript, data)
}

// DidEvaluateScript runs after evaluation.
func (i *Instrumentation) DidEvaluateScript(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.EvaluateScript)
}

// WillLayout runs before layout.
func (i *Instrumentation) WillLayout() Cookie {
	if !i.active() {
		return Cookie{}
	}
	return i.c.begin(timeline.Layout, nil)
}

// DidLayout runs after layout.
func (i *Instrumentation) DidLayout(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.Layout)
}

// WillPaint runs before the rectangle is painted.
func (i *Instrumentation) WillPaint(x, y, width, height int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetInt("x", x)
	data.SetInt("y", y)
	data.SetInt("width", width)
	data.SetInt("height", height)
	return i.c.begin(timeline.Paint, data)
}

// DidPaint runs after painting.
func (i *Instrumentation) DidPaint(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.Paint)
}

// WillRecalculateStyle runs before style resolution.
func (i *Instrumentation) WillRecalculateStyle() Cookie {
	if !i.active() {
		return Cookie{}
	}
	return i.c.begin(timeline.RecalculateStyles, nil)
}

// DidRecalculateStyle runs after style resolution.
func (i *Instrumentation) DidRecalculateStyle(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.RecalculateStyles)
}

// WillWriteHTML runs before the parser consumes length bytes starting at
// startLine.
func (i *Instrumentation) WillWriteHTML(length, startLine int) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetInt("length", length)
	data.SetInt("startLine", startLine)
	return i.c.begin(timeline.ParseHTML, data)
}

// DidWriteHTML runs after parsing reached endLine.
func (i *Instrumentation) DidWriteHTML(k Cookie, endLine int) {
	if !i.active() {
		return
	}
	if tl := i.c.timelineFor(k); tl != nil {
		tl.Amend(timeline.ParseHTML, "endLine", value.Int(endLine))
		tl.End(timeline.ParseHTML)
	}
}

// WillReceiveResourceData runs before a chunk of resource data is handled.
func (i *Instrumentation) WillReceiveResourceData(identifier uint64) Cookie {
	if !i.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetNumber("identifier", float64(identifier))
	return i.c.begin(timeline.ResourceReceiveData, data)
}

// DidReceiveResourceData runs after the chunk is handled.
func (i *Instrumentation) DidReceiveResourceData(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.ResourceReceiveData)
}

// WillReceiveResourceResponse records a response and opens its timeline
// record. Error statuses are logged to the console.
func (i *Instrumentation) WillReceiveResourceResponse(identifier uint64, resp resources.Response) Cookie {
	if !i.enabled() {
		return Cookie{}
	}
	c := i.c
	if r, err := c.resources.ReceiveResponse(identifier, resp); err == nil {
		c.emitResource(r)
		if resp.StatusCode >= 400 {
			c.AddMessage(console.Message{
				Source: console.SourceOther,
				Kind:   console.KindLog,
				Level:  console.LevelError,
				Text: fmt.Sprintf("Failed to load resource: the server responded with a status of %d (%s)",
					resp.StatusCode, resp.StatusText),
				URL: r.URL,
			})
		}
	}
	if !c.active() {
		return Cookie{}
	}
	data := value.NewObject()
	data.SetNumber("identifier", float64(identifier))
	data.SetInt("statusCode", resp.StatusCode)
	data.SetString("mimeType", resp.MIMEType)
	return c.begin(timeline.ResourceReceiveResponse, data)
}

// DidReceiveResourceResponse closes the response record.
func (i *Instrumentation) DidReceiveResourceResponse(k Cookie) {
	if !i.active() {
		return
	}
	i.c.end(k, timeline.ResourceReceiveResponse)
}

// WillInsertDOMNode runs before node is inserted under parent.
func (i *Instrumentation) WillInsertDOMNode(node, parent *html.Node) {
	if !i.active() {
		return
	}
	i.c.willInsertDOMNode(parent)
}

// DidInsertDOMNode runs after node was inserted.
func (i *Instrumentation) DidInsertDOMNode(node *html.Node) {
	if !i.active() {
		return
	}
	i.c.didInsertDOMNode(node)
}

// WillRemoveDOMNode runs before node is removed from its parent.
func (i *Instrumentation) WillRemoveDOMNode(node *html.Node) {
	if !i.active() {
		return
	}
	i.c.willRemoveDOMNode(node)
}

// DidRemoveDOMNode runs after node was removed from parent. The removed
// subtree loses its ids and breakpoints.
func (i *Instrumentation) DidRemoveDOMNode(parent, node *html.Node) {
	if !i.active() {
		return
	}
	i.c.didRemoveDOMNode(parent, node)
}

// WillModifyDOMAttr runs before an attribute of element changes.
func (i *Instrumentation) WillModifyDOMAttr(element *html.Node) {
	if !i.active() {
		return
	}
	i.c.willModifyDOMAttr(element)
}

// DidModifyDOMAttr runs after an attribute of element changed.
func (i *Instrumentation) DidModifyDOMAttr(element *html.Node) {
	if !i.active() {
		return
	}
	i.c.didModifyDOMAttr(element)
}

// CharacterDataModified runs after the text of node changed.
func (i *Instrumentation) CharacterDataModified(node *html.Node) {
	if !i.active() {
		return
	}
	i.c.characterDataModified(node)
}

// WillSendXMLHttpRequest breaks before a request whose URL matches an XHR
// breakpoint is sent.
func (i *Instrumentation) WillSendXMLHttpRequest(url string) {
	if !i.active() || !i.c.canPause() {
		return
	}
	pattern, ok := i.c.matcher.MatchesXHRBreakpoint(url)
	if !ok {
		return
	}
	details := value.NewObject()
	details.SetString("breakpointType", breakpointXHR)
	details.SetString("breakpointURL", pattern)
	details.SetString("url", url)
	i.c.breakProgram(details)
}

// DidScheduleResourceRequest runs when the engine queues a load.
func (i *Instrumentation) DidScheduleResourceRequest(url string) {
	if !i.active() {
		return
	}
	data := value.NewObject()
	data.SetString("url", url)
	i.c.instant(timeline.ScheduleResourceRequest, data)
}

// IdentifierForInitialRequest starts tracking a load.
func (i *Instrumentation) IdentifierForInitialRequest(identifier uint64, url, documentURL string, mainResource bool) {
	if !i.enabled() {
		return
	}
	r := i.c.resources.Create(identifier, url, documentURL, mainResource)
	i.c.emitResource(r)
}

// WillSendRequest records the outgoing request of a tracked load.
func (i *Instrumentation) WillSendRequest(identifier uint64, req resources.Request) {
	if !i.enabled() {
		return
	}
	c := i.c
	r, err := c.resources.Get(identifier)
	if err != nil {
		return
	}
	if req.URL != "" {
		r.URL = req.URL
	}
	r.UpdateRequest(req)
	c.emitResource(r)
	if c.active() {
		data := value.NewObject()
		data.SetNumber("identifier", float64(identifier))
		data.SetString("url", r.URL)
		data.SetString("requestMethod", req.Method)
		c.instant(timeline.ResourceSendRequest, data)
	}
}

// MarkResourceAsCached flags a load as served from cache.
func (i *Instrumentation) MarkResourceAsCached(identifier uint64) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.Get(identifier); err == nil {
		r.Cached = true
		i.c.emitResource(r)
	}
}

// DidLoadResourceFromMemoryCache tracks a resource the engine served from
// its memory cache without a network load.
func (i *Instrumentation) DidLoadResourceFromMemoryCache(identifier uint64, documentURL string, resp resources.Response, length int) {
	if !i.enabled() {
		return
	}
	r := i.c.resources.CreateCached(identifier, documentURL, resp, length)
	i.c.emitResource(r)
}

// DidReceiveContentLength adds length bytes to a tracked load.
func (i *Instrumentation) DidReceiveContentLength(identifier uint64, length int) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.Get(identifier); err == nil {
		r.Length += length
		i.c.emitResource(r)
	}
}

// DidFinishLoading completes a tracked load.
func (i *Instrumentation) DidFinishLoading(identifier uint64) {
	if !i.enabled() {
		return
	}
	c := i.c
	r, err := c.resources.Finish(identifier)
	if err != nil {
		return
	}
	c.emitResource(r)
	if c.active() {
		data := value.NewObject()
		data.SetNumber("identifier", float64(identifier))
		data.SetBool("didFail", false)
		c.instant(timeline.ResourceFinish, data)
	}
}

// DidFailLoading fails a tracked load and logs the failure to the console.
func (i *Instrumentation) DidFailLoading(identifier uint64, description string) {
	if !i.enabled() {
		return
	}
	c := i.c
	r, err := c.resources.Fail(identifier, description)
	if err != nil {
		return
	}
	c.emitResource(r)
	text := "Failed to load resource"
	if description != "" {
		text += ": " + description
	}
	c.AddMessage(console.Message{
		Source: console.SourceOther,
		Kind:   console.KindLog,
		Level:  console.LevelError,
		Text:   text,
		URL:    r.URL,
	})
	if c.active() {
		data := value.NewObject()
		data.SetNumber("identifier", float64(identifier))
		data.SetBool("didFail", true)
		c.instant(timeline.ResourceFinish, data)
	}
}

// ResourceRetrievedByXMLHttpRequest stores the body of a finished request.
// With the monitoringXHR setting on, a console message is logged too.
func (i *Instrumentation) ResourceRetrievedByXMLHttpRequest(identifier uint64, body, url, sendURL string, sendLine int) {
	if !i.enabled() {
		return
	}
	c := i.c
	if r, err := c.resources.Get(identifier); err == nil {
		r.SetContent(body, resources.TypeXHR)
		c.emitResource(r)
	}
	if c.settings[SettingMonitoringXHR] == "true" {
		c.AddMessage(console.Message{
			Source: console.SourceJS,
			Kind:   console.KindLog,
			Level:  console.LevelLog,
			Text:   fmt.Sprintf("XHR finished loading: %q.", url),
			Line:   sendLine,
			URL:    sendURL,
		})
	}
}

// ScriptImported stores the source of a script loaded by importScripts.
func (i *Instrumentation) ScriptImported(identifier uint64, source string) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.Get(identifier); err == nil {
		r.SetContent(source, resources.TypeScript)
		i.c.emitResource(r)
	}
}

// DidCreateWebSocket starts tracking a websocket.
func (i *Instrumentation) DidCreateWebSocket(identifier uint64, url, documentURL string) {
	if !i.enabled() {
		return
	}
	r := i.c.resources.CreateWebSocket(identifier, url, documentURL)
	i.c.emitResource(r)
}

// WillSendWebSocketHandshakeRequest records the handshake request.
func (i *Instrumentation) WillSendWebSocketHandshakeRequest(identifier uint64, req resources.Request) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.Get(identifier); err == nil {
		r.UpdateRequest(req)
		i.c.emitResource(r)
	}
}

// DidReceiveWebSocketHandshakeResponse records the handshake response.
func (i *Instrumentation) DidReceiveWebSocketHandshakeResponse(identifier uint64, resp resources.Response) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.ReceiveResponse(identifier, resp); err == nil {
		i.c.emitResource(r)
	}
}

// DidCloseWebSocket completes a websocket.
func (i *Instrumentation) DidCloseWebSocket(identifier uint64) {
	if !i.enabled() {
		return
	}
	if r, err := i.c.resources.Finish(identifier); err == nil {
		i.c.emitResource(r)
	}
}

// MarkTimeline adds a console.markTimeline record.
func (i *Instrumentation) MarkTimeline(message string) {
	if !i.active() {
		return
	}
	data := value.NewObject()
	data.SetString("message", message)
	i.c.instant(timeline.Mark, data)
}

// MainResourceFiredDOMContentEvent marks DOMContentLoaded on the timeline.
func (i *Instrumentation) MainResourceFiredDOMContentEvent() {
	if !i.active() {
		return
	}
	i.c.instant(timeline.MarkDOMContent, nil)
}

// MainResourceFiredLoadEvent marks the load event on the timeline.
func (i *Instrumentation) MainResourceFiredLoadEvent() {
	if !i.active() {
		return
	}
	i.c.instant(timeline.MarkLoad, nil)
}

// AddMessageToConsole forwards a console message.
func (i *Instrumentation) AddMessageToConsole(m console.Message) {
	if !i.enabled() {
		return
	}
	i.c.AddMessage(m)
}

// StartConsoleTiming handles console.time.
func (i *Instrumentation) StartConsoleTiming(label string) {
	if !i.enabled() {
		return
	}
	i.c.StartTiming(label)
}

// StopConsoleTiming handles console.timeEnd.
func (i *Instrumentation) StopConsoleTiming(label, url string, line int) {
	if !i.enabled() {
		return
	}
	_, _ = i.c.StopTiming(label, url, line)
}

// ConsoleCount handles console.count.
func (i *Instrumentation) ConsoleCount(title, url string, line int) {
	if !i.enabled() {
		return
	}
	i.c.Count(title, url, line)
}

// DidCommitLoad reports a committed top-level navigation.
func (i *Instrumentation) DidCommitLoad(url string, doc *html.Node) {
	if i == nil {
		return
	}
	i.c.DidCommitLoad(url, doc)
}
