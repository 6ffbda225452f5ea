package inspector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/inspector/console"
	"github.com/dshills/webinspector/internal/inspector/frontend"
	"github.com/dshills/webinspector/internal/inspector/nodes"
	"github.com/dshills/webinspector/internal/inspector/resources"
	"github.com/dshills/webinspector/internal/inspector/timeline"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// SessionState is the attachment state of a Controller.
type SessionState int

const (
	// StateDetached means no frontend is connected.
	StateDetached SessionState = iota
	// StateAttaching is the transient state while a frontend is connected.
	StateAttaching
	// StateAttached means a frontend receives events.
	StateAttached
	// StateDetaching is the transient state while a frontend is dropped.
	StateDetaching
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	// PageGroup names the settings blob in the store.
	PageGroup string

	// ConsoleCapacity bounds the console buffer. Zero selects the default.
	ConsoleCapacity int

	// Enabled turns instrumentation on from the start.
	Enabled bool

	// Store persists settings. Nil keeps settings in memory only.
	Store SettingsStore

	// Debugger is the script debugger used for pauses. Nil disables pausing.
	Debugger ScriptDebugger

	// Editor applies DOM edits requested by the frontend.
	Editor DOMEditor

	// Logger receives diagnostics. Nil disables logging.
	Logger *zap.Logger

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Controller is the per-page inspector session. It owns the node registry,
// breakpoints, console state and settings of one inspected page.
//
// A Controller is not safe for concurrent use. Every method, including the
// hooks reached through Instrumentation, must run on the engine goroutine.
type Controller struct {
	logger    *zap.Logger
	now       func() time.Time
	pageGroup string
	store     SettingsStore
	debugger  ScriptDebugger
	editor    DOMEditor

	state    SessionState
	enabled  bool
	frontend frontend.Frontend

	lastEpoch    uint64
	sessionEpoch uint64

	registry  *nodes.Registry
	matcher   *breakpoints.Matcher
	console   *console.Buffer
	timers    *console.Timers
	counters  *console.Counters
	resources *resources.Store

	settings       map[string]string
	settingsLoaded bool
	sticky         []stickyBreakpoint

	document    *html.Node
	documentURL string

	timeline        *timeline.Agent
	debuggerEnabled bool
	pauseScheduled  bool
	paused          bool

	instrumentation *Instrumentation
}

// New creates a detached controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	c := &Controller{
		logger:    logger.Named("inspector"),
		now:       now,
		pageGroup: opts.PageGroup,
		store:     opts.Store,
		debugger:  opts.Debugger,
		editor:    opts.Editor,
		enabled:   opts.Enabled,
		registry:  nodes.NewRegistry(),
		matcher:   breakpoints.NewMatcher(),
		console:   console.NewBuffer(opts.ConsoleCapacity),
		timers:    console.NewTimers(now),
		counters:  console.NewCounters(),
		resources: resources.NewStore(now),
		settings:  make(map[string]string),
	}
	c.instrumentation = &Instrumentation{c: c}
	return c
}

// Instrumentation returns the hook entry points for the engine.
func (c *Controller) Instrumentation() *Instrumentation { return c.instrumentation }

// State returns the attachment state.
func (c *Controller) State() SessionState { return c.state }

// Enabled reports whether instrumentation is turned on.
func (c *Controller) Enabled() bool { return c.enabled }

// SetEnabled turns instrumentation on or off.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// SetDebugger installs the script debugger. It must be called while detached.
func (c *Controller) SetDebugger(d ScriptDebugger) { c.debugger = d }

// SetEditor installs the DOM editor.
func (c *Controller) SetEditor(e DOMEditor) { c.editor = e }

// Registry returns the node registry.
func (c *Controller) Registry() *nodes.Registry { return c.registry }

// Matcher returns the breakpoint matcher.
func (c *Controller) Matcher() *breakpoints.Matcher { return c.matcher }

// Resources returns the resource store.
func (c *Controller) Resources() *resources.Store { return c.resources }

// SessionEpoch returns the epoch of the current attachment, or 0.
func (c *Controller) SessionEpoch() uint64 {
	if c.state != StateAttached {
		return 0
	}
	return c.sessionEpoch
}

func (c *Controller) active() bool {
	return c.enabled && c.state == StateAttached
}

func (c *Controller) nextEpoch() uint64 {
	c.lastEpoch++
	return c.lastEpoch
}

// emit sends an event to the attached frontend. Send failures are logged;
// the transport owns reconnection.
func (c *Controller) emit(method string, params *value.Object) {
	if c.frontend == nil {
		return
	}
	if err := c.frontend.Send(value.Serialize(frontend.Event(method, params))); err != nil {
		c.logger.Warn("frontend send failed", zap.String("method", method), zap.Error(err))
	}
}

// Attach connects fe and replays the page state a reattaching frontend needs:
// persisted settings, buffered console messages, known resources, sticky
// breakpoints and the document.
func (c *Controller) Attach(ctx context.Context, fe frontend.Frontend) error {
	if fe == nil {
		return NewOperationError("attach", c.pageGroup, errors.New("nil frontend"))
	}
	if c.state != StateDetached {
		return NewOperationError("attach", c.pageGroup, ErrAlreadyAttached)
	}
	c.state = StateAttaching
	var early []stickyBreakpoint
	if !c.settingsLoaded {
		early = c.sticky
	}
	c.loadSettings(ctx)
	c.settingsLoaded = true
	c.registry.Reset()
	c.sessionEpoch = c.nextEpoch()
	c.frontend = fe
	c.state = StateAttached
	c.logger.Info("frontend attached",
		zap.String("group", c.pageGroup),
		zap.Uint64("epoch", c.sessionEpoch))

	c.populate()
	c.matcher.ClearSession()
	c.restoreStickyBreakpoints()
	// Breakpoints set before the first attach join the stored ones.
	for _, b := range early {
		if b.enabled && !c.installSticky(b) {
			continue
		}
		c.rememberSticky(b)
	}
	if c.settings[SettingDebuggerEnabled] == "true" {
		c.EnableDebugger(false)
	}
	if c.document != nil {
		c.pushDocument()
	}
	return nil
}

func (c *Controller) populate() {
	expired := value.NewObject()
	expired.SetInt("count", c.console.Expired())
	c.emit("updateConsoleMessageExpiredCount", expired)
	for _, m := range c.console.Messages() {
		c.emitConsoleMessage(m)
	}
	for _, r := range c.resources.All() {
		c.emitResource(r)
	}
}

// Detach drops the frontend. A pending scheduled pause is cancelled, a
// paused debugger is resumed, and settings are written to the store.
func (c *Controller) Detach(ctx context.Context) error {
	if c.state != StateAttached {
		return NewOperationError("detach", c.pageGroup, ErrNotAttached)
	}
	c.state = StateDetaching
	c.cancelScheduledPause()
	if c.paused {
		if r, ok := c.debugger.(Resumer); ok {
			r.Resume()
		}
		c.paused = false
	}
	c.saveStickyBreakpoints()
	c.matcher.ClearSession()
	c.matcher.ClearDOM()
	c.timeline = nil
	c.debuggerEnabled = false
	c.registry.Reset()
	c.frontend = nil
	err := c.saveSettings(ctx)
	c.state = StateDetached
	c.logger.Info("frontend detached", zap.String("group", c.pageGroup))
	return err
}

// DidCommitLoad records a top-level navigation. When instrumentation is on
// it performs a full reset: node ids, DOM breakpoints, console messages,
// timers, counters and all resources but the new main resource are dropped.
// Event and XHR breakpoints and settings survive.
func (c *Controller) DidCommitLoad(url string, doc *html.Node) {
	c.document = doc
	c.documentURL = url
	if !c.enabled {
		return
	}
	c.registry.Reset()
	c.matcher.ClearDOM()
	c.console.Clear()
	c.timers.Clear()
	c.counters.Clear()
	c.resources.Retain(func(r *resources.Resource) bool {
		return r.MainResource && r.URL == url
	})
	if c.state != StateAttached {
		return
	}
	c.emit("reset", nil)
	for _, r := range c.resources.All() {
		c.emitResource(r)
	}
	c.pushDocument()
}

// Document returns the committed document.
func (c *Controller) Document() *html.Node { return c.document }

// AddMessage buffers a console message and forwards it to the frontend.
func (c *Controller) AddMessage(m console.Message) {
	if !c.enabled {
		return
	}
	expired := c.console.Expired()
	msg, coalesced := c.console.Add(m)
	if c.frontend == nil {
		return
	}
	if coalesced {
		params := value.NewObject()
		params.SetInt("count", msg.RepeatCount)
		c.emit("updateConsoleMessageRepeatCount", params)
		return
	}
	if c.console.Expired() != expired {
		params := value.NewObject()
		params.SetInt("count", c.console.Expired())
		c.emit("updateConsoleMessageExpiredCount", params)
	}
	c.emitConsoleMessage(msg)
}

func (c *Controller) emitConsoleMessage(m *console.Message) {
	params := value.NewObject()
	params.Set("messageObj", m.ToValue())
	c.emit("addConsoleMessage", params)
}

// ConsoleMessages returns the buffered messages, oldest first.
func (c *Controller) ConsoleMessages() []*console.Message { return c.console.Messages() }

// ExpiredCount returns how many console messages were dropped.
func (c *Controller) ExpiredCount() int { return c.console.Expired() }

// ClearMessages empties the console buffer.
func (c *Controller) ClearMessages() {
	c.console.Clear()
	c.emit("consoleMessagesCleared", nil)
}

// StartTiming starts the console timer label.
func (c *Controller) StartTiming(label string) {
	if !c.enabled {
		return
	}
	c.timers.Start(label)
}

// StopTiming ends the console timer label and logs the elapsed time. Ending
// an unknown timer logs a warning to the console and returns
// console.ErrUnknownTimer.
func (c *Controller) StopTiming(label, url string, line int) (time.Duration, error) {
	if !c.enabled {
		return 0, nil
	}
	elapsed, err := c.timers.Stop(label)
	if err != nil {
		c.AddMessage(console.Message{
			Source: console.SourceJS,
			Kind:   console.KindLog,
			Level:  console.LevelWarning,
			Text:   err.Error(),
			Line:   line,
			URL:    url,
		})
		return 0, err
	}
	c.AddMessage(console.Message{
		Source: console.SourceJS,
		Kind:   console.KindLog,
		Level:  console.LevelDebug,
		Text:   fmt.Sprintf("%s: %dms", label, elapsed.Milliseconds()),
		Line:   line,
		URL:    url,
	})
	return elapsed, nil
}

// Count increments the console counter for title at url:line and logs it.
func (c *Controller) Count(title, url string, line int) int {
	if !c.enabled {
		return 0
	}
	n, text := c.counters.Count(title, url, line)
	c.AddMessage(console.Message{
		Source: console.SourceJS,
		Kind:   console.KindLog,
		Level:  console.LevelDebug,
		Text:   text,
		Line:   line,
		URL:    url,
	})
	return n
}

// StartTimeline begins a timeline recording with a fresh agent epoch.
func (c *Controller) StartTimeline() error {
	if c.state != StateAttached {
		return NewOperationError("startTimeline", "", ErrNotAttached)
	}
	if c.timeline != nil {
		return nil
	}
	c.timeline = timeline.NewAgent(c.nextEpoch(), c.emit, c.now)
	c.emit("timelineProfilerWasStarted", nil)
	return nil
}

// StopTimeline ends the running recording.
func (c *Controller) StopTimeline() {
	if c.timeline == nil {
		return
	}
	c.timeline = nil
	c.emit("timelineProfilerWasStopped", nil)
}

// TimelineEpoch returns the epoch of the running recording, or 0.
func (c *Controller) TimelineEpoch() uint64 { return c.timeline.Epoch() }

func (c *Controller) emitResource(r *resources.Resource) {
	params := value.NewObject()
	params.Set("resource", r.ToValue())
	c.emit("updateResource", params)
}

// ResourceContent returns the body recorded for a resource.
func (c *Controller) ResourceContent(id uint64) (string, error) {
	r, err := c.resources.Get(id)
	if err != nil {
		return "", err
	}
	content, ok := r.Content()
	if !ok {
		return "", NewOperationError("getResourceContent", r.URL, ErrNotSupported)
	}
	return content, nil
}
