package inspector

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/inspector/breakpoints"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// ScriptDebugger is the script engine's debugger. BreakProgram suspends the
// engine thread immediately by running a nested message loop; the scheduled
// variants arm or disarm a pause at the next statement boundary.
type ScriptDebugger interface {
	BreakProgram(reason string, data *value.Object)
	SchedulePauseOnNextStatement(reason string, data *value.Object)
	CancelPauseOnNextStatement()
}

// Resumer is implemented by debuggers that can be resumed by the controller.
type Resumer interface {
	Resume()
}

// Pause reasons reported to the debugger.
const (
	ReasonNativeBreakpoint = "NativeBreakpoint"
	ReasonPauseRequested   = "PauseRequested"
)

// Breakpoint detail kinds.
const (
	breakpointDOM           = "DOM"
	breakpointEventListener = "EventListener"
	breakpointXHR           = "XHR"
)

type stickyBreakpoint struct {
	kind    string
	enabled bool
	target  string // event name or URL pattern
}

func (b stickyBreakpoint) toValue() *value.Object {
	cond := value.NewObject()
	if b.kind == breakpointXHR {
		cond.SetString("url", b.target)
	} else {
		cond.SetString("eventName", b.target)
	}
	obj := value.NewObject()
	obj.SetString("type", b.kind)
	obj.SetBool("enabled", b.enabled)
	obj.Set("condition", cond)
	return obj
}

func stickyFromValue(v value.Value) (stickyBreakpoint, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return stickyBreakpoint{}, false
	}
	kind, _ := obj.GetString("type")
	enabled, _ := obj.GetBool("enabled")
	cond, ok := obj.GetObject("condition")
	if !ok {
		return stickyBreakpoint{}, false
	}
	b := stickyBreakpoint{kind: kind, enabled: enabled}
	switch kind {
	case breakpointEventListener:
		b.target, ok = cond.GetString("eventName")
	case breakpointXHR:
		b.target, ok = cond.GetString("url")
	default:
		ok = false
	}
	return b, ok
}

// DebuggerEnabled reports whether the debugger is on for this session.
func (c *Controller) DebuggerEnabled() bool { return c.debuggerEnabled }

// EnableDebugger turns the debugger on. With always set, the choice is
// persisted so the next attach enables it too.
func (c *Controller) EnableDebugger(always bool) {
	if always {
		c.settings[SettingDebuggerEnabled] = "true"
	}
	if c.debuggerEnabled || c.state != StateAttached {
		return
	}
	c.debuggerEnabled = true
	c.emit("debuggerWasEnabled", nil)
}

// DisableDebugger turns the debugger off and forgets the persisted choice.
func (c *Controller) DisableDebugger() {
	delete(c.settings, SettingDebuggerEnabled)
	if !c.debuggerEnabled {
		return
	}
	c.cancelScheduledPause()
	c.debuggerEnabled = false
	c.emit("debuggerWasDisabled", nil)
}

// Pause asks the debugger to stop at the next statement.
func (c *Controller) Pause() error {
	if !c.debuggerEnabled {
		return NewOperationError("pause", "", ErrDebuggerDisabled)
	}
	if c.debugger == nil {
		return NewOperationError("pause", "", ErrNotSupported)
	}
	c.pauseScheduled = true
	c.debugger.SchedulePauseOnNextStatement(ReasonPauseRequested, nil)
	return nil
}

// Resume continues a paused debugger.
func (c *Controller) Resume() error {
	r, ok := c.debugger.(Resumer)
	if !ok {
		return NewOperationError("resume", "", ErrNotSupported)
	}
	if c.paused {
		r.Resume()
	}
	return nil
}

// Paused reports whether the debugger is stopped.
func (c *Controller) Paused() bool { return c.paused }

// DidPause is called by the debugger when execution stops.
func (c *Controller) DidPause(reason string, data *value.Object, callFrames *value.Array) {
	c.paused = true
	c.pauseScheduled = false
	if !c.debuggerEnabled {
		return
	}
	if callFrames == nil {
		callFrames = value.NewArray()
	}
	details := value.NewObject()
	details.Set("callFrames", callFrames)
	if reason != "" {
		details.SetString("reason", reason)
	}
	if data != nil {
		details.Set("data", data)
	}
	params := value.NewObject()
	params.Set("details", details)
	c.emit("pausedScript", params)
}

// DidContinue is called by the debugger when execution resumes.
func (c *Controller) DidContinue() {
	c.paused = false
	if !c.debuggerEnabled {
		return
	}
	c.emit("resumedScript", nil)
}

func (c *Controller) canPause() bool {
	return c.debuggerEnabled && c.debugger != nil
}

func (c *Controller) breakProgram(details *value.Object) {
	if !c.canPause() {
		return
	}
	c.debugger.BreakProgram(ReasonNativeBreakpoint, details)
}

func (c *Controller) schedulePause(details *value.Object) {
	if !c.canPause() {
		return
	}
	c.pauseScheduled = true
	c.debugger.SchedulePauseOnNextStatement(ReasonNativeBreakpoint, details)
}

func (c *Controller) cancelScheduledPause() {
	if !c.pauseScheduled {
		return
	}
	c.pauseScheduled = false
	if c.debugger != nil {
		c.debugger.CancelPauseOnNextStatement()
	}
}

// PauseScheduled reports whether a pause at the next statement is armed.
func (c *Controller) PauseScheduled() bool { return c.pauseScheduled }

// pauseOnEvent schedules a pause when an event listener breakpoint matches.
func (c *Controller) pauseOnEvent(category, event string) {
	if !c.canPause() || !c.matcher.MatchesEventBreakpoint(category, event) {
		return
	}
	details := value.NewObject()
	details.SetString("breakpointType", breakpointEventListener)
	details.SetString("eventName", breakpoints.EventName(category, event))
	c.schedulePause(details)
}

// breakOnEvent breaks immediately when an event listener breakpoint matches.
func (c *Controller) breakOnEvent(category, event string) {
	if !c.canPause() || !c.matcher.MatchesEventBreakpoint(category, event) {
		return
	}
	details := value.NewObject()
	details.SetString("breakpointType", breakpointEventListener)
	details.SetString("eventName", breakpoints.EventName(category, event))
	c.breakProgram(details)
}

// SetEventListenerBreakpoint pauses before listeners for name run. Names have
// the form "category:event".
func (c *Controller) SetEventListenerBreakpoint(name string) error {
	if err := c.matcher.SetEventListener(name); err != nil {
		return NewOperationError("setEventListenerBreakpoint", name, err)
	}
	c.rememberSticky(stickyBreakpoint{kind: breakpointEventListener, enabled: true, target: name})
	return nil
}

// RemoveEventListenerBreakpoint removes an event listener breakpoint.
func (c *Controller) RemoveEventListenerBreakpoint(name string) {
	c.matcher.RemoveEventListener(name)
	c.forgetSticky(breakpointEventListener, name)
}

// SetXHRBreakpoint breaks before requests whose URL contains pattern. An
// empty pattern matches every request.
func (c *Controller) SetXHRBreakpoint(pattern string) {
	c.matcher.SetXHR(pattern)
	c.rememberSticky(stickyBreakpoint{kind: breakpointXHR, enabled: true, target: pattern})
}

// RemoveXHRBreakpoint removes an XHR breakpoint.
func (c *Controller) RemoveXHRBreakpoint(pattern string) {
	c.matcher.RemoveXHR(pattern)
	c.forgetSticky(breakpointXHR, pattern)
}

func (c *Controller) rememberSticky(b stickyBreakpoint) {
	for i, s := range c.sticky {
		if s.kind == b.kind && s.target == b.target {
			c.sticky[i] = b
			c.saveStickyBreakpoints()
			return
		}
	}
	c.sticky = append(c.sticky, b)
	c.saveStickyBreakpoints()
}

func (c *Controller) forgetSticky(kind, target string) {
	for i, s := range c.sticky {
		if s.kind == kind && s.target == target {
			c.sticky = append(c.sticky[:i], c.sticky[i+1:]...)
			c.saveStickyBreakpoints()
			return
		}
	}
}

// SetStickyBreakpoints replaces the persisted breakpoint list. The list is
// applied on the next attach.
func (c *Controller) SetStickyBreakpoints(ctx context.Context, list *value.Array) error {
	c.sticky = c.sticky[:0]
	for i := 0; i < list.Len(); i++ {
		item, _ := list.Get(i)
		b, ok := stickyFromValue(item)
		if !ok {
			c.logger.Warn("skipping malformed sticky breakpoint", zap.Int("index", i))
			continue
		}
		c.sticky = append(c.sticky, b)
	}
	c.saveStickyBreakpoints()
	return c.saveSettings(ctx)
}

// saveStickyBreakpoints writes the sticky list into the settings map. The
// map reaches the store on detach or the next write-through.
func (c *Controller) saveStickyBreakpoints() {
	if len(c.sticky) == 0 {
		delete(c.settings, SettingStickyBreakpoints)
		return
	}
	arr := value.NewArray()
	for _, b := range c.sticky {
		arr.Push(b.toValue())
	}
	c.settings[SettingStickyBreakpoints] = value.Serialize(arr)
}

// restoreStickyBreakpoints reinstalls the persisted breakpoints into the
// matcher. Items that cannot be installed are logged and skipped.
func (c *Controller) restoreStickyBreakpoints() {
	c.sticky = nil
	blob, ok := c.settings[SettingStickyBreakpoints]
	if !ok || blob == "" {
		return
	}
	v, err := value.Parse(blob)
	if err != nil {
		c.logger.Warn("discarding unreadable sticky breakpoints", zap.Error(err))
		return
	}
	list, ok := v.AsArray()
	if !ok {
		c.logger.Warn("discarding sticky breakpoints", zap.String("type", v.Type().String()))
		return
	}
	for i := 0; i < list.Len(); i++ {
		item, _ := list.Get(i)
		b, ok := stickyFromValue(item)
		if !ok {
			c.logger.Warn("skipping malformed sticky breakpoint", zap.Int("index", i))
			continue
		}
		if b.enabled {
			if !c.installSticky(b) {
				continue
			}
		}
		c.sticky = append(c.sticky, b)
	}
}

func (c *Controller) installSticky(b stickyBreakpoint) bool {
	switch b.kind {
	case breakpointEventListener:
		if err := c.matcher.SetEventListener(b.target); err != nil {
			c.logger.Warn("skipping sticky breakpoint",
				zap.String("eventName", b.target), zap.Error(err))
			return false
		}
	case breakpointXHR:
		c.matcher.SetXHR(b.target)
	}
	return true
}
