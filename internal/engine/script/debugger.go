package script

import (
	"fmt"

	"github.com/tidwall/pretty"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/protocol/value"
)

// Pauser is told when the program stops and continues.
type Pauser interface {
	DebuggerEnabled() bool
	DidPause(reason string, data *value.Object, callFrames *value.Array)
	DidContinue()
}

// ReasonDebuggerStatement is reported for pauses caused by debugger().
const ReasonDebuggerStatement = "DebuggerStatement"

type pendingPause struct {
	reason string
	data   *value.Object
}

// Debugger suspends the Lua program by running a nested loop on the engine
// goroutine. Scheduled pauses take effect at the next statement boundary,
// which for this host is the next call into or out of the script API.
type Debugger struct {
	loop   *loop.Loop
	L      *lua.LState
	target Pauser
	logger *zap.Logger

	pending *pendingPause
	paused  bool
	resumed bool
	pauses  int
}

var (
	_ inspector.ScriptDebugger = (*Debugger)(nil)
	_ inspector.Resumer        = (*Debugger)(nil)
)

func newDebugger(l *loop.Loop, L *lua.LState, target Pauser, logger *zap.Logger) *Debugger {
	return &Debugger{loop: l, L: L, target: target, logger: logger}
}

// BreakProgram stops immediately.
func (d *Debugger) BreakProgram(reason string, data *value.Object) {
	d.pause(reason, data)
}

// SchedulePauseOnNextStatement arms a pause at the next statement boundary.
func (d *Debugger) SchedulePauseOnNextStatement(reason string, data *value.Object) {
	d.pending = &pendingPause{reason: reason, data: data}
}

// CancelPauseOnNextStatement disarms a scheduled pause.
func (d *Debugger) CancelPauseOnNextStatement() {
	d.pending = nil
}

// Resume lets a paused program continue.
func (d *Debugger) Resume() {
	d.resumed = true
}

// Paused reports whether the program is stopped.
func (d *Debugger) Paused() bool { return d.paused }

// PauseScheduled reports whether a pause is armed.
func (d *Debugger) PauseScheduled() bool { return d.pending != nil }

// Pauses returns the number of pauses taken.
func (d *Debugger) Pauses() int { return d.pauses }

// debuggerStatement stops if a debugger is enabled.
func (d *Debugger) debuggerStatement() {
	if d.target != nil && d.target.DebuggerEnabled() {
		d.pending = nil
		d.pause(ReasonDebuggerStatement, nil)
	}
}

// checkpoint takes an armed pause. The host calls it at every statement
// boundary it can observe.
func (d *Debugger) checkpoint() {
	if p := d.pending; p != nil && !d.paused {
		d.pending = nil
		d.pause(p.reason, p.data)
	}
}

func (d *Debugger) pause(reason string, data *value.Object) {
	if d.paused || d.target == nil {
		return
	}
	frames := d.callFrames()
	if ce := d.logger.Check(zap.DebugLevel, "paused"); ce != nil {
		ce.Write(zap.String("reason", reason), zap.ByteString("frames", pretty.Pretty([]byte(value.Serialize(frames)))))
	}

	d.paused = true
	d.resumed = false
	d.pauses++
	d.target.DidPause(reason, data, frames)

	if err := d.loop.RunNested(func() bool { return d.resumed }); err != nil {
		d.logger.Debug("nested loop ended", zap.Error(err))
	}

	d.paused = false
	d.target.DidContinue()
}

// callFrames describes the Lua stack, innermost first. Go frames are
// skipped.
func (d *Debugger) callFrames() *value.Array {
	frames := value.NewArray()
	for level := 0; ; level++ {
		dbg, ok := d.L.GetStack(level)
		if !ok {
			break
		}
		if _, err := d.L.GetInfo("Sl", dbg, lua.LNil); err != nil {
			break
		}
		if dbg.What == "G" {
			continue
		}
		name := dbg.Name
		switch {
		case name != "":
		case dbg.What == "main":
			name = "(main)"
		default:
			name = "(anonymous)"
		}
		f := value.NewObject()
		f.SetString("id", fmt.Sprintf("frame:%d", frames.Len()))
		f.SetString("type", "function")
		f.SetString("functionName", name)
		f.SetString("url", dbg.Source)
		f.SetInt("line", dbg.CurrentLine)
		frames.Push(f)
	}
	return frames
}
