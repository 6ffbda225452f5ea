package script

import (
	"context"
	"errors"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/dshills/webinspector/internal/engine/loop"
	"github.com/dshills/webinspector/internal/engine/page"
	"github.com/dshills/webinspector/internal/inspector"
	"github.com/dshills/webinspector/internal/inspector/console"
)

const nodeTypeName = "Node"

// Options configures a Host.
type Options struct {
	// Context aborts running scripts once done.
	Context context.Context
	Logger  *zap.Logger
}

// Host runs Lua scripts against a page.
type Host struct {
	state  *State
	page   *page.Page
	ins    *inspector.Instrumentation
	dbg    *Debugger
	logger *zap.Logger
	ctx    context.Context
}

// NewHost creates a host for p and installs it as the page's script runner.
// target receives pause notifications; it is normally the inspector
// controller, which must also be given h.Debugger().
func NewHost(l *loop.Loop, p *page.Page, target Pauser, opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	h := &Host{
		state:  NewState(WithContext(opts.Context)),
		page:   p,
		ins:    p.Instrumentation(),
		logger: opts.Logger,
		ctx:    opts.Context,
	}
	h.dbg = newDebugger(l, h.state.L, target, opts.Logger.Named("debugger"))
	h.install()
	p.SetScriptRunner(h.Run)
	return h
}

// Debugger returns the host's script debugger.
func (h *Host) Debugger() *Debugger { return h.dbg }

// State returns the host's Lua state.
func (h *Host) State() *State { return h.state }

// Run evaluates src as the script at url.
func (h *Host) Run(url, src string) error {
	h.dbg.checkpoint()
	if err := h.state.Run(url, src); err != nil {
		return errors.New(errorText(err))
	}
	return nil
}

// Eval evaluates src as a top-level script of the page.
func (h *Host) Eval(url, src string) error {
	return h.page.EvaluateScript(url, 1, func() error { return h.Run(url, src) })
}

// Close releases the Lua state.
func (h *Host) Close() { h.state.Close() }

// invoke calls a script callback from the engine, reporting errors to the
// console.
func (h *Host) invoke(fn *lua.LFunction, args ...lua.LValue) {
	source, line := h.page.URL(), 0
	if !fn.IsG && fn.Proto != nil {
		source, line = fn.Proto.SourceName, fn.Proto.LineDefined
	}
	k := h.ins.WillCallFunction(source, line)
	h.dbg.checkpoint()
	if err := h.state.Call(fn, args...); err != nil {
		h.logger.Debug("callback failed", zap.String("source", source), zap.Error(err))
		h.page.ReportError(source, line, errors.New(errorText(err)))
	}
	h.ins.DidCallFunction(k)
}

// api wraps a script API function so every call is a statement boundary.
func (h *Host) api(fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		h.dbg.checkpoint()
		return fn(L)
	}
}

// where returns the source and line of the innermost Lua frame.
func (h *Host) where(L *lua.LState) (string, int) {
	for level := 0; ; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			return h.page.URL(), 0
		}
		if _, err := L.GetInfo("Sl", dbg, lua.LNil); err != nil {
			return h.page.URL(), 0
		}
		if dbg.What != "G" {
			return dbg.Source, dbg.CurrentLine
		}
	}
}

func (h *Host) install() {
	h.installConsole()
	h.installDocument()
	h.installWindow()
}

func (h *Host) installConsole() {
	logAt := func(level console.Level) lua.LGFunction {
		return h.api(func(L *lua.LState) int {
			url, line := h.where(L)
			h.ins.AddMessageToConsole(console.Message{
				Source: console.SourceJS,
				Kind:   console.KindLog,
				Level:  level,
				Text:   messageText(L),
				Line:   line,
				URL:    url,
			})
			return 0
		})
	}
	logFn := logAt(console.LevelLog)

	h.state.RegisterModule("console", map[string]lua.LGFunction{
		"log":   logFn,
		"debug": logAt(console.LevelDebug),
		"warn":  logAt(console.LevelWarning),
		"error": logAt(console.LevelError),
		"time": h.api(func(L *lua.LState) int {
			h.ins.StartConsoleTiming(L.OptString(1, "default"))
			return 0
		}),
		"timeEnd": h.api(func(L *lua.LState) int {
			url, line := h.where(L)
			h.ins.StopConsoleTiming(L.OptString(1, "default"), url, line)
			return 0
		}),
		"count": h.api(func(L *lua.LState) int {
			url, line := h.where(L)
			h.ins.ConsoleCount(L.OptString(1, ""), url, line)
			return 0
		}),
		"markTimeline": h.api(func(L *lua.LState) int {
			h.ins.MarkTimeline(L.OptString(1, ""))
			return 0
		}),
	})
	h.state.SetGlobal("print", h.state.L.NewFunction(logFn))
}

func (h *Host) installDocument() {
	L := h.state.L
	mt := L.NewTypeMetatable(nodeTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"appendChild":      h.api(h.nodeAppendChild),
		"insertBefore":     h.api(h.nodeInsertBefore),
		"remove":           h.api(h.nodeRemove),
		"setAttribute":     h.api(h.nodeSetAttribute),
		"removeAttribute":  h.api(h.nodeRemoveAttribute),
		"getAttribute":     h.api(h.nodeGetAttribute),
		"setText":          h.api(h.nodeSetText),
		"addEventListener": h.api(h.nodeAddEventListener),
		"dispatchEvent":    h.api(h.nodeDispatchEvent),
		"tag":              h.api(h.nodeTag),
		"parent":           h.api(h.nodeParent),
	}))
	L.SetField(mt, "__eq", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(h.checkNode(L, 1) == h.checkNode(L, 2)))
		return 1
	}))

	h.state.RegisterModule("document", map[string]lua.LGFunction{
		"getElementById": h.api(func(L *lua.LState) int {
			L.Push(h.pushNode(h.page.ElementByID(L.CheckString(1))))
			return 1
		}),
		"createElement": h.api(func(L *lua.LState) int {
			L.Push(h.pushNode(h.page.CreateElement(L.CheckString(1))))
			return 1
		}),
		"createTextNode": h.api(func(L *lua.LState) int {
			L.Push(h.pushNode(h.page.CreateTextNode(L.CheckString(1))))
			return 1
		}),
		"body": h.api(func(L *lua.LState) int {
			L.Push(h.pushNode(h.page.Body()))
			return 1
		}),
	})
}

func (h *Host) installWindow() {
	timer := func(singleShot bool) lua.LGFunction {
		return h.api(func(L *lua.LState) int {
			fn := L.CheckFunction(1)
			ms := L.OptNumber(2, 0)
			id := h.page.SetTimer(func() { h.invoke(fn) }, time.Duration(float64(ms)*float64(time.Millisecond)), singleShot)
			L.Push(lua.LNumber(id))
			return 1
		})
	}
	clearTimer := h.api(func(L *lua.LState) int {
		L.Push(lua.LBool(h.page.ClearTimer(L.CheckInt(1))))
		return 1
	})

	funcs := map[string]lua.LGFunction{
		"setTimeout":    timer(true),
		"setInterval":   timer(false),
		"clearTimeout":  clearTimer,
		"clearInterval": clearTimer,
		"addEventListener": h.api(func(L *lua.LState) int {
			eventType, fn := L.CheckString(1), L.CheckFunction(2)
			h.page.AddEventListener(nil, eventType, func(page.Event) {
				h.invoke(fn, lua.LString(eventType))
			})
			return 0
		}),
		"dispatchEvent": h.api(func(L *lua.LState) int {
			L.Push(lua.LNumber(h.page.DispatchWindowEvent(L.CheckString(1))))
			return 1
		}),
		"xhr":          h.api(h.xhr),
		"importScript": h.api(h.importScript),
		"debugger": h.api(func(L *lua.LState) int {
			h.dbg.debuggerStatement()
			return 0
		}),
	}
	for name, fn := range funcs {
		h.state.SetGlobal(name, h.state.L.NewFunction(fn))
	}
}

// xhr(method, url, body, callback) sends a request; callback receives
// status, body and an error message.
func (h *Host) xhr(L *lua.LState) int {
	method := L.CheckString(1)
	url := L.CheckString(2)
	body := L.OptString(3, "")
	fn := L.OptFunction(4, nil)

	id, err := h.page.SendXHR(method, url, body, func(r page.XHRResult) {
		if fn == nil {
			return
		}
		errText := lua.LValue(lua.LNil)
		if r.Err != nil {
			errText = lua.LString(r.Err.Error())
		}
		h.invoke(fn, lua.LNumber(r.Status), lua.LString(r.Body), errText)
	})
	if err != nil {
		L.RaiseError("xhr: %v", err)
		return 0
	}
	L.Push(lua.LNumber(id))
	return 1
}

// importScript(url) loads and runs another script.
func (h *Host) importScript(L *lua.LState) int {
	url := L.CheckString(1)
	src, err := h.page.ImportScript(h.ctx, url)
	if err != nil {
		L.RaiseError("importScript: %v", err)
		return 0
	}
	fn, err := L.Load(strings.NewReader(src), url)
	if err != nil {
		L.RaiseError("importScript: %v", err)
		return 0
	}
	L.Push(fn)
	L.Call(0, 0)
	return 0
}

func (h *Host) pushNode(n *html.Node) lua.LValue {
	if n == nil {
		return lua.LNil
	}
	ud := h.state.L.NewUserData()
	ud.Value = n
	h.state.L.SetMetatable(ud, h.state.L.GetTypeMetatable(nodeTypeName))
	return ud
}

func (h *Host) checkNode(L *lua.LState, n int) *html.Node {
	ud := L.CheckUserData(n)
	node, ok := ud.Value.(*html.Node)
	if !ok {
		L.ArgError(n, "node expected")
		return nil
	}
	return node
}

func (h *Host) optNode(L *lua.LState, n int) *html.Node {
	if L.Get(n) == lua.LNil {
		return nil
	}
	return h.checkNode(L, n)
}

// raise turns a page error into a Lua error.
func raise(L *lua.LState, err error) int {
	if err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Host) nodeAppendChild(L *lua.LState) int {
	return raise(L, h.page.AppendChild(h.checkNode(L, 1), h.checkNode(L, 2)))
}

func (h *Host) nodeInsertBefore(L *lua.LState) int {
	return raise(L, h.page.InsertBefore(h.checkNode(L, 1), h.checkNode(L, 2), h.optNode(L, 3)))
}

func (h *Host) nodeRemove(L *lua.LState) int {
	return raise(L, h.page.RemoveNode(h.checkNode(L, 1)))
}

func (h *Host) nodeSetAttribute(L *lua.LState) int {
	return raise(L, h.page.SetAttribute(h.checkNode(L, 1), L.CheckString(2), L.CheckString(3)))
}

func (h *Host) nodeRemoveAttribute(L *lua.LState) int {
	return raise(L, h.page.RemoveAttribute(h.checkNode(L, 1), L.CheckString(2)))
}

func (h *Host) nodeGetAttribute(L *lua.LState) int {
	n := h.checkNode(L, 1)
	name := L.CheckString(2)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			L.Push(lua.LString(a.Val))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

func (h *Host) nodeSetText(L *lua.LState) int {
	n := h.checkNode(L, 1)
	text := L.CheckString(2)
	if n.Type == html.ElementNode {
		return raise(L, h.page.SetTextContent(n, text))
	}
	return raise(L, h.page.SetTextNodeValue(n, text))
}

func (h *Host) nodeAddEventListener(L *lua.LState) int {
	n := h.checkNode(L, 1)
	eventType, fn := L.CheckString(2), L.CheckFunction(3)
	h.page.AddEventListener(n, eventType, func(e page.Event) {
		h.invoke(fn, lua.LString(e.Type), h.pushNode(e.Target))
	})
	return 0
}

func (h *Host) nodeDispatchEvent(L *lua.LState) int {
	L.Push(lua.LNumber(h.page.DispatchEvent(h.checkNode(L, 1), L.CheckString(2))))
	return 1
}

func (h *Host) nodeTag(L *lua.LState) int {
	n := h.checkNode(L, 1)
	if n.Type != html.ElementNode {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(n.Data))
	return 1
}

func (h *Host) nodeParent(L *lua.LState) int {
	L.Push(h.pushNode(h.checkNode(L, 1).Parent))
	return 1
}
