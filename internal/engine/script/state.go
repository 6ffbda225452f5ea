// Package script hosts page scripts written in Lua. The host exposes a small
// DOM, console and timer API backed by a page, and implements the
// inspector's script debugger by suspending in a nested loop.
package script

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// State wraps gopher-lua with a sandboxed standard library.
//
// gopher-lua's LState is not goroutine-safe. A State belongs to the loop
// goroutine and is never shared.
type State struct {
	L *lua.LState

	ctx    context.Context
	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithContext makes running scripts abort with an error once ctx is done.
func WithContext(ctx context.Context) StateOption {
	return func(s *State) {
		s.ctx = ctx
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	if s.ctx != nil {
		L.SetContext(s.ctx)
	}
	s.L = L

	openSafeLibraries(L)
	installSandbox(L)
	return s
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Not opened: io, os, debug, package, channel, coroutine.
}

// installSandbox removes base functions that load code from disk or strings.
func installSandbox(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Run compiles src under the chunk name and executes it.
func (s *State) Run(name, src string) error {
	if s.closed {
		return ErrStateClosed
	}
	fn, err := s.L.Load(strings.NewReader(src), name)
	if err != nil {
		return err
	}
	return s.Call(fn)
}

// Call calls fn with args in protected mode, discarding results.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) (err error) {
	if s.closed {
		return ErrStateClosed
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, v lua.LValue) {
	if s.closed {
		return
	}
	s.L.SetGlobal(name, v)
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// RegisterModule registers a global table with the given functions.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) *lua.LTable {
	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
	return mod
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool { return s.closed }

// Close releases the Lua state.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
