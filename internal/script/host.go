package script

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/event"
	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Host runs Lua scripts against one document.
//
// gopher-lua's LState is not goroutine-safe. A Host serializes its own
// calls, and it is meant to be the only writer of its document: handle
// getters read the sprite without taking the document lock.
type Host struct {
	mu     sync.Mutex
	L      *lua.LState
	doc    *engine.Document
	logger *zap.Logger
	out    io.Writer

	ctx context.Context // set while a chunk runs
	tx  *engine.Transaction

	listeners  []listener
	pending    []event.Event
	pendingMu  sync.Mutex
	sub        event.Subscription
	subscribed bool

	closed bool
}

type listener struct {
	pattern topic.Topic
	fn      *lua.LFunction
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for script diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithOutput redirects Lua's print. By default output is discarded.
func WithOutput(w io.Writer) Option {
	return func(h *Host) {
		if w != nil {
			h.out = w
		}
	}
}

// NewHost creates a sandboxed Lua state bound to doc.
func NewHost(doc *engine.Document, opts ...Option) *Host {
	h := &Host{
		doc:    doc,
		logger: zap.NewNop(),
		out:    io.Discard,
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.Stringer("document", doc.ID()))

	h.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(h.L)
	h.installSandbox()
	h.registerTypes()
	h.L.SetGlobal("sprite", h.spriteModule())
	return h
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// io, os, debug and package stay closed.
}

// installSandbox removes loaders that reach the file system and routes
// print to the host's writer.
func (h *Host) installSandbox() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		h.L.SetGlobal(name, lua.LNil)
	}
	h.L.SetGlobal("print", h.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		fmt.Fprintln(h.out, strings.Join(parts, "\t"))
		return 0
	}))
}

// Document returns the document scripts edit.
func (h *Host) Document() *engine.Document { return h.doc }

// DoString executes a Lua chunk. Cancelling ctx stops the script.
func (h *Host) DoString(ctx context.Context, code string) error {
	return h.run(ctx, func() error { return h.L.DoString(code) })
}

// DoFile executes a Lua file. The file is read by the host; scripts
// themselves cannot open files.
func (h *Host) DoFile(ctx context.Context, path string) error {
	return h.run(ctx, func() error { return h.L.DoFile(path) })
}

func (h *Host) run(ctx context.Context, fn func() error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}

	h.ctx = ctx
	h.L.SetContext(ctx)
	defer func() {
		h.L.RemoveContext()
		h.ctx = context.Background()
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the Lua state. The document stays open.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.subscribed {
		_ = h.doc.Bus().Unsubscribe(h.sub)
	}
	h.L.Close()
}

// on registers fn for document events matching pattern. Events are queued
// by the bus handler and delivered on the script's goroutine after the
// operation that caused them.
func (h *Host) on(pattern topic.Topic, fn *lua.LFunction) error {
	if !pattern.IsValid() {
		return event.ErrInvalidTopic
	}
	if !h.subscribed {
		sub, err := h.doc.Bus().Subscribe("doc.**", func(_ context.Context, ev event.Event) error {
			if ev.Document != h.doc.ID() {
				return nil
			}
			h.pendingMu.Lock()
			h.pending = append(h.pending, ev)
			h.pendingMu.Unlock()
			return nil
		})
		if err != nil {
			return err
		}
		h.sub = sub
		h.subscribed = true
	}
	h.listeners = append(h.listeners, listener{pattern: pattern, fn: fn})
	return nil
}

// deliver calls listeners for queued events. Errors in a listener are
// raised into the calling script.
func (h *Host) deliver(L *lua.LState) {
	for {
		h.pendingMu.Lock()
		evs := h.pending
		h.pending = nil
		h.pendingMu.Unlock()
		if len(evs) == 0 {
			return
		}
		for _, ev := range evs {
			for _, ln := range h.listeners {
				if !ev.Topic.Matches(ln.pattern) {
					continue
				}
				L.Push(ln.fn)
				L.Push(lua.LString(ev.Topic))
				L.Call(1, 0)
			}
		}
	}
}
