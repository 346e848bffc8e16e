// Package animation runs Lua scripts that draw directly on the strip.
package animation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// ChaseScript is the built-in startup animation.
//
//go:embed scripts/chase.lua
var ChaseScript string

// Canvas is what a script draws on. Show pushes the current buffer out.
type Canvas interface {
	Len() int
	Set(i int, c core.RGB)
	Fill(c core.RGB)
	Show()
}

// Engine executes one script at a time against a Canvas.
type Engine struct {
	canvas Canvas
	log    *logrus.Entry
}

// NewEngine creates an engine drawing on canvas.
func NewEngine(canvas Canvas) *Engine {
	return &Engine{
		canvas: canvas,
		log:    logging.For("animation"),
	}
}

// RunFile loads and runs a script from disk.
func (e *Engine) RunFile(ctx context.Context, path string, step time.Duration) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return e.Run(ctx, path, string(code), step)
}

// Run executes code to completion or until ctx is cancelled. step is
// exposed to the script as STEP_MS.
func (e *Engine) Run(ctx context.Context, name, code string, step time.Duration) error {
	log := e.log.WithField("script", name)
	log.Info("starting animation")
	started := time.Now()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(ctx, L)
	L.SetGlobal("STEP_MS", lua.LNumber(step.Milliseconds()))

	if err := L.DoString(code); err != nil {
		if ctx.Err() != nil {
			log.Info("animation cancelled")
			return ctx.Err()
		}
		return fmt.Errorf("animation %s: %w", name, err)
	}
	log.WithField("took", time.Since(started).Round(time.Millisecond)).Info("animation finished")
	return nil
}

// registerGoFunctions exposes the canvas to the given Lua state.
func (e *Engine) registerGoFunctions(ctx context.Context, L *lua.LState) {
	L.SetGlobal("num_pixels", L.NewFunction(e.luaNumPixels))
	L.SetGlobal("set_pixel", L.NewFunction(e.luaSetPixel))
	L.SetGlobal("fill", L.NewFunction(e.luaFill))
	L.SetGlobal("clear", L.NewFunction(e.luaClear))
	L.SetGlobal("show", L.NewFunction(e.luaShow))
	L.SetGlobal("print", L.NewFunction(e.luaPrint))
	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		ms := L.CheckInt(1)
		if cancellableSleep(ctx, time.Duration(ms)*time.Millisecond) {
			L.RaiseError("cancelled")
		}
		return 0
	}))
}

func (e *Engine) luaNumPixels(L *lua.LState) int {
	L.Push(lua.LNumber(e.canvas.Len()))
	return 1
}

// set_pixel(i, r, g, b) with a zero-based index.
func (e *Engine) luaSetPixel(L *lua.LState) int {
	i := L.CheckInt(1)
	e.canvas.Set(i, rgbArgs(L, 2))
	return 0
}

func (e *Engine) luaFill(L *lua.LState) int {
	e.canvas.Fill(rgbArgs(L, 1))
	return 0
}

func (e *Engine) luaClear(L *lua.LState) int {
	e.canvas.Fill(core.RGB{})
	return 0
}

func (e *Engine) luaShow(L *lua.LState) int {
	e.canvas.Show()
	return 0
}

func (e *Engine) luaPrint(L *lua.LState) int {
	e.log.Info(L.ToString(1))
	return 0
}

func rgbArgs(L *lua.LState, first int) core.RGB {
	return core.RGB{
		R: clampByte(L.CheckInt(first)),
		G: clampByte(L.CheckInt(first + 1)),
		B: clampByte(L.CheckInt(first + 2)),
	}
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

// cancellableSleep sleeps for d and reports whether ctx was cancelled first.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() != nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// IsCancelled reports whether err came from a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
