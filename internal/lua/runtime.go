// Package lua hosts the device-control loop as a Lua script.
//
// A script defines a global update(dt_ms) function called once per control
// period. Persisted filter values are exposed in the global state table under
// their storage keys; values left there as numbers are persisted at drain.
// The script may require "log" and "pins".
package lua

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/duskd/internal/control"
	"github.com/dokzlo13/duskd/internal/lua/modules"
)

// ErrNoUpdateFunction is returned when a script does not define update.
var ErrNoUpdateFunction = errors.New("lua script does not define update(dt_ms)")

// ErrRuntimeClosed is returned when the Lua state is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Looper runs a control script. It implements control.Looper.
type Looper struct {
	mu     sync.Mutex
	L      *lua.LState
	keys   []string
	state  *lua.LTable
	update *lua.LFunction
	closed bool
}

// NewLooper creates a Lua state with the log and pins modules registered.
func NewLooper(pins control.Pins, keys []string) *Looper {
	L := lua.NewState()

	l := &Looper{
		L:     L,
		keys:  keys,
		state: L.NewTable(),
	}

	L.PreloadModule("log", modules.NewLogModule("control").Loader)
	L.PreloadModule("pins", modules.NewPinsModule(pins).Loader)
	L.SetGlobal("state", l.state)

	return l
}

// LoadScript executes the script file and resolves its update function.
func (l *Looper) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading control script")
	return l.load(func() error { return l.L.DoFile(path) })
}

// LoadString executes script source and resolves its update function.
func (l *Looper) LoadString(source string) error {
	return l.load(func() error { return l.L.DoString(source) })
}

func (l *Looper) load(do func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrRuntimeClosed
	}
	if err := do(); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	fn, ok := l.L.GetGlobal("update").(*lua.LFunction)
	if !ok {
		return ErrNoUpdateFunction
	}
	l.update = fn
	return nil
}

// Update calls update(dt_ms).
func (l *Looper) Update(delta time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrRuntimeClosed
	}
	if l.update == nil {
		return ErrNoUpdateFunction
	}

	err := l.L.CallByParam(lua.P{
		Fn:      l.update,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(delta.Milliseconds()))
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

// Restore writes persisted values into the state table.
func (l *Looper) Restore(s control.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range s {
		l.state.RawSetString(k, lua.LNumber(v))
	}
}

// Snapshot reads the owned keys back from the state table. Keys the script
// cleared or set to a non-number are omitted.
func (l *Looper) Snapshot() control.State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := control.State{}
	for _, k := range l.keys {
		if n, ok := l.state.RawGetString(k).(lua.LNumber); ok {
			out[k] = int64(n)
		}
	}
	return out
}

// Keys returns the storage keys owned by the script.
func (l *Looper) Keys() []string {
	return l.keys
}

// Close releases the Lua state.
func (l *Looper) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		l.L.Close()
	}
}
