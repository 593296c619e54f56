package modules

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/duskd/internal/control"
)

// PinsModule exposes binary pin I/O to Lua
type PinsModule struct {
	pins control.Pins
}

// NewPinsModule creates a pins module over the given pin bank
func NewPinsModule(pins control.Pins) *PinsModule {
	return &PinsModule{pins: pins}
}

// Loader is the module loader for Lua
func (m *PinsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "read", L.NewFunction(m.read))
	L.SetField(mod, "write", L.NewFunction(m.write))

	L.Push(mod)
	return 1
}

// read(pin) -> bool
func (m *PinsModule) read(L *lua.LState) int {
	pin := L.CheckInt(1)

	level, err := m.pins.Read(pin)
	if err != nil {
		L.RaiseError("pins.read(%d): %s", pin, err.Error())
		return 0
	}

	L.Push(lua.LBool(level))
	return 1
}

// write(pin, level)
func (m *PinsModule) write(L *lua.LState) int {
	pin := L.CheckInt(1)
	level := L.ToBool(2)

	if err := m.pins.Write(pin, level); err != nil {
		L.RaiseError("pins.write(%d): %s", pin, err.Error())
	}
	return 0
}
