package modules

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LogModule bridges log.<level>(msg, fields?) to zerolog.
type LogModule struct {
	source string
}

// NewLogModule creates a log module tagging every event with source.
func NewLogModule(source string) *LogModule {
	return &LogModule{source: source}
}

// Loader is the module loader for Lua
func (m *LogModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(m.at(zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(m.at(zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(m.at(zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(m.at(zerolog.ErrorLevel)))

	L.Push(mod)
	return 1
}

func (m *LogModule) at(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)

		event := log.WithLevel(level).Str("source", m.source)
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(key, value lua.LValue) {
				event = withField(event, lua.LVAsString(key), value)
			})
		}
		event.Msg(msg)

		return 0
	}
}

// withField adds a typed field. Integral numbers are logged as integers
// since the control script deals in milliseconds and pin numbers.
func withField(event *zerolog.Event, key string, v lua.LValue) *zerolog.Event {
	switch val := v.(type) {
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return event.Int64(key, int64(f))
		}
		return event.Float64(key, f)
	case lua.LBool:
		return event.Bool(key, bool(val))
	case lua.LString:
		return event.Str(key, string(val))
	case *lua.LNilType:
		return event.Interface(key, nil)
	default:
		return event.Str(key, v.String())
	}
}
