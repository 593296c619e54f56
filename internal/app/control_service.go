package app

import (
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/control"
	luart "github.com/dokzlo13/duskd/internal/lua"
)

// ControlService owns the control loop and the script behind it.
type ControlService struct {
	Runner *control.Runner
	Pins   control.Pins
	lua    *luart.Looper
}

// NewControlService builds the control loop. With no script configured the
// loop only carries the filter state through the cycle.
func NewControlService(cfg config.ControlConfig) (*ControlService, error) {
	pins := control.NewMemoryPins()

	if cfg.Script == "" {
		return &ControlService{
			Runner: control.NewRunner(control.NewIdleLooper(control.FilterKeys), cfg.Period.Duration()),
			Pins:   pins,
		}, nil
	}

	looper := luart.NewLooper(pins, control.FilterKeys)
	if err := looper.LoadScript(cfg.Script); err != nil {
		looper.Close()
		return nil, err
	}

	return &ControlService{
		Runner: control.NewRunner(looper, cfg.Period.Duration()),
		Pins:   pins,
		lua:    looper,
	}, nil
}

// Close releases the Lua state. The runner must be drained first.
func (s *ControlService) Close() {
	if s.lua != nil {
		s.lua.Close()
	}
}
