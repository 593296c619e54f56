package modules

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestLogModule_TypedFields(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	L := lua.NewState()
	defer L.Close()
	L.PreloadModule("log", NewLogModule("control").Loader)

	require.NoError(t, L.DoString(`
		local log = require("log")
		log.warn("walk finished", { elapsed_ms = 7000, ratio = 0.5, key = "s_dfilter", lit = true })
	`))

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))

	assert.Equal(t, "warn", event["level"])
	assert.Equal(t, "walk finished", event["message"])
	assert.Equal(t, "control", event["source"])
	assert.Equal(t, float64(7000), event["elapsed_ms"])
	assert.Equal(t, 0.5, event["ratio"])
	assert.Equal(t, "s_dfilter", event["key"])
	assert.Equal(t, true, event["lit"])
}

func TestLogModule_MessageRequired(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	L.PreloadModule("log", NewLogModule("control").Loader)

	assert.Error(t, L.DoString(`require("log").info()`))
}
