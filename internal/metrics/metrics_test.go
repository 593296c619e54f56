package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ObserveFetch(t *testing.T) {
	r := New()

	r.ObserveFetch("today", errors.New("refused"))
	r.ObserveFetch("today", errors.New("refused"))
	r.ObserveFetch("today", nil)
	r.ObserveFetch("tomorrow", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("today", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("today", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("tomorrow", "ok")))
}

func TestRegistry_SetPhase(t *testing.T) {
	r := New()

	r.SetPhase("after_sunset")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Phase.WithLabelValues("after_sunset")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Phase.WithLabelValues("daytime")))

	r.SetPhase("daytime")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Phase.WithLabelValues("after_sunset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Phase.WithLabelValues("daytime")))
}

func TestRegistry_WriteTextfile(t *testing.T) {
	r := New()
	r.Boots.Set(12)
	r.RecordSleep(27900, true, 1741600000)

	path := filepath.Join(t.TempDir(), "duskd.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duskd_boots 12")
	assert.Contains(t, string(data), "duskd_sleep_seconds 27900")
	assert.Contains(t, string(data), "duskd_sleep_interval_valid 1")

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "duskd.prom")))
}

func TestRegistry_GathererIsPrivate(t *testing.T) {
	a, b := New(), New()
	a.ObserveFetch("today", nil)

	n, err := testutil.GatherAndCount(a.Gatherer(), "duskd_suntime_fetch_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(b.Gatherer(), "duskd_suntime_fetch_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
