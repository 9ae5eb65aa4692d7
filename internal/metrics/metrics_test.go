package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFileAndStage(t *testing.T) {
	m := New("run-1")

	m.ObserveFile("log_data", 10, 2)
	m.ObserveFile("log_data", 5, 0)
	m.ObserveStage("join_song_title", 15, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesLoaded.WithLabelValues("log_data")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.recordsLoaded.WithLabelValues("log_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsBad.WithLabelValues("log_data")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.stageRowsIn.WithLabelValues("join_song_title")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageRowsOut.WithLabelValues("join_song_title")))
}

func TestObserveWriteAndRun(t *testing.T) {
	m := New("run-1")

	m.ObserveWrite("songs", 71, 69, 4096)
	m.ObservePhase("song_data", 1500*time.Millisecond)
	m.ObserveRun(3*time.Second, nil)

	assert.Equal(t, 71.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("songs")))
	assert.Equal(t, 69.0, testutil.ToFloat64(m.filesWritten.WithLabelValues("songs")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.bytesWritten.WithLabelValues("songs")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.phaseDuration.WithLabelValues("song_data")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.runDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runFailed))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)

	m.ObserveRun(time.Second, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runFailed))
}

func TestWriteTextfile(t *testing.T) {
	m := New("run-1")
	m.ObserveWrite("users", 3, 1, 100)

	path := filepath.Join(t.TempDir(), "metrics", "playlake.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `playlake_rows_written_total{run_id="run-1",table="users"} 3`), string(content))

	// empty path disables the dump
	assert.NoError(t, m.WriteTextfile(""))
}

func TestNilPipeline(t *testing.T) {
	var m *Pipeline

	m.ObserveFile("song_data", 1, 0)
	m.ObserveWrite("songs", 1, 1, 1)
	m.ObserveStage("x", 1, 1)
	m.ObservePhase("x", time.Second)
	m.ObserveRun(time.Second, nil)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
