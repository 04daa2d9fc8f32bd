package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-gateway/internal/config"
	"qa-gateway/internal/redistest"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		level   logrus.Level
		json    bool
		wantErr bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}, level: logrus.InfoLevel},
		{name: "debug json", cfg: config.LoggingConfig{Level: "debug", Format: "JSON"}, level: logrus.DebugLevel, json: true},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := newLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, l.GetLevel())
			_, isJSON := l.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "cdef", maskKey("gsk_abcdef"))
	assert.Equal(t, "abc", maskKey("abc"))
}

func TestPrintPing(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printPing(&out, `{"id":"x"}`, nil))
	assert.Contains(t, out.String(), "\"id\": \"x\"")

	out.Reset()
	err := printPing(&out, "", errors.New("dial tcp: refused"))
	assert.Error(t, err)
	assert.Contains(t, out.String(), "dial tcp: refused")
	assert.NotContains(t, out.String(), "status code")
}

func TestStatsCommandOnEmptyStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "bolt")
	t.Setenv("DB_PATH", filepath.Join(dir, "qa.bolt"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(dir, "missing.yaml"), "stats"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"records": 0`)
	assert.Contains(t, out.String(), `"frequency_threshold": 3`)
}

func TestComponentsCloseLogsThroughOwnLogger(t *testing.T) {
	_, mr := redistest.New(t)
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "bolt", Path: filepath.Join(t.TempDir(), "qa.bolt")}
	cfg.Redis.Addr = mr.Addr()
	logger, hook := test.NewNullLogger()

	c, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, c.rdb)

	// a second close of the redis client fails and must be reported
	require.NoError(t, c.rdb.Close())
	c.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "closing redis", entry.Message)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
}
