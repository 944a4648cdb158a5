package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/permgate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(&config.LogConfig{Level: "debug", Format: "json", Output: "file", Filename: path, MaxSize: 1})
	require.NoError(t, err)

	l.Info("权限索引已重建", zap.Int("entries", 3))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "权限索引已重建")
	assert.Contains(t, string(data), `"entries":3`)
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(&config.LogConfig{Level: "info"}))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))

	SetLevel("debug")
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))
	SetLevel("info")
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseGormLevel("silent"))
	assert.Equal(t, gormlogger.Info, parseGormLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseGormLevel("unknown"))
}
