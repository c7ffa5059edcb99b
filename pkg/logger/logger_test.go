package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_JSON格式(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	WithComponent("Executor").Debug("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Executor", line["component"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "debug", line["level"])
}

func TestInit_无效级别回退到Info(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "verbose"}, &buf)
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())

	InitWithWriter(Config{Level: "WARN"}, &buf)
	assert.Equal(t, logrus.WarnLevel, GetLogger().GetLevel())
}

func TestErrorf_启动前输出(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Format: "json"}, &buf)

	Errorf("load config: %v", "missing file")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "load config: missing file", line["msg"])
}

func TestInitFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBUG", "1")
	t.Setenv("LOG_FORMAT", "text")
	InitFromEnv()
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
}
