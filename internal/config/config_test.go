package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
App:
  Addr: ":9000"
Serial:
  PortName: /dev/ttyUSB0
  BaudRate: 9600
  Parity: even
  StopBits: "2"
  Enabled: true
NSQ:
  ProducerAddr: "127.0.0.1:4150"
  ProducerEnabled: true
Storage:
  RedisAddr: "127.0.0.1:6379"
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMustLoadAppliesDefaults(t *testing.T) {
	config := MustLoad(writeTempConfig(t, sampleConfig))

	// 显式配置的字段保持不变
	assert.Equal(t, ":9000", config.App.Addr)
	assert.Equal(t, "/dev/ttyUSB0", config.Serial.PortName)
	assert.Equal(t, 9600, config.Serial.BaudRate)
	assert.Equal(t, "even", config.Serial.Parity)
	assert.Equal(t, "2", config.Serial.StopBits)
	assert.True(t, config.Serial.Enabled)

	// 未配置的字段回填默认值
	assert.Equal(t, DefaultRequestTimeout, config.App.RequestTimeout)
	assert.Equal(t, DefaultSerialDataBits, config.Serial.DataBits)
	assert.Equal(t, DefaultSerialDriver, config.Serial.Driver)
	assert.Equal(t, DefaultInboundTopic, config.NSQ.InboundTopic)
	assert.Equal(t, DefaultOutboundTopic, config.NSQ.OutboundTopic)
	assert.Equal(t, DefaultNSQChannel, config.NSQ.Channel)
	assert.Equal(t, DefaultNSQMaxInFlight, config.NSQ.MaxInFlight)
	assert.Equal(t, DefaultRedisNamespace, config.Storage.Namespace)
	assert.Equal(t, int64(DefaultMaxKeepFrames), config.Storage.MaxKeep)
	assert.Equal(t, time.Duration(DefaultFrameTTL), config.Storage.TTL)
	assert.Equal(t, DefaultAsyncBatchSize, config.Storage.AsyncSync.BatchSize)
}

func TestMustLoadPanicsOnInvalidDataBits(t *testing.T) {
	path := writeTempConfig(t, "Serial:\n  DataBits: 9\n")
	assert.Panics(t, func() { MustLoad(path) })
}

func TestMustLoadPanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/nonexistent/app.yaml") })
}
