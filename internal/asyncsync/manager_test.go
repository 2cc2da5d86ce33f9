package asyncsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial-gateway/internal/config"
	"serial-gateway/internal/database"
)

func TestDisabledManagerIsNoop(t *testing.T) {
	manager := NewManager(nil, config.AsyncConfig{Enabled: false})

	require.NoError(t, manager.Start())
	assert.False(t, manager.isRunning)

	// 未启用时入队直接丢弃，不会触碰数据库
	manager.AddFrame(database.FrameRow{Direction: "in", Size: 4})
	manager.AddEvent(database.EventRow{PortName: "COM-A", Connected: true})

	manager.Stop()
}

func TestStartRejectsDoubleStart(t *testing.T) {
	manager := NewManager(nil, config.AsyncConfig{
		Enabled:       true,
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		WorkerCount:   1,
		QueueSize:     16,
	})
	// 不触发落库就不会访问数据库
	require.NoError(t, manager.Start())
	defer manager.Stop()

	assert.Error(t, manager.Start())
}

func TestQueueBufferFallsBackToBatchSize(t *testing.T) {
	manager := NewManager(nil, config.AsyncConfig{
		Enabled:   true,
		BatchSize: 8,
	})

	manager.initializeQueues()

	assert.Equal(t, 8*defaultQueueBufferMultiplier, cap(manager.frameQueue))
	assert.Equal(t, 8*defaultQueueBufferMultiplier, cap(manager.eventQueue))
}
