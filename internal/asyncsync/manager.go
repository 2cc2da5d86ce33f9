package asyncsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"serial-gateway/internal/config"
	"serial-gateway/internal/database"
)

//
// 常量定义
//

const (
	defaultQueueBufferMultiplier = 2
	workerIdleInterval           = 100 * time.Millisecond
)

//
// 异步落库管理器
//

// Manager 异步落库管理器
// 把高频的帧记录和连接事件先缓冲在内存通道里，再批量写入 MySQL
type Manager struct {
	database      *database.MySQLDB
	configuration config.AsyncConfig
	frameQueue    chan database.FrameRow
	eventQueue    chan database.EventRow
	workers       sync.WaitGroup
	context       context.Context
	cancelFunc    context.CancelFunc
	isRunning     bool
	mutex         sync.RWMutex
}

// NewManager 创建异步落库管理器实例
func NewManager(db *database.MySQLDB, configuration config.AsyncConfig) *Manager {
	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Manager{
		database:      db,
		configuration: configuration,
		context:       ctx,
		cancelFunc:    cancelFunc,
	}
}

// Start 启动异步落库管理器
// 初始化队列并启动所有后台工作协程
func (manager *Manager) Start() error {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.isRunning {
		return fmt.Errorf("manager already running")
	}

	if !manager.configuration.Enabled {
		log.Println("[AsyncSync] 异步落库已禁用")
		return nil
	}

	manager.initializeQueues()
	manager.startWorkers()

	manager.isRunning = true
	log.Printf("[AsyncSync] 管理器已启动,工作协程数: %d", manager.configuration.WorkerCount)
	return nil
}

// Stop 停止异步落库管理器
// 等待所有后台协程刷完剩余批次后退出
func (manager *Manager) Stop() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if !manager.isRunning {
		return
	}

	manager.cancelFunc()
	close(manager.frameQueue)
	close(manager.eventQueue)
	manager.workers.Wait()

	manager.isRunning = false
	log.Println("[AsyncSync] 管理器已停止")
}

// AddFrame 将帧记录加入落库队列
// 队列已满时丢弃并记录日志，热数据仍保留在 Redis 中
func (manager *Manager) AddFrame(row database.FrameRow) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	if !manager.isEnabledAndRunning() {
		return
	}

	select {
	case manager.frameQueue <- row:
	default:
		log.Printf("[AsyncSync] 帧队列已满,丢弃一条记录 direction=%s size=%d", row.Direction, row.Size)
	}
}

// AddEvent 将连接事件加入落库队列
func (manager *Manager) AddEvent(row database.EventRow) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	if !manager.isEnabledAndRunning() {
		return
	}

	select {
	case manager.eventQueue <- row:
	default:
		log.Printf("[AsyncSync] 事件队列已满,丢弃一条记录 port=%s", row.PortName)
	}
}

//
// 初始化方法
//

// initializeQueues 初始化内存队列
func (manager *Manager) initializeQueues() {
	bufferSize := manager.configuration.QueueSize
	if bufferSize <= 0 {
		bufferSize = manager.configuration.BatchSize * defaultQueueBufferMultiplier
	}

	manager.frameQueue = make(chan database.FrameRow, bufferSize)
	manager.eventQueue = make(chan database.EventRow, bufferSize)
}

// startWorkers 启动所有工作协程
// 帧记录由多个 worker 分担，事件量小由单独协程处理
func (manager *Manager) startWorkers() {
	for workerID := 0; workerID < manager.configuration.WorkerCount; workerID++ {
		manager.workers.Add(1)
		go manager.runFrameWorker(workerID)
	}

	manager.workers.Add(1)
	go manager.runEventWorker()
}

//
// 辅助方法
//

// isEnabledAndRunning 检查管理器是否已启用且正在运行
func (manager *Manager) isEnabledAndRunning() bool {
	return manager.configuration.Enabled && manager.isRunning
}

//
// 工作协程 - 批处理逻辑
//

// runFrameWorker 帧落库工作协程
// 从队列收集帧记录，按批量大小或刷新间隔触发写入
func (manager *Manager) runFrameWorker(workerID int) {
	defer manager.workers.Done()

	batch := make([]database.FrameRow, 0, manager.configuration.BatchSize)
	ticker := time.NewTicker(manager.configuration.FlushInterval)
	defer ticker.Stop()

	log.Printf("[AsyncSync] Frame worker %d 已启动", workerID)
	defer log.Printf("[AsyncSync] Frame worker %d 已停止", workerID)

	for {
		select {
		case <-manager.context.Done():
			batch = manager.drainFrameQueue(batch)
			manager.flushFrames(batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				manager.flushFrames(batch)
				batch = batch[:0]
			}

		case row, ok := <-manager.frameQueue:
			if !ok {
				manager.flushFrames(batch)
				return
			}

			batch = append(batch, row)
			if len(batch) >= manager.configuration.BatchSize {
				manager.flushFrames(batch)
				batch = batch[:0]
			}
		}
	}
}

// runEventWorker 连接事件落库工作协程
func (manager *Manager) runEventWorker() {
	defer manager.workers.Done()

	batch := make([]database.EventRow, 0, manager.configuration.BatchSize)
	ticker := time.NewTicker(manager.configuration.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-manager.context.Done():
			batch = manager.drainEventQueue(batch)
			manager.flushEvents(batch)
			return

		case <-ticker.C:
			if len(batch) > 0 {
				manager.flushEvents(batch)
				batch = batch[:0]
			}

		case row, ok := <-manager.eventQueue:
			if !ok {
				manager.flushEvents(batch)
				return
			}

			batch = append(batch, row)
			if len(batch) >= manager.configuration.BatchSize {
				manager.flushEvents(batch)
				batch = batch[:0]
			}
		}
	}
}

// drainFrameQueue 退出前把队列里剩余的帧取干净
func (manager *Manager) drainFrameQueue(batch []database.FrameRow) []database.FrameRow {
	for {
		select {
		case row, ok := <-manager.frameQueue:
			if !ok {
				return batch
			}
			batch = append(batch, row)
		default:
			return batch
		}
	}
}

// drainEventQueue 退出前把队列里剩余的事件取干净
func (manager *Manager) drainEventQueue(batch []database.EventRow) []database.EventRow {
	for {
		select {
		case row, ok := <-manager.eventQueue:
			if !ok {
				return batch
			}
			batch = append(batch, row)
		default:
			return batch
		}
	}
}

// flushFrames 批量写入帧记录
// 写入失败只记录日志，热数据仍保留在 Redis 中
func (manager *Manager) flushFrames(batch []database.FrameRow) {
	if len(batch) == 0 {
		return
	}

	if err := manager.database.InsertFrameBatch(batch); err != nil {
		log.Printf("[AsyncSync] 帧批量落库失败 count=%d, error=%v", len(batch), err)
	}
}

// flushEvents 批量写入连接事件
func (manager *Manager) flushEvents(batch []database.EventRow) {
	if len(batch) == 0 {
		return
	}

	if err := manager.database.InsertEventBatch(batch); err != nil {
		log.Printf("[AsyncSync] 事件批量落库失败 count=%d, error=%v", len(batch), err)
	}
}
