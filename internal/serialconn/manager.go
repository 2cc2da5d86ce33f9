package serialconn

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionManager 串口连接管理器
//
// 对外提供 Connect / Disconnect / IsConnected / SetPort / SendMessage，
// 内部由两个后台循环维持连接：读取循环把串口字节流切成消息并广播，
// 看护循环发现粘滞错误后按冷却节奏关闭并重开串口，直到调用方断开为止。
// 打开/关闭动作全部串行在同一把互斥锁上。
type ConnectionManager struct {
	mu     sync.Mutex
	cfg    PortConfig
	opener Opener
	exists func(name string) bool
	tuning Tuning

	state  *linkState
	events *eventHub

	// 以下字段仅在 mu 保护下访问
	port        Port
	portErrStop chan struct{}
	readerStop  chan struct{}
	readerDone  chan struct{}
	watcherStop chan struct{}
	watcherDone chan struct{}

	// 统计与诊断
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	lastErrMu      sync.Mutex
	lastErr        error
}

// Option 管理器构造选项
type Option func(*ConnectionManager)

// WithOpener 替换串口句柄构造函数（测试注入假句柄）
func WithOpener(opener Opener) Option {
	return func(m *ConnectionManager) { m.opener = opener }
}

// WithExistsFunc 替换串口存在性探测
// 默认实现仅对形如文件路径的标识做 stat 检查，其余标识一律放行
func WithExistsFunc(exists func(name string) bool) Option {
	return func(m *ConnectionManager) { m.exists = exists }
}

// WithTuning 调整后台循环节奏（测试缩短等待时间）
func WithTuning(tuning Tuning) Option {
	return func(m *ConnectionManager) { m.tuning = tuning }
}

// NewConnectionManager 创建串口连接管理器
// 创建后处于断开状态，需要显式调用 Connect
func NewConnectionManager(cfg PortConfig, opts ...Option) *ConnectionManager {
	manager := &ConnectionManager{
		cfg:    cfg.withDefaults(),
		exists: defaultExists,
		state:  &linkState{},
		events: &eventHub{},
	}

	for _, opt := range opts {
		opt(manager)
	}

	manager.tuning = manager.tuning.withDefaults()
	return manager
}

// defaultExists 默认的串口存在性探测
// 标识含路径分隔符时视为设备文件路径做 stat 检查，
// 其他命名方案（如 Windows 的 COM3）无法通过文件系统验证，直接放行
func defaultExists(name string) bool {
	if !strings.ContainsRune(name, os.PathSeparator) {
		return true
	}
	_, err := os.Stat(name)
	return err == nil
}

// ==================== 对外接口 ====================

// Connect 建立连接并启动看护循环
//
// 正在断开时直接返回 false。否则在互斥锁内先强制关闭旧会话，
// 同步尝试打开一次串口，再确保看护循环在运行。
// 返回值是本次尝试后的连接状态：即使返回 false，
// 看护循环也会在后台持续重试，直到 Disconnect。
func (m *ConnectionManager) Connect() bool {
	if m.state.disconnecting() {
		return false
	}

	m.mu.Lock()
	m.closeLocked()
	if err := m.openLocked(); err != nil {
		log.Printf("%s 打开串口 %s 失败: %v", logPrefix, m.cfg.PortName, err)
	}
	m.ensureWatcherLocked()
	m.mu.Unlock()

	return m.IsConnected()
}

// Disconnect 断开连接并停止全部后台循环
//
// 幂等：断开流程进行中时再次调用直接返回。
// 先置位断开标志并关闭会话，再限时等待看护循环退出，
// 最后才清除断开标志，保证随后的 Connect 行为确定。
func (m *ConnectionManager) Disconnect() {
	if !m.state.beginDisconnect() {
		return
	}

	m.mu.Lock()
	m.closeLocked()
	watcherStop, watcherDone := m.watcherStop, m.watcherDone
	m.watcherStop, m.watcherDone = nil, nil
	m.mu.Unlock()

	if watcherDone != nil {
		close(watcherStop)
		select {
		case <-watcherDone:
		case <-time.After(m.tuning.JoinTimeout):
			// 正常情况下不应发生：所有休眠点都会响应停止信号
			log.Printf("%s 看护循环在 %v 内未退出，协程可能泄漏", logPrefix, m.tuning.JoinTimeout)
		}
	}

	m.state.endDisconnect()
	log.Printf("%s 连接已断开: %s", logPrefix, m.cfg.PortName)
}

// IsConnected 返回当前连接状态
// 谓词定义：串口句柄存在、无未恢复的 I/O 错误、未请求断开
func (m *ConnectionManager) IsConnected() bool {
	return m.state.connected()
}

// SetPort 更新串口参数，下一次打开串口时生效
// 串口标识发生变化时置位粘滞错误，促使看护循环在新串口上重建会话
func (m *ConnectionManager) SetPort(cfg PortConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg = cfg.withDefaults()
	if cfg.PortName != m.cfg.PortName {
		log.Printf("%s 串口标识变更: %s -> %s，将重建连接", logPrefix, m.cfg.PortName, cfg.PortName)
		m.state.markFault()
	}
	m.cfg = cfg
}

// SendMessage 同步写出一条消息
//
// 未连接时立即返回 false，不阻塞不重试。
// 写失败时记录日志并置位粘滞错误（由看护循环负责恢复），返回 false。
func (m *ConnectionManager) SendMessage(message []byte) bool {
	if !m.IsConnected() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port == nil || !m.state.connected() {
		return false
	}

	if _, err := m.port.Write(message); err != nil {
		log.Printf("%s 写入串口失败: %v", logPrefix, err)
		m.recordError(err)
		m.state.markFault()
		return false
	}

	m.framesSent.Add(1)
	return true
}

// SubscribeStatus 注册连接状态监听器
func (m *ConnectionManager) SubscribeStatus(listener StatusListener) {
	m.events.subscribeStatus(listener)
}

// SubscribeMessage 注册消息监听器
func (m *ConnectionManager) SubscribeMessage(listener MessageListener) {
	m.events.subscribeMessage(listener)
}

// Snapshot 返回连接状态快照，供状态接口查询
func (m *ConnectionManager) Snapshot() Status {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	status := Status{
		Connected:      m.IsConnected(),
		PortName:       cfg.PortName,
		BaudRate:       cfg.BaudRate,
		FramesReceived: m.framesReceived.Load(),
		FramesSent:     m.framesSent.Load(),
	}

	m.lastErrMu.Lock()
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	m.lastErrMu.Unlock()

	return status
}

// ==================== 打开 / 关闭 ====================

// openLocked 打开串口会话，调用方必须持有 mu
//
// 流程：先幂等关闭旧会话，校验串口存在性，构造句柄并订阅其故障通道，
// 执行底层打开。成功后清除粘滞错误、启动读取循环并广播一次已连接事件；
// 任何一步失败都回退到关闭状态，粘滞错误保持置位。
func (m *ConnectionManager) openLocked() error {
	m.closeLocked()

	if m.state.disconnecting() {
		return ErrDisconnecting
	}

	cfg := m.cfg
	if !m.exists(cfg.PortName) {
		err := fmt.Errorf("%w: %s", ErrPortNotFound, cfg.PortName)
		m.recordError(err)
		return err
	}

	if m.opener == nil {
		err := fmt.Errorf("no port opener configured")
		m.recordError(err)
		return err
	}

	port, err := m.opener(cfg)
	if err != nil {
		err = fmt.Errorf("construct port: %w", err)
		m.recordError(err)
		return err
	}
	m.port = port

	// 订阅驱动的异步故障通道（仅用于日志，正确性不依赖它）
	m.portErrStop = make(chan struct{})
	go m.drainPortErrors(port.Errors(), m.portErrStop)

	if err := port.Open(); err != nil {
		err = fmt.Errorf("open %s: %w", cfg.PortName, err)
		m.recordError(err)
		m.closeLocked()
		return err
	}

	m.state.markOpened()

	m.readerStop = make(chan struct{})
	m.readerDone = make(chan struct{})
	go m.readLoop(port, m.readerStop, m.readerDone)

	log.Printf("%s 串口已打开: %s@%d %d%s%s", logPrefix,
		cfg.PortName, cfg.BaudRate, cfg.DataBits, parityShort(cfg.Parity), cfg.StopBits)
	m.events.emitStatus(true)
	return nil
}

// closeLocked 关闭串口会话，调用方必须持有 mu，可重复调用
//
// 先通过状态标志让读取循环自然退出（限时等待），
// 再退订故障通道、关闭句柄。串口确实处于打开状态时恰好广播一次
// 已断开事件。无论会话是否存在，结束时粘滞错误都处于置位状态，
// 保证紧随其后的 IsConnected 必为 false。
func (m *ConnectionManager) closeLocked() {
	m.state.markClosed()

	if m.readerDone != nil {
		close(m.readerStop)
		select {
		case <-m.readerDone:
		case <-time.After(m.tuning.JoinTimeout):
			log.Printf("%s 读取循环在 %v 内未退出，协程可能泄漏", logPrefix, m.tuning.JoinTimeout)
		}
		m.readerStop, m.readerDone = nil, nil
	}

	if m.portErrStop != nil {
		close(m.portErrStop)
		m.portErrStop = nil
	}

	if m.port != nil {
		wasOpen := m.port.IsOpen()
		if err := m.port.Close(); err != nil {
			log.Printf("%s 关闭串口失败: %v", logPrefix, err)
		}
		m.port = nil
		if wasOpen {
			m.events.emitStatus(false)
		}
	}
}

// ensureWatcherLocked 确保看护循环在运行，调用方必须持有 mu
func (m *ConnectionManager) ensureWatcherLocked() {
	if m.watcherDone != nil {
		return
	}
	m.watcherStop = make(chan struct{})
	m.watcherDone = make(chan struct{})
	go m.watchLoop(m.watcherStop, m.watcherDone)
}

// drainPortErrors 记录驱动上报的异步故障，直到退订
func (m *ConnectionManager) drainPortErrors(errCh <-chan error, stop <-chan struct{}) {
	for {
		select {
		case err, ok := <-errCh:
			if !ok {
				return
			}
			log.Printf("%s 驱动故障通知: %v", logPrefix, err)
		case <-stop:
			return
		}
	}
}

// recordError 记录最近一次错误，供状态接口展示
func (m *ConnectionManager) recordError(err error) {
	m.lastErrMu.Lock()
	m.lastErr = err
	m.lastErrMu.Unlock()
}

// parityShort 校验位单字母缩写，用于日志
func parityShort(p Parity) string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "N"
	}
}

// sleepUntil 可中断休眠，stop 触发时返回 false
func sleepUntil(d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
