package serialconn

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用的快节奏参数，避免用例长时间等待
func testTuning() Tuning {
	return Tuning{
		PollInterval:  2 * time.Millisecond,
		FaultBackoff:  5 * time.Millisecond,
		Cooldown:      5 * time.Millisecond,
		WatchInterval: 5 * time.Millisecond,
		JoinTimeout:   time.Second,
	}
}

// ==================== 假串口句柄 ====================

// fakePort 脚本化的串口句柄
// 入站数据按块排队，每块模拟两次轮询之间到达的字节
type fakePort struct {
	mu        sync.Mutex
	name      string
	opened    bool
	openErr   error
	availErr  error
	readErr   error
	writeErr  error
	shortRead bool // 置位后每次 Read 至多返回一个字节，模拟短读
	inbound   [][]byte
	written   [][]byte
	errCh     chan error
}

func newFakePort(name string) *fakePort {
	return &fakePort{name: name, errCh: make(chan error, 4)}
}

func (p *fakePort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	p.opened = true
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = false
	return nil
}

func (p *fakePort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func (p *fakePort) BytesAvailable() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.availErr != nil {
		err := p.availErr
		p.availErr = nil
		return 0, err
	}
	if len(p.inbound) == 0 {
		return 0, nil
	}
	return len(p.inbound[0]), nil
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	if len(p.inbound) == 0 {
		return 0, nil
	}

	chunk := p.inbound[0]
	n := copy(buf, chunk)
	if p.shortRead && n > 1 {
		n = 1
		copy(buf, chunk[:1])
	}
	if n == len(chunk) {
		p.inbound = p.inbound[1:]
	} else {
		p.inbound[0] = chunk[n:]
	}
	return n, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	clone := make([]byte, len(buf))
	copy(clone, buf)
	p.written = append(p.written, clone)
	return len(buf), nil
}

func (p *fakePort) Errors() <-chan error { return p.errCh }

// push 模拟一次轮询间隔内到达的一段字节
func (p *fakePort) push(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbound = append(p.inbound, chunk)
}

func (p *fakePort) failNextAvailable(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.availErr = err
}

func (p *fakePort) setWriteErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *fakePort) writtenFrames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// ==================== 事件记录器 ====================

// eventRecorder 线程安全地记录收到的事件
type eventRecorder struct {
	mu       sync.Mutex
	statuses []bool
	messages [][]byte
}

func (r *eventRecorder) attach(m *ConnectionManager) {
	m.SubscribeStatus(func(connected bool) {
		r.mu.Lock()
		r.statuses = append(r.statuses, connected)
		r.mu.Unlock()
	})
	m.SubscribeMessage(func(message []byte) {
		r.mu.Lock()
		r.messages = append(r.messages, message)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) statusList() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func (r *eventRecorder) messageList() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *eventRecorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// ==================== 测试装配 ====================

// portScript 顺序提供串口句柄的脚本化 Opener
type portScript struct {
	mu    sync.Mutex
	ports []*fakePort // 每次调用 Opener 依次取出
	calls []PortConfig
}

func (s *portScript) opener() Opener {
	return func(cfg PortConfig) (Port, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, cfg)
		if len(s.ports) == 0 {
			return nil, errors.New("script exhausted")
		}
		port := s.ports[0]
		if len(s.ports) > 1 {
			s.ports = s.ports[1:]
		}
		return port, nil
	}
}

func (s *portScript) lastConfig() PortConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return PortConfig{}
	}
	return s.calls[len(s.calls)-1]
}

func newTestManager(script *portScript) (*ConnectionManager, *eventRecorder) {
	manager := NewConnectionManager(
		PortConfig{PortName: "COM-A", BaudRate: 9600},
		WithOpener(script.opener()),
		WithExistsFunc(func(string) bool { return true }),
		WithTuning(testTuning()),
	)
	recorder := &eventRecorder{}
	recorder.attach(manager)
	return manager, recorder
}

// ==================== 用例 ====================

func TestConnectOpensPortAndNotifiesOnce(t *testing.T) {
	port := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())
	assert.True(t, manager.IsConnected())
	assert.Equal(t, []bool{true}, recorder.statusList())
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	port := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})

	assert.False(t, manager.SendMessage([]byte{0x01, 0x02}))
	assert.Empty(t, recorder.statusList())
	assert.Empty(t, port.writtenFrames())
}

func TestSendMessageWritesThroughPort(t *testing.T) {
	port := newFakePort("COM-A")
	manager, _ := newTestManager(&portScript{ports: []*fakePort{port}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())
	require.True(t, manager.SendMessage([]byte{0xCA, 0xFE}))

	frames := port.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xCA, 0xFE}, frames[0])
}

func TestDisconnectIsIdempotent(t *testing.T) {
	port := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})

	require.True(t, manager.Connect())
	manager.Disconnect()
	manager.Disconnect()

	assert.False(t, manager.IsConnected())
	// 两次断开只允许广播一次已断开事件
	assert.Equal(t, []bool{true, false}, recorder.statusList())
}

func TestMessagesPreserveArrivalOrder(t *testing.T) {
	port := newFakePort("COM-A")
	port.shortRead = true // 强制短读，验证读满重试
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())

	chunks := [][]byte{
		{0x01, 0x02, 0x03},
		{0x04},
		{0x05, 0x06},
	}
	for i, chunk := range chunks {
		port.push(chunk)
		want := i + 1
		require.Eventually(t, func() bool {
			return recorder.messageCount() == want
		}, time.Second, time.Millisecond)
	}

	// 每个轮询周期恰好一条消息，顺序与到达顺序一致，字节不重不漏
	assert.Equal(t, chunks, recorder.messageList())
}

func TestReaderFaultTriggersReconnect(t *testing.T) {
	first := newFakePort("COM-A")
	second := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{first, second}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())

	// 读取故障只置位错误标志，不会传播到调用方
	first.failNextAvailable(errors.New("io fault"))

	require.Eventually(t, func() bool {
		return manager.IsConnected() && second.IsOpen()
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, []bool{true, false, true}, recorder.statusList())
}

func TestSelfHealingAfterOpenFailures(t *testing.T) {
	broken := newFakePort("COM-A")
	broken.openErr = errors.New("device busy")
	healthy := newFakePort("COM-A")

	script := &portScript{ports: []*fakePort{broken, broken, broken, healthy}}
	manager, recorder := newTestManager(script)
	defer manager.Disconnect()

	// 首次打开失败，Connect 如实返回 false，但看护循环继续重试
	assert.False(t, manager.Connect())

	require.Eventually(t, manager.IsConnected, 2*time.Second, time.Millisecond)

	// 成功的那次打开恰好广播一次已连接事件
	assert.Equal(t, []bool{true}, recorder.statusList())
}

func TestSetPortWithNewNameForcesReconnect(t *testing.T) {
	first := newFakePort("COM-A")
	second := newFakePort("COM-B")
	script := &portScript{ports: []*fakePort{first, second}}
	manager, recorder := newTestManager(script)
	defer manager.Disconnect()

	require.True(t, manager.Connect())

	manager.SetPort(PortConfig{PortName: "COM-B", BaudRate: 9600})
	assert.False(t, manager.IsConnected())

	require.Eventually(t, func() bool {
		return manager.IsConnected() && second.IsOpen()
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, "COM-B", script.lastConfig().PortName)
	assert.Equal(t, []bool{true, false, true}, recorder.statusList())
}

func TestSetPortSameNameKeepsConnection(t *testing.T) {
	port := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())

	manager.SetPort(PortConfig{PortName: "COM-A", BaudRate: 19200})
	assert.True(t, manager.IsConnected())
	assert.Equal(t, []bool{true}, recorder.statusList())
}

func TestWriteFaultTriggersReconnect(t *testing.T) {
	first := newFakePort("COM-A")
	second := newFakePort("COM-A")
	manager, _ := newTestManager(&portScript{ports: []*fakePort{first, second}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())

	first.setWriteErr(errors.New("write fault"))
	assert.False(t, manager.SendMessage([]byte{0x01}))
	assert.False(t, manager.IsConnected())

	require.Eventually(t, func() bool {
		return manager.IsConnected() && second.IsOpen()
	}, 2*time.Second, time.Millisecond)
}

func TestConnectDuringDisconnectReturnsFalse(t *testing.T) {
	manager := NewConnectionManager(PortConfig{PortName: "COM-A"})
	manager.state.beginDisconnect()
	assert.False(t, manager.Connect())
	manager.state.endDisconnect()
}

func TestMissingPortFailsOpen(t *testing.T) {
	port := newFakePort("COM-A")
	manager := NewConnectionManager(
		PortConfig{PortName: "COM-A"},
		WithOpener((&portScript{ports: []*fakePort{port}}).opener()),
		WithExistsFunc(func(string) bool { return false }),
		WithTuning(testTuning()),
	)
	defer manager.Disconnect()

	assert.False(t, manager.Connect())
	assert.False(t, manager.IsConnected())
	assert.False(t, port.IsOpen())
}

func TestLinkStatePredicate(t *testing.T) {
	state := &linkState{}
	assert.False(t, state.connected())

	state.markOpened()
	assert.True(t, state.connected())

	state.markFault()
	assert.False(t, state.connected())

	state.markOpened()
	require.True(t, state.connected())
	state.markClosed()
	assert.False(t, state.connected())
	assert.True(t, state.errored())
}

func TestSnapshotCounters(t *testing.T) {
	port := newFakePort("COM-A")
	manager, recorder := newTestManager(&portScript{ports: []*fakePort{port}})
	defer manager.Disconnect()

	require.True(t, manager.Connect())
	require.True(t, manager.SendMessage([]byte{0x01}))

	port.push([]byte{0x02, 0x03})
	require.Eventually(t, func() bool {
		return recorder.messageCount() == 1
	}, time.Second, time.Millisecond)

	status := manager.Snapshot()
	assert.True(t, status.Connected)
	assert.Equal(t, "COM-A", status.PortName)
	assert.Equal(t, uint64(1), status.FramesSent)
	assert.Equal(t, uint64(1), status.FramesReceived)
}
