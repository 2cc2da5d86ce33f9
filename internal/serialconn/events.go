package serialconn

import "sync"

// StatusListener 连接状态变更回调，参数为变更后的连接状态
type StatusListener func(connected bool)

// MessageListener 消息到达回调，参数为一个轮询周期内收到的完整字节序列
// 回调执行期间缓冲区归回调方所有，管理器不再修改
type MessageListener func(message []byte)

// eventHub 事件分发器
//
// 显式的订阅/通知实现：同一回调注册一次只会触发一次，
// 通知按注册顺序同步执行。回调中不要再调用管理器的连接方法，
// 耗时处理请自行转移到独立协程。
type eventHub struct {
	mu          sync.RWMutex
	statusSubs  []StatusListener
	messageSubs []MessageListener
}

// subscribeStatus 注册连接状态监听器
func (h *eventHub) subscribeStatus(listener StatusListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusSubs = append(h.statusSubs, listener)
}

// subscribeMessage 注册消息监听器
func (h *eventHub) subscribeMessage(listener MessageListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messageSubs = append(h.messageSubs, listener)
}

// emitStatus 广播一次连接状态变更
func (h *eventHub) emitStatus(connected bool) {
	h.mu.RLock()
	listeners := make([]StatusListener, len(h.statusSubs))
	copy(listeners, h.statusSubs)
	h.mu.RUnlock()

	for _, listener := range listeners {
		listener(connected)
	}
}

// emitMessage 广播一条收到的消息
func (h *eventHub) emitMessage(message []byte) {
	h.mu.RLock()
	listeners := make([]MessageListener, len(h.messageSubs))
	copy(listeners, h.messageSubs)
	h.mu.RUnlock()

	for _, listener := range listeners {
		listener(message)
	}
}
