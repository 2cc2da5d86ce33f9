package serialconn

import "sync/atomic"

// linkState 连接状态容器
//
// 三个标志分别对应：串口句柄是否存在、粘滞错误标志、是否正在断开。
// 读取循环与看护循环每个周期都会无锁读取这些标志，
// 写入则全部经由本文件的迁移方法，且仅在管理器互斥锁内发生，
// 保证状态机只有一处入口。
type linkState struct {
	hasPort  atomic.Bool // 串口句柄已创建且打开
	ioFault  atomic.Bool // 粘滞错误标志，出现任意 I/O 故障后置位，仅在成功打开时清除
	shutdown atomic.Bool // 调用方已请求断开
}

// connected 连接判定谓词：句柄存在、无未恢复错误、未请求断开
// 这是全部后台循环共同依赖的唯一事实来源
func (s *linkState) connected() bool {
	return s.hasPort.Load() && !s.ioFault.Load() && !s.shutdown.Load()
}

// errored 粘滞错误标志是否置位
func (s *linkState) errored() bool {
	return s.ioFault.Load()
}

// disconnecting 是否正在执行断开流程
func (s *linkState) disconnecting() bool {
	return s.shutdown.Load()
}

// markOpened 串口打开成功：清除粘滞错误并标记句柄存在
func (s *linkState) markOpened() {
	s.ioFault.Store(false)
	s.hasPort.Store(true)
}

// markClosed 会话关闭：句柄不再存在，同时置位粘滞错误，
// 保证关闭后第一时间 connected 即为 false
func (s *linkState) markClosed() {
	s.hasPort.Store(false)
	s.ioFault.Store(true)
}

// markFault 记录一次 I/O 故障，由看护循环负责后续重建会话
func (s *linkState) markFault() {
	s.ioFault.Store(true)
}

// beginDisconnect 进入断开流程；已在断开中时返回 false
func (s *linkState) beginDisconnect() bool {
	return s.shutdown.CompareAndSwap(false, true)
}

// endDisconnect 断开流程收尾，此后允许重新 Connect
func (s *linkState) endDisconnect() {
	s.shutdown.Store(false)
}
