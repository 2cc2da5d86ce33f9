package serialconn

import "log"

// readLoop 读取循环
//
// 仅在连接判定成立期间运行，每个周期重新检查一次判定，
// 判定翻转后自行退出，不依赖外部强制终止；stop 只用于打断休眠。
//
// 单个周期：查询可读字节数；为零则短暂休眠后重试；
// 非零则按上报数量分配缓冲并读满为止（零字节读取忙等重试，
// 短读不是错误），随后把整个缓冲作为一条消息广播。
// 消息边界即两次轮询之间到达的字节，不拆分也不跨周期合并。
// 任何 I/O 故障只置位粘滞错误并退避，绝不向调用方传播。
func (m *ConnectionManager) readLoop(port Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for m.state.connected() {
		available, err := port.BytesAvailable()
		if err != nil {
			m.handleReadFault(err, stop)
			continue
		}

		if available == 0 {
			if !sleepUntil(m.tuning.PollInterval, stop) {
				return
			}
			continue
		}

		message := make([]byte, available)
		if !m.fillBuffer(port, message, stop) {
			continue
		}

		m.framesReceived.Add(1)
		m.events.emitMessage(message)
	}
}

// fillBuffer 持续读取直到填满缓冲
// 读取出错时走故障处理并返回 false，缓冲作废
func (m *ConnectionManager) fillBuffer(port Port, buf []byte, stop <-chan struct{}) bool {
	filled := 0
	for filled < len(buf) {
		n, err := port.Read(buf[filled:])
		if err != nil {
			m.handleReadFault(err, stop)
			return false
		}
		filled += n
	}
	return true
}

// handleReadFault 读取循环的故障处理：
// 记录日志、置位粘滞错误、退避一段时间后返回
// （循环会在下一次判定检查时退出，恢复交给看护循环）
func (m *ConnectionManager) handleReadFault(err error, stop <-chan struct{}) {
	log.Printf("%s 读取串口失败: %v", logPrefix, err)
	m.recordError(err)
	m.state.markFault()
	sleepUntil(m.tuning.FaultBackoff, stop)
}
