package serialconn

import "log"

// watchLoop 连接看护循环
//
// 从 Connect 运行到 Disconnect，是连接自愈的核心。每个周期：
//  1. 已请求断开则立即退出；
//  2. 粘滞错误置位时关闭当前会话，冷却一段时间避免热重试，
//     仍未断开则重新尝试打开；打开失败只记日志并吞掉，
//     粘滞错误保持置位，下个周期继续重试；
//  3. 休眠一个巡检间隔进入下一周期。
//
// 重试次数不设上限，靠冷却时间约束资源占用；
// 外界只能通过 Disconnect 终止该循环。
func (m *ConnectionManager) watchLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log.Printf("%s 看护循环启动", logPrefix)

	for {
		if m.state.disconnecting() {
			return
		}

		if m.state.errored() {
			m.mu.Lock()
			m.closeLocked()
			m.mu.Unlock()

			if !sleepUntil(m.tuning.Cooldown, stop) {
				return
			}

			if m.state.disconnecting() {
				return
			}

			m.mu.Lock()
			err := m.openLocked()
			m.mu.Unlock()
			if err != nil {
				log.Printf("%s 重连失败，等待下一轮: %v", logPrefix, err)
			}
		}

		if m.state.disconnecting() {
			return
		}
		if !sleepUntil(m.tuning.WatchInterval, stop) {
			return
		}
	}
}
