package serialconn

import (
	"errors"
	"fmt"
	"time"
)

// ==================== 常量定义 ====================

const (
	// 默认串口参数
	DefaultBaudRate = 115200
	DefaultDataBits = 8

	// 默认循环节奏
	DefaultPollInterval  = 100 * time.Millisecond // 读取循环空轮询间隔
	DefaultFaultBackoff  = time.Second            // 读取故障后的退避时间
	DefaultCooldown      = time.Second            // 重连前的冷却时间
	DefaultWatchInterval = time.Second            // 看护循环巡检间隔
	DefaultJoinTimeout   = 5 * time.Second        // 等待后台循环退出的上限

	logPrefix = "[SerialConn]"
)

var (
	// 哨兵错误，便于上层识别与分类处理
	ErrPortNotFound  = errors.New("serial port not found")
	ErrDisconnecting = errors.New("disconnect in progress")
)

// ==================== 串口参数 ====================

// StopBits 停止位
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsTwo
	StopBitsOnePointFive
)

// String 返回停止位的可读名称
func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsTwo:
		return "2"
	case StopBitsOnePointFive:
		return "1.5"
	default:
		return "unknown"
	}
}

// Parity 校验位
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// String 返回校验位的可读名称
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return "unknown"
	}
}

// ParseParity 解析校验位名称（none/odd/even/mark/space）
func ParseParity(name string) (Parity, error) {
	switch name {
	case "", "none":
		return ParityNone, nil
	case "odd":
		return ParityOdd, nil
	case "even":
		return ParityEven, nil
	case "mark":
		return ParityMark, nil
	case "space":
		return ParitySpace, nil
	default:
		return ParityNone, fmt.Errorf("unknown parity %q", name)
	}
}

// ParseStopBits 解析停止位名称（1/1.5/2）
func ParseStopBits(name string) (StopBits, error) {
	switch name {
	case "", "1":
		return StopBitsOne, nil
	case "1.5":
		return StopBitsOnePointFive, nil
	case "2":
		return StopBitsTwo, nil
	default:
		return StopBitsOne, fmt.Errorf("unknown stop bits %q", name)
	}
}

// PortConfig 串口连接参数快照
// 修改后在下一次打开串口时生效
type PortConfig struct {
	PortName string   // 串口标识（如 /dev/ttyUSB0 或 COM3）
	BaudRate int      // 波特率
	DataBits int      // 数据位（5/6/7/8）
	Parity   Parity   // 校验位
	StopBits StopBits // 停止位
}

// withDefaults 为零值字段补齐默认参数
func (c PortConfig) withDefaults() PortConfig {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	return c
}

// Tuning 后台循环的节奏参数
// 主要供测试缩短等待时间，生产环境使用默认值即可
type Tuning struct {
	PollInterval  time.Duration // 读取循环空轮询间隔
	FaultBackoff  time.Duration // 读取故障后的退避时间
	Cooldown      time.Duration // 重连冷却时间
	WatchInterval time.Duration // 看护循环巡检间隔
	JoinTimeout   time.Duration // 等待后台循环退出的上限
}

// withDefaults 为零值字段补齐默认节奏
func (t Tuning) withDefaults() Tuning {
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.FaultBackoff <= 0 {
		t.FaultBackoff = DefaultFaultBackoff
	}
	if t.Cooldown <= 0 {
		t.Cooldown = DefaultCooldown
	}
	if t.WatchInterval <= 0 {
		t.WatchInterval = DefaultWatchInterval
	}
	if t.JoinTimeout <= 0 {
		t.JoinTimeout = DefaultJoinTimeout
	}
	return t
}

// Status 连接状态快照，供状态接口查询
type Status struct {
	Connected      bool   `json:"connected"`
	PortName       string `json:"port_name"`
	BaudRate       int    `json:"baud_rate"`
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	LastError      string `json:"last_error,omitempty"`
}
