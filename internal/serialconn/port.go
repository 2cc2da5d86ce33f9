package serialconn

// Port 串口句柄契约
// 由具体驱动实现（见 internal/serialport），管理器只通过该契约访问硬件
type Port interface {
	// Open 按构造时的参数打开底层串口
	Open() error
	// Close 关闭串口，重复调用不报错
	Close() error
	// IsOpen 返回串口当前是否处于打开状态
	IsOpen() bool
	// BytesAvailable 返回当前可读取的字节数
	BytesAvailable() (int, error)
	// Read 读取最多 len(p) 个字节；返回 0 不代表出错
	Read(p []byte) (int, error)
	// Write 完整写出 p，写不完整时返回错误
	Write(p []byte) (int, error)
	// Errors 返回底层驱动的异步故障通知通道
	// 仅用于日志，连接正确性不依赖该通道
	Errors() <-chan error
}

// Opener 按照给定参数构造串口句柄
// 默认实现由应用装配时注入，测试中可替换为脚本化的假句柄
type Opener func(cfg PortConfig) (Port, error)
