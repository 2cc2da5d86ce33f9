//go:build linux

package serialport

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"serial-gateway/internal/serialconn"
)

const nativeErrChanDepth = 4

// nativePort 直接基于 termios 的 Linux 串口句柄
//
// 以非阻塞原始模式打开设备，BytesAvailable 走 TIOCINQ
// 查询内核接收缓冲的真实字节数，Read 的 EAGAIN 表现为零字节读取。
type nativePort struct {
	cfg   serialconn.PortConfig
	mu    sync.Mutex
	fd    int
	open  bool
	errCh chan error
}

func newNativePort(cfg serialconn.PortConfig) (*nativePort, error) {
	return &nativePort{
		cfg:   cfg,
		fd:    -1,
		errCh: make(chan error, nativeErrChanDepth),
	}, nil
}

// Open 打开设备并应用 termios 配置
func (p *nativePort) Open() error {
	fd, err := unix.Open(p.cfg.PortName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.cfg.PortName, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("get termios: %w", err)
	}

	if err := configureTermios(termios, p.cfg); err != nil {
		unix.Close(fd)
		return err
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set termios: %w", err)
	}

	p.mu.Lock()
	p.fd = fd
	p.open = true
	p.mu.Unlock()
	return nil
}

// Close 关闭设备，可重复调用
func (p *nativePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil
	}
	p.open = false
	fd := p.fd
	p.fd = -1
	return unix.Close(fd)
}

// IsOpen 返回设备是否处于打开状态
func (p *nativePort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// BytesAvailable 查询内核接收缓冲中的字节数
func (p *nativePort) BytesAvailable() (int, error) {
	p.mu.Lock()
	fd, open := p.fd, p.open
	p.mu.Unlock()

	if !open {
		return 0, ErrPortClosed
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		p.notify(err)
		return 0, fmt.Errorf("tiocinq: %w", err)
	}
	return n, nil
}

// Read 非阻塞读取；暂无数据时返回零字节，不算错误
func (p *nativePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	fd, open := p.fd, p.open
	p.mu.Unlock()

	if !open {
		return 0, ErrPortClosed
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		p.notify(err)
		return 0, err
	}
	return n, nil
}

// Write 完整写出缓冲内容，内核缓冲满时忙等重试
func (p *nativePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	fd, open := p.fd, p.open
	p.mu.Unlock()

	if !open {
		return 0, ErrPortClosed
	}

	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			p.notify(err)
			return written, err
		}
		written += n
	}
	return written, nil
}

// Errors 返回异步故障通知通道
func (p *nativePort) Errors() <-chan error { return p.errCh }

// notify 尽力投递一次故障通知，通道满时丢弃
func (p *nativePort) notify(err error) {
	select {
	case p.errCh <- err:
	default:
	}
}

// configureTermios 把串口参数写入 termios 结构
// 原始模式：关闭回显、规范行处理与软硬件流控
func configureTermios(t *unix.Termios, cfg serialconn.PortConfig) error {
	baud, err := baudFlag(cfg.BaudRate)
	if err != nil {
		return err
	}

	dataBits, err := dataBitsFlag(cfg.DataBits)
	if err != nil {
		return err
	}

	parityFlags, err := parityFlag(cfg.Parity)
	if err != nil {
		return err
	}

	stopFlags, err := stopBitsFlag(cfg.StopBits)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CMSPAR | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CLOCAL | unix.CREAD | baud | dataBits | parityFlags | stopFlags

	// 非阻塞轮询模式：读取立即返回，有多少读多少
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Ispeed = baud
	t.Ospeed = baud
	return nil
}

// baudFlag 波特率翻译
func baudFlag(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}

// dataBitsFlag 数据位翻译
func dataBitsFlag(bits int) (uint32, error) {
	switch bits {
	case 5:
		return unix.CS5, nil
	case 6:
		return unix.CS6, nil
	case 7:
		return unix.CS7, nil
	case 8:
		return unix.CS8, nil
	default:
		return 0, fmt.Errorf("unsupported data bits %d", bits)
	}
}

// parityFlag 校验位翻译
// mark/space 依赖 Linux 的 CMSPAR 扩展
func parityFlag(p serialconn.Parity) (uint32, error) {
	switch p {
	case serialconn.ParityNone:
		return 0, nil
	case serialconn.ParityOdd:
		return unix.PARENB | unix.PARODD, nil
	case serialconn.ParityEven:
		return unix.PARENB, nil
	case serialconn.ParityMark:
		return unix.PARENB | unix.CMSPAR | unix.PARODD, nil
	case serialconn.ParitySpace:
		return unix.PARENB | unix.CMSPAR, nil
	default:
		return 0, fmt.Errorf("unsupported parity %v", p)
	}
}

// stopBitsFlag 停止位翻译；termios 不支持 1.5 停止位
func stopBitsFlag(s serialconn.StopBits) (uint32, error) {
	switch s {
	case serialconn.StopBitsOne:
		return 0, nil
	case serialconn.StopBitsTwo:
		return unix.CSTOPB, nil
	case serialconn.StopBitsOnePointFive:
		return 0, fmt.Errorf("1.5 stop bits not supported by native driver")
	default:
		return 0, fmt.Errorf("unsupported stop bits %v", s)
	}
}

// Exists 探测串口是否存在且可读写
// 仅对形如设备文件路径的标识有效，其余命名方案直接放行
func Exists(name string) bool {
	if !isDevicePath(name) {
		return true
	}
	return unix.Access(name, unix.R_OK|unix.W_OK) == nil
}
