package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"serial-gateway/internal/serialconn"
)

const (
	// 暂存读取的单次上限与读超时
	// 超时决定了可读字节数查询的最大阻塞时长
	tarmStagingSize  = 4096
	tarmReadTimeout  = 200 * time.Millisecond
	tarmErrChanDepth = 4
)

// tarmPort 基于 tarm/serial 的可移植串口句柄
//
// tarm 驱动不暴露内核接收缓冲的字节数，这里用暂存缓冲模拟：
// BytesAvailable 做一次带超时的读取并把结果暂存，
// 报告的就是一次轮询间隔内实际到达的字节，消息边界语义不变。
type tarmPort struct {
	cfg   serialconn.PortConfig
	mu    sync.Mutex
	port  *serial.Port
	stage []byte
	errCh chan error
}

func newTarmPort(cfg serialconn.PortConfig) *tarmPort {
	return &tarmPort{
		cfg:   cfg,
		errCh: make(chan error, tarmErrChanDepth),
	}
}

// Open 翻译参数并打开底层串口
func (p *tarmPort) Open() error {
	config, err := tarmConfig(p.cfg)
	if err != nil {
		return err
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.port = port
	p.stage = nil
	p.mu.Unlock()
	return nil
}

// Close 关闭串口，可重复调用
func (p *tarmPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	p.stage = nil
	return err
}

// IsOpen 返回串口是否处于打开状态
func (p *tarmPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port != nil
}

// BytesAvailable 返回暂存缓冲中的字节数
// 缓冲为空时做一次带超时的读取补充暂存；读超时不算错误
func (p *tarmPort) BytesAvailable() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, ErrPortClosed
	}
	if len(p.stage) > 0 {
		return len(p.stage), nil
	}

	buf := make([]byte, tarmStagingSize)
	n, err := p.port.Read(buf)
	if err != nil {
		// VMIN=0/VTIME 模式下超时表现为 EOF，属于无数据而非故障
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		p.notify(err)
		return 0, err
	}

	p.stage = append(p.stage, buf[:n]...)
	return len(p.stage), nil
}

// Read 优先消费暂存缓冲，暂存为空时直接读取底层串口
func (p *tarmPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, ErrPortClosed
	}

	if len(p.stage) > 0 {
		n := copy(buf, p.stage)
		p.stage = p.stage[n:]
		return n, nil
	}

	n, err := p.port.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		p.notify(err)
		return 0, err
	}
	return n, nil
}

// Write 完整写出缓冲内容
func (p *tarmPort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()

	if port == nil {
		return 0, ErrPortClosed
	}

	n, err := port.Write(buf)
	if err != nil {
		p.notify(err)
		return n, err
	}
	if n < len(buf) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(buf))
		p.notify(err)
		return n, err
	}
	return n, nil
}

// Errors 返回异步故障通知通道
func (p *tarmPort) Errors() <-chan error { return p.errCh }

// notify 尽力投递一次故障通知，通道满时丢弃
func (p *tarmPort) notify(err error) {
	select {
	case p.errCh <- err:
	default:
	}
}

// tarmConfig 把串口参数翻译为 tarm/serial 的配置
func tarmConfig(cfg serialconn.PortConfig) (*serial.Config, error) {
	parity, err := tarmParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	stopBits, err := tarmStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return nil, fmt.Errorf("unsupported data bits %d", cfg.DataBits)
	}

	return &serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		ReadTimeout: tarmReadTimeout,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
	}, nil
}

// tarmParity 校验位翻译
func tarmParity(p serialconn.Parity) (serial.Parity, error) {
	switch p {
	case serialconn.ParityNone:
		return serial.ParityNone, nil
	case serialconn.ParityOdd:
		return serial.ParityOdd, nil
	case serialconn.ParityEven:
		return serial.ParityEven, nil
	case serialconn.ParityMark:
		return serial.ParityMark, nil
	case serialconn.ParitySpace:
		return serial.ParitySpace, nil
	default:
		return 0, fmt.Errorf("unsupported parity %v", p)
	}
}

// tarmStopBits 停止位翻译
func tarmStopBits(s serialconn.StopBits) (serial.StopBits, error) {
	switch s {
	case serialconn.StopBitsOne:
		return serial.Stop1, nil
	case serialconn.StopBitsOnePointFive:
		return serial.Stop1Half, nil
	case serialconn.StopBitsTwo:
		return serial.Stop2, nil
	default:
		return 0, fmt.Errorf("unsupported stop bits %v", s)
	}
}
