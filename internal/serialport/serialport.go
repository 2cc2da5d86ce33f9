// Package serialport 提供串口句柄的具体驱动实现
//
// 对上实现 serialconn.Port 契约，对下封装两种驱动：
//   - tarm: 基于 github.com/tarm/serial 的可移植实现，
//     通过带超时的暂存读取模拟可读字节数查询；
//   - native: 仅 Linux，直接通过 termios 配置串口，
//     用 TIOCINQ 查询内核接收缓冲的真实字节数。
package serialport

import (
	"errors"
	"fmt"
	"strings"

	"serial-gateway/internal/serialconn"
)

// 驱动名称常量
const (
	DriverTarm   = "tarm"
	DriverNative = "native"
)

var (
	// ErrPortClosed 在串口关闭后继续读写时返回
	ErrPortClosed = errors.New("serial port is closed")
)

// New 按驱动名称构造串口句柄，串口此时尚未打开
func New(driver string, cfg serialconn.PortConfig) (serialconn.Port, error) {
	switch driver {
	case "", DriverTarm:
		return newTarmPort(cfg), nil
	case DriverNative:
		return newNativePort(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", driver)
	}
}

// Opener 返回绑定了驱动名称的句柄构造函数，供连接管理器注入
func Opener(driver string) serialconn.Opener {
	return func(cfg serialconn.PortConfig) (serialconn.Port, error) {
		return New(driver, cfg)
	}
}

// isDevicePath 判断串口标识是否形如设备文件路径
// Windows 风格的 COM3 等命名无法通过文件系统验证
func isDevicePath(name string) bool {
	return strings.ContainsRune(name, '/')
}
