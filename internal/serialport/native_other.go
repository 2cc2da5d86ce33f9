//go:build !linux

package serialport

import (
	"fmt"
	"os"

	"serial-gateway/internal/serialconn"
)

// newNativePort native 驱动仅支持 Linux
func newNativePort(cfg serialconn.PortConfig) (serialconn.Port, error) {
	return nil, fmt.Errorf("native serial driver is only available on linux")
}

// Exists 探测串口是否存在
// 仅对形如设备文件路径的标识有效，其余命名方案直接放行
func Exists(name string) bool {
	if !isDevicePath(name) {
		return true
	}
	_, err := os.Stat(name)
	return err == nil
}
