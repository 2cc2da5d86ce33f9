//go:build linux

package serialport

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"serial-gateway/internal/serialconn"
)

func TestConfigureTermiosFlags(t *testing.T) {
	termios := &unix.Termios{}
	err := configureTermios(termios, serialconn.PortConfig{
		PortName: "/dev/ttyUSB0",
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serialconn.ParityOdd,
		StopBits: serialconn.StopBitsTwo,
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(unix.CS8), termios.Cflag&unix.CSIZE)
	assert.NotZero(t, termios.Cflag&unix.PARENB)
	assert.NotZero(t, termios.Cflag&unix.PARODD)
	assert.NotZero(t, termios.Cflag&unix.CSTOPB)
	assert.Equal(t, uint32(unix.B115200), termios.Cflag&unix.CBAUD)
}

func TestConfigureTermiosRejectsOnePointFiveStopBits(t *testing.T) {
	termios := &unix.Termios{}
	err := configureTermios(termios, serialconn.PortConfig{
		PortName: "/dev/ttyUSB0",
		BaudRate: 9600,
		DataBits: 8,
		StopBits: serialconn.StopBitsOnePointFive,
	})
	assert.Error(t, err)
}

func TestBaudFlagRejectsUnknownRate(t *testing.T) {
	_, err := baudFlag(1234)
	assert.Error(t, err)
}

// 通过 pty 对验证 native 驱动的完整读写路径
func TestNativePortOverPty(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("无法创建 pty: %v", err)
	}
	defer master.Close()
	slaveName := slave.Name()
	slave.Close()

	port, err := newNativePort(serialconn.PortConfig{
		PortName: slaveName,
		BaudRate: 115200,
		DataBits: 8,
	})
	require.NoError(t, err)

	require.NoError(t, port.Open())
	defer port.Close()
	assert.True(t, port.IsOpen())

	// 主端写入的数据应出现在可读字节计数里
	payload := []byte{0x10, 0x20, 0x30}
	_, err = master.Write(payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := port.BytesAvailable()
		return err == nil && n >= len(payload)
	}, time.Second, 5*time.Millisecond)

	buf := make([]byte, len(payload))
	filled := 0
	for filled < len(buf) {
		n, err := port.Read(buf[filled:])
		require.NoError(t, err)
		filled += n
	}
	assert.Equal(t, payload, buf)

	// 反向写出，主端应能读到
	_, err = port.Write([]byte("ping"))
	require.NoError(t, err)

	echo := make([]byte, 4)
	_, err = master.Read(echo)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), echo)

	require.NoError(t, port.Close())
	assert.False(t, port.IsOpen())
	require.NoError(t, port.Close())
}
