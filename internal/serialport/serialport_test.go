package serialport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"

	"serial-gateway/internal/serialconn"
)

func TestNewSelectsDriver(t *testing.T) {
	port, err := New("", serialconn.PortConfig{PortName: "/dev/ttyUSB0"})
	require.NoError(t, err)
	assert.IsType(t, &tarmPort{}, port)

	port, err = New(DriverTarm, serialconn.PortConfig{PortName: "/dev/ttyUSB0"})
	require.NoError(t, err)
	assert.IsType(t, &tarmPort{}, port)

	_, err = New("bogus", serialconn.PortConfig{PortName: "/dev/ttyUSB0"})
	assert.Error(t, err)
}

func TestTarmConfigTranslation(t *testing.T) {
	cfg, err := tarmConfig(serialconn.PortConfig{
		PortName: "/dev/ttyUSB0",
		BaudRate: 19200,
		DataBits: 7,
		Parity:   serialconn.ParityEven,
		StopBits: serialconn.StopBitsTwo,
	})
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Name)
	assert.Equal(t, 19200, cfg.Baud)
	assert.Equal(t, byte(7), cfg.Size)
	assert.Equal(t, serial.ParityEven, cfg.Parity)
	assert.Equal(t, serial.Stop2, cfg.StopBits)
}

func TestTarmConfigRejectsBadDataBits(t *testing.T) {
	_, err := tarmConfig(serialconn.PortConfig{
		PortName: "/dev/ttyUSB0",
		BaudRate: 9600,
		DataBits: 9,
	})
	assert.Error(t, err)
}

func TestTarmParityTranslation(t *testing.T) {
	cases := map[serialconn.Parity]serial.Parity{
		serialconn.ParityNone:  serial.ParityNone,
		serialconn.ParityOdd:   serial.ParityOdd,
		serialconn.ParityEven:  serial.ParityEven,
		serialconn.ParityMark:  serial.ParityMark,
		serialconn.ParitySpace: serial.ParitySpace,
	}
	for in, want := range cases {
		got, err := tarmParity(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTarmStopBitsTranslation(t *testing.T) {
	got, err := tarmStopBits(serialconn.StopBitsOnePointFive)
	require.NoError(t, err)
	assert.Equal(t, serial.Stop1Half, got)
}

func TestIsDevicePath(t *testing.T) {
	assert.True(t, isDevicePath("/dev/ttyUSB0"))
	assert.False(t, isDevicePath("COM3"))
}

func TestExistsPassesThroughNonPathNames(t *testing.T) {
	// COM 风格的标识无法做文件系统验证，一律放行
	assert.True(t, Exists("COM3"))
}

func TestExistsRejectsMissingDevice(t *testing.T) {
	assert.False(t, Exists("/dev/definitely-not-a-serial-port"))
}
