package device

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port là kênh serial đã mở. Read trả về (0, nil) khi hết read timeout.
type Port interface {
	io.ReadWriteCloser
}

type Dialer interface {
	Dial() (Port, error)
}

// SerialDialer mở cổng serial thật qua go.bug.st/serial.
type SerialDialer struct {
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
}

func (d SerialDialer) Dial() (Port, error) {
	p, err := serial.Open(d.Path, &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("mở serial %s: %w", d.Path, err)
	}
	if err := p.SetReadTimeout(d.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("đặt read timeout cho %s: %w", d.Path, err)
	}
	return p, nil
}

// ListPorts liệt kê cổng serial có trên máy, dùng cho log khởi động.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
