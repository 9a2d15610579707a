// Package angleservo drives the angle-correction servo over its own
// serial bridge, separate from the Modbus bus: a simple line-oriented
// protocol to set a target position and poll a moving bit. Open uses a
// configured device name when one is given, and tries platform-specific
// defaults only when none is; it does not fall back from a configured
// device that fails to open.
package angleservo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"

	"pickcell.dev/corefault"
)

const (
	baudRate = 115200

	// pollInterval is how often the moving bit is re-checked while
	// waiting for a move to complete.
	pollInterval = 50 * time.Millisecond
)

// Servo is a connection to the angle-correction servo's serial bridge.
type Servo struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// Open dials dev, or platform defaults when dev is empty, at baudRate.
func Open(dev string) (*Servo, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM4")
		case "linux":
			devices = append(devices, "/dev/ttyUSB1", "/dev/ttyACM0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("angleservo: no device specified")
	}
	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baudRate, ReadTimeout: time.Second}
		p, err := serial.OpenPort(c)
		if err == nil {
			return &Servo{port: p, r: bufio.NewReader(p)}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Close releases the serial port.
func (s *Servo) Close() error {
	return s.port.Close()
}

// MoveTo commands the servo to position (in the controller's own
// position units, e.g. 9000 - round(angle*10)) and blocks until its
// moving bit clears or timeout elapses.
func (s *Servo) MoveTo(position int, timeout time.Duration) error {
	if _, err := fmt.Fprintf(s.port, "P%d\n", position); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		moving, err := s.readMoving()
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
		if time.Now().After(deadline) {
			return corefault.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

func (s *Servo) readMoving() (bool, error) {
	if _, err := fmt.Fprintf(s.port, "M?\n"); err != nil {
		return false, err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return false, err
	}
	return len(line) > 0 && line[0] == '1', nil
}
