// Package angle implements the angle-correction client: it triggers a
// vision-based angle measurement on the angle-capable camera module,
// reads the measured angle, and drives the correction servo to the
// computed position. Unlike the camera client, this
// module's handshake targets exact canonical status values (9, 8) rather
// than decoded bit combinations, so it is written directly against the
// transport rather than through the generic handshake primitive.
package angle

import (
	"math"
	"time"

	"pickcell.dev/angleservo"
	"pickcell.dev/corefault"
	"pickcell.dev/modbus"
	"pickcell.dev/register"
)

// Result is the outcome of a detect_angle operation.
type Result int

const (
	Success Result = iota
	Failed
	Timeout
	NotReady
	ConnectionError
	SystemError
	NoValidContour
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Timeout:
		return "timeout"
	case NotReady:
		return "not_ready"
	case ConnectionError:
		return "connection_error"
	case SystemError:
		return "system_error"
	case NoValidContour:
		return "no_valid_contour"
	default:
		return "unknown"
	}
}

// DetectResult carries the measurement from a successful detect_angle.
type DetectResult struct {
	MeasuredAngle  float64 // degrees, 0.01deg resolution
	MeasuredCenter struct{ X, Y float64 }
	ExecutionTime  time.Duration
}

const (
	// defaultDetectTimeout is used when New is given a zero detectTimeout.
	defaultDetectTimeout = 10 * time.Second
	pollInterval         = 50 * time.Millisecond

	// servoMoveTimeout bounds how long the correction worker waits for
	// the servo to report move-complete.
	servoMoveTimeout = 10 * time.Second
)

// Client drives the angle-capable camera module (camera-B) at base.
type Client struct {
	tr            *modbus.Transport
	base          uint16
	detectTimeout time.Duration
}

// New constructs an angle-correction Client for the module at base.
// detectTimeout bounds a single detect_angle cycle and falls back to
// defaultDetectTimeout when zero.
func New(tr *modbus.Transport, base uint16, detectTimeout time.Duration) *Client {
	if detectTimeout <= 0 {
		detectTimeout = defaultDetectTimeout
	}
	return &Client{tr: tr, base: base, detectTimeout: detectTimeout}
}

// DetectAngle runs a capture+angle-detect cycle in the given detection
// mode and returns the measured result.
func (c *Client) DetectAngle(mode uint16) (DetectResult, Result, error) {
	start := time.Now()

	status, err := c.tr.ReadU16(c.base + register.CamBStatus)
	if err != nil {
		return DetectResult{}, ConnectionError, err
	}
	if status != register.StatusReadyIdle {
		return DetectResult{}, NotReady, corefault.ErrNotReady
	}

	if err := c.tr.WriteU16(c.base+register.CamBMode, mode); err != nil {
		return DetectResult{}, ConnectionError, err
	}
	if err := c.tr.WriteU16(c.base+register.CamBCmd, register.CmdCaptureDetect); err != nil {
		return DetectResult{}, ConnectionError, err
	}

	if err := c.pollUntil(register.StatusDone, c.detectTimeout); err != nil {
		if err == corefault.ErrTimeout {
			return DetectResult{}, Timeout, err
		}
		return DetectResult{}, SystemError, err
	}

	success, err := c.tr.ReadU16(c.base + register.CamBSuccess)
	if err != nil {
		return DetectResult{}, ConnectionError, err
	}
	if success == 0 {
		// Still must clear control registers before returning, per the
		// PLC handshake-clear invariant.
		c.tr.WriteU16(c.base+register.CamBCmd, 0)
		c.tr.WriteU16(c.base+register.CamBSuccess, 0)
		c.pollUntil(register.StatusReadyIdle, c.detectTimeout)
		return DetectResult{}, NoValidContour, nil
	}

	angleHiLo, err := c.tr.ReadBlock(c.base+register.CamBAngleHi, 2)
	if err != nil {
		return DetectResult{}, ConnectionError, err
	}
	angleRaw := register.UnpackI32(angleHiLo[0], angleHiLo[1])

	axes, err := c.tr.ReadBlock(c.base+register.CamBAxesStart, 4)
	if err != nil {
		return DetectResult{}, ConnectionError, err
	}
	cx := float64(register.UnpackI32(axes[0], axes[1])) / 100
	cy := float64(register.UnpackI32(axes[2], axes[3])) / 100

	if err := c.tr.WriteU16(c.base+register.CamBCmd, 0); err != nil {
		return DetectResult{}, ConnectionError, err
	}
	if err := c.tr.WriteU16(c.base+register.CamBSuccess, 0); err != nil {
		return DetectResult{}, ConnectionError, err
	}
	if err := c.pollUntil(register.StatusReadyIdle, c.detectTimeout); err != nil {
		if err == corefault.ErrTimeout {
			return DetectResult{}, Timeout, err
		}
		return DetectResult{}, SystemError, err
	}

	res := DetectResult{
		MeasuredAngle: float64(angleRaw) / 100,
		ExecutionTime: time.Since(start),
	}
	res.MeasuredCenter.X = cx
	res.MeasuredCenter.Y = cy
	return res, Success, nil
}

func (c *Client) pollUntil(want uint16, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := c.tr.ReadU16(c.base + register.CamBStatus)
		if err != nil {
			return err
		}
		if status == want {
			return nil
		}
		bits := register.Decode(status)
		if bits.Alarm {
			return corefault.ErrPeerAlarm
		}
		if time.Now().After(deadline) {
			return corefault.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// ServoPosition computes the correction servo's target position for a
// measured angle: 9000 - round(angle * 10).
func ServoPosition(measuredAngle float64) int {
	return 9000 - int(math.Round(measuredAngle*10))
}

// Correct runs a full correction cycle: detect the angle, then drive the
// servo to the computed position over its own serial bridge.
func (c *Client) Correct(mode uint16, servo *angleservo.Servo) (DetectResult, Result, error) {
	res, status, err := c.DetectAngle(mode)
	if status != Success {
		return res, status, err
	}
	pos := ServoPosition(res.MeasuredAngle)
	if err := servo.MoveTo(pos, servoMoveTimeout); err != nil {
		return res, SystemError, err
	}
	return res, Success, nil
}
