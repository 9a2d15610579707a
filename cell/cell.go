// Package cell wires every worker into one process-wide object: one
// Modbus transport, one client per peripheral, the motion state machine,
// the dispatcher, and the autonomous loop, all sharing a single explicit
// context instead of the module-level singletons a straight port of the
// original control scripts would use.
package cell

import (
	"fmt"
	"log"
	"time"

	"pickcell.dev/angle"
	"pickcell.dev/angleservo"
	"pickcell.dev/auto"
	"pickcell.dev/config"
	"pickcell.dev/dispatch"
	"pickcell.dev/feeder"
	"pickcell.dev/flow"
	"pickcell.dev/gripper"
	"pickcell.dev/iopanel"
	"pickcell.dev/logctx"
	"pickcell.dev/modbus"
	"pickcell.dev/motion"
	"pickcell.dev/points"
	"pickcell.dev/polygon"
	"pickcell.dev/robot"
	"pickcell.dev/vision"
)

// Cell is every worker and client needed to run the pick-and-place
// orchestration core, constructed once at process start.
type Cell struct {
	Config config.Config

	Transport *modbus.Transport
	Arm       *robot.Arm
	Points    *points.Library

	Vision     *vision.Client
	Gripper    *gripper.Client
	Angle      *angle.Client
	AngleServo *angleservo.Servo
	Feeder     *feeder.Client

	Motion     *motion.Machine
	Dispatcher *dispatch.Dispatcher
	Auto       *auto.Loop
	IOPanel    *iopanel.Panel

	Peripherals flow.Peripherals
}

// Open constructs a Cell from cfg: it dials the Modbus transport and the
// robot arm, loads the points file, builds every peripheral client, and
// starts the motion machine, dispatcher and autonomous loop.
func Open(cfg config.Config) (*Cell, error) {
	if len(cfg.ProtectionPolygon) != 4 {
		return nil, fmt.Errorf("cell: protection_polygon must have exactly 4 vertices, got %d", len(cfg.ProtectionPolygon))
	}
	var poly [4]polygon.Point
	for i, v := range cfg.ProtectionPolygon {
		poly[i] = polygon.Point{X: v[0], Y: v[1]}
	}

	pts, err := points.Load(cfg.PointsFile)
	if err != nil {
		return nil, err
	}

	tr := modbus.Dial(cfg.ModbusAddr)

	arm, err := robot.Dial(cfg.Robot.IP)
	if err != nil {
		tr.Close()
		return nil, err
	}

	var servo *angleservo.Servo
	if cfg.Features.AngleCorrection {
		servo, err = angleservo.Open(cfg.AngleServoDev)
		if err != nil {
			tr.Close()
			arm.Close()
			return nil, err
		}
	}

	readyTimeout := time.Duration(cfg.Timing.ReadyTimeoutMS) * time.Millisecond
	runningTimeout := time.Duration(cfg.Timing.RunningTimeoutMS) * time.Millisecond
	motionTimeout := time.Duration(cfg.Timing.MotionCompletionMS) * time.Millisecond
	angleDetectTimeout := time.Duration(cfg.Timing.AngleDetectMS) * time.Millisecond
	cycleInterval := time.Duration(cfg.Timing.CycleIntervalMS) * time.Millisecond

	c := &Cell{
		Config:     cfg,
		Transport:  tr,
		Arm:        arm,
		Points:     pts,
		Vision:     vision.New(tr, cfg.Modbus.CameraABase, polygon.New(poly), logctx.New("camera-a"), readyTimeout, runningTimeout),
		Gripper:    gripper.New(tr, cfg.Modbus.GripperBase),
		Angle:      angle.New(tr, cfg.Modbus.CameraBBase, angleDetectTimeout),
		AngleServo: servo,
		Feeder:     feeder.New(tr, cfg.Modbus.FeederBase),
	}
	c.Motion = motion.New(tr, cfg.Modbus.MotionBase, arm, logctx.New("motion"))
	c.Dispatcher = dispatch.New(tr, cfg.Modbus.MotionBase, c.Motion, logctx.New("dispatch"))
	c.Auto = auto.New(tr, cfg.Modbus.AutoProgramBase, c.Vision, c.Feeder, c.Motion, polygon.New(poly), logctx.New("auto"), cycleInterval)
	if cfg.Features.AutoProgramEnabled {
		c.Auto.Enable()
	}

	c.Peripherals = flow.Peripherals{
		Vision:        c.Vision,
		Gripper:       c.Gripper,
		Angle:         c.Angle,
		AngleServo:    c.AngleServo,
		Points:        c.Points,
		Transport:     tr,
		MotionTimeout: motionTimeout,
	}

	if cfg.EstopGPIOPin != "" && cfg.LampGPIOPin != "" {
		panel, err := iopanel.Open(cfg.EstopGPIOPin, cfg.LampGPIOPin)
		if err != nil {
			logctx.New("iopanel").Printf("physical e-stop unavailable: %v", err)
		} else {
			c.IOPanel = panel
			go panel.WatchEStop(c.Motion.EmergencyStop)
		}
	}
	return c, nil
}

// Close releases every connection the Cell holds.
func (c *Cell) Close() {
	c.Dispatcher.Close()
	c.Auto.Close()
	if c.AngleServo != nil {
		c.AngleServo.Close()
	}
	c.Arm.Close()
	c.Transport.Close()
}

// Run drains the dispatcher's Motion queue, running each enqueued flow to
// completion before accepting the next one (C6's at-most-one-Running
// guarantee). It blocks until stopped.
func (c *Cell) Run(stopped func() bool, logger *log.Logger) {
	q := c.Dispatcher.Queue(dispatch.Motion)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !stopped() {
		select {
		case cmd := <-q:
			c.runMotionCommand(cmd.Payload, stopped, logger)
		case <-ticker.C:
		}
	}
}

func (c *Cell) runMotionCommand(payload uint16, stopped func() bool, logger *log.Logger) {
	cancel := func() bool { return stopped() }
	var err error
	switch payload {
	case 1:
		err = flow.Pick(c.Arm, c.Peripherals, c.Motion, cancel)
	case 2:
		err = flow.Unload(c.Arm, c.Peripherals, c.Motion, cancel)
	case 5:
		err = flow.Assembly(c.Arm, c.Peripherals, c.Motion, []string{flow.PointStandby}, cancel)
	default:
		logger.Printf("unknown motion payload %d", payload)
		return
	}
	if err != nil {
		logger.Printf("flow failed: %v", err)
	}
}
