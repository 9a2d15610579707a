// Package flow implements the five scripted flow executors: fixed
// sequences of robot motion primitives, device-client calls and sleeps,
// each a plain function of the shape
// (robot, peripherals, state machine, cancel token) -> error rather than
// an executor class hierarchy. Every motion primitive is followed by
// Sync() so the core, not the arm, is the party that waits for motion
// completion.
package flow

import (
	"fmt"
	"time"

	"pickcell.dev/angle"
	"pickcell.dev/angleservo"
	"pickcell.dev/corefault"
	"pickcell.dev/gripper"
	"pickcell.dev/modbus"
	"pickcell.dev/motion"
	"pickcell.dev/points"
	"pickcell.dev/register"
	"pickcell.dev/robot"
	"pickcell.dev/vision"
)

// Named points every flow below expects to find in the points library.
const (
	PointStandby   = "standby"
	PointHandoff   = "handoff"
	PointDischarge = "discharge"
	PointBuffer    = "buffer_pick"
)

// Cancel reports whether a flow should abort its next step. Workers pass
// a closure over their shared running flag.
type Cancel func() bool

// Peripherals bundles every device client a flow may call into, plus the
// pose library and the raw transport for the two pure-I/O flows.
type Peripherals struct {
	Vision     *vision.Client
	Gripper    *gripper.Client
	Angle      *angle.Client
	AngleServo *angleservo.Servo
	Points     *points.Library
	Transport  *modbus.Transport

	// MotionTimeout bounds how long a flow waits for the gripper to
	// finish a positional move before treating it as a timeout.
	MotionTimeout time.Duration
}

func (p Peripherals) gripperTimeout() time.Duration {
	if p.MotionTimeout > 0 {
		return p.MotionTimeout
	}
	return defaultGripperTimeout
}

const defaultGripperTimeout = 10 * time.Second

// GripClosedPosition is the absolute gripper position commanded when
// closing on a picked part.
const GripClosedPosition = 0

const liftClearance = 40.0 // mm above the measured pick height

func cancelled(c Cancel) error {
	if c != nil && c() {
		return corefault.ErrCancelled
	}
	return nil
}

// Pick runs Flow1: standby, fetch a target from camera-A's queue, descend
// onto it, close the gripper, lift, hand off, run angle correction, then
// report completion.
func Pick(arm *robot.Arm, p Peripherals, m *motion.Machine, cancel Cancel) error {
	m.Start(1)
	if err := pickSteps(arm, p, cancel); err != nil {
		m.Fail(errorCodeFor(err))
		return fmt.Errorf("flow: pick: %w", err)
	}
	m.Succeed(motion.Flow1)
	return nil
}

func pickSteps(arm *robot.Arm, p Peripherals, cancel Cancel) error {
	standby := p.Points.MustGet(PointStandby)
	if err := move(arm, standby, cancel); err != nil {
		return err
	}

	det, res, err := p.Vision.GetNextObject()
	if err != nil {
		return err
	}
	if res != vision.Success {
		return fmt.Errorf("%w: no material available", corefault.ErrFlowFailure)
	}

	if err := moveLCoord(arm, det.WorldX, det.WorldY, standby.Z, standby.R, cancel); err != nil {
		return err
	}
	if err := moveLCoord(arm, det.WorldX, det.WorldY, standby.Z-liftClearance, standby.R, cancel); err != nil {
		return err
	}
	if err := p.Gripper.MoveToPosition(GripClosedPosition, p.gripperTimeout()); err != nil {
		return err
	}
	if err := moveLCoord(arm, det.WorldX, det.WorldY, standby.Z, standby.R, cancel); err != nil {
		return err
	}

	handoff := p.Points.MustGet(PointHandoff)
	if err := move(arm, handoff, cancel); err != nil {
		return err
	}

	_, astatus, err := p.Angle.Correct(1, p.AngleServo)
	if err != nil {
		return err
	}
	if astatus != angle.Success && astatus != angle.NoValidContour {
		return fmt.Errorf("%w: angle correction failed: %v", corefault.ErrFlowFailure, astatus)
	}
	return nil
}

// Unload runs Flow2: pick from the internal buffer, move to discharge,
// release, return to standby, then report completion.
func Unload(arm *robot.Arm, p Peripherals, m *motion.Machine, cancel Cancel) error {
	m.Start(2)
	if err := unloadSteps(arm, p, cancel); err != nil {
		m.Fail(errorCodeFor(err))
		return fmt.Errorf("flow: unload: %w", err)
	}
	m.Succeed(motion.Flow2)
	return nil
}

func unloadSteps(arm *robot.Arm, p Peripherals, cancel Cancel) error {
	buffer := p.Points.MustGet(PointBuffer)
	if err := move(arm, buffer, cancel); err != nil {
		return err
	}
	if err := p.Gripper.MoveToPosition(GripClosedPosition, p.gripperTimeout()); err != nil {
		return err
	}
	discharge := p.Points.MustGet(PointDischarge)
	if err := move(arm, discharge, cancel); err != nil {
		return err
	}
	if err := p.Gripper.QuickOpen(); err != nil {
		return err
	}
	standby := p.Points.MustGet(PointStandby)
	return move(arm, standby, cancel)
}

// Assembly runs Flow5: a longer scripted path touching a sequence of
// named points, with no device calls beyond motion.
func Assembly(arm *robot.Arm, p Peripherals, m *motion.Machine, names []string, cancel Cancel) error {
	m.Start(5)
	for _, name := range names {
		if err := cancelled(cancel); err != nil {
			m.Fail(errorCodeFor(err))
			return fmt.Errorf("flow: assembly: %w", err)
		}
		if err := move(arm, p.Points.MustGet(name), cancel); err != nil {
			m.Fail(errorCodeFor(err))
			return fmt.Errorf("flow: assembly: %w", err)
		}
	}
	m.Succeed(motion.Flow5)
	return nil
}

// Flip runs the I/O-A flow: a pure DO sequence that cycles two pneumatic
// actuators with intermediate sleep gates. It has no motion-state-machine
// interaction and may run concurrently with a motion flow.
func Flip(tr *modbus.Transport, cancel Cancel) error {
	const settle = 300 * time.Millisecond
	steps := []uint16{1, 0, 1, 0}
	for _, v := range steps {
		if err := cancelled(cancel); err != nil {
			return err
		}
		if err := tr.WriteU16(register.AddrIOFlip, v); err != nil {
			return err
		}
		time.Sleep(settle)
	}
	return nil
}

// VibrationFeed runs the I/O-B flow: drives the vibratory bowl for
// duration, then stops it.
func VibrationFeed(tr *modbus.Transport, duration time.Duration, cancel Cancel) error {
	if err := cancelled(cancel); err != nil {
		return err
	}
	if err := tr.WriteU16(register.AddrIOVibrationFeed, 1); err != nil {
		return err
	}
	time.Sleep(duration)
	return tr.WriteU16(register.AddrIOVibrationFeed, 0)
}

func move(arm *robot.Arm, pt points.Point, cancel Cancel) error {
	if err := cancelled(cancel); err != nil {
		return err
	}
	if err := arm.MoveJ(pt); err != nil {
		return err
	}
	return arm.Sync()
}

func moveLCoord(arm *robot.Arm, x, y, z, r float64, cancel Cancel) error {
	if err := cancelled(cancel); err != nil {
		return err
	}
	if err := arm.MoveLCoord(x, y, z, r); err != nil {
		return err
	}
	return arm.Sync()
}

// errorCodeFor maps a flow failure's underlying cause to a small integer
// error code for the motion status block. Codes below 10 are reserved for
// corefault sentinels; unrecognised errors get code 99.
func errorCodeFor(err error) uint16 {
	switch {
	case err == corefault.ErrCancelled:
		return 2
	case err == corefault.ErrTimeout:
		return 3
	case err == corefault.ErrPeerAlarm:
		return 4
	case err == corefault.ErrNotReady:
		return 5
	default:
		return 99
	}
}
