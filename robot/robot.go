// Package robot is a minimal client for the arm's two plain-text TCP
// command ports: a "dashboard" port for enable/disable/error-clear/speed
// commands, and a "move" port for motion commands, mirroring the
// dashboard_api/move_api split used to drive the cell's Dobot M1 Pro arm.
// Both ports speak line-oriented ASCII commands and reply with a single
// line each; this client only implements the handful of commands the
// flow executors need, wrapping the narrow external protocol in a small
// typed client rather than a full SDK port.
package robot

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"pickcell.dev/points"
)

// Arm is a connection to both the dashboard and move command ports of a
// robot controller.
type Arm struct {
	dashMu   sync.Mutex
	dash     net.Conn
	dashR    *bufio.Reader
	moveMu   sync.Mutex
	move     net.Conn
	moveR    *bufio.Reader
}

const dialTimeout = 5 * time.Second

// Dial connects to the dashboard port (ip:29999) and the move port
// (ip:30003), enables the robot, and clears any latched error.
func Dial(ip string) (*Arm, error) {
	dash, err := net.DialTimeout("tcp", fmt.Sprintf("%s:29999", ip), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("robot: dashboard dial: %w", err)
	}
	move, err := net.DialTimeout("tcp", fmt.Sprintf("%s:30003", ip), dialTimeout)
	if err != nil {
		dash.Close()
		return nil, fmt.Errorf("robot: move dial: %w", err)
	}
	a := &Arm{
		dash:  dash,
		dashR: bufio.NewReader(dash),
		move:  move,
		moveR: bufio.NewReader(move),
	}
	if err := a.dashCmd("ClearError()"); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.dashCmd("EnableRobot()"); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases both command connections.
func (a *Arm) Close() error {
	if a.dash != nil {
		a.dash.Close()
	}
	if a.move != nil {
		a.move.Close()
	}
	return nil
}

func (a *Arm) dashCmd(cmd string) error {
	a.dashMu.Lock()
	defer a.dashMu.Unlock()
	return sendRecv(a.dash, a.dashR, cmd)
}

func (a *Arm) moveCmd(cmd string) error {
	a.moveMu.Lock()
	defer a.moveMu.Unlock()
	return sendRecv(a.move, a.moveR, cmd)
}

func sendRecv(conn net.Conn, r *bufio.Reader, cmd string) error {
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("robot: write %q: %w", cmd, err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("robot: read reply to %q: %w", cmd, err)
	}
	if strings.HasPrefix(strings.TrimSpace(line), "-1") {
		return fmt.Errorf("robot: %q rejected: %s", cmd, strings.TrimSpace(line))
	}
	return nil
}

// SetSpeed sets the global speed/acceleration factors used by subsequent
// moves, mirroring SpeedFactor/SpeedJ/SpeedL/AccJ/AccL together.
func (a *Arm) SetSpeed(pct int) error {
	for _, cmd := range []string{
		fmt.Sprintf("SpeedFactor(%d)", pct),
		fmt.Sprintf("SpeedJ(%d)", pct),
		fmt.Sprintf("SpeedL(%d)", pct),
		fmt.Sprintf("AccJ(%d)", pct),
		fmt.Sprintf("AccL(%d)", pct),
	} {
		if err := a.dashCmd(cmd); err != nil {
			return err
		}
	}
	return nil
}

// EmergencyStop issues an immediate stop on the dashboard connection.
func (a *Arm) EmergencyStop() error {
	return a.dashCmd("EmergencyStop()")
}

// ClearError clears a latched fault and re-enables the robot.
func (a *Arm) ClearError() error {
	if err := a.dashCmd("ClearError()"); err != nil {
		return err
	}
	return a.dashCmd("EnableRobot()")
}

// MoveJ issues a joint-space move to the named point's joint angles.
func (a *Arm) MoveJ(p points.Point) error {
	return a.moveCmd(fmt.Sprintf("JointMovJ(%f,%f,%f,%f)", p.J1, p.J2, p.J3, p.J4))
}

// MoveL issues a Cartesian linear move to the named point's pose.
func (a *Arm) MoveL(p points.Point) error {
	return a.moveCmd(fmt.Sprintf("MovL(%f,%f,%f,%f)", p.X, p.Y, p.Z, p.R))
}

// MoveLCoord issues a Cartesian linear move to explicit coordinates, used
// for vision-computed targets that have no named point.
func (a *Arm) MoveLCoord(x, y, z, r float64) error {
	return a.moveCmd(fmt.Sprintf("MovL(%f,%f,%f,%f)", x, y, z, r))
}

// Sync blocks until the arm's motion queue has drained.
func (a *Arm) Sync() error {
	return a.moveCmd("Sync()")
}
