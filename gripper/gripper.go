// Package gripper implements the pneumatic gripper client: positional
// and open/close commands deduplicated by a monotonically increasing
// command id, with completion detection that depends on the caller's
// declared intent. It follows a write-then-poll-a-status-byte idiom
// generalized to a 4-register command block instead of a single command
// byte.
package gripper

import (
	"sync"
	"sync/atomic"
	"time"

	"pickcell.dev/corefault"
	"pickcell.dev/modbus"
	"pickcell.dev/register"
)

// Command codes.
const (
	CmdInit            uint16 = 1
	CmdStop            uint16 = 2
	CmdAbsolutePosition uint16 = 3
	CmdSetForce        uint16 = 5
	CmdSetSpeed        uint16 = 6
	CmdQuickOpen       uint16 = 7
	CmdQuickClose      uint16 = 8
)

// Grip status values reported in the peer's grip-status register.
const (
	GripStatusMoving  uint16 = 0
	GripStatusReached uint16 = 1
	GripStatusGripped uint16 = 2
)

const (
	// PositionTolerance is the ±5-unit proximity window that counts as
	// "reached".
	PositionTolerance = 5
	// MovementThreshold is the minimum travel that counts as "has
	// moved" for the grip-status-stable branch.
	MovementThreshold = 100
	// SettleThreshold is the minimum prior travel required before
	// "unchanged for 3 samples" counts as clamped.
	SettleThreshold = 50

	sampleInterval = 100 * time.Millisecond
	dedupTimeout   = 10 * time.Second
	initRetries    = 3
	initAttemptTimeout = 10 * time.Second
)

// Client drives one gripper module.
type Client struct {
	tr   *modbus.Transport
	base uint16

	issueMu sync.Mutex
	counter uint32
}

// New constructs a gripper Client for the module at base.
func New(tr *modbus.Transport, base uint16) *Client {
	return &Client{tr: tr, base: base}
}

// issue writes {cmd, param1, param2, cmd_id} as one contiguous block,
// first waiting for any prior command's cmd_id to clear so the peer
// cannot mistake this write for a retransmission of an older one.
func (c *Client) issue(cmd, p1, p2 uint16) (uint16, error) {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	if err := c.waitCmdIDClear(dedupTimeout); err != nil {
		return 0, err
	}
	id := uint16(atomic.AddUint32(&c.counter, 1))
	if err := c.tr.WriteBlock(c.base+register.GripCmd, []uint16{cmd, p1, p2, id}); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) waitCmdIDClear(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		id, err := c.tr.ReadU16(c.base + register.GripCmdID)
		if err != nil {
			return err
		}
		if id == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return corefault.ErrTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stop issues the stop command and returns immediately.
func (c *Client) Stop() error {
	_, err := c.issue(CmdStop, 0, 0)
	return err
}

// QuickOpen issues the open command. It returns immediately after the
// block write; the peer's own motor loop handles the release, so no
// position wait happens here.
func (c *Client) QuickOpen() error {
	_, err := c.issue(CmdQuickOpen, 0, 0)
	return err
}

// QuickClose issues the close command. It returns immediately after the
// block write; the peer's own motor loop handles the clamp.
func (c *Client) QuickClose() error {
	_, err := c.issue(CmdQuickClose, 0, 0)
	return err
}

// SetForce issues a set-force command.
func (c *Client) SetForce(force uint16) error {
	_, err := c.issue(CmdSetForce, force, 0)
	return err
}

// SetSpeed issues a set-speed command.
func (c *Client) SetSpeed(speed uint16) error {
	_, err := c.issue(CmdSetSpeed, speed, 0)
	return err
}

// Init issues the init command and polls the device-status register
// until it reports initialized, retrying up to initRetries times if it
// does not settle within initAttemptTimeout per attempt.
func (c *Client) Init() error {
	for attempt := 0; attempt < initRetries; attempt++ {
		if _, err := c.issue(CmdInit, 0, 0); err != nil {
			return err
		}
		deadline := time.Now().Add(initAttemptTimeout)
		for {
			st, err := c.tr.ReadU16(c.base + register.GripDevice)
			if err != nil {
				return err
			}
			if st == 1 {
				return nil
			}
			if time.Now().After(deadline) {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	return corefault.ErrTimeout
}

// MoveToPosition drives the gripper to an absolute position and waits
// for it to be reached or to clamp on an object.
func (c *Client) MoveToPosition(target uint16, timeout time.Duration) error {
	if _, err := c.issue(CmdAbsolutePosition, target, 0); err != nil {
		return err
	}
	if err := c.waitCmdIDClear(timeout); err != nil {
		return err
	}
	return c.waitReached(target, timeout)
}

func (c *Client) waitReached(target uint16, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var (
		startPos     uint16
		haveStart    bool
		lastPos      uint16
		unchangedRun int
		movedTotal   bool
		stableRun    int
	)
	for {
		pos, err := c.tr.ReadU16(c.base + register.GripPosition)
		if err != nil {
			return err
		}
		if !haveStart {
			startPos = pos
			lastPos = pos
			haveStart = true
		}
		// Branch A: within tolerance of target.
		if abs16(int(pos)-int(target)) <= PositionTolerance {
			return nil
		}
		// Branch B: continuous non-zero movement >= threshold followed
		// by grip-status stable for 2 consecutive polls.
		if abs16(int(pos)-int(startPos)) >= MovementThreshold {
			movedTotal = true
		}
		if movedTotal {
			st, err := c.tr.ReadU16(c.base + register.GripGripSt)
			if err != nil {
				return err
			}
			if st == GripStatusReached || st == GripStatusGripped {
				stableRun++
				if stableRun >= 2 {
					return nil
				}
			} else {
				stableRun = 0
			}
		}
		// Branch C: unchanged for 3 consecutive 100ms samples after
		// having moved >= SettleThreshold.
		if pos == lastPos {
			unchangedRun++
		} else {
			unchangedRun = 0
		}
		if unchangedRun >= 3 && abs16(int(lastPos)-int(startPos)) >= SettleThreshold {
			return nil
		}
		lastPos = pos
		if time.Now().After(deadline) {
			return corefault.ErrTimeout
		}
		time.Sleep(sampleInterval)
	}
}

func abs16(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
