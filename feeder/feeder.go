// Package feeder implements the vibratory feeder module client: a
// command/param/cmd-id block at its own Modbus base, driven by the
// auto-program loop to spread a clogged pile via a named "execute
// action" command. It follows the same write-then-poll idiom as
// gripper.Client, generalized down to the commands the feeder actually
// needs. The low-stock "pulse" path the auto-program loop also drives
// is a plain DO toggle on the I/O flow-control block, not a command
// issued through this client.
package feeder

import (
	"time"

	"pickcell.dev/corefault"
	"pickcell.dev/modbus"
	"pickcell.dev/register"
)

// Command codes understood by the feeder module.
const (
	CmdStopAll       uint16 = 3
	CmdExecuteAction uint16 = 5
)

// SpreadAction, SpreadStrength and SpreadFrequency are the fixed
// "spread a clogged pile" action parameters.
const (
	SpreadAction    uint16 = 11
	SpreadStrength  uint16 = 50
	SpreadFrequency uint16 = 43
)

// emergencyStopCmdID is the command id the stop-all write carries,
// distinct from the module's usual per-command id.
const emergencyStopCmdID uint16 = 99

const dedupTimeout = 5 * time.Second

// Client drives one feeder module.
type Client struct {
	tr   *modbus.Transport
	base uint16
}

// New constructs a feeder Client for the module at base.
func New(tr *modbus.Transport, base uint16) *Client {
	return &Client{tr: tr, base: base}
}

// IsReady reports whether the feeder module is connected and its device
// has completed initialization.
func (c *Client) IsReady() (bool, error) {
	vs, err := c.tr.ReadBlock(c.base+register.FeederModule, 3)
	if err != nil {
		return false, err
	}
	return vs[register.FeederConn] != 0 && vs[register.FeederDevice] != 0, nil
}

func (c *Client) issue(cmd, p1, p2, p3 uint16) error {
	if err := c.waitCmdIDClear(dedupTimeout); err != nil {
		return err
	}
	return c.tr.WriteBlock(c.base+register.FeederCmd, []uint16{cmd, p1, p2, p3, 1})
}

func (c *Client) waitCmdIDClear(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		id, err := c.tr.ReadU16(c.base + register.FeederCmdID)
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

// Vibrate drives the bowl for duration to spread a clogged pile, used
// when detections are abundant but none sit in the protection polygon.
// It issues the fixed spread action (action=11, strength=50, freq=43),
// waits, then stops with the module's dedicated stop-all command id.
func (c *Client) Vibrate(duration time.Duration) error {
	if err := c.issue(CmdExecuteAction, SpreadAction, SpreadStrength, SpreadFrequency); err != nil {
		return err
	}
	time.Sleep(duration)
	return c.stopAll()
}

func (c *Client) stopAll() error {
	if err := c.waitCmdIDClear(dedupTimeout); err != nil {
		return err
	}
	return c.tr.WriteBlock(c.base+register.FeederCmd, []uint16{CmdStopAll, 0, 0, 0, emergencyStopCmdID})
}
