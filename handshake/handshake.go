// Package handshake implements the generic command-register /
// status-register interaction used by every peripheral on the bus:
// write a command code, observe Ready→Running→done, read results,
// clear the command, and wait for Ready to return. It is a
// descriptor-driven walker reusable across every module client, rather
// than each client hand-rolling its own poll loop.
package handshake

import (
	"time"

	"pickcell.dev/corefault"
	"pickcell.dev/modbus"
	"pickcell.dev/register"
)

// Default poll cadence and timeouts, overridable per call.
const (
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultReadyTimeout    = 10 * time.Second
	DefaultRunningTimeout  = 10 * time.Second
	DefaultMinRunningHold  = 1 * time.Second
	DefaultCompletionGrace = 2 * time.Second
)

// Handshake describes one peripheral's command/status register pair and
// the timing parameters governing interaction with it.
type Handshake struct {
	Transport  *modbus.Transport
	CommandReg uint16
	StatusReg  uint16

	PollInterval    time.Duration
	ReadyTimeout    time.Duration
	RunningTimeout  time.Duration
	MinRunningHold  time.Duration
	CompletionGrace time.Duration

	// ClearStale, if set, is invoked after the Ready check and before
	// the command code is written, to clear stale completion flags
	// under the module's result-ready address.
	ClearStale func() error
}

func (h *Handshake) pollInterval() time.Duration {
	if h.PollInterval > 0 {
		return h.PollInterval
	}
	return DefaultPollInterval
}

func (h *Handshake) readyTimeout() time.Duration {
	if h.ReadyTimeout > 0 {
		return h.ReadyTimeout
	}
	return DefaultReadyTimeout
}

func (h *Handshake) runningTimeout() time.Duration {
	if h.RunningTimeout > 0 {
		return h.RunningTimeout
	}
	return DefaultRunningTimeout
}

func (h *Handshake) minRunningHold() time.Duration {
	if h.MinRunningHold > 0 {
		return h.MinRunningHold
	}
	return DefaultMinRunningHold
}

func (h *Handshake) completionGrace() time.Duration {
	if h.CompletionGrace > 0 {
		return h.CompletionGrace
	}
	return DefaultCompletionGrace
}

// Run drives one full command cycle: code is written to CommandReg once
// the peer is observed Ready; readResult is invoked once the peer has
// finished running, with the command register still non-zero, to read
// the peripheral's result area before it is cleared.
func (h *Handshake) Run(code uint16, readResult func() error) error {
	status, err := h.Transport.ReadU16(h.StatusReg)
	if err != nil {
		return err
	}
	bits := register.Decode(status)
	if bits.Alarm || !bits.Ready || !bits.Initialized {
		return corefault.ErrNotReady
	}

	if h.ClearStale != nil {
		if err := h.ClearStale(); err != nil {
			return err
		}
	}

	if err := h.Transport.WriteU16(h.CommandReg, code); err != nil {
		return err
	}

	if err := h.waitFor(h.runningTimeout(), func(b register.StatusBits) (bool, error) {
		if b.Alarm {
			return false, corefault.ErrPeerAlarm
		}
		// Tie-break: Ready=1 AND Running=1 observed, prefer Running,
		// treat as the peer having started.
		if !b.Ready && b.Running {
			return true, nil
		}
		if b.Ready && b.Running {
			return true, nil
		}
		return false, nil
	}); err != nil {
		if err == corefault.ErrTimeout {
			return corefault.ErrCommandLost
		}
		return err
	}

	runningSince := time.Now()
	if err := h.waitFor(h.readyTimeout(), func(b register.StatusBits) (bool, error) {
		if b.Alarm {
			return false, corefault.ErrPeerAlarm
		}
		if b.Running {
			return false, nil
		}
		if time.Since(runningSince) < h.minRunningHold() {
			return false, nil
		}
		return true, nil
	}); err != nil {
		return err
	}

	if readResult != nil {
		if err := readResult(); err != nil {
			return err
		}
	}

	if err := h.Transport.WriteU16(h.CommandReg, register.CmdClear); err != nil {
		return err
	}

	return h.waitFor(h.readyTimeout(), func(b register.StatusBits) (bool, error) {
		if b.Alarm {
			return false, corefault.ErrPeerAlarm
		}
		return b.Ready, nil
	})
}

// waitFor polls the status register until cond reports true, an error,
// or timeout elapses. A persistent Ready=0 AND Running=0 observed for
// longer than CompletionGrace is treated as successful completion,
// independent of cond.
func (h *Handshake) waitFor(timeout time.Duration, cond func(register.StatusBits) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var idleSince time.Time
	for {
		status, err := h.Transport.ReadU16(h.StatusReg)
		if err != nil {
			return err
		}
		bits := register.Decode(status)
		ok, err := cond(bits)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !bits.Ready && !bits.Running {
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if time.Since(idleSince) > h.completionGrace() {
				return nil
			}
		} else {
			idleSince = time.Time{}
		}
		if time.Now().After(deadline) {
			return corefault.ErrTimeout
		}
		time.Sleep(h.pollInterval())
	}
}
