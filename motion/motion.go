// Package motion implements the single-writer motion status-word state
// machine: a Machine is the sole writer of its status register block,
// serialising every transition under its own mutex. A background
// goroutine mirrors the current status word to the bus at least once
// per second even while idle, so a PLC polling the block never misses
// the current state between transitions.
package motion

import (
	"log"
	"sync"
	"time"

	"pickcell.dev/modbus"
	"pickcell.dev/register"
	"pickcell.dev/robot"
)

// Flow identifies one of the named flows that report a completion bit.
type Flow int

const (
	Flow1 Flow = iota
	Flow2
	Flow5
)

// State machine is constructed once per cell and owns the motion status
// block at base.
type Machine struct {
	tr   *modbus.Transport
	base uint16
	arm  *robot.Arm
	log  *log.Logger

	mu          sync.Mutex
	running     bool
	alarm       bool
	currentFlow uint16
	progress    uint16
	errorCode   uint16
	flowDone    [3]bool
	opCount     uint16

	mirrorInterval time.Duration
}

// New constructs a Machine for the motion block at base and starts its
// mirroring goroutine. arm is the physical robot this Machine's
// EmergencyStop must actually halt, in addition to alarming the status
// word. The status word is republished to the bus every mirrorInterval
// (one second) even when no transition has happened.
func New(tr *modbus.Transport, base uint16, arm *robot.Arm, logger *log.Logger) *Machine {
	m := &Machine{
		tr:             tr,
		base:           base,
		arm:            arm,
		log:            logger,
		mirrorInterval: time.Second,
	}
	go m.mirrorLoop()
	return m
}

// Start transitions Idle/Ready -> Running for the given flow, clearing any
// prior completion bit and progress value.
func (m *Machine) Start(flow uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alarm {
		return
	}
	m.running = true
	m.currentFlow = flow
	switch flow {
	case 1:
		m.flowDone[Flow1] = false
	case 2:
		m.flowDone[Flow2] = false
	case 5:
		m.flowDone[Flow5] = false
	}
	m.progress = 0
	m.errorCode = 0
	m.publishLocked()
}

// SetProgress updates the in-flight progress counter (0-100).
func (m *Machine) SetProgress(pct uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.progress = pct
	m.publishLocked()
}

// Succeed transitions Running -> done, setting the named flow's completion
// bit and incrementing the lifetime operation counter.
func (m *Machine) Succeed(f Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.progress = 100
	if int(f) < len(m.flowDone) {
		m.flowDone[f] = true
	}
	m.opCount++
	m.publishLocked()
}

// Fail transitions Running -> Alarm with the given error code. No
// rollback is attempted; the caller is responsible for any physical
// recovery before ClearAlarm is issued.
func (m *Machine) Fail(errorCode uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.alarm = true
	m.errorCode = errorCode
	m.publishLocked()
}

// EmergencyStop forces the machine into Alarm regardless of current state
// and commands the physical arm to stop immediately. It is idempotent:
// calling it repeatedly while already alarmed still re-issues the arm
// stop, since a PLC may assert the E-stop control bit more than once
// while the arm is still decelerating.
func (m *Machine) EmergencyStop() {
	m.mu.Lock()
	m.running = false
	m.alarm = true
	m.errorCode = 1 // reserved code: emergency stop
	m.publishLocked()
	m.mu.Unlock()

	if m.arm != nil {
		if err := m.arm.EmergencyStop(); err != nil {
			m.log.Printf("arm emergency stop: %v", err)
		}
	}
}

// ClearAlarm transitions Alarm -> Idle, clearing the error code. It is a
// no-op if the machine is not currently alarmed.
func (m *Machine) ClearAlarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alarm {
		return
	}
	m.alarm = false
	m.errorCode = 0
	m.publishLocked()
}

// ReadyForCommand reports whether the machine is idle and unalarmed, i.e.
// safe to accept a new Motion-class command. The dispatcher checks this
// before enqueuing a flow trigger; see C6's at-most-one-Running guarantee.
func (m *Machine) ReadyForCommand() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.running && !m.alarm
}

// FlowDone reports whether the named flow's completion bit is set.
func (m *Machine) FlowDone(f Flow) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(f) >= len(m.flowDone) {
		return false
	}
	return m.flowDone[f]
}

// ClearFlowDone clears a flow's completion bit, e.g. after a supervisor
// loop has consumed it.
func (m *Machine) ClearFlowDone(f Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(f) < len(m.flowDone) {
		m.flowDone[f] = false
	}
	m.publishLocked()
}

// Republish re-writes the current status block immediately, rather than
// waiting for the next mirror tick. Used by the dispatcher when a control
// register falls so the PLC sees Ready=1 restored without a mirror-cycle
// delay.
func (m *Machine) Republish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked()
}

// StatusWord returns the current composite status word.
func (m *Machine) StatusWord() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusWordLocked()
}

func (m *Machine) statusWordLocked() uint16 {
	bits := register.StatusBits{Initialized: true}
	if m.alarm {
		bits.Alarm = true
	} else if m.running {
		bits.Running = true
	} else {
		bits.Ready = true
	}
	return register.Encode(bits)
}

// publishLocked writes the full status block to the bus. Called with mu
// held; the Modbus write itself happens outside the lock to avoid holding
// it across network I/O, which would block unrelated state reads.
func (m *Machine) publishLocked() {
	word := m.statusWordLocked()
	vs := []uint16{
		word,
		m.currentFlow,
		m.progress,
		m.errorCode,
		boolU16(m.flowDone[Flow1]),
		boolU16(m.flowDone[Flow2]),
		boolU16(m.flowDone[Flow5]),
		m.opCount,
	}
	go func() {
		if err := m.tr.WriteBlock(m.base+register.MotionStatus, vs); err != nil {
			m.log.Printf("publish status: %v", err)
		}
	}()
}

func boolU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) mirrorLoop() {
	t := time.NewTicker(m.mirrorInterval)
	defer t.Stop()
	for range t.C {
		m.mu.Lock()
		m.publishLocked()
		m.mu.Unlock()
	}
}
