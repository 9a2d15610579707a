// Package dispatch implements the control-register polling dispatcher: a
// single goroutine reads the control-register block at ~50ms cadence,
// converts rising edges into typed commands pushed onto per-class
// bounded queues, and asks the motion state machine to restore Ready=1
// on falling edges when no flow is active.
package dispatch

import (
	"log"
	"time"

	"pickcell.dev/modbus"
	"pickcell.dev/motion"
	"pickcell.dev/register"
)

// Class identifies which bounded queue a Command belongs to. Priority
// order (smaller runs first): Emergency < Motion < IoA = IoB < External.
type Class int

const (
	Emergency Class = iota
	Motion
	IoA
	IoB
	External
)

// DefaultQueueDepth is the default bound on each class's queue.
const DefaultQueueDepth = 50

// PollInterval is the control-register read cadence.
const PollInterval = 50 * time.Millisecond

// Command is one dispatched flow trigger.
type Command struct {
	Class   Class
	Payload uint16 // which flow register fired (1, 2, or 5 for Motion)
}

// Dispatcher owns the control-register polling loop and the per-class
// queues flow-running workers drain from.
type Dispatcher struct {
	tr   *modbus.Transport
	base uint16
	m    *motion.Machine
	log  *log.Logger

	queues map[Class]chan Command
	prev   map[uint16]bool

	quit chan struct{}
	done chan struct{}
}

// controlBits lists, in priority order, the (register offset, class,
// payload) triples the dispatcher watches. For the I/O classes the first
// field is an absolute register address.
type controlBit struct {
	offset  uint16
	class   Class
	payload uint16
}

func controlBits() []controlBit {
	return []controlBit{
		{register.MotionEStop, Emergency, 0},
		{register.MotionFlow1, Motion, 1},
		{register.MotionFlow2, Motion, 2},
		{register.MotionFlow5, Motion, 5},
		{register.AddrIOFlip, IoA, 0},
		{register.AddrIOVibrationFeed, IoB, 0},
	}
}

// New constructs a Dispatcher watching the motion control block at base
// and starts its polling goroutine.
func New(tr *modbus.Transport, base uint16, m *motion.Machine, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		tr:     tr,
		base:   base,
		m:      m,
		log:    logger,
		queues: make(map[Class]chan Command),
		prev:   make(map[uint16]bool),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, c := range []Class{Emergency, Motion, IoA, IoB, External} {
		d.queues[c] = make(chan Command, DefaultQueueDepth)
	}
	go d.run()
	return d
}

// Queue returns the bounded command channel for a class.
func (d *Dispatcher) Queue(c Class) <-chan Command {
	return d.queues[c]
}

// Close stops the polling goroutine.
func (d *Dispatcher) Close() {
	close(d.quit)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.poll()
		}
	}
}

func (d *Dispatcher) poll() {
	for _, cb := range controlBits() {
		addr := d.base + cb.offset
		if cb.class == IoA || cb.class == IoB {
			// The I/O flow controls are absolute addresses, not offsets
			// into the motion block.
			addr = cb.offset
		}
		v, err := d.tr.ReadU16(addr)
		if err != nil {
			continue
		}
		set := v != 0
		wasSet := d.prev[cb.offset]
		d.prev[cb.offset] = set

		if set && !wasSet {
			d.dispatch(cb)
		}
		if !set && wasSet {
			d.fallingEdge(cb)
		}
	}
}

func (d *Dispatcher) dispatch(cb controlBit) {
	if cb.class == Emergency {
		d.m.EmergencyStop()
		return
	}
	if cb.class == Motion && !d.m.ReadyForCommand() {
		d.log.Printf("motion command dropped: flow already active (payload=%d)", cb.payload)
		return
	}
	cmd := Command{Class: cb.class, Payload: cb.payload}
	select {
	case d.queues[cb.class] <- cmd:
	default:
		// Queue full: the PLC is asserting faster than flows can drain.
		// Drop the edge rather than block the poll loop.
		d.log.Printf("queue full, dropping command: class=%d payload=%d", cb.class, cb.payload)
	}
}

func (d *Dispatcher) fallingEdge(cb controlBit) {
	if cb.class == Emergency {
		return
	}
	bits := register.Decode(d.m.StatusWord())
	if !bits.Running && !bits.Alarm {
		d.m.Republish()
	}
}
