// Package auto implements the autonomous cell loop: a cycle_interval-
// paced loop that asks camera-A for targets, nudges the feeder when the
// pick area is running dry or clogged, and a companion 2Hz supervisor
// loop that tracks Flow1/Flow2 completion so the feeding loop doesn't
// fire while the arm is still near the vision field. Both loops are
// plain goroutines rather than a state-machine framework; the feeding
// loop is gated by an enabled flag, the supervisor loop runs regardless.
package auto

import (
	"log"
	"sync/atomic"
	"time"

	"pickcell.dev/feeder"
	"pickcell.dev/flow"
	"pickcell.dev/modbus"
	"pickcell.dev/motion"
	"pickcell.dev/polygon"
	"pickcell.dev/register"
	"pickcell.dev/vision"
)

// DefaultCycleInterval is the auto-feeding loop's default cadence.
const DefaultCycleInterval = 2 * time.Second

// SupervisorRate is the robot-job-supervisor loop's polling interval (2Hz).
const SupervisorRate = 500 * time.Millisecond

// lowStockThreshold is the detection count below which the loop pulses
// the feeder instead of vibrating.
const lowStockThreshold = 4

// pulseWidth is the low-stock DO-toggle duration on the vibration-feed
// I/O register; vibrateFor is the feeder module's spread-action duration
// used when the area is clogged instead of merely low.
const (
	pulseWidth = 100 * time.Millisecond
	vibrateFor = 500 * time.Millisecond
)

// Loop drives the autonomous feeding cycle and the robot job supervisor
// sub-loop.
type Loop struct {
	tr   *modbus.Transport
	base uint16

	vision *vision.Client
	feeder *feeder.Client
	motion *motion.Machine
	poly   polygon.Polygon
	log    *log.Logger

	cycleInterval time.Duration

	enabled int32 // atomic bool
	paused  int32 // atomic bool

	cycleCount      uint32
	foundCount      uint32
	feederTrigCount uint32
	vibrationCount  uint32

	feedingReady int32 // atomic bool, cleared when the motion loop consumes it

	quit chan struct{}
	done chan struct{}
}

// New constructs a Loop publishing its counters to the auto-program block
// at base. cycleInterval paces the feeding loop and falls back to
// DefaultCycleInterval when zero. The loop does not start until Enable is
// called.
func New(tr *modbus.Transport, base uint16, v *vision.Client, f *feeder.Client, m *motion.Machine, poly polygon.Polygon, logger *log.Logger, cycleInterval time.Duration) *Loop {
	if cycleInterval <= 0 {
		cycleInterval = DefaultCycleInterval
	}
	l := &Loop{
		tr:            tr,
		base:          base,
		vision:        v,
		feeder:        f,
		motion:        m,
		poly:          poly,
		log:           logger,
		cycleInterval: cycleInterval,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go l.feedLoop()
	go l.supervisorLoop()
	return l
}

// publishCounters mirrors the loop's lifetime counters and flags onto the
// auto-program register block.
func (l *Loop) publishCounters() {
	vs := []uint16{
		uint16(atomic.LoadUint32(&l.cycleCount)),
		uint16(atomic.LoadUint32(&l.foundCount)),
		uint16(atomic.LoadUint32(&l.feederTrigCount)),
		uint16(atomic.LoadUint32(&l.vibrationCount)),
		boolU16(l.FeedingReady()),
		boolU16(atomic.LoadInt32(&l.paused) != 0),
	}
	if err := l.tr.WriteBlock(l.base+register.AutoCycleCount, vs); err != nil {
		l.log.Printf("publish counters: %v", err)
	}
}

// Status is the set of counters and flags the CLI status command prints.
type Status struct {
	CycleCount       uint32
	DrFFoundCount    uint32
	FeederTrigCount  uint32
	VibrationCount   uint32
	FeedingReady     bool
	RobotJobPrepared bool
}

// Status snapshots the loop's lifetime counters and flags.
func (l *Loop) Status() Status {
	return Status{
		CycleCount:       atomic.LoadUint32(&l.cycleCount),
		DrFFoundCount:    atomic.LoadUint32(&l.foundCount),
		FeederTrigCount:  atomic.LoadUint32(&l.feederTrigCount),
		VibrationCount:   atomic.LoadUint32(&l.vibrationCount),
		FeedingReady:     l.FeedingReady(),
		RobotJobPrepared: atomic.LoadInt32(&l.paused) != 0,
	}
}

func boolU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// Enable starts the auto-feeding cycle, mirroring the enable flag onto
// the auto-program's control register so a PLC observing the bus sees
// the same state.
func (l *Loop) Enable() {
	atomic.StoreInt32(&l.enabled, 1)
	l.tr.WriteU16(l.base+register.AutoEnable, 1)
}

// Disable stops the auto-feeding cycle; the supervisor loop keeps running.
func (l *Loop) Disable() {
	atomic.StoreInt32(&l.enabled, 0)
	l.tr.WriteU16(l.base+register.AutoEnable, 0)
}

// Close stops both loops.
func (l *Loop) Close() {
	close(l.quit)
	<-l.done
}

// FeedingReady reports whether a usable target has been staged for the
// pick flow to consume.
func (l *Loop) FeedingReady() bool {
	return atomic.LoadInt32(&l.feedingReady) != 0
}

// ConsumeFeedingReady clears the feeding_ready flag; called by the pick
// flow once it has taken the staged target.
func (l *Loop) ConsumeFeedingReady() {
	atomic.StoreInt32(&l.feedingReady, 0)
}

func (l *Loop) feedLoop() {
	ticker := time.NewTicker(l.cycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.quit:
			close(l.done)
			return
		case <-ticker.C:
			if atomic.LoadInt32(&l.enabled) == 0 || atomic.LoadInt32(&l.paused) != 0 {
				continue
			}
			l.runCycle()
		}
	}
}

func (l *Loop) runCycle() {
	atomic.AddUint32(&l.cycleCount, 1)
	defer l.publishCounters()

	ready, err := l.feeder.IsReady()
	if err != nil || !ready {
		l.log.Printf("feeder not ready, skipping cycle: %v", err)
		return
	}
	camReady, err := l.vision.IsReady()
	if err != nil || !camReady {
		l.log.Printf("camera-A not ready, skipping cycle: %v", err)
		return
	}

	res, err := l.vision.ManualCapture()
	if err != nil {
		l.log.Printf("capture failed: %v", err)
		return
	}
	if res != vision.Success {
		return
	}

	// total is the raw per-cycle detection count the peer advertised,
	// independent of the protection-polygon filter findInPolygon applies
	// below: a cycle can have plenty of detections and still find none
	// inside the polygon, which must vibrate rather than pulse.
	total := l.vision.LastRawCount()
	found := l.findInPolygon()
	if found != nil {
		atomic.AddUint32(&l.foundCount, 1)
		if err := l.vision.InjectNextTarget(*found); err != nil {
			l.log.Printf("inject target: %v", err)
			return
		}
		atomic.StoreInt32(&l.feedingReady, 1)
		return
	}

	if total < lowStockThreshold {
		atomic.AddUint32(&l.feederTrigCount, 1)
		if err := flow.VibrationFeed(l.tr, pulseWidth, nil); err != nil {
			l.log.Printf("feeder pulse: %v", err)
		}
		return
	}

	atomic.AddUint32(&l.vibrationCount, 1)
	if err := l.feeder.Vibrate(vibrateFor); err != nil {
		l.log.Printf("feeder vibrate: %v", err)
	}
}

// findInPolygon drains the vision queue looking for the first detection
// inside the protection polygon, returning the rest to the queue.
func (l *Loop) findInPolygon() *vision.Detection {
	var held []vision.Detection
	var target *vision.Detection
	for {
		d, res, err := l.vision.GetNextObject()
		if err != nil || res != vision.Success {
			break
		}
		if target == nil && l.poly.Contains(polygon.Point{X: d.WorldX, Y: d.WorldY}) {
			target = d
			continue
		}
		held = append(held, *d)
	}
	for _, d := range held {
		l.vision.InjectNextTarget(d)
	}
	return target
}

func (l *Loop) supervisorLoop() {
	ticker := time.NewTicker(SupervisorRate)
	defer ticker.Stop()
	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			if l.motion.FlowDone(motion.Flow1) {
				atomic.StoreInt32(&l.paused, 1)
				l.motion.ClearFlowDone(motion.Flow1)
				l.publishCounters()
			}
			if l.motion.FlowDone(motion.Flow2) {
				atomic.StoreInt32(&l.paused, 0)
				l.motion.ClearFlowDone(motion.Flow2)
				l.publishCounters()
			}
		}
	}
}
