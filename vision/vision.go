// Package vision implements the vision module client: a command/status
// handshake wrapped around a per-instance FIFO of detected world
// coordinates, with automatic capture when the FIFO runs dry. Concurrent
// callers coalesce onto one in-flight capture instead of each triggering
// their own.
package vision

import (
	"log"
	"sync"
	"time"

	"pickcell.dev/handshake"
	"pickcell.dev/modbus"
	"pickcell.dev/polygon"
	"pickcell.dev/register"
)

// Result is the outcome of a capture or ingestion attempt.
type Result int

const (
	Success Result = iota
	NoObjects
	DetectionFailed
	SystemNotReady
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NoObjects:
		return "no_objects"
	case DetectionFailed:
		return "detection_failed"
	case SystemNotReady:
		return "system_not_ready"
	default:
		return "unknown"
	}
}

// Detection is one buffered vision result.
type Detection struct {
	ID        uint32
	PixelX    int
	PixelY    int
	Radius    int
	WorldX    float64 // mm, 0.01mm resolution
	WorldY    float64
	Timestamp time.Time
}

// MaxDetectionsPerCapture is the fixed cap the peer advertises per
// capture cycle.
const MaxDetectionsPerCapture = 5

// waitForCaptureTimeout bounds how long a late-arriving caller waits for
// an in-flight capture before retrying.
const waitForCaptureTimeout = 20 * time.Second

// Client drives one camera module (primary vision or angle-capable) and
// owns its detection FIFO.
type Client struct {
	tr   *modbus.Transport
	base uint16
	poly polygon.Polygon
	log  *log.Logger
	hs   *handshake.Handshake

	mu           sync.Mutex
	fifo         []Detection
	capturing    bool
	captureDone  chan struct{}
	nextID       uint32
	lastRawCount int
}

// New constructs a camera Client for the module at base, filtering
// ingested detections to poly. readyTimeout and runningTimeout govern the
// underlying handshake and fall back to the handshake package's own
// defaults when zero.
func New(tr *modbus.Transport, base uint16, poly polygon.Polygon, logger *log.Logger, readyTimeout, runningTimeout time.Duration) *Client {
	c := &Client{
		tr:   tr,
		base: base,
		poly: poly,
		log:  logger,
	}
	c.hs = &handshake.Handshake{
		Transport:      tr,
		CommandReg:     base + register.CamCmd,
		StatusReg:      base + register.CamStatus,
		ReadyTimeout:   readyTimeout,
		RunningTimeout: runningTimeout,
		ClearStale: func() error {
			return c.tr.WriteU16(c.base+register.CamDetectDone, 0)
		},
	}
	return c
}

// GetNextObject returns the next buffered detection, or (nil, NoObjects,
// nil) when no target is available and the caller should treat that as
// "nothing to pick right now". Other non-Success results indicate a
// hardware or protocol problem.
func (c *Client) GetNextObject() (*Detection, Result, error) {
	for {
		c.mu.Lock()
		if len(c.fifo) > 0 {
			d := c.fifo[0]
			c.fifo = c.fifo[1:]
			c.mu.Unlock()
			return &d, Success, nil
		}
		if c.capturing {
			done := c.captureDone
			c.mu.Unlock()
			select {
			case <-done:
			case <-time.After(waitForCaptureTimeout):
			}
			continue
		}

		count, err := c.tr.ReadU16(c.base + register.CamCount)
		if err != nil {
			c.mu.Unlock()
			return nil, SystemNotReady, err
		}
		if count > 0 {
			c.mu.Unlock()
			if err := c.ingestPending(); err != nil {
				return nil, DetectionFailed, err
			}
			continue
		}

		c.capturing = true
		c.captureDone = make(chan struct{})
		c.mu.Unlock()
		res, err := c.captureAndIngest()
		c.mu.Lock()
		close(c.captureDone)
		c.capturing = false
		c.mu.Unlock()
		if err != nil {
			return nil, DetectionFailed, err
		}
		if res != Success {
			return nil, res, nil
		}
		// Loop back: the just-ingested records are now in the FIFO.
	}
}

// ManualCapture forces a capture+detect cycle regardless of FIFO state.
func (c *Client) ManualCapture() (Result, error) {
	c.mu.Lock()
	if c.capturing {
		done := c.captureDone
		c.mu.Unlock()
		<-done
		return c.ManualCapture()
	}
	c.capturing = true
	c.captureDone = make(chan struct{})
	c.mu.Unlock()
	res, err := c.captureAndIngest()
	c.mu.Lock()
	close(c.captureDone)
	c.capturing = false
	c.mu.Unlock()
	return res, err
}

// captureAndIngest issues a capture+detect handshake and ingests any
// resulting detections into the FIFO. Must be called with c.capturing
// already set and c.mu unlocked.
func (c *Client) captureAndIngest() (Result, error) {
	var success bool
	var ingested []Detection
	err := c.hs.Run(register.CmdCaptureDetect, func() error {
		s, err := c.tr.ReadU16(c.base + register.CamOpSuccess)
		if err != nil {
			return err
		}
		success = s != 0
		if !success {
			return nil
		}
		ingested, err = c.readAndClearBatch()
		return err
	})
	if err != nil {
		return DetectionFailed, err
	}
	if !success {
		return DetectionFailed, nil
	}
	if len(ingested) == 0 {
		return NoObjects, nil
	}
	c.mu.Lock()
	c.fifo = append(c.fifo, ingested...)
	c.mu.Unlock()
	return Success, nil
}

// ingestPending ingests detections the peer is already holding from a
// prior capture (count > 0 without a fresh handshake).
func (c *Client) ingestPending() error {
	ingested, err := c.readAndClearBatch()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.fifo = append(c.fifo, ingested...)
	c.mu.Unlock()
	return nil
}

// readAndClearBatch reads up to MaxDetectionsPerCapture records from the
// peer's result area, applies the protection-polygon filter, zeroes the
// peer's count and coordinate slots so the batch cannot be re-ingested,
// and returns the surviving records.
func (c *Client) readAndClearBatch() ([]Detection, error) {
	count, err := c.tr.ReadU16(c.base + register.CamCount)
	if err != nil {
		return nil, err
	}
	if count > MaxDetectionsPerCapture {
		count = MaxDetectionsPerCapture
	}
	c.mu.Lock()
	c.lastRawCount = int(count)
	c.mu.Unlock()
	var out []Detection
	now := time.Now()
	for i := uint16(0); i < count; i++ {
		pixel, err := c.tr.ReadBlock(c.base+register.CamPixelStart+i*3, 3)
		if err != nil {
			return nil, err
		}
		world, err := c.tr.ReadBlock(c.base+register.CamWorldStart+i*4, 4)
		if err != nil {
			return nil, err
		}
		wx := float64(register.UnpackI32(world[0], world[1])) / 100
		wy := float64(register.UnpackI32(world[2], world[3])) / 100
		d := Detection{
			ID:        c.allocID(),
			PixelX:    int(pixel[0]),
			PixelY:    int(pixel[1]),
			Radius:    int(pixel[2]),
			WorldX:    wx,
			WorldY:    wy,
			Timestamp: now,
		}
		if c.poly.Contains(polygon.Point{X: wx, Y: wy}) {
			out = append(out, d)
		}
	}
	// Zero the peer's count and coordinate slots so this batch can't be
	// re-ingested on the next poll.
	zeros := make([]uint16, MaxDetectionsPerCapture*3)
	if err := c.tr.WriteBlock(c.base+register.CamPixelStart, zeros); err != nil {
		return nil, err
	}
	zeros = make([]uint16, MaxDetectionsPerCapture*4)
	if err := c.tr.WriteBlock(c.base+register.CamWorldStart, zeros); err != nil {
		return nil, err
	}
	if err := c.tr.WriteU16(c.base+register.CamCount, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) allocID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

// QueueStatus reports the number of buffered detections.
func (c *Client) QueueStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fifo)
}

// LastRawCount reports how many detections the peer advertised in the
// most recent capture, before the protection-polygon filter dropped any
// of them. Distinct from QueueStatus, which reports only the
// in-polygon survivors.
func (c *Client) LastRawCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRawCount
}

// ClearQueue discards all buffered detections.
func (c *Client) ClearQueue() {
	c.mu.Lock()
	c.fifo = nil
	c.mu.Unlock()
}

// IsReady reports whether the peer's status word has Ready=1 and
// Initialized=1, Alarm=0.
func (c *Client) IsReady() (bool, error) {
	status, err := c.tr.ReadU16(c.base + register.CamStatus)
	if err != nil {
		return false, err
	}
	b := register.Decode(status)
	return b.Ready && b.Initialized && !b.Alarm, nil
}

// SystemStatus returns the raw decoded status bits.
func (c *Client) SystemStatus() (register.StatusBits, error) {
	status, err := c.tr.ReadU16(c.base + register.CamStatus)
	if err != nil {
		return register.StatusBits{}, err
	}
	return register.Decode(status), nil
}

// InjectNextTarget copies d into the peer's first-item registers so an
// external consumer (e.g. the motion flow) observing the camera's raw
// registers sees it as the next target.
func (c *Client) InjectNextTarget(d Detection) error {
	hi, lo := register.PackI32(int32(d.WorldX * 100))
	hi2, lo2 := register.PackI32(int32(d.WorldY * 100))
	return c.tr.WriteBlock(c.base+register.CamWorldStart, []uint16{hi, lo, hi2, lo2})
}
