package vision

import (
	"testing"
	"time"

	"pickcell.dev/logctx"
	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/polygon"
	"pickcell.dev/register"
)

func fullPolygon() polygon.Polygon {
	return polygon.New([4]polygon.Point{
		{X: -100000, Y: -100000}, {X: -100000, Y: 100000}, {X: 100000, Y: 100000}, {X: 100000, Y: -100000},
	})
}

// simulateCamera answers a capture+detect command with a single
// detection record, mirroring the firmware loop a real vision module
// would run against its command/status words.
func simulateCamera(srv *modbussim.Server, base uint16, quit <-chan struct{}) {
	srv.Set(base+register.CamStatus, register.StatusReadyIdle)
	go func() {
		for {
			select {
			case <-quit:
				return
			default:
			}
			if srv.Get(base+register.CamCmd) == register.CmdCaptureDetect {
				srv.Set(base+register.CamStatus, register.StatusRunning)
				time.Sleep(10 * time.Millisecond)
				srv.Set(base+register.CamOpSuccess, 1)
				srv.Set(base+register.CamCount, 1)
				srv.SetBlock(base+register.CamPixelStart, []uint16{1280, 960, 40})
				xHi, xLo := register.PackI32(-9242)
				yHi, yLo := register.PackI32(2424896)
				srv.SetBlock(base+register.CamWorldStart, []uint16{xHi, xLo, yHi, yLo})
				srv.Set(base+register.CamStatus, register.StatusDone)
				for srv.Get(base+register.CamCmd) != 0 {
					time.Sleep(2 * time.Millisecond)
				}
				srv.Set(base+register.CamStatus, register.StatusReadyIdle)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
}

func TestGetNextObjectAutoCaptures(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	quit := make(chan struct{})
	defer close(quit)
	simulateCamera(srv, register.BaseCameraA, quit)

	c := New(tr, register.BaseCameraA, fullPolygon(), logctx.New("test"), 0, 0)
	c.hs.PollInterval = 2 * time.Millisecond
	c.hs.MinRunningHold = 0

	d, res, err := c.GetNextObject()
	if err != nil {
		t.Fatal(err)
	}
	if res != Success {
		t.Fatalf("result = %v, want Success", res)
	}
	if d.WorldX != -92.42 {
		t.Errorf("WorldX = %v, want -92.42", d.WorldX)
	}
	if got := srv.Get(register.BaseCameraA + register.CamCount); got != 0 {
		t.Errorf("peer count register left non-zero: %d", got)
	}
}

func TestGetNextObjectEmpty(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	quit := make(chan struct{})
	defer close(quit)
	// Simulate a camera that always reports zero detections.
	srv.Set(register.BaseCameraA+register.CamStatus, register.StatusReadyIdle)
	go func() {
		for {
			select {
			case <-quit:
				return
			default:
			}
			if srv.Get(register.BaseCameraA+register.CamCmd) == register.CmdCaptureDetect {
				srv.Set(register.BaseCameraA+register.CamStatus, register.StatusRunning)
				time.Sleep(5 * time.Millisecond)
				srv.Set(register.BaseCameraA+register.CamOpSuccess, 1)
				srv.Set(register.BaseCameraA+register.CamCount, 0)
				srv.Set(register.BaseCameraA+register.CamStatus, register.StatusDone)
				for srv.Get(register.BaseCameraA+register.CamCmd) != 0 {
					time.Sleep(2 * time.Millisecond)
				}
				srv.Set(register.BaseCameraA+register.CamStatus, register.StatusReadyIdle)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	c := New(tr, register.BaseCameraA, fullPolygon(), logctx.New("test"), 0, 0)
	c.hs.PollInterval = 2 * time.Millisecond
	c.hs.MinRunningHold = 0

	_, res, err := c.GetNextObject()
	if err != nil {
		t.Fatal(err)
	}
	if res != NoObjects {
		t.Fatalf("result = %v, want NoObjects", res)
	}
}

func TestClearQueue(t *testing.T) {
	c := &Client{fifo: []Detection{{ID: 1}, {ID: 2}}}
	c.ClearQueue()
	if got := c.QueueStatus(); got != 0 {
		t.Errorf("QueueStatus() = %d, want 0", got)
	}
}

func TestPolygonFilterDrops(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()
	quit := make(chan struct{})
	defer close(quit)
	simulateCamera(srv, register.BaseCameraA, quit)

	tiny := polygon.New([4]polygon.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}})
	c := New(tr, register.BaseCameraA, tiny, logctx.New("test"), 0, 0)
	c.hs.PollInterval = 2 * time.Millisecond
	c.hs.MinRunningHold = 0

	_, res, err := c.GetNextObject()
	if err != nil {
		t.Fatal(err)
	}
	if res != NoObjects {
		t.Fatalf("result = %v, want NoObjects (filtered by polygon)", res)
	}
}
