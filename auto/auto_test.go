package auto

import (
	"sync/atomic"
	"testing"
	"time"

	"pickcell.dev/feeder"
	"pickcell.dev/logctx"
	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/motion"
	"pickcell.dev/polygon"
	"pickcell.dev/register"
	"pickcell.dev/vision"
)

func fullPolygon() polygon.Polygon {
	return polygon.New([4]polygon.Point{
		{X: -1000, Y: -1000}, {X: -1000, Y: 1000}, {X: 1000, Y: 1000}, {X: 1000, Y: -1000},
	})
}

func TestSupervisorPausesAndResumes(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	m := motion.New(tr, register.BaseMotion, nil, logctx.New("test"))
	v := vision.New(tr, register.BaseCameraA, fullPolygon(), logctx.New("test"), 0, 0)
	f := feeder.New(tr, register.BaseFeeder)

	l := New(tr, register.BaseAutoProgram, v, f, m, fullPolygon(), logctx.New("test"), 0)
	defer l.Close()

	m.Start(1)
	m.Succeed(motion.Flow1)

	deadline := time.Now().Add(2 * time.Second)
	for !atomicPaused(l) {
		if time.Now().After(deadline) {
			t.Fatal("loop never paused after Flow1 completion")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Start(2)
	m.Succeed(motion.Flow2)

	deadline = time.Now().Add(2 * time.Second)
	for atomicPaused(l) {
		if time.Now().After(deadline) {
			t.Fatal("loop never resumed after Flow2 completion")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func atomicPaused(l *Loop) bool {
	return atomic.LoadInt32(&l.paused) != 0
}
