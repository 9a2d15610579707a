package dispatch

import (
	"testing"
	"time"

	"pickcell.dev/logctx"
	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/motion"
	"pickcell.dev/register"
)

func TestRisingEdgeDispatchesMotion(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	m := motion.New(tr, register.BaseMotion, nil, logctx.New("test"))
	d := New(tr, register.BaseMotion, m, logctx.New("test"))
	defer d.Close()

	if err := tr.WriteU16(register.BaseMotion+register.MotionFlow1, 1); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-d.Queue(Motion):
		if cmd.Payload != 1 {
			t.Errorf("Payload = %d, want 1", cmd.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no command dispatched")
	}
}

func TestEmergencyEdgeAlarms(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	m := motion.New(tr, register.BaseMotion, nil, logctx.New("test"))
	d := New(tr, register.BaseMotion, m, logctx.New("test"))
	defer d.Close()

	if err := tr.WriteU16(register.BaseMotion+register.MotionEStop, 1); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for register.Decode(m.StatusWord()).Alarm == false {
		if time.Now().After(deadline) {
			t.Fatal("machine never alarmed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
