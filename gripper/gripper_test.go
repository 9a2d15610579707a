package gripper

import (
	"testing"
	"time"

	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/register"
)

func TestQuickCloseReturnsImmediately(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	g := New(tr, register.BaseGripper)
	start := time.Now()
	if err := g.QuickClose(); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("QuickClose blocked waiting for completion")
	}
	if got := srv.Get(register.BaseGripper + register.GripCmd); got != CmdQuickClose {
		t.Errorf("command register = %d, want %d", got, CmdQuickClose)
	}
}

func TestCommandIDDedup(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	// Simulate a slow peer: it takes 30ms to clear the cmd-id register
	// after each command, mirroring real firmware ack latency.
	go func() {
		var lastSeen uint16
		for {
			id, _ := tr.ReadU16(register.BaseGripper + register.GripCmdID)
			if id != 0 && id != lastSeen {
				lastSeen = id
				time.Sleep(30 * time.Millisecond)
				tr.WriteU16(register.BaseGripper+register.GripCmdID, 0)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	g := New(tr, register.BaseGripper)
	results := make(chan uint16, 2)
	go func() {
		id, err := g.issue(CmdAbsolutePosition, 370, 0)
		if err != nil {
			t.Error(err)
		}
		results <- id
	}()
	time.Sleep(10 * time.Millisecond) // ensure the first call issues first
	go func() {
		id, err := g.issue(CmdAbsolutePosition, 370, 0)
		if err != nil {
			t.Error(err)
		}
		results <- id
	}()

	first := <-results
	second := <-results
	if first == second {
		t.Error("expected distinct command ids for the two issues")
	}
}

func TestMoveToPositionReachedByTolerance(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()
	srv.Set(register.BaseGripper+register.GripPosition, 368)

	go func() {
		for i := 0; i < 50; i++ {
			if srv.Get(register.BaseGripper+register.GripCmdID) != 0 {
				srv.Set(register.BaseGripper+register.GripCmdID, 0)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	g := New(tr, register.BaseGripper)
	if err := g.MoveToPosition(370, 2*time.Second); err != nil {
		t.Fatal(err)
	}
}
