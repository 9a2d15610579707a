package handshake

import (
	"testing"
	"time"

	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/register"
)

// simulatePeer runs a tiny peripheral firmware loop: Ready, sees a
// command, goes Running for a beat, then returns to Ready, mirroring the
// handshake the core expects from every peer.
func simulatePeer(srv *modbussim.Server, cmdReg, statusReg uint16, quit <-chan struct{}) {
	srv.Set(statusReg, register.StatusReadyIdle)
	go func() {
		for {
			select {
			case <-quit:
				return
			default:
			}
			if srv.Get(cmdReg) != 0 {
				srv.Set(statusReg, register.StatusRunning)
				time.Sleep(20 * time.Millisecond)
				srv.Set(statusReg, register.StatusDone)
				for srv.Get(cmdReg) != 0 {
					time.Sleep(5 * time.Millisecond)
				}
				srv.Set(statusReg, register.StatusReadyIdle)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestHandshakeHappyPath(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	quit := make(chan struct{})
	defer close(quit)
	simulatePeer(srv, 200, 201, quit)

	h := &Handshake{
		Transport:      tr,
		CommandReg:     200,
		StatusReg:      201,
		PollInterval:   2 * time.Millisecond,
		MinRunningHold: 0,
	}
	resultRead := false
	if err := h.Run(register.CmdCaptureDetect, func() error {
		resultRead = true
		return nil
	}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !resultRead {
		t.Error("readResult was not invoked")
	}
	if got := srv.Get(201); got != register.StatusReadyIdle {
		t.Errorf("final status = %d, want Ready", got)
	}
	if got := srv.Get(200); got != 0 {
		t.Errorf("command register left non-zero: %d", got)
	}
}

func TestHandshakeNotReady(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	srv.Set(201, register.StatusAlarmPending)

	h := &Handshake{Transport: tr, CommandReg: 200, StatusReg: 201}
	err = h.Run(register.CmdCapture, nil)
	if err == nil {
		t.Fatal("expected error for alarmed peer")
	}
}

func TestHandshakeCommandLost(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	srv.Set(201, register.StatusReadyIdle) // peer never reacts to the command

	h := &Handshake{
		Transport:      tr,
		CommandReg:     200,
		StatusReg:      201,
		PollInterval:   2 * time.Millisecond,
		RunningTimeout: 30 * time.Millisecond,
	}
	err = h.Run(register.CmdCapture, nil)
	if err == nil {
		t.Fatal("expected ErrCommandLost")
	}
}
