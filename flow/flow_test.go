package flow

import (
	"testing"
	"time"

	"pickcell.dev/modbus"
	"pickcell.dev/modbussim"
	"pickcell.dev/register"
)

func TestFlip(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	if err := Flip(tr, nil); err != nil {
		t.Fatal(err)
	}
	if got := srv.Get(register.AddrIOFlip); got != 0 {
		t.Errorf("AddrIOFlip left at %d, want 0", got)
	}
}

func TestFlipCancelled(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	err = Flip(tr, func() bool { return true })
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestVibrationFeed(t *testing.T) {
	srv, addr, err := modbussim.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	tr := modbus.Dial(addr)
	defer tr.Close()

	start := time.Now()
	if err := VibrationFeed(tr, 20*time.Millisecond, nil); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("VibrationFeed returned before duration elapsed")
	}
	if got := srv.Get(register.AddrIOVibrationFeed); got != 0 {
		t.Errorf("AddrIOVibrationFeed left at %d, want 0", got)
	}
}
