package register

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 370, -9242, 2147483647, -2147483648, 24248 * 100, -24248 * 100}
	for _, v := range cases {
		hi, lo := PackI32(v)
		got := UnpackI32(hi, lo)
		if got != v {
			t.Errorf("PackI32/UnpackI32(%d) round-trip: got %d", v, got)
		}
	}
}

func TestWorldCoordinateDecode(t *testing.T) {
	// world_hi/lo=(-1,56294) decodes to -92.42mm: compose hi:lo as a u32,
	// reinterpret as i32, divide by 100.
	xHi, xLo := uint16(0xffff) /* -1 as u16 */, uint16(56294)
	x := UnpackI32(xHi, xLo)
	if got := float64(x) / 100; got != -92.42 {
		t.Errorf("x = %v, want -92.42", got)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	for w := uint16(0); w < 16; w++ {
		b := Decode(w)
		if got := Encode(b); got != w {
			t.Errorf("Encode(Decode(%d)) = %d", w, got)
		}
	}
}

func TestCanonicalValues(t *testing.T) {
	if StatusReadyIdle != 9 {
		t.Errorf("StatusReadyIdle = %d, want 9", StatusReadyIdle)
	}
	if StatusRunning != 10 {
		t.Errorf("StatusRunning = %d, want 10", StatusRunning)
	}
	if StatusDone != 8 {
		t.Errorf("StatusDone = %d, want 8", StatusDone)
	}
	if StatusAlarmPending != 12 {
		t.Errorf("StatusAlarmPending = %d, want 12", StatusAlarmPending)
	}
}
