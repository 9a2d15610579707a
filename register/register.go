// Package register defines the shared Modbus register-map conventions used
// by every module client in the cell: status-word bit layout, base
// addresses, and the high-word-first 32-bit packing used for coordinates,
// angles and positions.
package register

// Status word bits, common to every peripheral on the bus.
const (
	Ready       uint16 = 1 << 0
	Running     uint16 = 1 << 1
	Alarm       uint16 = 1 << 2
	Initialized uint16 = 1 << 3
)

// Canonical status word values seen across modules.
const (
	StatusReadyIdle   uint16 = Ready | Initialized               // 9: accepting commands
	StatusRunning     uint16 = Running | Initialized              // 10: busy
	StatusDone        uint16 = Initialized                        // 8: completed, awaiting control clear
	StatusAlarmPending uint16 = Alarm | Initialized               // 12: error pending reset
)

// Command codes shared by the camera-style modules.
const (
	CmdClear          uint16 = 0
	CmdCapture        uint16 = 8
	CmdCaptureDetect  uint16 = 16
	CmdInitialize     uint16 = 32
)

// Base addresses from the register map. All are overridable from
// config.json; these are the defaults.
const (
	BaseCameraA     = 200
	BaseGripper     = 500
	BaseFeeder      = 300
	BaseCameraB     = 800 // angle-capable camera
	BaseMotion      = 1200
	BaseAutoProgram = 1300
	BaseAngleServo  = 700

	AddrIOFlip           = 447
	AddrIOVibrationFeed  = 448
)

// Camera-A (primary vision) offsets, relative to its base address.
const (
	CamCmd           = 0
	CamStatus        = 1
	CamModelID       = 2
	CamCaptureDone   = 3
	CamDetectDone    = 4
	CamOpSuccess     = 5
	CamParamsStart   = 10
	CamCount         = 40
	CamPixelStart    = 41
	CamWorldStart    = 57
	CamWorldValid    = 60
)

// Camera-B (angle-capable) offsets.
const (
	CamBCmd       = 0
	CamBStatus    = 1
	CamBMode      = 10
	CamBSuccess   = 40
	CamBAngleHi   = 43
	CamBAngleLo   = 44
	CamBAxesStart = 45
	CamBArea      = 49
)

// Gripper offsets.
const (
	GripModule   = 0
	GripConn     = 1
	GripDevice   = 2
	GripGripSt   = 4
	GripPosition = 5
	GripCmd      = 20
	GripParam1   = 21
	GripParam2   = 22
	GripCmdID    = 23
)

// Feeder offsets.
const (
	FeederModule = 0
	FeederConn   = 1
	FeederDevice = 2
	FeederCmd    = 20
	FeederParam1 = 21
	FeederParam2 = 22
	FeederParam3 = 23
	FeederCmdID  = 24
)

// Motion controller offsets.
const (
	MotionStatus       = 0
	MotionCurrentFlow  = 1
	MotionProgress     = 2
	MotionErrorCode    = 3
	MotionFlow1Done    = 4
	MotionFlow2Done    = 5
	MotionFlow5Done    = 6
	MotionOpCount      = 7
	MotionFlow1        = 40
	MotionFlow2        = 41
	MotionFlow5        = 42
	MotionClearAlarm   = 43
	MotionEStop        = 44
)

// Auto-program offsets.
const (
	AutoEnable          = 50
	AutoCycleCount       = 0
	AutoDrFFoundCount    = 1
	AutoFeederTrigCount  = 2
	AutoVibrationCount   = 3
	AutoFeedingReady     = 4
	AutoRobotJobPrepared = 5
)

// Angle-correction servo offsets.
const (
	AngleCmd          = 40
	AngleStatus       = 0
	AngleConn1        = 1
	AngleConn2        = 2
	AngleSuccess      = 20
	AngleAngleHi      = 21
	AngleAngleLo      = 22
	AngleServoPosHi   = 25
	AngleServoPosLo   = 26
)

// PackI32 splits a signed 32-bit quantity into two 16-bit words, high word
// first, preserving sign via two's-complement reinterpretation.
func PackI32(v int32) (hi, lo uint16) {
	u := uint32(v)
	return uint16(u >> 16), uint16(u)
}

// UnpackI32 recombines a high/low register pair into a signed 32-bit value.
// The composite is built as an unsigned 32-bit word and then reinterpreted
// as two's-complement, matching the pinned decode semantics: compose as
// u32, then reinterpret as i32.
func UnpackI32(hi, lo uint16) int32 {
	u := uint32(hi)<<16 | uint32(lo)
	return int32(u)
}

// StatusBits reports the four canonical bits of a status word.
type StatusBits struct {
	Ready       bool
	Running     bool
	Alarm       bool
	Initialized bool
}

// Decode splits a raw status word into its named bits.
func Decode(word uint16) StatusBits {
	return StatusBits{
		Ready:       word&Ready != 0,
		Running:     word&Running != 0,
		Alarm:       word&Alarm != 0,
		Initialized: word&Initialized != 0,
	}
}

// Encode packs status bits back into a raw status word.
func Encode(b StatusBits) uint16 {
	var w uint16
	if b.Ready {
		w |= Ready
	}
	if b.Running {
		w |= Running
	}
	if b.Alarm {
		w |= Alarm
	}
	if b.Initialized {
		w |= Initialized
	}
	return w
}
