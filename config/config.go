// Package config loads the cell's JSON configuration file, using a
// defaults-then-override loading style: every field has a built-in
// default drawn from the register map, and a present JSON key overrides
// just that field.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"pickcell.dev/register"
)

// ModbusMapping holds the base address of every module on the bus,
// defaulting to the register map's published addresses.
type ModbusMapping struct {
	CameraABase     uint16 `json:"camera_a_base"`
	GripperBase     uint16 `json:"gripper_base"`
	FeederBase      uint16 `json:"feeder_base"`
	CameraBBase     uint16 `json:"camera_b_base"`
	MotionBase      uint16 `json:"motion_base"`
	AutoProgramBase uint16 `json:"auto_program_base"`
	AngleServoBase  uint16 `json:"angle_servo_base"`
}

func defaultModbusMapping() ModbusMapping {
	return ModbusMapping{
		CameraABase:     register.BaseCameraA,
		GripperBase:     register.BaseGripper,
		FeederBase:      register.BaseFeeder,
		CameraBBase:     register.BaseCameraB,
		MotionBase:      register.BaseMotion,
		AutoProgramBase: register.BaseAutoProgram,
		AngleServoBase:  register.BaseAngleServo,
	}
}

// RobotConfig holds the arm's network address.
type RobotConfig struct {
	IP string `json:"ip"`
}

func defaultRobotConfig() RobotConfig {
	return RobotConfig{IP: "192.168.1.6"}
}

// Features toggles optional cell behavior.
type Features struct {
	AutoProgramEnabled bool `json:"auto_program_enabled"`
	AngleCorrection    bool `json:"angle_correction"`
}

func defaultFeatures() Features {
	return Features{AutoProgramEnabled: true, AngleCorrection: true}
}

// Timing holds the cell's configurable timeouts and cadences.
type Timing struct {
	ReadyTimeoutMS     int `json:"ready_timeout_ms"`
	RunningTimeoutMS   int `json:"running_timeout_ms"`
	MotionCompletionMS int `json:"motion_completion_ms"`
	AngleDetectMS      int `json:"angle_detect_ms"`
	CycleIntervalMS    int `json:"cycle_interval_ms"`
}

func defaultTiming() Timing {
	return Timing{
		ReadyTimeoutMS:     10_000,
		RunningTimeoutMS:   10_000,
		MotionCompletionMS: 30_000,
		AngleDetectMS:      10_000,
		CycleIntervalMS:    2_000,
	}
}

// Config is the cell's full runtime configuration.
type Config struct {
	ModbusAddr        string        `json:"modbus_addr"`
	PointsFile        string        `json:"points_file"`
	Modbus            ModbusMapping `json:"modbus_mapping"`
	Robot             RobotConfig   `json:"robot"`
	Features          Features      `json:"features"`
	Timing            Timing        `json:"timing"`
	ProtectionPolygon [][2]float64  `json:"protection_polygon"`
	EstopGPIOPin      string        `json:"estop_gpio_pin"`
	LampGPIOPin       string        `json:"lamp_gpio_pin"`
	AngleServoDev     string        `json:"angle_servo_device"`
}

// Default returns a Config populated entirely from built-in defaults.
func Default() Config {
	return Config{
		ModbusAddr: "127.0.0.1:502",
		PointsFile: "points.json",
		Modbus:     defaultModbusMapping(),
		Robot:      defaultRobotConfig(),
		Features:   defaultFeatures(),
		Timing:     defaultTiming(),
	}
}

// Load reads path and overrides Default()'s fields with whatever keys are
// present in the file. A missing file is not an error: it returns the
// defaults unchanged, since no config file may have been written yet.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
