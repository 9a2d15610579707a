// Package iopanel drives the cell's physical E-stop button and fault
// lamp over GPIO: a debounced input pin feeding a callback, plus one
// output pin for the lamp. A Modbus control register is one way to
// trigger EmergencyStop; a physical button wired here is another, and
// both call the same method.
package iopanel

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const debounceTimeout = 10 * time.Millisecond

// Panel owns the E-stop input pin and the fault-lamp output pin.
type Panel struct {
	estop gpio.PinIO
	lamp  gpio.PinIO
}

// Open initializes the host's GPIO drivers and binds estopPin/lampPin by
// name (e.g. "GPIO6"), as reported by the platform's pin registry.
func Open(estopPin, lampPin string) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("iopanel: host init: %w", err)
	}
	estop := gpioreg.ByName(estopPin)
	if estop == nil {
		return nil, fmt.Errorf("iopanel: no such pin %q", estopPin)
	}
	if err := estop.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("iopanel: configure e-stop pin: %w", err)
	}
	lamp := gpioreg.ByName(lampPin)
	if lamp == nil {
		return nil, fmt.Errorf("iopanel: no such pin %q", lampPin)
	}
	if err := lamp.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("iopanel: configure lamp pin: %w", err)
	}
	return &Panel{estop: estop, lamp: lamp}, nil
}

// WatchEStop runs a debounced edge-watch loop on the e-stop pin, calling
// onPressed whenever the button transitions to pressed (active-low). It
// blocks and is intended to run in its own goroutine for the lifetime of
// the cell.
func (p *Panel) WatchEStop(onPressed func()) {
	pressed := false
	newPressed := false
	for {
		timeout := debounceTimeout
		if newPressed == pressed {
			timeout = -1
		}
		if p.estop.WaitForEdge(timeout) {
			newPressed = p.estop.Read() == gpio.Low
		} else if newPressed != pressed {
			pressed = newPressed
			if pressed {
				onPressed()
			}
		}
	}
}

// SetLamp drives the fault lamp on or off.
func (p *Panel) SetLamp(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return p.lamp.Out(level)
}
