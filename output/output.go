// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package output drives the node's GPIO outputs: the SYNC and STOP pulse
// lines shared with the attached logger board, and the red/green/blue
// role-indicator LED. Each method is a thin, synchronous wrapper, the
// same role set_sync/set_stop/set_led_* play in the firmware.
package output

import (
	"time"

	"github.com/NeuroRehack/WMORE/hostio"
)

// PulseWidth is the duration the SYNC and STOP lines are held high,
// spec.md §4.8.
const PulseWidth = 50 * time.Microsecond

// Pins groups the five GPIO lines an output.Actuator drives.
type Pins struct {
	Sync     hostio.GPIO
	Stop     hostio.GPIO
	LEDRed   hostio.GPIO
	LEDGreen hostio.GPIO
	LEDBlue  hostio.GPIO
}

// Actuator drives the node's output pins. All of its pins are configured
// as outputs and start low/off.
type Actuator struct {
	pins Pins
}

// New configures all five pins as outputs, idle low, and returns an
// Actuator ready to use.
func New(pins Pins) *Actuator {
	a := &Actuator{pins: pins}
	for _, p := range []hostio.GPIO{pins.Sync, pins.Stop, pins.LEDRed, pins.LEDGreen, pins.LEDBlue} {
		p.Out(hostio.GpioLow)
	}
	return a
}

// Pulse drives pin high for PulseWidth, then low, busy-waiting the way
// the firmware's k_busy_wait(50) does around set_sync(true)/set_sync(false).
func (a *Actuator) Pulse(pin hostio.GPIO) {
	pin.Out(hostio.GpioHigh)
	busyWait(PulseWidth)
	pin.Out(hostio.GpioLow)
}

// PulseSync fires a single SYNC pulse, marking a tick boundary.
func (a *Actuator) PulseSync() { a.Pulse(a.pins.Sync) }

// PulseStop fires a single STOP pulse, marking the end of a session.
func (a *Actuator) PulseStop() { a.Pulse(a.pins.Stop) }

// ClearOutputs drives SYNC and STOP low, the explicit entry action spec.md
// §4.6 lists for IDLE even though both lines are already low between
// pulses; called once on every transition into IDLE.
func (a *Actuator) ClearOutputs() {
	setBool(a.pins.Sync, false)
	setBool(a.pins.Stop, false)
}

// SetIdle lights the red LED solid: ST_IDLE.
func (a *Actuator) SetIdle() { a.setLED(true, false, false) }

// SetCoord lights the green LED solid: ST_COORD.
func (a *Actuator) SetCoord() { a.setLED(false, true, false) }

// SetLogger lights the blue LED solid: ST_LOGGER.
func (a *Actuator) SetLogger() { a.setLED(false, false, true) }

func (a *Actuator) setLED(red, green, blue bool) {
	setBool(a.pins.LEDRed, red)
	setBool(a.pins.LEDGreen, green)
	setBool(a.pins.LEDBlue, blue)
}

func setBool(pin hostio.GPIO, on bool) {
	if on {
		pin.Out(hostio.GpioHigh)
	} else {
		pin.Out(hostio.GpioLow)
	}
}

// busyWait spins instead of sleeping, since the pulse widths involved are
// well below what the Go scheduler and OS timer resolution can reliably
// deliver via time.Sleep.
func busyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
