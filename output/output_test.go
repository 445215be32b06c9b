// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package output

import (
	"sync"
	"testing"
	"time"

	"github.com/NeuroRehack/WMORE/hostio"
)

type fakePin struct {
	mu     sync.Mutex
	levels []int
}

func (p *fakePin) In(edge int) error { return nil }
func (p *fakePin) Read() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.levels) == 0 {
		return hostio.GpioLow
	}
	return p.levels[len(p.levels)-1]
}
func (p *fakePin) WaitForEdge(timeout time.Duration) bool { return false }
func (p *fakePin) Out(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, level)
}
func (p *fakePin) Number() int  { return 0 }
func (p *fakePin) Close() error { return nil }

func newPins() (Pins, map[string]*fakePin) {
	m := map[string]*fakePin{
		"sync": {}, "stop": {}, "red": {}, "green": {}, "blue": {},
	}
	return Pins{
		Sync: m["sync"], Stop: m["stop"],
		LEDRed: m["red"], LEDGreen: m["green"], LEDBlue: m["blue"],
	}, m
}

func Test_NewConfiguresAllPinsLow(t *testing.T) {
	pins, m := newPins()
	New(pins)
	for name, p := range m {
		if p.Read() != hostio.GpioLow {
			t.Fatalf("pin %s not initialized low", name)
		}
	}
}

func Test_PulseSyncGoesHighThenLow(t *testing.T) {
	pins, m := newPins()
	a := New(pins)
	a.PulseSync()

	levels := m["sync"].levels
	if len(levels) < 3 {
		t.Fatalf("expected at least init-low, high, low; got %v", levels)
	}
	if levels[len(levels)-2] != hostio.GpioHigh || levels[len(levels)-1] != hostio.GpioLow {
		t.Fatalf("PulseSync levels = %v, want [..., high, low]", levels)
	}
}

func Test_ClearOutputsDrivesSyncAndStopLow(t *testing.T) {
	pins, m := newPins()
	a := New(pins)
	a.PulseSync()
	a.PulseStop()
	a.ClearOutputs()

	if m["sync"].Read() != hostio.GpioLow || m["stop"].Read() != hostio.GpioLow {
		t.Fatalf("ClearOutputs did not leave sync/stop low")
	}
}

func Test_RoleLEDsAreExclusive(t *testing.T) {
	pins, m := newPins()
	a := New(pins)
	a.SetCoord()

	if m["red"].Read() != hostio.GpioLow || m["blue"].Read() != hostio.GpioLow {
		t.Fatalf("SetCoord must turn off red and blue")
	}
	if m["green"].Read() != hostio.GpioHigh {
		t.Fatalf("SetCoord must turn on green")
	}

	a.SetLogger()
	if m["green"].Read() != hostio.GpioLow || m["blue"].Read() != hostio.GpioHigh {
		t.Fatalf("SetLogger must turn on blue only")
	}
}
