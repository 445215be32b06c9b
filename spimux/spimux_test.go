// Copyright 2017 by Thorsten von Eicken, see LICENSE file

package spimux

import (
	"testing"
	"time"

	"github.com/NeuroRehack/WMORE/hostio"
)

type fakeSPI struct {
	hz    int64
	mode  int
	bits  int
	txLog [][]byte
}

func (f *fakeSPI) Speed(hz int64) error        { f.hz = hz; return nil }
func (f *fakeSPI) Configure(mode, bits int) error { f.mode = mode; f.bits = bits; return nil }
func (f *fakeSPI) Tx(w, r []byte) error {
	f.txLog = append(f.txLog, append([]byte(nil), w...))
	return nil
}
func (f *fakeSPI) Close() error { return nil }

type fakeSelPin struct {
	levels []int
}

func (p *fakeSelPin) In(edge int) error                     { return nil }
func (p *fakeSelPin) Read() int                              { return 0 }
func (p *fakeSelPin) WaitForEdge(timeout time.Duration) bool { return false }
func (p *fakeSelPin) Number() int                            { return 0 }
func (p *fakeSelPin) Close() error                           { return nil }
func (p *fakeSelPin) Out(level int) {
	p.levels = append(p.levels, level)
}

func Test_TxSelectsCorrectPinLevel(t *testing.T) {
	bus := &fakeSPI{}
	sel := &fakeSelPin{}
	a, b := New(bus, sel)

	if err := a.Tx([]byte{1}, nil); err != nil {
		t.Fatalf("a.Tx: %v", err)
	}
	if err := b.Tx([]byte{2}, nil); err != nil {
		t.Fatalf("b.Tx: %v", err)
	}

	if len(sel.levels) != 2 || sel.levels[0] != hostio.GpioLow || sel.levels[1] != hostio.GpioHigh {
		t.Fatalf("select pin levels = %v, want [low, high]", sel.levels)
	}
	if len(bus.txLog) != 2 {
		t.Fatalf("expected 2 transactions on shared bus, got %d", len(bus.txLog))
	}
}

func Test_SpeedAndConfigureAreShared(t *testing.T) {
	bus := &fakeSPI{}
	sel := &fakeSelPin{}
	a, b := New(bus, sel)

	if err := a.Speed(4000000); err != nil {
		t.Fatalf("Speed: %v", err)
	}
	if err := b.Configure(hostio.SPIMode0, 8); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if bus.hz != 4000000 {
		t.Fatalf("bus.hz = %d, want 4000000", bus.hz)
	}
	if bus.mode != hostio.SPIMode0 || bus.bits != 8 {
		t.Fatalf("bus mode/bits = %d/%d, want %d/8", bus.mode, bus.bits, hostio.SPIMode0)
	}
}
