// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package events implements the single machine-word bitset shared between
// the node's ISR-equivalent goroutines (radio callback, tick timer, UART
// reader, button debounce worker) and its main loop. Producers OR bits in;
// the main loop drains the whole set atomically once per iteration. No
// component performs protocol logic here — this package only moves bits.
package events

import "sync/atomic"

// Bits is a set of pending events.
type Bits uint32

const (
	Button    Bits = 1 << iota // debounced button press
	TickRX                     // a valid START_TICK frame was received
	StopRX                     // a valid STOP or STOP_REQ frame was received
	TickTimer                  // the periodic 10ms tick fired (Coordinator only)
	TxDone                     // a TX attempt completed, success or failure
)

// Mask is the atomic event bitset. The zero value is ready to use.
type Mask struct {
	bits atomic.Uint32
}

// Set atomically ORs bits into the mask. Safe to call from any goroutine.
func (m *Mask) Set(bits Bits) {
	for {
		old := m.bits.Load()
		if m.bits.CompareAndSwap(old, old|uint32(bits)) {
			return
		}
	}
}

// DrainAll atomically reads and clears the entire mask in one step, so that
// any bit set strictly before the swap is observed by it (spec.md §4.5).
func (m *Mask) DrainAll() Bits {
	return Bits(m.bits.Swap(0))
}

// Peek returns the current bits without clearing them.
func (m *Mask) Peek() Bits { return Bits(m.bits.Load()) }

// Clear atomically clears the given bits, leaving any others untouched.
// Used when only one specific bit's arrival matters (a bounded TX_DONE
// wait) and draining the whole mask would risk losing an unrelated bit
// another goroutine just set.
func (m *Mask) Clear(bits Bits) {
	for {
		old := m.bits.Load()
		if m.bits.CompareAndSwap(old, old&^uint32(bits)) {
			return
		}
	}
}

// Has reports whether any of the given bits are present in ev.
func (ev Bits) Has(bits Bits) bool { return ev&bits != 0 }
