// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package input wraps the two sources of "something happened" that feed
// the node's event mask from outside the radio: the start/stop button and
// the UART link carrying RTC time from the data logger board.
package input

import (
	"sync"
	"time"

	"github.com/NeuroRehack/WMORE/events"
	"github.com/NeuroRehack/WMORE/hostio"
)

const debounce = 50 * time.Millisecond

// Button debounces a GPIO pin wired to an active-low push button and
// raises events.Button on the release-to-pressed transition only, the
// same rule as the firmware's btn_cb/btn_debounce_work_handler pair:
// every edge reschedules a timer, and only the timer's final sample
// decides whether a press event fires.
type Button struct {
	pin hostio.GPIO
	mu  sync.Mutex
	ev  *events.Mask
	t   *time.Timer
	pressed bool
	stopCh  chan struct{}
}

// NewButton configures pin for both-edge interrupts and starts watching
// it. The pin must already be readable as GpioLow when pressed.
func NewButton(pin hostio.GPIO, ev *events.Mask) (*Button, error) {
	b := &Button{pin: pin, ev: ev, stopCh: make(chan struct{})}
	if err := pin.In(hostio.GpioBothEdges); err != nil {
		return nil, err
	}
	go b.watch()
	return b, nil
}

// Close stops watching the pin.
func (b *Button) Close() error {
	close(b.stopCh)
	return b.pin.Close()
}

func (b *Button) watch() {
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		if !b.pin.WaitForEdge(time.Second) {
			continue
		}
		b.mu.Lock()
		if b.t != nil {
			b.t.Stop()
		}
		b.t = time.AfterFunc(debounce, b.sample)
		b.mu.Unlock()
	}
}

// sample runs once the line has been stable for the debounce interval and
// turns a release->pressed transition into a single event.
func (b *Button) sample() {
	pressed := b.pin.Read() == hostio.GpioLow // active low

	b.mu.Lock()
	wasPressed := b.pressed
	b.pressed = pressed
	b.mu.Unlock()

	if pressed && !wasPressed {
		b.ev.Set(events.Button)
	}
}
