// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package tick provides the Coordinator's periodic sampling-interval
// source. It is the host analogue of a Zephyr k_timer: a goroutine whose
// only job is to raise events.TickTimer once per interval, with no
// protocol logic of its own.
package tick

import (
	"time"

	"github.com/NeuroRehack/WMORE/events"
)

// Interval is the fixed 10ms sampling interval, spec.md §4.4.
const Interval = 10 * time.Millisecond

// Source is a restartable periodic event source.
type Source struct {
	ev      *events.Mask
	stopCh  chan struct{}
	started bool
}

// New creates a Source bound to ev. It does not start ticking until Start
// is called.
func New(ev *events.Mask) *Source {
	return &Source{ev: ev}
}

// Start arms the timer, restarting it if already running. Valid only
// while the node's role is Coord, per spec.md invariant (e); the caller
// is responsible for that constraint, Source itself does not check it.
func (s *Source) Start() {
	s.Stop()
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.started = true
	go s.run(stopCh)
}

// Stop disarms the timer. Safe to call even if not started.
func (s *Source) Stop() {
	if s.started {
		close(s.stopCh)
		s.started = false
	}
}

func (s *Source) run(stopCh chan struct{}) {
	t := time.NewTicker(Interval)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			s.ev.Set(events.TickTimer)
		}
	}
}
