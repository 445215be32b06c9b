// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package node implements the Coordinator/Logger role state machine: the
// direct translation of main()'s event loop in
// original_source/Firmware/Seeed/src/main.c into a single goroutine that
// owns the radio, the button and UART inputs, the periodic tick source,
// and the SYNC/STOP/LED outputs.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NeuroRehack/WMORE/events"
	"github.com/NeuroRehack/WMORE/frame"
	"github.com/NeuroRehack/WMORE/input"
	"github.com/NeuroRehack/WMORE/output"
	"github.com/NeuroRehack/WMORE/pipe"
	"github.com/NeuroRehack/WMORE/radio"
	"github.com/NeuroRehack/WMORE/thread"
	"github.com/NeuroRehack/WMORE/tick"
)

// Role is one of the three states the node cycles through.
type Role byte

const (
	RoleIdle Role = iota
	RoleCoord
	RoleLogger
)

func (r Role) String() string {
	switch r {
	case RoleCoord:
		return "coord"
	case RoleLogger:
		return "logger"
	default:
		return "idle"
	}
}

// pollEveryNTicks is how often, in Coord, the round-robin logger poll
// fires: once every 5 ticks of the 10ms tick source, i.e. every 50ms,
// spec.md §4.6/§4.7.
const pollEveryNTicks = 5

// uartBytePace is the busy-wait between UART bytes of the coordinator
// signature and the forwarded tick time, spec.md §4.6.
const uartBytePace = 50 * time.Microsecond

// stopTXTimeout bounds each of the two redundant STOP broadcasts' wait for
// TX_DONE, spec.md §4.6 "Redundant STOP".
const stopTXTimeout = 10 * time.Millisecond

// pollMainLoopIdle is how long Run sleeps when an iteration found no event,
// matching spec.md §5's "sleeps 1ms in IDLE and LOGGER when no event
// fired". Coord also takes this nap between ticks: nothing in spec.md
// requires Coord to spin at 100% CPU between tick-timer events, and the
// tick cadence itself is driven by tick.Source's own timer goroutine, not
// by main-loop poll granularity, so a 1ms poll here costs no precision.
const pollMainLoopIdle = time.Millisecond

// FleetEvent is published to an external status channel whenever the role
// state machine changes state. It never crosses the radio.
type FleetEvent struct {
	NodeID string
	Role   Role
	Event  string
	Time   time.Time
}

// StatusPublisher delivers FleetEvents to an external channel (MQTT, log,
// whatever). Publish must not block; a full or absent publisher simply
// drops the event.
type StatusPublisher interface {
	Publish(FleetEvent)
}

// MetricsRecorder receives operational counters. A nil MetricsRecorder
// field on Node is valid; Node checks before every call.
type MetricsRecorder interface {
	SetRole(Role)
	IncTicks()
	IncPolls()
	IncStops()
}

// LogPrintf is a function used to print logging info.
type LogPrintf func(format string, v ...interface{})

// Node owns every concurrent context of the time-sync fabric and runs the
// single goroutine that is allowed to touch radio mode, GPIO outputs, or
// protocol state (spec.md §5).
type Node struct {
	id      string
	radio   *radio.Radio
	btn     *input.Button
	uart    *input.UARTAssembler
	tick    *tick.Source
	out     *output.Actuator
	ev      *events.Mask
	ownPipe byte
	status  StatusPublisher
	metrics MetricsRecorder
	log     LogPrintf
	trace   trace

	mu         sync.Mutex
	role       Role
	lastTime   frame.Time
	pollCursor byte
	tickCount  int
}

// Deps bundles the collaborators a Node is built from. Radio may be nil at
// construction time: radio.New itself needs a callback bound to the Node,
// so the usual wiring order is New (Radio nil) -> radio.New(..., n.RadioCallback(), ...)
// -> n.SetRadio(r), exactly the chicken-and-egg radio.New/Node.onRadioEvent
// dependency cmd/wmorenode/main.go resolves at startup.
type Deps struct {
	ID      string
	Radio   *radio.Radio
	Button  *input.Button
	UART    *input.UARTAssembler // optional; nil disables UART forwarding
	Output  *output.Actuator
	Events  *events.Mask
	OwnPipe byte
	Status  StatusPublisher // optional
	Metrics MetricsRecorder // optional
	Logger  LogPrintf       // optional
}

// New builds a Node in RoleIdle. It does not start the main loop; call Run.
func New(d Deps) *Node {
	log := d.Logger
	if log == nil {
		log = func(format string, v ...interface{}) {}
	}
	n := &Node{
		id:         d.ID,
		radio:      d.Radio,
		btn:        d.Button,
		uart:       d.UART,
		out:        d.Output,
		ev:         d.Events,
		ownPipe:    d.OwnPipe,
		status:     d.Status,
		metrics:    d.Metrics,
		log:        log,
		pollCursor: pipe.Min,
	}
	n.tick = tick.New(d.Events)
	return n
}

// RadioCallback returns the radio.Callback that must be passed to
// radio.New so received frames and TX completions reach this Node's event
// mask. Kept separate from New because radio.New needs the callback before
// the Radio it returns exists.
func (n *Node) RadioCallback() radio.Callback {
	return n.onRadioEvent
}

// SetRadio finishes wiring a Node built with Deps.Radio == nil. Call once,
// before Run.
func (n *Node) SetRadio(r *radio.Radio) { n.radio = r }

func (n *Node) onRadioEvent(kind radio.EventKind, f frame.Frame, pipeNum byte) {
	switch kind {
	case radio.TXSuccess, radio.TXFailed:
		n.ev.Set(events.TxDone)
	case radio.RXReceived:
		switch f.Cmd {
		case frame.StartTick:
			// A zero-time tick is the Coordinator's initial "start logging"
			// trigger (spec.md §9 Open Question (a)): it still raises
			// TickRX so IDLE enters LOGGER, but it must not clobber an
			// already-cached real time with zeros.
			if !f.Data.IsZero() {
				n.mu.Lock()
				n.lastTime = f.Data
				n.mu.Unlock()
			}
			n.ev.Set(events.TickRX)
		case frame.Stop, frame.StopReq:
			n.ev.Set(events.StopRX)
		}
	}
}

// Role reports the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Run is the direct translation of main()'s for(;;) { ev := drain();
// switch(state) {...} } loop. It blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	if err := thread.Realtime(); err != nil {
		n.log("realtime scheduling unavailable, continuing at normal priority: %v", err)
	}
	n.enterIdle()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := n.ev.DrainAll()
		switch n.Role() {
		case RoleIdle:
			n.stepIdle(ev)
		case RoleCoord:
			n.stepCoord(ev)
		case RoleLogger:
			n.stepLogger(ev)
		}
		if ev == 0 {
			time.Sleep(pollMainLoopIdle)
		}
	}
}

func (n *Node) stepIdle(ev events.Bits) {
	switch {
	case ev.Has(events.Button):
		n.enterCoord()
	case ev.Has(events.TickRX):
		n.enterLogger()
	}
}

func (n *Node) stepCoord(ev events.Bits) {
	if ev.Has(events.Button) || ev.Has(events.StopRX) {
		n.broadcastStopTwice()
		n.out.PulseStop()
		n.enterIdle()
		return
	}
	if ev.Has(events.TickTimer) {
		n.onTick()
	}
}

func (n *Node) stepLogger(ev events.Bits) {
	switch {
	case ev.Has(events.Button):
		if err := n.radio.QueueAckPayload(n.ownPipe, frame.Frame{Cmd: frame.StopReq}); err != nil {
			n.log("failed to queue STOP_REQ: %v", err)
		}
	case ev.Has(events.StopRX):
		n.out.PulseStop()
		n.enterIdle()
	case ev.Has(events.TickRX):
		n.forwardTime()
		n.out.PulseSync()
	}
}

func (n *Node) enterIdle() {
	n.tick.Stop()
	if err := n.radio.SwitchMode(radio.ModePRX); err != nil {
		n.log("switch to PRX on idle entry failed: %v", err)
	}
	n.out.ClearOutputs()
	n.out.SetIdle()
	n.setRole(RoleIdle)
}

func (n *Node) enterCoord() {
	if err := n.radio.SwitchMode(radio.ModePTX); err != nil {
		n.log("switch to PTX failed, falling back to idle: %v", err)
		n.enterIdle()
		return
	}
	n.out.SetCoord()
	n.setRole(RoleCoord)

	n.mu.Lock()
	n.pollCursor = pipe.Min
	n.tickCount = 0
	n.mu.Unlock()

	n.sendStartTick(frame.Time{})
	n.out.PulseSync()
	n.tick.Start()
}

func (n *Node) enterLogger() {
	n.out.SetLogger()
	n.setRole(RoleLogger)
	n.out.PulseSync()
}

func (n *Node) setRole(r Role) {
	n.mu.Lock()
	n.role = r
	n.mu.Unlock()
	n.trace.push("-> %s", r)
	if n.metrics != nil {
		n.metrics.SetRole(r)
	}
	n.publish(r.String())
}

func (n *Node) publish(event string) {
	if n.status == nil {
		return
	}
	n.status.Publish(FleetEvent{NodeID: n.id, Role: n.Role(), Event: event, Time: time.Now()})
}

// onTick is COORD's TICK_TIMER handler: broadcast the current time,
// re-sync, emit the coordinator signature on UART, and every fifth tick
// poll the next logger pipe round-robin.
func (n *Node) onTick() {
	n.mu.Lock()
	n.tickCount++
	tickCount := n.tickCount
	cursor := n.pollCursor
	n.mu.Unlock()

	n.sendStartTick(n.currentTime())
	n.out.PulseSync()
	n.emitCoordSignature()
	if n.metrics != nil {
		n.metrics.IncTicks()
	}

	if tickCount%pollEveryNTicks == 0 {
		n.pollPipe(cursor)
	}
}

func (n *Node) sendStartTick(t frame.Time) {
	if err := n.radio.SendBroadcast(frame.Frame{Cmd: frame.StartTick, Data: t}); err != nil {
		n.log("broadcast START_TICK failed: %v", err)
	}
}

func (n *Node) pollPipe(cursor byte) {
	if err := n.radio.SendUnicast(cursor, frame.Frame{Cmd: frame.Poll}, true); err != nil {
		n.log("poll pipe %d failed: %v", cursor, err)
	}
	if n.metrics != nil {
		n.metrics.IncPolls()
	}
	next := cursor + 1
	if next > pipe.Max {
		next = pipe.Min
	}
	n.mu.Lock()
	n.pollCursor = next
	n.mu.Unlock()
}

// broadcastStopTwice is the redundant STOP handshake: two back-to-back
// broadcasts, each bounded by a TX_DONE wait, spec.md §4.6.
func (n *Node) broadcastStopTwice() {
	for i := 0; i < 2; i++ {
		n.ev.Clear(events.TxDone)
		if err := n.radio.SendBroadcast(frame.Frame{Cmd: frame.Stop}); err != nil {
			n.log("broadcast STOP failed: %v", err)
			continue
		}
		n.waitTxDone(stopTXTimeout)
	}
	if n.metrics != nil {
		n.metrics.IncStops()
	}
}

// waitTxDone polls, without consuming any other pending event, for the
// TxDone bit to appear within timeout. Mirrors wait_tx_done's
// millisecond-granularity bounded poll.
func (n *Node) waitTxDone(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if n.ev.Peek().Has(events.TxDone) {
			n.ev.Clear(events.TxDone)
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// currentTime reads the RTC value last assembled off UART, used as the
// payload for every non-initial START_TICK broadcast.
func (n *Node) currentTime() frame.Time {
	if n.uart == nil {
		return frame.Time{}
	}
	return n.uart.Latest()
}

// emitCoordSignature writes the literal coordinator signature to UART,
// paced so a slow downstream sensor host doesn't drop bytes.
func (n *Node) emitCoordSignature() {
	if n.uart == nil {
		return
	}
	sig := frame.CoordSignature()
	if err := n.uart.WritePaced(sig[:], uartBytePace); err != nil {
		n.log("coordinator signature write failed: %v", err)
	}
}

// forwardTime writes the cached last-received tick time to UART so the
// attached logger host can adopt a coherent global clock.
func (n *Node) forwardTime() {
	if n.uart == nil {
		return
	}
	n.mu.Lock()
	t := n.lastTime
	n.mu.Unlock()
	if err := n.uart.WritePaced(t[:], uartBytePace); err != nil {
		n.log("time forward write failed: %v", err)
	}
}

// TraceDump returns the node's role-transition trace and clears it, for
// cmd/wmorenode's SIGUSR1 handler to print.
func (n *Node) TraceDump() []string { return n.trace.dump() }

// Close releases the node's owned collaborators. Run must have returned
// (ctx cancelled) before calling Close.
func (n *Node) Close() error {
	n.tick.Stop()
	var errs []error
	if n.btn != nil {
		if err := n.btn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.uart != nil {
		if err := n.uart.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.radio.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("node: close errors: %v", errs)
	}
	return nil
}
