// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"sync"
	"testing"
	"time"

	"github.com/NeuroRehack/WMORE/frame"
)

// fakeSPI is a register file backed by a map, good enough to exercise the
// driver's register-level choreography without real hardware. Writing a
// TX payload command immediately marks TX as done, since there is no
// asynchronous radio to wait on in a test.
type fakeSPI struct {
	mu   sync.Mutex
	regs map[byte]byte
	rxFIFO [][]byte
}

func newFakeSPI() *fakeSPI {
	return &fakeSPI{regs: map[byte]byte{regFIFOStatus: 0x01}} // RX_EMPTY set
}

func (f *fakeSPI) Speed(hz int64) error           { return nil }
func (f *fakeSPI) Configure(mode, bits int) error { return nil }
func (f *fakeSPI) Close() error                   { return nil }

func (f *fakeSPI) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	op := w[0]
	switch {
	case op == cmdFlushTx, op == cmdFlushRx, op == cmdNop:
		r[1] = f.regs[regStatus]
	case op == cmdRRxPLWid:
		if len(f.rxFIFO) > 0 {
			r[1] = byte(len(f.rxFIFO[0]))
		}
	case op == cmdRRxPayload:
		if len(f.rxFIFO) > 0 {
			pkt := f.rxFIFO[0]
			f.rxFIFO = f.rxFIFO[1:]
			copy(r[1:], pkt)
			if len(f.rxFIFO) == 0 {
				f.regs[regFIFOStatus] |= 0x01
			}
		}
	case op == cmdWTxPayload || op == cmdWTxPayloadNoAck:
		f.regs[regStatus] |= statusTXDS // simulate instant, successful TX
	case op&0xE0 == 0x20: // W_REGISTER
		addr := op &^ 0x20
		if len(w) == 2 {
			f.regs[addr] = w[1]
		} else if len(w) > 2 {
			f.regs[addr] = w[len(w)-1]
		}
	case op < 0x20: // R_REGISTER
		r[1] = f.regs[op]
	default:
		r[1] = f.regs[regStatus]
	}
	return nil
}

func (f *fakeSPI) queueRX(pkt []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rxFIFO = append(f.rxFIFO, pkt)
	f.regs[regFIFOStatus] &^= 0x01 // clear RX_EMPTY
	f.regs[regStatus] |= statusRXDR
}

type fakeGPIO struct {
	mu    sync.Mutex
	level int
	edges chan struct{}
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{edges: make(chan struct{}, 1)} }

func (g *fakeGPIO) In(edge int) error { return nil }
func (g *fakeGPIO) Read() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}
func (g *fakeGPIO) WaitForEdge(timeout time.Duration) bool {
	wait := timeout
	if wait > 20*time.Millisecond {
		wait = 20 * time.Millisecond
	}
	select {
	case <-g.edges:
		return true
	case <-time.After(wait):
		return false
	}
}
func (g *fakeGPIO) Out(level int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = level
}
func (g *fakeGPIO) Number() int { return 0 }
func (g *fakeGPIO) Close() error { return nil }

func (g *fakeGPIO) signal() {
	select {
	case g.edges <- struct{}{}:
	default:
	}
}

func newTestRadio(t *testing.T, cb Callback) (*Radio, *fakeSPI) {
	t.Helper()
	spi := newFakeSPI()
	ce := newFakeGPIO()
	irq := newFakeGPIO()
	r, err := New(spi, ce, irq, cb, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, spi
}

func Test_NewProgramsFixedOnAirConfig(t *testing.T) {
	r, spi := newTestRadio(t, nil)

	spi.mu.Lock()
	defer spi.mu.Unlock()
	if spi.regs[regRFCh] != 0 {
		t.Fatalf("RF channel = %#x, want 0", spi.regs[regRFCh])
	}
	want := byte(rate2Mbps) | byte(powerPlus4dBm)
	if spi.regs[regRFSetup] != want {
		t.Fatalf("RF_SETUP = %#x, want %#x", spi.regs[regRFSetup], want)
	}
	if spi.regs[regSetupRetr] != 0 {
		t.Fatalf("SETUP_RETR = %#x, want 0 (0 retries)", spi.regs[regSetupRetr])
	}
	if spi.regs[regDynPD] != 0xFF {
		t.Fatalf("DYNPD = %#x, want 0xFF", spi.regs[regDynPD])
	}
	if r.mode != ModePRX {
		t.Fatalf("initial mode = %v, want ModePRX", r.mode)
	}
}

func Test_SendBroadcastRequiresPTX(t *testing.T) {
	r, _ := newTestRadio(t, nil)
	err := r.SendBroadcast(frame.Frame{Cmd: frame.StartTick})
	if err != ErrNotPermitted {
		t.Fatalf("SendBroadcast in PRX mode: got %v, want ErrNotPermitted", err)
	}
}

func Test_SwitchModeThenSendBroadcast(t *testing.T) {
	r, _ := newTestRadio(t, nil)
	if err := r.SwitchMode(ModePTX); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := r.SendBroadcast(frame.Frame{Cmd: frame.StartTick, Data: frame.EncodeRTC(0, 0)}); err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}
}

func Test_SendUnicastRejectsBadPipe(t *testing.T) {
	r, _ := newTestRadio(t, nil)
	r.SwitchMode(ModePTX)
	if err := r.SendUnicast(0, frame.Frame{Cmd: frame.Poll}, true); err == nil {
		t.Fatalf("SendUnicast(pipe=0) should be rejected, pipe 0 is the broadcast pipe")
	}
	if err := r.SendUnicast(8, frame.Frame{Cmd: frame.Poll}, true); err == nil {
		t.Fatalf("SendUnicast(pipe=8) should be rejected, only 1..7 are valid")
	}
}

func Test_ReceivedFrameInvokesCallback(t *testing.T) {
	var mu sync.Mutex
	var got []frame.Frame
	cb := func(kind EventKind, f frame.Frame, pipe byte) {
		if kind != RXReceived {
			return
		}
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	}
	r, spi := newTestRadio(t, cb)
	_ = r

	wire := frame.Encode(frame.StartTick, frame.EncodeRTC(0x6547A1B0, 0x2A))
	spi.queueRX(wire[:])
	r.irq.(*fakeGPIO).signal()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(got))
	}
	if got[0].Cmd != frame.StartTick || got[0].Data.Seconds() != 0x6547A1B0 {
		t.Fatalf("decoded frame = %+v, want StartTick with seconds 0x6547A1B0", got[0])
	}
}

func Test_SendBroadcastInvokesTXSuccessCallback(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind
	cb := func(kind EventKind, f frame.Frame, pipe byte) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}
	r, _ := newTestRadio(t, cb)
	if err := r.SwitchMode(ModePTX); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := r.SendBroadcast(frame.Frame{Cmd: frame.StartTick, Data: frame.EncodeRTC(0, 0)}); err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != TXSuccess {
		t.Fatalf("callback kinds = %v, want exactly one TXSuccess", kinds)
	}
}

func Test_QueueAckPayloadReplacesPending(t *testing.T) {
	r, _ := newTestRadio(t, nil)
	if err := r.QueueAckPayload(3, frame.Frame{Cmd: frame.StopReq}); err != nil {
		t.Fatalf("QueueAckPayload: %v", err)
	}
	if err := r.QueueAckPayload(3, frame.Frame{Cmd: frame.StopReq}); err != nil {
		t.Fatalf("second QueueAckPayload: %v", err)
	}
	if r.ackPending[3] == nil {
		t.Fatalf("expected a pending ack payload for pipe 3")
	}
}
