// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package radio drives an Enhanced ShockBurst capable transceiver
// (nRF24L01-family) over SPI, playing the same role sx1231 plays for an
// FSK radio: an interrupt-driven worker goroutine hides the register
// choreography behind a small synchronous API.
//
// Only the on-air parameters the protocol requires are supported: fixed
// 2 Mbit/s air rate, dynamic payload length, 16-bit CRC, +4 dBm output
// power, 600 microsecond / 0-count auto retransmit, a single fixed
// base/prefix address table, and RF channel 0. There is no notion of
// configurable frequency or data rate, unlike sx1231's SetFrequency and
// SetRate: this protocol uses exactly one on-air configuration.
package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NeuroRehack/WMORE/frame"
	"github.com/NeuroRehack/WMORE/hostio"
)

// Mode is the ESB role of the local radio.
type Mode byte

const (
	ModePRX Mode = iota // primary receiver: listens on all pipes
	ModePTX             // primary transmitter: sends broadcasts and unicasts
)

func (m Mode) String() string {
	if m == ModePTX {
		return "PTX"
	}
	return "PRX"
}

// EventKind classifies what happened in a Callback invocation.
type EventKind byte

const (
	TXSuccess EventKind = iota
	TXFailed
	RXReceived
)

// Callback is invoked from the radio's worker goroutine whenever a TX
// completes or a valid frame is received. pipe is meaningless for TX
// events. The callback must not block.
type Callback func(kind EventKind, f frame.Frame, pipe byte)

// ErrNotPermitted is returned by the PTX-only send methods when the radio
// is in ModePRX, mirroring esb_send_cmd's -EPERM guard.
var ErrNotPermitted = errors.New("radio: not permitted in current mode")

// LogPrintf is a function used by the driver to print logging info.
type LogPrintf func(format string, v ...interface{})

// baseAddr and prefixes make up the fixed pipe address table. Pipe 0 uses
// its own full address (the broadcast address); pipes 1-7 share baseAddr
// for their top bytes and differ only in their low prefix byte.
var (
	baseAddr   = [4]byte{0xE7, 0xE7, 0xE7, 0xE7}
	pipe0Addr  = [5]byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}
	pipePrefix = [8]byte{0xE7, 0xC2, 0xC3, 0xC4, 0xC5, 0xC6, 0xC7, 0xC8}
)

const txChanCap = 4

type txRequest struct {
	pipe    byte
	payload [frame.Size]byte
	ack     bool
	done    chan error
}

// Radio represents an ESB-capable transceiver attached via SPI, with a
// chip-enable pin and an active-low interrupt pin.
type Radio struct {
	spi hostio.SPI
	ce  hostio.GPIO
	irq hostio.GPIO

	sync.Mutex // guards register access and ackPending
	mode       Mode
	err        error
	ackPending [8]*[frame.Size]byte // queued ACK payload per pipe, 1..7

	cb  Callback
	log LogPrintf

	txChan chan txRequest
	stopCh chan struct{}
}

// New initializes the radio, places it in ModePRX, and starts its worker
// goroutine. dev must already be idle (no other user of the SPI bus).
func New(dev hostio.SPI, ce, irq hostio.GPIO, cb Callback, logger LogPrintf) (*Radio, error) {
	r := &Radio{
		spi: dev, ce: ce, irq: irq,
		cb:     cb,
		log:    func(format string, v ...interface{}) {},
		txChan: make(chan txRequest, txChanCap),
		stopCh: make(chan struct{}),
	}
	if logger != nil {
		r.log = func(format string, v ...interface{}) {
			logger("radio: "+format, v...)
		}
	}

	if err := dev.Speed(4 * 1000 * 1000); err != nil {
		return nil, fmt.Errorf("radio: cannot set SPI speed: %w", err)
	}
	if err := dev.Configure(hostio.SPIMode0, 8); err != nil {
		return nil, fmt.Errorf("radio: cannot set SPI mode: %w", err)
	}
	r.ce.Out(hostio.GpioLow)

	if err := r.irq.In(hostio.GpioFallingEdge); err != nil {
		return nil, fmt.Errorf("radio: cannot arm interrupt pin: %w", err)
	}

	if err := r.programFixedConfig(); err != nil {
		return nil, err
	}

	go r.worker()
	if err := r.SwitchMode(ModePRX); err != nil {
		close(r.stopCh)
		return nil, err
	}
	return r, nil
}

// Error returns any persistent error encountered by the worker goroutine.
func (r *Radio) Error() error {
	r.Lock()
	defer r.Unlock()
	return r.err
}

// Close stops the worker goroutine and powers the radio down.
func (r *Radio) Close() error {
	close(r.stopCh)
	r.ce.Out(hostio.GpioLow)
	r.writeReg(regConfig, 0)
	return r.spi.Close()
}

// programFixedConfig writes the protocol's single on-air configuration:
// 2 Mbit/s, +4 dBm, 16-bit CRC, dynamic payload length on all pipes,
// 600 microsecond / 0-count auto retransmit, channel 0, and the fixed
// base/prefix address table. Ported from sx1231.New's config-register
// write loop.
func (r *Radio) programFixedConfig() error {
	r.writeReg(regConfig, cfgPWRUP|cfgENCRC|cfgCRCO)
	time.Sleep(2 * time.Millisecond) // power-up settling time

	r.writeReg(regEnAA, 0xFF)     // auto-ack on every pipe
	r.writeReg(regEnRxAddr, 0xFF) // all 8 pipes enabled
	r.writeReg(regSetupAW, 0x01)  // 3-byte addresses
	r.writeReg(regSetupRetr, 0x00) // ARC=0 means no retries are attempted regardless of ARD
	r.writeReg(regRFCh, 0x00) // channel 0
	r.writeReg(regRFSetup, byte(rate2Mbps)|byte(powerPlus4dBm))
	r.writeReg(regDynPD, 0xFF)
	r.writeReg(regFeature, featureEnDPL|featureEnACKPay|featureEnDynACK)

	r.writeRegBuf(regRXAddrP0, pipe0Addr[:])
	r.writeRegBuf(regRXAddrP1, append(append([]byte{}, baseAddr[:]...), pipePrefix[1]))
	for p := byte(2); p <= 5; p++ {
		r.writeReg(regRXAddrP1+p-1, pipePrefix[p])
	}
	r.writeReg(regRXAddrP6, pipePrefix[6])
	r.writeReg(regRXAddrP7, pipePrefix[7])
	r.writeRegBuf(regTXAddr, pipe0Addr[:])

	r.command(cmdFlushRx)
	r.command(cmdFlushTx)
	return r.Error()
}

// SwitchMode stops RX, flushes both FIFOs, reapplies the fixed on-air
// configuration and address table, selects the new role, and (for
// ModePRX) raises CE to start listening. Ported from esb_switch_mode.
func (r *Radio) SwitchMode(mode Mode) error {
	r.ce.Out(hostio.GpioLow)
	r.command(cmdFlushRx)
	r.command(cmdFlushTx)

	// Reprogram the fixed on-air parameters and address table; any SPI
	// error is left in r.err and reported below.
	r.programFixedConfig()

	cfg := cfgPWRUP | cfgENCRC | cfgCRCO
	if mode == ModePRX {
		cfg |= cfgPRIMRX
	}
	r.writeReg(regConfig, cfg)

	r.Lock()
	r.mode = mode
	err := r.err
	r.Unlock()
	if err != nil {
		return err
	}
	if mode == ModePRX {
		r.ce.Out(hostio.GpioHigh) // stays high: continuous listening
	}
	r.log("switched to %s", mode)
	return nil
}

// SendBroadcast transmits f on pipe 0 without requesting an ACK. Only
// valid in ModePTX. Ported from esb_send_cmd.
func (r *Radio) SendBroadcast(f frame.Frame) error {
	r.Lock()
	if r.mode != ModePTX {
		r.Unlock()
		return ErrNotPermitted
	}
	r.Unlock()

	payload := frame.Encode(f.Cmd, f.Data)
	req := txRequest{pipe: 0, payload: payload, ack: false, done: make(chan error, 1)}
	select {
	case r.txChan <- req:
	case <-r.stopCh:
		return fmt.Errorf("radio: closed")
	}
	return <-req.done
}

// SendUnicast transmits f on the given pipe (1..7), requesting an ACK if
// wantAck is set. Only valid in ModePTX. Used to POLL loggers.
func (r *Radio) SendUnicast(pipe byte, f frame.Frame, wantAck bool) error {
	if pipe < 1 || pipe > 7 {
		return fmt.Errorf("radio: invalid unicast pipe %d", pipe)
	}
	r.Lock()
	if r.mode != ModePTX {
		r.Unlock()
		return ErrNotPermitted
	}
	r.Unlock()

	payload := frame.Encode(f.Cmd, f.Data)
	req := txRequest{pipe: pipe, payload: payload, ack: wantAck, done: make(chan error, 1)}
	select {
	case r.txChan <- req:
	case <-r.stopCh:
		return fmt.Errorf("radio: closed")
	}
	return <-req.done
}

// QueueAckPayload stages f to ride back as the ACK payload the next time
// this pipe's peer is polled (PRX side). A second call before delivery
// replaces the pending payload rather than queueing a second one, since
// the hardware ACK-payload FIFO is not used for queueing by this driver.
func (r *Radio) QueueAckPayload(pipe byte, f frame.Frame) error {
	if pipe < 1 || pipe > 7 {
		return fmt.Errorf("radio: invalid ack pipe %d", pipe)
	}
	payload := frame.Encode(f.Cmd, f.Data)
	r.Lock()
	defer r.Unlock()
	r.ackPending[pipe] = &payload
	r.flushTxLocked() // drop any previously-written but undelivered ack
	buf := make([]byte, frame.Size+1)
	buf[0] = cmdWAckPayload | pipe
	copy(buf[1:], payload[:])
	r.txLocked(buf, make([]byte, len(buf)))
	return r.err
}

// FlushRX discards any queued but unread received payloads.
func (r *Radio) FlushRX() {
	r.Lock()
	defer r.Unlock()
	r.flushRxLocked()
}

// FlushTX discards any queued but untransmitted payloads.
func (r *Radio) FlushTX() {
	r.Lock()
	defer r.Unlock()
	r.flushTxLocked()
}

// flushTxLocked and flushRxLocked issue the FLUSH_TX/FLUSH_RX command
// opcodes; caller must already hold r's lock.
func (r *Radio) flushTxLocked() {
	r.txLocked([]byte{cmdFlushTx}, make([]byte, 1))
}

func (r *Radio) flushRxLocked() {
	r.txLocked([]byte{cmdFlushRx}, make([]byte, 1))
}

// worker is the endless loop converting interrupt edges and outbound
// requests into register operations, structurally the same select-based
// loop as sx1231.Radio.worker.
func (r *Radio) worker() {
	intrChan := make(chan struct{}, 1)
	go func() {
		for {
			if r.irq.WaitForEdge(time.Second) {
				select {
				case intrChan <- struct{}{}:
				default:
				}
			}
			select {
			case <-r.stopCh:
				return
			default:
			}
		}
	}()

	for {
		select {
		case <-r.stopCh:
			r.log("worker exiting")
			return

		case <-intrChan:
			r.handleInterrupt()

		case req := <-r.txChan:
			req.done <- r.transmit(req)
		}
	}
}

// handleInterrupt reads and clears the STATUS register, then services
// whichever of RX-data-ready, TX-sent, and max-retransmit conditions are
// set. Ported from sx1231's intrReceive/intrTransmit split, collapsed
// since ESB reports both conditions in a single STATUS byte.
func (r *Radio) handleInterrupt() {
	status := r.readReg(regStatus)
	r.writeReg(regStatus, status) // write-1-to-clear

	if status&statusTXDS != 0 {
		r.deliverTX(true)
	}
	if status&statusMaxRT != 0 {
		r.command(cmdFlushTx)
		r.deliverTX(false)
	}
	if status&statusRXDR != 0 {
		r.drainRX()
	}
}

func (r *Radio) deliverTX(ok bool) {
	kind := TXFailed
	if ok {
		kind = TXSuccess
	}
	if r.cb != nil {
		r.cb(kind, frame.Frame{}, 0)
	}
}

// drainRX pulls every payload out of the RX FIFO, decodes it, and invokes
// the callback for each well-formed frame. Malformed frames are dropped
// silently (spec.md §4.1/§4.8 semantics, matching esb_cb's validation).
func (r *Radio) drainRX() {
	for {
		fifoStatus := r.readReg(regFIFOStatus)
		if fifoStatus&0x01 != 0 { // RX_EMPTY
			return
		}
		pipe := (r.readReg(regStatus) & statusRXPNoMask) >> 1

		width := r.command(cmdRRxPLWid)
		if width > frame.Size || width == 0 {
			r.command(cmdFlushRx)
			return
		}
		buf := make([]byte, width+1)
		rbuf := make([]byte, width+1)
		buf[0] = cmdRRxPayload
		r.Lock()
		r.spi.Tx(buf, rbuf)
		r.Unlock()

		f, ok := frame.Decode(rbuf[1:])
		if !ok {
			continue
		}
		if r.cb != nil {
			r.cb(RXReceived, f, pipe)
		}
	}
}

// transmit carries out a single queued send: write the payload, pulse CE
// to kick off the air transmission, and poll STATUS for completion, the
// same bounded-wait idiom as wait_tx_done in the original firmware. Every
// completion - success or failure - is handed to deliverTX so the
// TXSuccess/TXFailed callback (and so events.TxDone on the node side) fires
// exactly the same way whether it was observed here or via a genuine
// interrupt edge in handleInterrupt.
func (r *Radio) transmit(req txRequest) error {
	r.Lock()
	if r.err != nil {
		err := r.err
		r.Unlock()
		return err
	}
	r.flushTxLocked()

	cmd := byte(cmdWTxPayload)
	if !req.ack {
		cmd = cmdWTxPayloadNoAck
	}
	buf := make([]byte, len(req.payload)+1)
	rbuf := make([]byte, len(buf))
	buf[0] = cmd
	copy(buf[1:], req.payload[:])
	r.txLocked(buf, rbuf)
	r.Unlock()

	r.ce.Out(hostio.GpioHigh)
	time.Sleep(15 * time.Microsecond) // minimum CE high pulse width
	r.ce.Out(hostio.GpioLow)

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		status := r.readReg(regStatus)
		if status&statusTXDS != 0 {
			r.writeReg(regStatus, statusTXDS)
			r.deliverTX(true)
			return nil
		}
		if status&statusMaxRT != 0 {
			r.writeReg(regStatus, statusMaxRT)
			r.command(cmdFlushTx)
			r.deliverTX(false)
			return fmt.Errorf("radio: max retransmits on pipe %d", req.pipe)
		}
		time.Sleep(100 * time.Microsecond)
	}
	r.deliverTX(false)
	return fmt.Errorf("radio: TX timeout on pipe %d", req.pipe)
}

// writeReg writes a single register.
func (r *Radio) writeReg(addr byte, val byte) {
	r.Lock()
	defer r.Unlock()
	buf := []byte{addr | 0x20, val}
	r.txLocked(buf, make([]byte, len(buf)))
}

// writeRegBuf writes a multi-byte register starting at addr.
func (r *Radio) writeRegBuf(addr byte, data []byte) {
	r.Lock()
	defer r.Unlock()
	buf := make([]byte, len(data)+1)
	buf[0] = addr | 0x20
	copy(buf[1:], data)
	r.txLocked(buf, make([]byte, len(buf)))
}

// readReg reads a single register. Caller must not hold r's mutex.
func (r *Radio) readReg(addr byte) byte {
	r.Lock()
	defer r.Unlock()
	buf := []byte{addr & 0x1F, 0}
	rbuf := make([]byte, 2)
	r.txLocked(buf, rbuf)
	return rbuf[1]
}

// command issues a bare SPI command opcode (FLUSH_TX, FLUSH_RX, NOP, ...)
// and returns the STATUS byte shifted out alongside it, or for
// R_RX_PL_WID the payload width byte that follows.
func (r *Radio) command(opcode byte) byte {
	r.Lock()
	defer r.Unlock()
	buf := []byte{opcode, 0}
	rbuf := make([]byte, 2)
	r.txLocked(buf, rbuf)
	return rbuf[1]
}

// txLocked performs the SPI transaction; caller must hold r.Lock.
func (r *Radio) txLocked(w, rd []byte) {
	if err := r.spi.Tx(w, rd); err != nil && r.err == nil {
		r.err = err
	}
}
