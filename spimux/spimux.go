// Copyright 2017 by Thorsten von Eicken, see LICENSE file

// Package spimux lets two ESB radios share a single SPI bus with a single
// hardware chip-select line, using an extra GPIO pin to steer an external
// demux between them. Used by cmd/wmorenode's "radiocheck --bench" two-radio
// rig, where one Coordinator and one Logger are driven from the same host
// during bring-up.
package spimux

import (
	"sync"

	"github.com/NeuroRehack/WMORE/hostio"
)

// Conn is one side of a demuxed SPI connection. It satisfies hostio.SPI.
//
// A sample circuit is to use a 74LVC1G19 demux with the SPI CS connected to
// E, the GPIO select pin connected to A, and the CS inputs of the two
// radios attached to Y0 and Y1 respectively. A pull-down resistor on the A
// input of the demux is recommended so both CS remain inactive when the
// SPI CS is not driven.
//
// The two Conns returned by New share the underlying bus's speed and mode
// settings: configuring one configures both.
type Conn struct {
	mu     *sync.Mutex
	port   hostio.SPI
	selPin hostio.GPIO
	sel    int
}

// New returns two Conns sharing port, the first selecting selPin low and
// the second selecting it high.
func New(port hostio.SPI, selPin hostio.GPIO) (*Conn, *Conn) {
	mu := &sync.Mutex{}
	return &Conn{mu, port, selPin, hostio.GpioLow}, &Conn{mu, port, selPin, hostio.GpioHigh}
}

// Speed configures the shared bus speed.
func (c *Conn) Speed(hz int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Speed(hz)
}

// Configure configures the shared bus mode and word size.
func (c *Conn) Configure(mode int, bits int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Configure(mode, bits)
}

// Tx drives the select pin to this Conn's level, then performs the
// transaction on the shared bus.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selPin.Out(c.sel)
	return c.port.Tx(w, r)
}

// Close is a no-op: the underlying bus is shared and closed by its owner.
func (c *Conn) Close() error { return nil }

var _ hostio.SPI = &Conn{}
