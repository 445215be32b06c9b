// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package hostio

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

// NewPeriphSPI opens a periph.io SPI port by name, e.g. "SPI0.0", and
// returns it wrapped to satisfy SPI. The port is not connected until
// Speed and Configure have both been called.
func NewPeriphSPI(name string) (SPI, error) {
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("hostio: spireg.Open(%s): %w", name, err)
	}
	return &periphSPI{port: port}, nil
}

type periphSPI struct {
	port spi.PortCloser
	conn spi.Conn
	hz   int64
	mode int
	bits int
}

func (s *periphSPI) Speed(hz int64) error {
	s.hz = hz
	return s.connect()
}

func (s *periphSPI) Configure(mode int, bits int) error {
	s.mode = mode
	s.bits = bits
	return s.connect()
}

func (s *periphSPI) connect() error {
	if s.hz == 0 || s.bits == 0 {
		return nil // wait until both Speed and Configure have been called
	}
	modes := []spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3}
	if s.mode < 0 || s.mode > 3 {
		return fmt.Errorf("hostio: invalid SPI mode %d", s.mode)
	}
	conn, err := s.port.Connect(physic.Frequency(s.hz)*physic.Hertz, modes[s.mode], s.bits)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *periphSPI) Tx(w, r []byte) error {
	if s.conn == nil {
		return fmt.Errorf("hostio: SPI not configured")
	}
	return s.conn.Tx(w, r)
}

func (s *periphSPI) Close() error {
	return s.port.Close()
}

// NewPeriphGPIO opens a periph.io GPIO pin by name, e.g. "GPIO17".
func NewPeriphGPIO(name string) (GPIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("hostio: no such GPIO pin %q", name)
	}
	return &periphGPIO{pin: pin, edge: make(chan struct{}, 1)}, nil
}

type periphGPIO struct {
	pin  gpio.PinIO
	edge chan struct{}
}

var periphEdges = []gpio.Edge{gpio.NoEdge, gpio.RisingEdge, gpio.FallingEdge, gpio.BothEdges}

func (g *periphGPIO) In(edge int) error {
	if edge < 0 || edge > 3 {
		return fmt.Errorf("hostio: invalid edge %d", edge)
	}
	return g.pin.In(gpio.Float, periphEdges[edge])
}

func (g *periphGPIO) Read() int {
	if g.pin.Read() == gpio.High {
		return GpioHigh
	}
	return GpioLow
}

func (g *periphGPIO) WaitForEdge(timeout time.Duration) bool {
	return g.pin.WaitForEdge(timeout)
}

func (g *periphGPIO) Out(level int) {
	l := gpio.Low
	if level == GpioHigh {
		l = gpio.High
	}
	g.pin.Out(l)
}

func (g *periphGPIO) Number() int {
	if n, ok := g.pin.(interface{ Number() int }); ok {
		return n.Number()
	}
	return -1
}

func (g *periphGPIO) Close() error {
	return g.pin.In(gpio.Float, gpio.NoEdge)
}
