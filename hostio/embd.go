// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package hostio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kidoman/embd"
)

// NewEmbdSPI opens an SPI bus through embd. It is the fallback backend for
// boards whose periph.io support is incomplete.
func NewEmbdSPI() SPI {
	return &embdSPI{embd.NewSPIBus(embd.SPIMode0, 0, 4, 8, 0)}
}

type embdSPI struct {
	embd.SPIBus
}

func (s *embdSPI) Tx(w, r []byte) error {
	copy(r, w)
	return s.TransferAndReceiveData(r)
}

func (s *embdSPI) Speed(hz int64) error {
	if hz != 4000000 {
		return errors.New("hostio: embd SPI backend only supports 4Mhz")
	}
	return nil
}

func (s *embdSPI) Configure(mode int, bits int) error {
	if mode != SPIMode0 {
		return errors.New("hostio: embd SPI backend only supports mode 0")
	}
	if bits != 8 {
		return errors.New("hostio: embd SPI backend only supports 8-bit words")
	}
	return nil
}

// NewEmbdGPIO opens a digital pin by name through embd.
func NewEmbdGPIO(name string) GPIO {
	g, err := embd.NewDigitalPin(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostio: NewDigitalPin(%s): %s\n", name, err)
		return nil
	}
	return &embdGPIO{p: g, dir: embd.In, edge: make(chan struct{}, 1)}
}

type embdGPIO struct {
	p    embd.DigitalPin
	dir  embd.Direction
	edge chan struct{}
}

func (g *embdGPIO) In(edge int) error {
	if err := g.p.SetDirection(embd.In); err != nil {
		return err
	}
	g.dir = embd.In
	if edge != GpioNoEdge {
		e := []embd.Edge{embd.EdgeNone, embd.EdgeRising, embd.EdgeFalling, embd.EdgeBoth}[edge]
		return g.p.Watch(e, g.edgeCB)
	}
	return nil
}

func (g *embdGPIO) Read() int {
	v, _ := g.p.Read()
	return v
}

func (g *embdGPIO) WaitForEdge(timeout time.Duration) bool {
	to := time.After(timeout)
	select {
	case <-g.edge:
		return true
	case <-to:
		return false
	}
}

func (g *embdGPIO) Out(level int) {
	if g.dir != embd.Out {
		g.p.SetDirection(embd.Out)
		g.dir = embd.Out
	}
	g.p.Write(level)
}

func (g *embdGPIO) Number() int {
	return g.p.N()
}

func (g *embdGPIO) Close() error {
	return g.p.Close()
}

func (g *embdGPIO) edgeCB(embd.DigitalPin) {
	select {
	case g.edge <- struct{}{}:
	default:
	}
}
