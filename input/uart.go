// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package input

import (
	"sync"
	"time"

	serial "github.com/daedaluz/goserial"

	"github.com/NeuroRehack/WMORE/frame"
)

// uartPort is the slice of *serial.Port this package actually uses, kept
// narrow so tests can supply a fake without opening a real device.
type uartPort interface {
	ReadTimeout(data []byte, timeout time.Duration) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

// UARTAssembler reads raw RTC bytes from the logger board's UART and
// continuously reassembles them into 5-byte [seconds(4) hundredths(1)]
// frames. It mirrors uart_irq_cb: bytes accumulate into a ring position
// and on the fifth byte the whole frame overwrites the shared RTC value,
// with no bounds checking beyond wraparound and no event bit raised --
// the main loop only consults this when it is about to broadcast a tick.
type UARTAssembler struct {
	port uartPort

	mu    sync.RWMutex
	latest frame.Time
	count int

	stopCh chan struct{}
	log    LogPrintf
}

// LogPrintf is a function used to print logging info.
type LogPrintf func(format string, v ...interface{})

// OpenUARTAssembler opens device at the given baud rate (8-N-1, raw mode)
// and starts a reader goroutine.
func OpenUARTAssembler(device string, baud uint32, logger LogPrintf) (*UARTAssembler, error) {
	port, err := serial.Open(device, serial.NewOptions().SetReadTimeout(time.Second))
	if err != nil {
		return nil, err
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, err
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.SetCustomSpeed(baud)
	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}

	log := logger
	if log == nil {
		log = func(format string, v ...interface{}) {}
	}
	return newUARTAssembler(port, log), nil
}

func newUARTAssembler(port uartPort, log LogPrintf) *UARTAssembler {
	if log == nil {
		log = func(format string, v ...interface{}) {}
	}
	u := &UARTAssembler{port: port, stopCh: make(chan struct{}), log: log}
	go u.reader()
	return u
}

// Latest returns the most recently assembled RTC value.
func (u *UARTAssembler) Latest() frame.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.latest
}

// Close stops the reader goroutine and closes the underlying port.
func (u *UARTAssembler) Close() error {
	close(u.stopCh)
	return u.port.Close()
}

// WritePaced writes data one byte at a time, busy-waiting pace between each,
// the host analogue of the firmware pacing its own UART TX so a slow
// downstream sensor host does not drop bytes (spec.md §4.6). It is used both
// for the coordinator signature and for forwarding a received tick's time.
func (u *UARTAssembler) WritePaced(data []byte, pace time.Duration) error {
	for _, b := range data {
		if _, err := u.port.Write([]byte{b}); err != nil {
			return err
		}
		busyWait(pace)
	}
	return nil
}

func busyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// reader pulls one byte at a time, the same granularity as the firmware's
// uart_irq_cb, and on the fifth byte swaps it into latest.
func (u *UARTAssembler) reader() {
	var buf [5]byte
	var b [1]byte
	for {
		select {
		case <-u.stopCh:
			return
		default:
		}
		n, err := u.port.ReadTimeout(b[:], time.Second)
		if err != nil || n == 0 {
			continue
		}
		buf[u.count] = b[0]
		u.count++
		if u.count >= len(buf) {
			u.mu.Lock()
			copy(u.latest[:], buf[:])
			u.mu.Unlock()
			u.count = 0
		}
	}
}
