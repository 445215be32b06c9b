// Package wmore implements a time-synchronization fabric for
// battery-powered data loggers that pair over a proprietary 2 Mbit/s
// Enhanced-ShockBurst-style radio link. A node boots idle, then becomes
// either a Coordinator (broadcasting periodic ticks and a UART time
// signature, round-robin-polling its Loggers) or a Logger (receiving
// ticks, pulsing a SYNC line for the attached sensor host, and requesting
// a STOP on demand) depending on which event it sees first: a local
// button press, or an incoming tick.
//
// Package layout follows the teacher this module started from: each
// concern -- the wire frame, the radio driver, button/UART input, GPIO
// output, the node state machine -- lives in its own directory, and cmd/
// holds the daemon and bring-up tools that wire them together.
package wmore
