// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package node

import (
	"fmt"
	"sync"
	"time"
)

// traceCap bounds the ring buffer so a node left running for days doesn't
// grow it without limit; oldest entries are dropped first.
const traceCap = 512

type traceEvent struct {
	at  time.Time
	txt string
}

// trace is a mutex-guarded, timestamp-relative ring buffer of role
// transitions and protocol actions, for diagnosing state-machine timing
// after the fact (SIGUSR1 dump, or the radiocheck bench tool).
type trace struct {
	mu  sync.Mutex
	buf []traceEvent
}

func (t *trace) push(format string, args ...interface{}) {
	t.pushAt(time.Now(), fmt.Sprintf(format, args...))
}

func (t *trace) pushAt(at time.Time, txt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, traceEvent{at, txt})
	if len(t.buf) > traceCap {
		t.buf = t.buf[len(t.buf)-traceCap:]
	}
}

// dump returns the trace as lines of "<seconds since first event>s: <text>",
// the same format dbgPrint used, and clears the buffer.
func (t *trace) dump() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.buf) == 0 {
		return nil
	}
	t0 := t.buf[0].at
	lines := make([]string, len(t.buf))
	for i, ev := range t.buf {
		lines[i] = fmt.Sprintf("%.6fs: %s", ev.at.Sub(t0).Seconds(), ev.txt)
	}
	t.buf = nil
	return lines
}
