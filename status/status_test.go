// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package status

import (
	"testing"
	"time"

	"github.com/NeuroRehack/WMORE/node"
)

func newTestPublisher(cap int) *Publisher {
	return &Publisher{
		topic:  "wmore/test-node/status",
		queue:  make(chan node.FleetEvent, cap),
		stopCh: make(chan struct{}),
	}
}

func Test_PublishQueuesEvent(t *testing.T) {
	p := newTestPublisher(1)
	e := node.FleetEvent{NodeID: "test-node", Role: node.RoleCoord, Event: "coord", Time: time.Now()}
	p.Publish(e)

	select {
	case got := <-p.queue:
		if got.NodeID != e.NodeID || got.Event != e.Event {
			t.Fatalf("got %+v, want %+v", got, e)
		}
	default:
		t.Fatalf("event was not queued")
	}
}

func Test_PublishDropsWhenQueueFull(t *testing.T) {
	p := newTestPublisher(1)
	p.Publish(node.FleetEvent{NodeID: "a"})
	p.Publish(node.FleetEvent{NodeID: "b"})

	if len(p.queue) != 1 {
		t.Fatalf("expected queue to stay at capacity 1, got %d", len(p.queue))
	}
	got := <-p.queue
	if got.NodeID != "a" {
		t.Fatalf("Publish should drop the newest event on overflow, kept %q", got.NodeID)
	}
}
