// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package status publishes node.FleetEvents to an MQTT broker, a thin
// one-way slice of the teacher's mqttradio mq wrapper: no subscriptions, no
// internal-forwarding hooks, no de-dup GC, since a fleet status channel has
// exactly one producer and no local consumer to dedup against.
package status

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NeuroRehack/WMORE/node"
)

// Config mirrors cmd/mqttradio/main.go's MqttConfig struct and tag style.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// publishQueueCap bounds the channel Publish feeds; once full, further
// events are dropped rather than blocking the node's main loop.
const publishQueueCap = 32

// Publisher implements node.StatusPublisher over an MQTT connection. The
// zero value is not usable; build one with New.
type Publisher struct {
	conn   mqtt.Client
	topic  string
	queue  chan node.FleetEvent
	stopCh chan struct{}
}

// New connects to the broker at conf and starts the background goroutine
// that drains published events onto "wmore/" + nodeID + "/status".
func New(conf Config, nodeID string) (*Publisher, error) {
	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "wmorenode-" + nodeID
	opts.Username = conf.User
	opts.Password = conf.Password

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("status: connecting to %s:%d timed out", conf.Host, conf.Port)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	p := &Publisher{
		conn:   conn,
		topic:  "wmore/" + nodeID + "/status",
		queue:  make(chan node.FleetEvent, publishQueueCap),
		stopCh: make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Publish queues e for delivery. It never blocks: if the queue is full the
// event is dropped, since a broker outage must not affect the RF protocol
// (spec.md SPEC_FULL.md §6).
func (p *Publisher) Publish(e node.FleetEvent) {
	select {
	case p.queue <- e:
	default:
	}
}

// Close stops the background publisher and disconnects from the broker.
func (p *Publisher) Close() error {
	close(p.stopCh)
	p.conn.Disconnect(250)
	return nil
}

func (p *Publisher) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case e := <-p.queue:
			payload, err := json.Marshal(statusMessage{
				NodeID: e.NodeID,
				Role:   e.Role.String(),
				Event:  e.Event,
				Time:   e.Time,
			})
			if err != nil {
				continue
			}
			p.conn.Publish(p.topic, 1, false, payload)
		}
	}
}

type statusMessage struct {
	NodeID string    `json:"node_id"`
	Role   string    `json:"role"`
	Event  string    `json:"event"`
	Time   time.Time `json:"time"`
}
