package realtime

import (
	"log/slog"
	"sync"

	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

// GlobalChannel carries events addressed to every connection, such as
// presence announcements.
const GlobalChannel = "global"

// RoomChannel names the broadcast channel for a room.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// Publisher is the fan-out port of the broadcast dispatcher. Keeping it an
// interface lets the in-process dispatcher be swapped for a shared pub/sub
// layer when connections are served by multiple processes.
type Publisher interface {
	// Subscribe adds the client to a channel.
	Subscribe(channel string, c *Client)

	// Unsubscribe removes one connection from a channel.
	Unsubscribe(channel, connectionID string)

	// DropConnection removes the connection from every channel.
	DropConnection(connectionID string)

	// Publish fans an envelope out to every channel subscriber.
	Publish(channel string, env v1.Envelope)

	// PublishExcept fans out to every subscriber except one connection.
	PublishExcept(channel, connectionID string, env v1.Envelope)
}

// Dispatcher is the in-process Publisher implementation.
//
// Concurrency guarantees:
// - Subscribe/Unsubscribe are safe under concurrent Publish.
// - Publish never blocks (drops under backpressure).
// - Publish is panic-safe because Client.Send is never closed by the server.
// - It imposes no ordering of its own; stored order is authoritative.
type Dispatcher struct {
	log     *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	channels map[string]map[string]*Client
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(log *slog.Logger, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		log:      log,
		metrics:  metrics,
		channels: make(map[string]map[string]*Client),
	}
}

var _ Publisher = (*Dispatcher)(nil)

// Subscribe adds the client to a channel.
func (d *Dispatcher) Subscribe(channel string, c *Client) {
	if c == nil || c.ConnectionID == "" {
		return
	}

	d.mu.Lock()
	subs, ok := d.channels[channel]
	if !ok {
		subs = make(map[string]*Client)
		d.channels[channel] = subs
	}
	subs[c.ConnectionID] = c
	d.mu.Unlock()

	d.log.Info("dispatch.subscribe", "channel", channel, "connection_id", c.ConnectionID)
}

// Unsubscribe removes one connection from a channel.
func (d *Dispatcher) Unsubscribe(channel, connectionID string) {
	if connectionID == "" {
		return
	}

	d.mu.Lock()
	if subs, ok := d.channels[channel]; ok {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(d.channels, channel)
		}
	}
	d.mu.Unlock()

	d.log.Info("dispatch.unsubscribe", "channel", channel, "connection_id", connectionID)
}

// DropConnection removes the connection from every channel. Called once on
// disconnect.
func (d *Dispatcher) DropConnection(connectionID string) {
	if connectionID == "" {
		return
	}

	d.mu.Lock()
	for channel, subs := range d.channels {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(d.channels, channel)
		}
	}
	d.mu.Unlock()
}

// Publish fans an envelope out to every channel subscriber.
func (d *Dispatcher) Publish(channel string, env v1.Envelope) {
	d.publish(channel, "", env)
}

// PublishExcept fans out to every subscriber except the named connection.
// Used for typing indicators, which exclude the originator.
func (d *Dispatcher) PublishExcept(channel, connectionID string, env v1.Envelope) {
	d.publish(channel, connectionID, env)
}

func (d *Dispatcher) publish(channel, exceptConnectionID string, env v1.Envelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id, c := range d.channels[channel] {
		if c == nil || id == exceptConnectionID {
			continue
		}

		select {
		case <-c.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case c.Send <- env:
			d.metrics.eventDelivered()
		default:
			// Drop rather than block the whole channel.
			d.metrics.eventDropped()
			d.log.Info("dispatch.drop", "channel", channel, "connection_id", id, "type", env.Type)
		}
	}
}
