package core

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/presence-gateway/internal/metrics"
)

// Dispatcher delivers events to all connections, to a room, or to one connection.
type Dispatcher struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	rooms   *RoomManager
	clock   clock.Clock
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds a dispatcher scoped by the given room manager.
func NewDispatcher(rooms *RoomManager, clk clock.Clock, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		conns:   make(map[string]Conn),
		rooms:   rooms,
		clock:   clk,
		log:     logger,
		metrics: m,
	}
}

// Add registers a live connection for broadcastAll delivery.
func (d *Dispatcher) Add(c Conn) {
	d.mu.Lock()
	d.conns[c.ID()] = c
	n := len(d.conns)
	d.mu.Unlock()
	d.metrics.Connections.Set(float64(n))
}

// Remove forgets a connection.
func (d *Dispatcher) Remove(id string) {
	d.mu.Lock()
	delete(d.conns, id)
	n := len(d.conns)
	d.mu.Unlock()
	d.metrics.Connections.Set(float64(n))
}

// Count returns the number of live connections.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// BroadcastAll delivers to every live connection.
func (d *Dispatcher) BroadcastAll(name string, data any) int {
	return d.BroadcastAllExcept("", name, data)
}

// BroadcastAllExcept delivers to every live connection but exceptID.
func (d *Dispatcher) BroadcastAllExcept(exceptID, name string, data any) int {
	d.mu.RLock()
	targets := lo.Values(d.conns)
	d.mu.RUnlock()
	return d.deliver(lo.Reject(targets, func(c Conn, _ int) bool { return c.ID() == exceptID }), name, data)
}

// BroadcastRoom delivers to the room's current members. An empty room is not
// an error: it is logged and nothing is delivered.
func (d *Dispatcher) BroadcastRoom(conversationID, name string, data any) int {
	return d.BroadcastRoomExcept(conversationID, "", name, data)
}

// BroadcastRoomExcept delivers to the room's members but exceptID.
func (d *Dispatcher) BroadcastRoomExcept(conversationID, exceptID, name string, data any) int {
	members := d.rooms.Members(conversationID)
	if len(members) == 0 {
		d.log.Warn().Str("conversation_id", conversationID).Str("event", name).Msg("room has no members, nothing delivered")
		return 0
	}
	return d.deliver(lo.Reject(members, func(c Conn, _ int) bool { return c.ID() == exceptID }), name, data)
}

// Send delivers to exactly one connection.
func (d *Dispatcher) Send(c Conn, name string, data any) bool {
	return d.deliver([]Conn{c}, name, data) == 1
}

// deliver stamps the event at send time and fans it out without blocking.
func (d *Dispatcher) deliver(targets []Conn, name string, data any) int {
	if len(targets) == 0 {
		return 0
	}
	ev := &Event{Name: name, Data: data, Timestamp: d.clock.Now()}

	delivered := 0
	for _, c := range targets {
		if c.Deliver(ev) {
			delivered++
			continue
		}
		d.metrics.DroppedEvents.Inc()
		d.log.Warn().Str("conn_id", c.ID()).Str("event", name).Msg("connection buffer full, event dropped")
	}
	return delivered
}
