package core

// Conn is one live transport session as seen by the gateway.
type Conn interface {
	// ID returns the connection id, unique for the process lifetime.
	ID() string
	// Deliver hands an event to the connection without blocking.
	// It returns false when the event was dropped.
	Deliver(ev *Event) bool
}

// Client is a channel-backed Conn used by the WebSocket transport.
type Client struct {
	id     string
	Events chan *Event
}

// NewClient constructs a client with a buffered event channel.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		id:     id,
		Events: make(chan *Event, buffer),
	}
}

// ID implements Conn.
func (c *Client) ID() string {
	return c.id
}

// Deliver implements Conn. Slow consumers lose events instead of stalling broadcasts.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
