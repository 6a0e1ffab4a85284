package game

import (
	"errors"
	"sync"
)

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []emitted
	fail   bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.events = append(c.events, emitted{event: ev.Name, payload: ev.Payload})
	return nil
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.event
	}
	return out
}

func (c *fakeConn) last(event string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].event == event {
			return c.events[i].payload, true
		}
	}
	return nil, false
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.event == event {
			n++
		}
	}
	return n
}
