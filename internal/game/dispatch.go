package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink receives a copy of every room event after members have been served.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

const sinkTimeout = 5 * time.Second

type delivery struct {
	event   Event
	targets []*Member
	mirror  bool
	// marker deliveries carry no event and are closed once reached
	marker chan struct{}
}

// dispatcher fans out one room's events in the order the room produced them.
// Enqueue happens under the room lock, delivery never does.
type dispatcher struct {
	code  string
	sinks []Sink

	mu     sync.Mutex
	queue  []delivery
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(code string, sinks []Sink) *dispatcher {
	d := &dispatcher{
		code:  code,
		sinks: sinks,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(ev Event, targets []*Member, mirror bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, delivery{event: ev, targets: targets, mirror: mirror})
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, dl := range batch {
			if dl.marker != nil {
				close(dl.marker)
				continue
			}
			d.deliver(dl)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) deliver(dl delivery) {
	for _, m := range dl.targets {
		if m.conn == nil {
			continue
		}
		if err := m.conn.Send(dl.event); err != nil {
			log.Warn().Err(err).
				Str("code", d.code).
				Str("player", m.Name).
				Str("event", dl.event.Name).
				Msg("delivery failed")
		}
	}
	if !dl.mirror {
		return
	}
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Publish(ctx, dl.event); err != nil {
			log.Error().Err(err).Str("code", d.code).Str("event", dl.event.Name).Msg("sink publish failed")
		}
		cancel()
	}
}

// flush blocks until everything enqueued so far has been delivered.
func (d *dispatcher) flush() {
	marker := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.queue = append(d.queue, delivery{marker: marker})
	d.mu.Unlock()
	d.signal()
	<-marker
}

// close stops accepting events; queued ones are still delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) wait() {
	<-d.done
}
