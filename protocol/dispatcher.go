package protocol

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ygkn/video-sync-watch/domain"
)

// Dispatcher funnels transport notifications from many connection
// goroutines into a single goroutine, so the wrapped handler sees one
// notification at a time in arrival order.
type Dispatcher struct {
	next  domain.SessionHandler
	inbox chan func()
	done  chan struct{}
}

func NewDispatcher(next domain.SessionHandler, queueSize int) *Dispatcher {
	return &Dispatcher{
		next:  next,
		inbox: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	log.Info().Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher stopped")
			return
		case fn := <-d.inbox:
			d.invoke(fn)
		}
	}
}

func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("handler panic")
		}
	}()
	fn()
}

// enqueue blocks while the inbox is full and gives up once Run has returned.
func (d *Dispatcher) enqueue(fn func()) {
	select {
	case d.inbox <- fn:
	case <-d.done:
	}
}

func (d *Dispatcher) Connect(conn domain.Connection) {
	d.enqueue(func() { d.next.Connect(conn) })
}

func (d *Dispatcher) Handle(conn domain.Connection, data []byte) {
	d.enqueue(func() { d.next.Handle(conn, data) })
}

func (d *Dispatcher) Disconnect(conn domain.Connection) {
	d.enqueue(func() { d.next.Disconnect(conn) })
}

func (d *Dispatcher) TransportError(conn domain.Connection, err error) {
	d.enqueue(func() { d.next.TransportError(conn, err) })
}
