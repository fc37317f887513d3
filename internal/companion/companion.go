package companion

import (
	"log"
	"sync"

	"github.com/i474232898/sunshine-watchface/internal/resilience"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// Companion keeps the phone side connected and answering. Unlike the watch it
// stays connected for the life of the process, retrying through a Reconnector.
type Companion struct {
	ch        syncchan.Channel
	responder *Responder
	retry     *resilience.Reconnector

	mu        sync.Mutex
	connected bool
	closed    bool
}

// New creates a Companion answering for loc from src.
func New(ch syncchan.Channel, src Source, loc weather.Location, backoff resilience.BackoffConfig) *Companion {
	c := &Companion{
		ch:        ch,
		responder: NewResponder(ch, src, loc),
	}
	c.retry = resilience.NewReconnector("companion-sync", backoff, c.Connect)
	return c
}

// Responder exposes the request handler.
func (c *Companion) Responder() *Responder { return c.responder }

// Connect opens the channel and starts answering once connected.
func (c *Companion) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.ch.Connect(syncchan.ConnectionHandlers{
		OnConnected: func() {
			c.setConnected(true)
			log.Println("companion: connected to sync channel")
			c.responder.Listen()
			c.retry.Connected()
		},
		OnSuspended: func(reason string) {
			c.setConnected(false)
			log.Printf("companion: sync channel suspended: %s", reason)
			c.responder.Close()
			c.retry.Lost(reason)
		},
		OnFailed: func(reason string) {
			c.setConnected(false)
			log.Printf("companion: sync channel failed to connect: %s", reason)
			c.retry.Lost(reason)
		},
	})
}

// Close stops retries, unsubscribes and disconnects, in that order.
func (c *Companion) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.retry.Reset()
	c.responder.Close()
	c.ch.Disconnect()
	c.setConnected(false)
}

// Connected reports whether the channel is up.
func (c *Companion) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PushLatest pushes the latest row if connected.
func (c *Companion) PushLatest() (bool, error) {
	if !c.Connected() {
		return false, syncchan.ErrNotConnected
	}
	return c.responder.PushLatest()
}

func (c *Companion) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
