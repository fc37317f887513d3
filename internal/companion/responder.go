// Package companion is the phone-side half of the weather sync protocol. It
// answers the watch's update requests with the latest stored weather.
package companion

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/sunshine-watchface/internal/store"
	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// Source yields the latest weather row for a location.
type Source interface {
	GetLatest(loc weather.Location) (weather.Snapshot, error)
}

// Stats counts responder activity.
type Stats struct {
	Requests int `json:"requests"`
	Pushed   int `json:"pushed"`
	Empty    int `json:"empty"`
	Failed   int `json:"failed"`
}

// Responder pushes /weather whenever the watch writes /weather_update, and
// whenever the caller reports fresh data.
type Responder struct {
	ch  syncchan.Channel
	src Source
	loc weather.Location
	now func() time.Time

	mu    sync.Mutex
	sub   syncchan.Subscription
	stats Stats
}

// NewResponder creates a Responder for the preferred location loc.
func NewResponder(ch syncchan.Channel, src Source, loc weather.Location) *Responder {
	return &Responder{ch: ch, src: src, loc: loc, now: time.Now}
}

// Listen subscribes to channel events. Calling it twice is harmless.
func (r *Responder) Listen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}
	r.sub = r.ch.Subscribe(r.OnDataEvent)
}

// Close removes the subscription.
func (r *Responder) Close() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// OnDataEvent answers changed /weather_update items; everything else is ignored.
func (r *Responder) OnDataEvent(ev syncchan.DataEvent) {
	if ev.Path != weather.PathWeatherUpdate || ev.Type != syncchan.EventChanged {
		return
	}

	token, _ := ev.Data.GetString(weather.KeyToken)
	log.Printf("companion: weather update requested (token %s)", token)

	r.mu.Lock()
	r.stats.Requests++
	r.mu.Unlock()

	if _, err := r.PushLatest(); err != nil {
		log.Printf("ERROR: companion: answering request %s: %v", token, err)
	}
}

// PushLatest sends the latest row for the preferred location. Having no row is
// not an error: nothing is pushed and false is returned.
func (r *Responder) PushLatest() (bool, error) {
	snap, err := r.src.GetLatest(r.loc)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("companion: weather query did not return data for %s", r.loc.Key())
		r.mu.Lock()
		r.stats.Empty++
		r.mu.Unlock()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load weather for %s: %w", r.loc.Key(), err)
	}

	// The item time is the send time; it keeps moving forward on the watch and
	// makes every push a new item.
	snap.ObservedAtMs = r.now().UnixMilli()
	if snap.Location == "" {
		snap.Location = r.loc.Label()
	}

	r.ch.Push(weather.PathWeather, weather.EncodeSnapshot(snap), func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.stats.Failed++
			log.Printf("ERROR: companion: weather push failed: %v", err)
			return
		}
		r.stats.Pushed++
		log.Printf("DEBUG: companion: weather push delivered")
	})
	return true, nil
}

// Stats returns a copy of the counters.
func (r *Responder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
