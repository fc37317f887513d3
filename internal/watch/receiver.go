package watch

import (
	"errors"
	"log"

	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// ReceiverStats counts what the receiver did with inbound events.
type ReceiverStats struct {
	Applied  int `json:"applied"`
	Rejected int `json:"rejected"`
	Ignored  int `json:"ignored"`
}

// Receiver applies /weather items to the snapshot holder.
type Receiver struct {
	holder   *weather.Holder
	onChange func(weather.Snapshot)
	stats    ReceiverStats
}

// NewReceiver creates a Receiver; onChange runs after every accepted update.
func NewReceiver(holder *weather.Holder, onChange func(weather.Snapshot)) *Receiver {
	return &Receiver{holder: holder, onChange: onChange}
}

// OnDataEvent handles one channel event. Other paths and deletions are not
// errors. A rejected payload leaves the held snapshot untouched and is
// returned as an error wrapping weather.ErrInvalidPayload or weather.ErrStaleSnapshot.
func (r *Receiver) OnDataEvent(ev syncchan.DataEvent) error {
	if ev.Path != weather.PathWeather {
		r.stats.Ignored++
		return nil
	}

	if ev.Type == syncchan.EventDeleted {
		// Keep showing stale weather rather than blanking the face.
		log.Printf("DEBUG: receiver: %s deleted; keeping current snapshot", ev.Path)
		r.stats.Ignored++
		return nil
	}

	snap, err := weather.DecodeSnapshot(ev.Data)
	if err != nil {
		r.stats.Rejected++
		log.Printf("receiver: discarding update: %v", err)
		return err
	}

	changed, err := r.holder.Replace(snap)
	if err != nil {
		r.stats.Rejected++
		if errors.Is(err, weather.ErrStaleSnapshot) {
			log.Printf("receiver: discarding out-of-date update: %v", err)
		} else {
			log.Printf("ERROR: receiver: replace failed: %v", err)
		}
		return err
	}

	r.stats.Applied++
	log.Printf("receiver: %s %d %s %.1f %.1f %s %d (changed=%t)",
		ev.Path, snap.ObservedAtMs, snap.Location, snap.HighTempC, snap.LowTempC,
		snap.ShortDescription, snap.WeatherID, changed)

	if r.onChange != nil {
		r.onChange(snap)
	}
	return nil
}

// Stats returns the counters.
func (r *Receiver) Stats() ReceiverStats { return r.stats }
