package watch

import (
	"log"

	"github.com/google/uuid"

	"github.com/i474232898/sunshine-watchface/internal/syncchan"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// Requester asks the companion for current weather.
//
// Sync layers coalesce writes equal to the item already stored, so repeating
// an identical request would never reach the companion. Each request carries
// a fresh random token to make it a new item every time.
type Requester struct {
	ch       syncchan.Channel
	newToken func() string
	sent     int
}

// NewRequester creates a Requester using random UUIDs as tokens.
func NewRequester(ch syncchan.Channel) *Requester {
	return &Requester{ch: ch, newToken: uuid.NewString}
}

// EmitRequest pushes a request and returns its token. The push is best-effort:
// its outcome is only logged and never changes the connection state.
func (r *Requester) EmitRequest() string {
	token := r.newToken()
	r.sent++

	r.ch.Push(weather.PathWeatherUpdate, weather.NewUpdateRequest(token), func(err error) {
		if err != nil {
			log.Printf("ERROR: requester: weather update request %s failed: %v", token, err)
			return
		}
		log.Printf("DEBUG: requester: weather update request %s delivered", token)
	})
	return token
}

// Sent returns how many requests have been emitted.
func (r *Requester) Sent() int { return r.sent }
