package weather

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Service orchestrates fetching from multiple providers and persisting snapshots
// on the companion side.
type Service struct {
	store     Store
	providers []Provider
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider) *Service {
	return &Service{
		store:     store,
		providers: providers,
	}
}

// FetchAndStore fetches data from all providers concurrently for the given location,
// aggregates successful readings, and stores a snapshot.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
	)

	log.Printf("DEBUG: FetchAndStore called for %s with %d providers", loc.Key(), len(s.providers))
	if len(s.providers) == 0 {
		return fmt.Errorf("no weather providers configured")
	}

	results := make([]*ProviderReading, len(s.providers))
	for i, p := range s.providers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)
			if err != nil {
				// Log and continue; we want partial success when possible.
				log.Printf("provider %s fetch failed for %s: %v", p.Name(), loc.Key(), err)
				return
			}
			if !IsKnownWeatherID(r.WeatherID) {
				log.Printf("provider %s returned unknown weather id %d for %s", p.Name(), r.WeatherID, loc.Key())
				return
			}

			mu.Lock()
			results[i] = &r
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Keep provider order so aggregation is deterministic.
	for _, r := range results {
		if r != nil {
			readings = append(readings, *r)
		}
	}

	if len(readings) == 0 {
		// No providers succeeded; do not overwrite last good snapshot.
		log.Printf("no successful provider readings for %s; keeping last good snapshot if any", loc.Key())
		return nil
	}

	snapshot := AggregateReadings(loc, readings)
	if snapshot.ObservedAtMs == 0 {
		snapshot.ObservedAtMs = time.Now().UTC().UnixMilli()
	}
	s.store.SaveSnapshot(loc, snapshot)
	return nil
}

// Save validates a manually supplied snapshot and stores it.
func (s *Service) Save(loc Location, snapshot Snapshot) error {
	if snapshot.Location == "" {
		snapshot.Location = loc.Label()
	}
	if snapshot.ObservedAtMs == 0 {
		snapshot.ObservedAtMs = time.Now().UTC().UnixMilli()
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}
	s.store.SaveSnapshot(loc, snapshot)
	return nil
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (Snapshot, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]Snapshot, error) {
	return s.store.GetRange(loc, from, to)
}
