package weather

import "time"

// AggregateReadings combines multiple provider readings into a single Snapshot.
// Temperatures are averaged; the weather code is selected by majority (first seen wins a tie)
// and the description comes from the first reading that reported the winning code.
func AggregateReadings(loc Location, readings []ProviderReading) Snapshot {
	if len(readings) == 0 {
		return Snapshot{
			ObservedAtMs: time.Now().UTC().UnixMilli(),
			Location:     loc.Label(),
		}
	}

	var (
		sumHigh float64
		sumLow  float64
	)

	idCounts := make(map[int]int)
	var order []int
	var newestTS time.Time

	for _, r := range readings {
		sumHigh += r.HighTempC
		sumLow += r.LowTempC

		if _, seen := idCounts[r.WeatherID]; !seen {
			order = append(order, r.WeatherID)
		}
		idCounts[r.WeatherID]++

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}
	}

	n := float64(len(readings))

	// Pick majority code, iterating in arrival order so ties are stable.
	bestID := order[0]
	bestCount := 0
	for _, id := range order {
		if idCounts[id] > bestCount {
			bestCount = idCounts[id]
			bestID = id
		}
	}

	var desc string
	for _, r := range readings {
		if r.WeatherID == bestID && r.Description != "" {
			desc = r.Description
			break
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	return Snapshot{
		ObservedAtMs:     newestTS.UnixMilli(),
		Location:         loc.Label(),
		WeatherID:        bestID,
		HighTempC:        sumHigh / n,
		LowTempC:         sumLow / n,
		ShortDescription: desc,
	}
}
