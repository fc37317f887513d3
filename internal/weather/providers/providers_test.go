package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/sunshine-watchface/internal/weather"
)

func fastRetries(cfg *HTTPClientConfig) {
	cfg.Backoff.InitialInterval = time.Millisecond
	cfg.Backoff.MaxInterval = 5 * time.Millisecond
}

func TestOpenWeatherFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dt":1700000000,"main":{"temp_min":12.6,"temp_max":21.4},"weather":[{"id":800,"main":"Clear"}]}`))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "key")
	p.baseURL = srv.URL

	r, err := p.Fetch(context.Background(), weather.Location{City: "Paris", Country: "FR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "Paris,FR" {
		t.Fatalf("unexpected q parameter %q", gotQuery)
	}
	if r.WeatherID != 800 || r.HighTempC != 21.4 || r.LowTempC != 12.6 || r.Description != "Clear" {
		t.Fatalf("unexpected reading %+v", r)
	}
	if !r.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp %s", r.Timestamp)
	}
}

func TestOpenWeatherRequiresKey(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient, "")
	if _, err := p.Fetch(context.Background(), weather.Location{City: "Paris"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOpenMeteoFetchMapsCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("latitude") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"daily":{"time":["2024-03-01"],"weathercode":[63],"temperature_2m_max":[14.2],"temperature_2m_min":[6.1]}}`))
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client())
	p.baseURL = srv.URL

	lat, lon := 48.85, 2.35
	r, err := p.Fetch(context.Background(), weather.Location{City: "Paris", Lat: &lat, Lon: &lon})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.WeatherID != 501 || r.Description != "Rain" {
		t.Fatalf("expected 501/Rain, got %d/%s", r.WeatherID, r.Description)
	}
	if r.HighTempC != 14.2 || r.LowTempC != 6.1 {
		t.Fatalf("unexpected temperatures %v/%v", r.HighTempC, r.LowTempC)
	}
}

func TestOpenMeteoRequiresCoordinates(t *testing.T) {
	p := NewOpenMeteoProvider(http.DefaultClient)
	if _, err := p.Fetch(context.Background(), weather.Location{City: "Paris"}); err == nil {
		t.Fatalf("expected error without coordinates")
	}
}

func TestMapOpenMeteoCodeStaysInTable(t *testing.T) {
	for code := 0; code < 100; code++ {
		id, _ := mapOpenMeteoCode(code)
		if id != 0 && !weather.IsKnownWeatherID(id) {
			t.Fatalf("code %d maps to unknown weather id %d", code, id)
		}
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"main":{"temp_min":1,"temp_max":2},"weather":[{"id":600,"main":"Snow"}]}`))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "key")
	p.baseURL = srv.URL
	fastRetries(&p.httpCfg)

	r, err := p.Fetch(context.Background(), weather.Location{City: "Oslo", Country: "NO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.WeatherID != 600 {
		t.Fatalf("unexpected reading %+v", r)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestDoesNotRetryClientErrorsForever(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "bad")
	p.baseURL = srv.URL
	fastRetries(&p.httpCfg)

	if _, err := p.Fetch(context.Background(), weather.Location{City: "Paris"}); err == nil {
		t.Fatalf("expected error for 401")
	}
	if got := atomic.LoadInt32(&calls); got != int32(p.httpCfg.Backoff.MaxRetries+1) {
		t.Fatalf("expected %d calls, got %d", p.httpCfg.Backoff.MaxRetries+1, got)
	}
}
