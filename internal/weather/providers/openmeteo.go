package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/sunshine-watchface/internal/weather"
	"github.com/sony/gobreaker"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It reads today's daily forecast and translates WMO codes into OpenWeatherMap codes.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuit("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	if loc.Lat == nil || loc.Lon == nil {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo requires latitude and longitude")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", *loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", *loc.Lon))
		values.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min")
		values.Set("forecast_days", "1")
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time        []string  `json:"time"`
			WeatherCode []int     `json:"weathercode"`
			TempMax     []float64 `json:"temperature_2m_max"`
			TempMin     []float64 `json:"temperature_2m_min"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}

	d := payload.Daily
	if len(d.WeatherCode) == 0 || len(d.TempMax) == 0 || len(d.TempMin) == 0 {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo response has no daily data")
	}

	id, desc := mapOpenMeteoCode(d.WeatherCode[0])
	if id == 0 {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo: unmapped weather code %d", d.WeatherCode[0])
	}

	// The daily row is dated, not timed; the fetch time is the observation time.
	ts := time.Now().UTC()

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    ts,
		WeatherID:    id,
		HighTempC:    d.TempMax[0],
		LowTempC:     d.TempMin[0],
		Description:  desc,
	}, nil
}

// mapOpenMeteoCode converts a WMO weather code into the closest OpenWeatherMap
// condition code and its main description. Unknown codes map to 0.
func mapOpenMeteoCode(code int) (int, string) {
	switch code {
	case 0:
		return 800, "Clear"
	case 1:
		return 801, "Clouds"
	case 2:
		return 802, "Clouds"
	case 3:
		return 804, "Clouds"
	case 45, 48:
		return 741, "Fog"
	case 51:
		return 300, "Drizzle"
	case 53:
		return 301, "Drizzle"
	case 55:
		return 302, "Drizzle"
	case 56, 57, 66, 67:
		return 511, "Rain"
	case 61:
		return 500, "Rain"
	case 63:
		return 501, "Rain"
	case 65:
		return 502, "Rain"
	case 71, 77:
		return 600, "Snow"
	case 73:
		return 601, "Snow"
	case 75:
		return 602, "Snow"
	case 80:
		return 520, "Rain"
	case 81:
		return 521, "Rain"
	case 82:
		return 522, "Rain"
	case 85:
		return 620, "Snow"
	case 86:
		return 621, "Snow"
	case 95:
		return 211, "Thunderstorm"
	case 96:
		return 201, "Thunderstorm"
	case 99:
		return 202, "Thunderstorm"
	default:
		return 0, ""
	}
}
