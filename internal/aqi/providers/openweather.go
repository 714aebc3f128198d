package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/aqi-forecast/internal/aqi"
)

// DefaultOpenWeatherURL is the OpenWeather air pollution history endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/air_pollution/history"

// OpenWeatherProvider implements aqi.HistoryProvider for the OpenWeather
// air pollution history API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherProvider creates a provider. An empty baseURL selects
// DefaultOpenWeatherURL.
func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey, baseURL string) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type historyPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI float64 `json:"aqi"`
		} `json:"main"`
		Components *aqi.Components `json:"components"`
	} `json:"list"`
}

// FetchHistory returns the hourly observations between from and to, sorted
// ascending. Pollutants absent from an entry are set to aqi.Missing.
func (p *OpenWeatherProvider) FetchHistory(ctx context.Context, loc aqi.Location, from, to time.Time) ([]aqi.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: openweather api key is not configured", aqi.ErrConfiguration)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
		values.Set("start", strconv.FormatInt(from.Unix(), 10))
		values.Set("end", strconv.FormatInt(to.Unix(), 10))
		values.Set("appid", p.apiKey)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", aqi.ErrUpstreamFetch, p.name, err)
	}
	defer resp.Body.Close()

	var payload historyPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", aqi.ErrParse, p.name, err)
	}

	obs := make([]aqi.Observation, 0, len(payload.List))
	for _, entry := range payload.List {
		var c aqi.Components
		if entry.Components != nil {
			c = *entry.Components
		} else {
			for i := range c {
				c[i] = aqi.Missing
			}
		}
		obs = append(obs, aqi.Observation{
			Timestamp:  time.Unix(entry.Dt, 0).UTC(),
			AQI:        entry.Main.AQI,
			Components: c,
		})
	}
	aqi.SortObservations(obs)
	return obs, nil
}
