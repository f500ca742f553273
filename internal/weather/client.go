// Package weather wraps the OpenWeatherMap current-weather API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/josinaldojr/weather-docs-agent/internal/agent"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL is used by tests to point at a fake server.
func NewClientWithBaseURL(apiKey, baseURL string, timeout time.Duration) *Client {
	c := NewClient(apiKey, timeout)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type currentResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Rain map[string]float64 `json:"rain"`
}

type apiError struct {
	Cod     json.Number `json:"cod"`
	Message string      `json:"message"`
}

// Current fetches the current conditions for a city and renders them as a
// single provider-formatted text block for the answer generator.
func (c *Client) Current(ctx context.Context, city string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("missing OPENWEATHERMAP_API_KEY")
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric",
		c.baseURL, url.QueryEscape(city), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling weather provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("weather provider: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("weather provider returned status %d", resp.StatusCode)
	}

	var cur currentResponse
	if err := json.Unmarshal(body, &cur); err != nil {
		return "", fmt.Errorf("decoding weather response: %w", err)
	}

	return formatCurrent(city, cur), nil
}

func formatCurrent(city string, cur currentResponse) string {
	name := cur.Name
	if name == "" {
		name = city
	}

	status := "unknown"
	if len(cur.Weather) > 0 && cur.Weather[0].Description != "" {
		status = cur.Weather[0].Description
	}

	rain := "None"
	if len(cur.Rain) > 0 {
		var parts []string
		for window, mm := range cur.Rain {
			parts = append(parts, fmt.Sprintf("%.1fmm/%s", mm, window))
		}
		rain = strings.Join(parts, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "In %s, the current weather is as follows:\n", name)
	fmt.Fprintf(&b, "Detailed status: %s\n", status)
	fmt.Fprintf(&b, "Wind speed: %.2f m/s, direction: %d°\n", cur.Wind.Speed, cur.Wind.Deg)
	fmt.Fprintf(&b, "Humidity: %d%%\n", cur.Main.Humidity)
	fmt.Fprintf(&b, "Temperature: \n")
	fmt.Fprintf(&b, "  - Current: %.2f°C\n", cur.Main.Temp)
	fmt.Fprintf(&b, "  - High: %.2f°C\n", cur.Main.TempMax)
	fmt.Fprintf(&b, "  - Low: %.2f°C\n", cur.Main.TempMin)
	fmt.Fprintf(&b, "  - Feels like: %.2f°C\n", cur.Main.FeelsLike)
	fmt.Fprintf(&b, "Rain: %s\n", rain)
	fmt.Fprintf(&b, "Cloud cover: %d%%", cur.Clouds.All)
	return b.String()
}

var _ agent.WeatherClient = (*Client)(nil)
