package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	httpTimeout = 10 * time.Second

	owmGeoDefaultURL  = "https://api.openweathermap.org/geo/1.0"
	owmDataDefaultURL = "https://api.openweathermap.org/data/2.5"

	// MaxGeocodeResults and MaxForecastDays bound what the free tier serves.
	MaxGeocodeResults = 5
	MaxForecastDays   = 5
)

// StatusError reports that the provider answered with a non-2xx status.
// It is never retried.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upstream rejected request: GET %s returned status %d", e.Endpoint, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Option configures an upstream client.
type Option func(*upstream)

// WithBaseURL points the client at a custom base URL (for tests or proxies).
func WithBaseURL(baseURL string) Option {
	return func(u *upstream) { u.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(u *upstream) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(u *upstream) { u.retry = p }
}

// WithTransport sets the RoundTripper used by the lazily created http.Client.
func WithTransport(rt http.RoundTripper) Option {
	return func(u *upstream) { u.transport = rt }
}

// WithRateLimit caps outbound requests per second. Zero disables the limit.
func WithRateLimit(rps float64) Option {
	return func(u *upstream) {
		if rps > 0 {
			u.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// upstream holds the pieces shared by the provider clients: credential,
// retry policy and a lazily created, reusable http.Client.
type upstream struct {
	apiKey    string
	baseURL   string
	timeout   time.Duration
	retry     RetryPolicy
	transport http.RoundTripper
	limiter   *rate.Limiter

	mu     sync.Mutex
	client *http.Client
}

func newUpstream(apiKey, baseURL string, opts []Option) *upstream {
	u := &upstream{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: httpTimeout,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// httpClient returns the shared client, creating it on first use.
func (u *upstream) httpClient() *http.Client {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.client == nil {
		rt := u.transport
		if rt == nil {
			rt = http.DefaultTransport.(*http.Transport).Clone()
		}
		u.client = &http.Client{Timeout: u.timeout, Transport: rt}
	}
	return u.client
}

// Close releases pooled connections. A later call recreates the client.
func (u *upstream) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.client != nil {
		u.client.CloseIdleConnections()
		u.client = nil
	}
}

// get issues GET baseURL+path with params plus the credential, retrying
// transient failures, and decodes the JSON body into dst.
func (u *upstream) get(ctx context.Context, path string, params url.Values, dst any) error {
	endpoint := u.baseURL + path
	params.Set("appid", u.apiKey)
	rawURL := endpoint + "?" + params.Encode()

	return Retry(ctx, u.retry, func(ctx context.Context) error {
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for upstream rate limit: %w", err)
			}
		}
		return doGet(ctx, u.httpClient(), rawURL, endpoint, dst)
	})
}

// doGet performs a GET request and decodes the JSON response into dst.
// Errors name endpoint rather than rawURL so the credential is never echoed.
func doGet(ctx context.Context, client *http.Client, rawURL, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = endpoint
			return urlErr
		}
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    upstreamMessage(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		// A timeout while reading the body is a transport failure, not a bad payload.
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("reading response from %s: %w", endpoint, err)
		}
		return fmt.Errorf("%w: decoding response from %s: %v", ErrMalformedPayload, endpoint, err)
	}

	return nil
}

// upstreamMessage extracts the provider's {"message": ...} error text, if any.
func upstreamMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Message
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ---- Geocoding ----

// GeocodingClient resolves free-text place names through the provider's
// direct geocoding API.
type GeocodingClient struct {
	*upstream
}

// NewGeocodingClient constructs a GeocodingClient with the given API key.
func NewGeocodingClient(apiKey string, opts ...Option) *GeocodingClient {
	return &GeocodingClient{upstream: newUpstream(apiKey, owmGeoDefaultURL, opts)}
}

// Search returns up to limit locations matching query. A blank query yields
// an empty result without contacting the provider; limit is clamped to [1,5].
func (c *GeocodingClient) Search(ctx context.Context, query string, limit int) ([]GeoLocation, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []GeoLocation{}, nil
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(clamp(limit, 1, MaxGeocodeResults)))

	var raw []owmGeoEntry
	if err := c.get(ctx, "/direct", params, &raw); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", q, err)
	}

	results := make([]GeoLocation, 0, len(raw))
	for i, entry := range raw {
		loc, err := normalizeGeoLocation(entry)
		if err != nil {
			return nil, fmt.Errorf("geocoding result %d: %w", i, err)
		}
		results = append(results, loc)
	}

	return results, nil
}

// ---- Weather ----

// WeatherClient fetches current conditions and 3-hour forecasts.
type WeatherClient struct {
	*upstream
}

// NewWeatherClient constructs a WeatherClient with the given API key.
func NewWeatherClient(apiKey string, opts ...Option) *WeatherClient {
	return &WeatherClient{upstream: newUpstream(apiKey, owmDataDefaultURL, opts)}
}

func coordParams(lat, lon float64, units string) url.Values {
	if units == "" {
		units = UnitsMetric
	}
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("units", units)
	return params
}

// Current retrieves current conditions at the coordinate.
func (c *WeatherClient) Current(ctx context.Context, lat, lon float64, units string) (*CurrentWeather, error) {
	var raw owmCurrentResponse
	if err := c.get(ctx, "/weather", coordParams(lat, lon, units), &raw); err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}

	cw, err := normalizeCurrent(raw)
	if err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}
	return cw, nil
}

// Forecast retrieves the 3-hour forecast at the coordinate and aggregates it
// into at most days daily records (clamped to [1,5]).
func (c *WeatherClient) Forecast(ctx context.Context, lat, lon float64, days int, units string) (*ForecastResponse, error) {
	var raw owmForecastResponse
	if err := c.get(ctx, "/forecast", coordParams(lat, lon, units), &raw); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	fr, err := normalizeForecast(raw, clamp(days, 1, MaxForecastDays))
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	return fr, nil
}
