package fids

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPConfig configures the production HTTPProvider. The provider host
// and airport code are fixed per spec §6 (AeroDataBox, YYZ); only the
// API key and request timeout are operator-configured.
type HTTPConfig struct {
	BaseURL string // defaults to the AeroDataBox flights-by-airport endpoint.
	APIKey  string
	Airport string // fixed to "YYZ" in production.
	Timeout time.Duration
}

const defaultBaseURL = "https://aerodatabox.p.rapidapi.com/flights/airports/iata"

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Airport == "" {
		c.Airport = "YYZ"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// HTTPProvider fetches flight pages over plain net/http. No outbound
// HTTP client library appears anywhere in the retrieved example corpus,
// so a stdlib client whose http.Client.Timeout bounds each request is the
// grounded choice here (see DESIGN.md).
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPProvider returns a Provider backed by an http.Client whose
// Timeout matches cfg.Timeout.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	cfg = cfg.withDefaults()
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// providerResponse mirrors the AeroDataBox flights-by-airport shape:
// arrivals and departures, each an array of provider-native records.
type providerResponse struct {
	Arrivals   []providerRecord `json:"arrivals"`
	Departures []providerRecord `json:"departures"`
}

type providerRecord struct {
	Number    string `json:"number"`
	Movement  struct {
		ScheduledTime struct {
			Local string `json:"local"`
			UTC   string `json:"utc"`
		} `json:"scheduledTime"`
		RevisedTime struct {
			Local string `json:"local"`
			UTC   string `json:"utc"`
		} `json:"revisedTime"`
		Airport struct {
			IATA string `json:"iata"`
		} `json:"airport"`
		Terminal string `json:"terminal"`
		Gate     string `json:"gate"`
	} `json:"movement"`
	CodeshareStatus string `json:"codeshareStatus"`
}

// FetchPage issues one windowed, paged request against the provider.
func (p *HTTPProvider) FetchPage(ctx context.Context, windowStart, windowEnd time.Time, limit, offset int) (RawPage, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/%s/%s", p.cfg.BaseURL, p.cfg.Airport,
		windowStart.UTC().Format("2006-01-02T15:04"), windowEnd.UTC().Format("2006-01-02T15:04")))
	if err != nil {
		return RawPage{}, fmt.Errorf("build fids request url: %w", err)
	}
	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("withLeg", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return RawPage{}, fmt.Errorf("build fids request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return RawPage{}, fmt.Errorf("fids request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RawPage{}, fmt.Errorf("fids provider returned status %d", resp.StatusCode)
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RawPage{}, fmt.Errorf("decode fids response: %w", err)
	}

	return RawPage{
		Arrivals:   toRawRecords(parsed.Arrivals),
		Departures: toRawRecords(parsed.Departures),
	}, nil
}

func toRawRecords(records []providerRecord) []RawRecord {
	out := make([]RawRecord, 0, len(records))
	for _, r := range records {
		out = append(out, RawRecord{
			Number:          r.Number,
			SchedLocal:      r.Movement.ScheduledTime.Local,
			SchedUTC:        r.Movement.ScheduledTime.UTC,
			RevisedLocal:    r.Movement.RevisedTime.Local,
			RevisedUTC:      r.Movement.RevisedTime.UTC,
			AirportIATA:     r.Movement.Airport.IATA,
			Terminal:        r.Movement.Terminal,
			Gate:            r.Movement.Gate,
			CodeshareStatus: r.CodeshareStatus,
		})
	}
	return out
}
