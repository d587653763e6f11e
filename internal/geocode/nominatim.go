package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEndpoint  = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent = "EventMitraVenueGeocoder/1.0"
	maxResults       = 5
)

var ErrNoMatch = errors.New("address not found")

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client looks up venue coordinates on a Nominatim compatible endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

type Result struct {
	DisplayName string  `json:"displayName"`
	City        string  `json:"city,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

type nominatimItem struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		City  string `json:"city"`
		Town  string `json:"town"`
		State string `json:"state"`
	} `json:"address"`
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 6 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: endpoint, client: httpClient}
}

// Search returns up to limit matches, capped at 5.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c == nil {
		return nil, fmt.Errorf("geocoder is not configured")
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > maxResults {
		limit = maxResults
	}

	values := url.Values{}
	values.Set("q", q)
	values.Set("format", "jsonv2")
	values.Set("limit", strconv.Itoa(limit))
	values.Set("addressdetails", "1")
	values.Set("accept-language", "en,hi")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("geocoder status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload []nominatimItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(payload))
	for _, item := range payload {
		lat, err := strconv.ParseFloat(strings.TrimSpace(item.Lat), 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(item.Lon), 64)
		if err != nil {
			continue
		}
		city := item.Address.City
		if city == "" {
			city = item.Address.Town
		}
		out = append(out, Result{
			DisplayName: strings.TrimSpace(item.DisplayName),
			City:        city,
			Lat:         lat,
			Lng:         lng,
		})
	}
	return out, nil
}

// LocateVenue geocodes "venue, address, city" and returns the best match.
func (c *Client) LocateVenue(ctx context.Context, name, address, city string) (Result, error) {
	parts := make([]string, 0, 3)
	for _, p := range []string{name, address, city} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	results, err := c.Search(ctx, strings.Join(parts, ", "), 1)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, ErrNoMatch
	}
	return results[0], nil
}
