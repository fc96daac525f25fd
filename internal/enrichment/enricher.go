package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"analytics-service/internal/config"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

// Enricher fills advisory fields on an event. Implementations must never
// fail the caller: enrichment is best effort by contract.
type Enricher interface {
	Enrich(ctx context.Context, evt *model.Event)
}

// reverseGeocodeResponse is the shape returned by the reverse-geocode
// provider (Azure-Maps-compatible).
type reverseGeocodeResponse struct {
	Addresses []struct {
		Address struct {
			Locality           string `json:"locality"`
			CountrySubdivision string `json:"countrySubdivision"`
		} `json:"address"`
	} `json:"addresses"`
}

// GeocodeEnricher resolves coordinates to city/country via an external
// lookup. Lookups are bounded by the configured timeout so a slow provider
// cannot stall message processing.
type GeocodeEnricher struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewGeocodeEnricher(cfg *config.GeocodeConfig) *GeocodeEnricher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &GeocodeEnricher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Enrich sets city and country from a single reverse-geocode lookup. Without
// coordinates or an API key it is a silent no-op; on any lookup failure the
// event is left unenriched and the failure never propagates.
func (g *GeocodeEnricher) Enrich(ctx context.Context, evt *model.Event) {
	if !evt.HasCoordinates() || g.apiKey == "" {
		return
	}

	lookupURL := fmt.Sprintf(
		"%s/search/address/reverse/json?subscription-key=%s&api-version=1.0&query=%s",
		g.baseURL,
		url.QueryEscape(g.apiKey),
		url.QueryEscape(fmt.Sprintf("%f,%f", *evt.Latitude, *evt.Longitude)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		util.Debug("Geocode request construction failed", zap.Error(err))
		return
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		util.Debug("Geocode lookup failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		util.Debug("Geocode lookup returned non-OK status", zap.Int("status", resp.StatusCode))
		return
	}

	var decoded reverseGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		util.Debug("Geocode response decode failed", zap.Error(err))
		return
	}

	if len(decoded.Addresses) == 0 {
		return
	}

	address := decoded.Addresses[0].Address
	evt.City = &address.Locality
	evt.Country = &address.CountrySubdivision

	util.Debug("Event enriched with location",
		zap.String("city", address.Locality),
		zap.String("country", address.CountrySubdivision))
}

// NoopEnricher is used when no geocode provider is configured.
type NoopEnricher struct{}

func (NoopEnricher) Enrich(ctx context.Context, evt *model.Event) {}
