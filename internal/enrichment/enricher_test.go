package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"analytics-service/internal/config"
	"analytics-service/internal/model"
)

func coordEvent() *model.Event {
	lat, lon := 52.52, 13.405
	return &model.Event{
		EventType:    "page_view",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Now().UTC(),
		Latitude:     &lat,
		Longitude:    &lon,
	}
}

func newTestEnricher(baseURL string) *GeocodeEnricher {
	return NewGeocodeEnricher(&config.GeocodeConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: time.Second,
	})
}

func TestEnrichSetsCityAndCountry(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Query().Get("subscription-key"); got != "test-key" {
			t.Errorf("subscription-key = %q, want test-key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"addresses":[{"address":{"locality":"Berlin","countrySubdivision":"Berlin"}}]}`))
	}))
	defer srv.Close()

	evt := coordEvent()
	newTestEnricher(srv.URL).Enrich(context.Background(), evt)

	if requests != 1 {
		t.Fatalf("lookup requests = %d, want 1", requests)
	}
	if evt.City == nil || *evt.City != "Berlin" {
		t.Errorf("City = %v, want Berlin", evt.City)
	}
	if evt.Country == nil || *evt.Country != "Berlin" {
		t.Errorf("Country = %v, want Berlin", evt.Country)
	}
}

func TestEnrichSkipsWithoutCoordinates(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	evt := coordEvent()
	evt.Latitude = nil
	newTestEnricher(srv.URL).Enrich(context.Background(), evt)

	if requests != 0 {
		t.Errorf("lookup requests = %d, want 0 without coordinates", requests)
	}
	if evt.City != nil {
		t.Errorf("City = %v, want nil", evt.City)
	}
}

func TestEnrichSkipsWithoutAPIKey(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	enricher := NewGeocodeEnricher(&config.GeocodeConfig{BaseURL: srv.URL, Timeout: time.Second})
	enricher.Enrich(context.Background(), coordEvent())

	if requests != 0 {
		t.Errorf("lookup requests = %d, want 0 without api key", requests)
	}
}

func TestEnrichLeavesEventOnProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	evt := coordEvent()
	newTestEnricher(srv.URL).Enrich(context.Background(), evt)

	if evt.City != nil || evt.Country != nil {
		t.Errorf("event enriched despite provider error: city=%v country=%v", evt.City, evt.Country)
	}
}

func TestEnrichLeavesEventOnEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"addresses":[]}`))
	}))
	defer srv.Close()

	evt := coordEvent()
	newTestEnricher(srv.URL).Enrich(context.Background(), evt)

	if evt.City != nil {
		t.Errorf("City = %v, want nil for empty result", evt.City)
	}
}

func TestEnrichLeavesEventOnUnreachableProvider(t *testing.T) {
	// Closed server: the dial fails immediately.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	evt := coordEvent()
	newTestEnricher(url).Enrich(context.Background(), evt)

	if evt.City != nil {
		t.Errorf("City = %v, want nil when provider unreachable", evt.City)
	}
}

func TestNoopEnricher(t *testing.T) {
	evt := coordEvent()
	NoopEnricher{}.Enrich(context.Background(), evt)

	if evt.City != nil || evt.Country != nil {
		t.Error("NoopEnricher mutated the event")
	}
}
