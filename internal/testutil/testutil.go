// Package testutil provides common test utilities and helpers for booking bot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/venuefarm/bookingbot/internal/api"
	"github.com/venuefarm/bookingbot/internal/flow"
	"github.com/venuefarm/bookingbot/internal/messaging"
	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// TB is the subset of testing.TB the helpers use, so helpers can be tested
// with a recording fake.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// SampleCatalog returns a small catalog with two venue categories and one farm category.
func SampleCatalog() []models.CatalogItem {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	item := func(i int, id, name string, kind models.Kind, category string) models.CatalogItem {
		return models.CatalogItem{
			Item:      models.Item{ID: id, DisplayName: name},
			Kind:      kind,
			Category:  category,
			Active:    true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return []models.CatalogItem{
		item(0, "v-grand", "Grand Hall", models.KindVenue, "Wedding"),
		item(1, "v-rose", "Rose Garden", models.KindVenue, "Wedding"),
		item(2, "v-loft", "City Loft", models.KindVenue, "Corporate"),
		item(3, "f-green", "Green Acres", models.KindFarm, "Organic"),
	}
}

// TestAPISecret signs tokens for servers built by NewTestServer.
const TestAPISecret = "testutil-secret"

// NewTestServer creates a test API server over an in-memory store seeded with items.
func NewTestServer(items ...models.CatalogItem) (*api.Server, *store.InMemoryStore) {
	proc, st := flow.NewMockProcessor(items)
	return api.NewServer(proc, st,
		api.WithIdentifierCanonicalizer(messaging.CanonicalizePhone),
		api.WithAPISecret(TestAPISecret),
	), st
}

// Authorize adds a bearer token accepted by NewTestServer to req.
func Authorize(t TB, req *http.Request) *http.Request {
	t.Helper()
	token, err := api.NewAdminToken(TestAPISecret, time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
		return req
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// SeedCatalog adds items to s, failing the test on error.
func SeedCatalog(t TB, s store.Store, items []models.CatalogItem) {
	t.Helper()
	for _, it := range items {
		if err := s.AddCatalogItem(context.Background(), it); err != nil {
			t.Fatalf("failed to add catalog item %s: %v", it.ID, err)
		}
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Errorf("response missing or invalid 'status' field")
		return response
	}
	if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// AssertBookingCount checks how many bookings user has in s.
func AssertBookingCount(t TB, s store.Store, user string, expected int, label string) {
	t.Helper()
	bookings, err := s.ListBookings(context.Background(), user)
	if err != nil {
		t.Fatalf("%s: failed to list bookings: %v", label, err)
		return
	}
	if len(bookings) != expected {
		t.Errorf("%s: expected %d bookings, got %d", label, expected, len(bookings))
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON body.
func CreateJSONRequest(t TB, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
