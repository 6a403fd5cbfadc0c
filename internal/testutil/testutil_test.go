package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
)

// mockTestingT records failures instead of stopping the test.
type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() {
	m.helper = true
}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func TestNewTestServer(t *testing.T) {
	server, st := NewTestServer(SampleCatalog()...)
	if server == nil || st == nil {
		t.Fatal("NewTestServer returned nil")
	}

	h := server.Routes()
	body := `{"from":"919800000001","body":"hi"}`

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, CreateJSONRequest(t, http.MethodPost, "/messages", body))
	AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "unauthorized greeting")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, Authorize(t, CreateJSONRequest(t, http.MethodPost, "/messages", body)))
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "greeting")
	AssertJSONResponse(t, rr, "ok")
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
			if !mockT.helper {
				t.Error("expected Helper to be called")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{"valid JSON with matching status", `{"status":"ok","result":"test"}`, "ok", false},
		{"valid JSON with different status", `{"status":"error","result":"test"}`, "ok", true},
		{"invalid JSON", `{"status":}`, "ok", true},
		{"missing status field", `{"result":"test"}`, "ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			response := AssertJSONResponse(mockT, rr, tt.expectedStatus)
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{"GET request with no body", "GET", "/bookings", nil},
		{"POST request with JSON body", "POST", "/messages", map[string]string{"from": "919800000001", "body": "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req == nil {
				t.Fatal("Expected request to be created, got nil")
			}
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
		})
	}
}

func TestSeedCatalogAndAssertBookingCount(t *testing.T) {
	st := store.NewInMemoryStore()
	SeedCatalog(t, st, SampleCatalog())

	items, err := st.ListByCategory(context.Background(), models.KindVenue, "wedding", 10)
	if err != nil {
		t.Fatalf("ListByCategory: %v", err)
	}
	if len(items) != 2 || items[0].ID != "v-grand" {
		t.Fatalf("unexpected items %+v", items)
	}

	mockT := &mockTestingT{}
	AssertBookingCount(mockT, st, "919800000001", 0, "empty")
	if mockT.failed {
		t.Errorf("unexpected failure: %s", mockT.errorMsg)
	}

	if _, err := st.CreateBooking(context.Background(), models.BookingDraft{
		UserIdentifier: "919800000001", Kind: models.KindVenue, ItemID: "v-grand", Date: "2030-01-01", Status: models.BookingStatusPending,
	}); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	mockT = &mockTestingT{}
	AssertBookingCount(mockT, st, "919800000001", 2, "wrong count")
	if !mockT.failed {
		t.Error("expected wrong count to fail")
	}
}

func TestMustJSONRoundTrip(t *testing.T) {
	data := MustMarshalJSON(t, map[string]interface{}{"key": "value", "number": 123})
	var target map[string]interface{}
	MustUnmarshalJSON(t, data, &target)
	if target["key"] != "value" {
		t.Errorf("Expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("Expected number to be 123, got %v", target["number"])
	}
}
