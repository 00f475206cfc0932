package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"donorpulse/internal/core"
	"donorpulse/internal/metrics"
	"donorpulse/internal/services"

	"github.com/shopspring/decimal"
)

func testServer(t *testing.T) *http.Server {
	t.Helper()
	pledge := core.Pledge{
		ID:        "p1",
		DonorID:   "d1",
		Chapter:   "Harvard",
		Status:    core.StatusActiveDonor,
		Frequency: core.FrequencyMonthly,
		StartsAt:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		AmountUSD: decimal.RequireFromString("50"),
		USDKnown:  true,
	}
	payment := core.Payment{
		ID:                "pay1",
		DonorID:           "d1",
		PledgeID:          "p1",
		Date:              time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Counterfactuality: 0.8,
		AmountUSD:         decimal.RequireFromString("50"),
		USDKnown:          true,
	}
	snap := &services.Snapshot{
		Pledges:  []core.Pledge{pledge},
		Payments: []core.Payment{payment},
		Joined: []core.JoinedPayment{{
			Payment:        payment,
			PledgeResolved: true,
			PledgeStatus:   pledge.Status,
			Chapter:        pledge.Chapter,
		}},
		LoadedAt: time.Now().UTC(),
	}
	return NewServer(":0", services.NewPipelineFromSnapshot(snap))
}

func get(t *testing.T, srv *http.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["pledges"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMetricEndpoint(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/api/metrics?name=money_moved&window=custom&start=2025-01-01&end=2025-01-31")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var results []metrics.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Metric != "money_moved" || !results[0].Value.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestMetricEndpointGrouped(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/api/metrics?name=money_moved&window=custom&start=2025-01-01&end=2025-01-31&group=chapter")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var results []metrics.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(results) != 1 || results[0].GroupKey != "Harvard" {
		t.Fatalf("unexpected grouped results: %+v", results)
	}
}

func TestMetricEndpointFiscalYearDefault(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/api/metrics?name=active_arr&ref=2025-01-20")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var results []metrics.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !results[0].Value.Equal(decimal.RequireFromString("600")) {
		t.Fatalf("active arr = %s, want 600", results[0].Value)
	}
	if !results[0].Window.Start.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("window start = %s, want fiscal year start", results[0].Window.Start)
	}
}

func TestMetricEndpointBadRequests(t *testing.T) {
	srv := testServer(t)
	cases := []struct {
		name string
		path string
	}{
		{"missing name", "/api/metrics"},
		{"unknown window", "/api/metrics?name=money_moved&window=weekly"},
		{"custom without dates", "/api/metrics?name=money_moved&window=custom"},
		{"bad ref date", "/api/metrics?name=money_moved&ref=01/15/2025"},
		{"unknown grouping", "/api/metrics?name=money_moved&group=zodiac"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, srv, tc.path)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestMetricEndpointUnknownMetric(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/api/metrics?name=net_promoter_score")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestAllMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	rr := get(t, srv, "/api/metrics/all?window=custom&start=2025-01-01&end=2025-01-31")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var results []metrics.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(results) < len(services.MetricNames()) {
		t.Fatalf("got %d results, want at least %d", len(results), len(services.MetricNames()))
	}
}

func TestHealthBeforeLoad(t *testing.T) {
	srv := NewServer(":0", services.NewPipelineFromSnapshot(nil))
	rr := get(t, srv, "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestMetricBeforeLoadIsServiceUnavailable(t *testing.T) {
	srv := NewServer(":0", services.NewPipelineFromSnapshot(nil))
	rr := get(t, srv, "/api/metrics?name=money_moved")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
