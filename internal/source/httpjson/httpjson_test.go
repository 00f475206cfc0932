package httpjson

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"donorpulse/internal/core"
)

func TestFetchPayments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing accept header")
		}
		fmt.Fprint(w, `[{"id": "pay1", "amount": 50}]`)
	}))
	defer srv.Close()

	src := New(srv.URL+"/pledges", srv.URL+"/payments")
	records, err := src.FetchPayments(context.Background())
	if err != nil {
		t.Fatalf("fetch payments: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != "pay1" || records[0]["amount"] != "50" {
		t.Fatalf("unexpected records: %v", records)
	}
}

func TestFetchNon200IsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := New(srv.URL, srv.URL)
	_, err := src.FetchPledges(context.Background())
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchConnectionRefusedIsSourceUnavailable(t *testing.T) {
	src := New("http://127.0.0.1:1/pledges", "http://127.0.0.1:1/payments")
	_, err := src.FetchPayments(context.Background())
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not": "an array"}`)
	}))
	defer srv.Close()

	src := New(srv.URL, srv.URL)
	_, err := src.FetchPledges(context.Background())
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("malformed body is a data error, not unavailability: %v", err)
	}
}
