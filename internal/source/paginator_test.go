package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pmichalski/clocksync/internal/pipeline"
	"github.com/pmichalski/clocksync/pkg/models"
	"github.com/pmichalski/clocksync/pkg/retry"
)

func newTestClient(url string) *Client {
	c := NewClient(url, url, "test-key", "ws1", 0)
	c.Retry = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Transient: isTransient}
	return c
}

func TestPagedSourceStopsOnShortPage(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		// two full pages of 2, then a short page of 1
		n := 2
		if page == "3" {
			n = 1
		}
		var records []map[string]any
		for i := 0; i < n; i++ {
			records = append(records, map[string]any{"id": fmt.Sprintf("p%s-%d", page, i)})
		}
		json.NewEncoder(w).Encode(records)
	}))
	defer srv.Close()

	src := &PagedSource{Client: newTestClient(srv.URL), Endpoint: "users", PageSize: 2}

	var ids []string
	err := src.Records(context.Background(), models.Window{Unbounded: true}, func(rec map[string]any) error {
		ids = append(ids, rec["id"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}

	if len(ids) != 5 {
		t.Errorf("yielded %d records, want 5", len(ids))
	}
	if len(pages) != 3 {
		t.Errorf("requested pages %v, want exactly 3", pages)
	}
}

func TestPagedSourceEmptyFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	src := &PagedSource{Client: newTestClient(srv.URL), Endpoint: "clients", PageSize: 50}

	count := 0
	err := src.Records(context.Background(), models.Window{Unbounded: true}, func(rec map[string]any) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if count != 0 {
		t.Errorf("yielded %d records from an empty collection", count)
	}
}

func TestReportSourceRequestsEachDayOnce(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		starts = append(starts, req["dateRangeStart"].(string))
		json.NewEncoder(w).Encode([]map[string]any{{"user": "Ada", "duration": 3600000.0}})
	}))
	defer srv.Close()

	src := &ReportSource{Client: newTestClient(srv.URL)}
	win := models.Window{
		Start: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	var dates []string
	err := src.Records(context.Background(), win, func(rec map[string]any) error {
		dates = append(dates, rec["date"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}

	if len(starts) != 3 {
		t.Fatalf("made %d report requests, want one per day (3)", len(starts))
	}
	want := []string{"2024-03-12", "2024-03-13", "2024-03-14"}
	for i, d := range dates {
		if d != want[i] {
			t.Errorf("record %d stamped %q, want %q", i, d, want[i])
		}
	}
}

func TestSourceRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	src := &PagedSource{Client: newTestClient(srv.URL), Endpoint: "users", PageSize: 50}
	err := src.Records(context.Background(), models.Window{Unbounded: true}, func(map[string]any) error { return nil })
	if err != nil {
		t.Fatalf("expected retries to absorb the 502s, got %v", err)
	}
	if calls != 3 {
		t.Errorf("made %d requests, want 3", calls)
	}
}

func TestSourceExhaustionReportsSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := &PagedSource{Client: newTestClient(srv.URL), Endpoint: "users", PageSize: 50}
	err := src.Records(context.Background(), models.Window{Unbounded: true}, func(map[string]any) error { return nil })
	if !errors.Is(err, pipeline.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestSourceDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := &PagedSource{Client: newTestClient(srv.URL), Endpoint: "users", PageSize: 50}
	err := src.Records(context.Background(), models.Window{Unbounded: true}, func(map[string]any) error { return nil })
	if !errors.Is(err, pipeline.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("made %d requests for a 401, want 1", calls)
	}
}

func TestThrottleEnforcesMinimumDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Delay = 30 * time.Millisecond

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.do(context.Background(), "GET", srv.URL, nil); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("3 requests took %v, want at least 2 delays of 30ms", elapsed)
	}
}
