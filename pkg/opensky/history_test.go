package opensky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAuth struct {
	token  string
	err    error
	resets atomic.Int32
}

func (a *fakeAuth) Token(context.Context) (string, error) { return a.token, a.err }
func (a *fakeAuth) Reset()                                { a.resets.Add(1) }

func newTestHistoryClient(url string, auth Authenticator, now time.Time) *HistoryClient {
	c := NewHistoryClient(HistoryConfig{BaseURL: url}, auth, nil)
	c.SetClock(func() time.Time { return now })
	return c
}

func TestLatestRoute(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Most recent flight in window", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/flights/aircraft" {
				t.Errorf("Expected /flights/aircraft, got %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("icao24") != "3c6444" {
				t.Errorf("Expected lowercased icao24, got %q", q.Get("icao24"))
			}
			wantBegin := strconv.FormatInt(now.Add(-72*time.Hour).Unix(), 10)
			wantEnd := strconv.FormatInt(now.Add(-48*time.Hour).Unix(), 10)
			if q.Get("begin") != wantBegin || q.Get("end") != wantEnd {
				t.Errorf("Expected window [%s,%s], got [%s,%s]", wantBegin, wantEnd, q.Get("begin"), q.Get("end"))
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `[
				{"icao24":"3c6444","firstSeen":100,"lastSeen":200,"estDepartureAirport":"EDDM","estArrivalAirport":"EDDF"},
				{"icao24":"3c6444","firstSeen":300,"lastSeen":400,"estDepartureAirport":"EDDF","estArrivalAirport":"LIML"}
			]`)
		}))
		defer server.Close()

		c := newTestHistoryClient(server.URL, &fakeAuth{token: "tok"}, now)
		route, err := c.LatestRoute(context.Background(), "3C6444")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if route.From != "EDDF" || route.To != "LIML" {
			t.Errorf("Expected EDDF→LIML, got %s→%s", route.From, route.To)
		}
	})

	t.Run("Null airports", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"icao24":"abc","lastSeen":1,"estDepartureAirport":null,"estArrivalAirport":"KJFK"}]`)
		}))
		defer server.Close()

		route, err := newTestHistoryClient(server.URL, nil, now).LatestRoute(context.Background(), "abc")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if route.From != "" || route.To != "KJFK" {
			t.Errorf("Expected →KJFK, got %+v", route)
		}
	})

	t.Run("404 and empty list are no route", func(t *testing.T) {
		for _, status := range []int{http.StatusNotFound, http.StatusOK} {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				if status == http.StatusOK {
					fmt.Fprint(w, `[]`)
				}
			}))

			route, err := newTestHistoryClient(server.URL, nil, now).LatestRoute(context.Background(), "abc")
			server.Close()
			if err != nil {
				t.Errorf("status %d: expected no error, got %v", status, err)
			}
			if !route.Empty() {
				t.Errorf("status %d: expected empty route, got %+v", status, route)
			}
		}
	})

	t.Run("401 resets token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		auth := &fakeAuth{token: "stale"}
		_, err := newTestHistoryClient(server.URL, auth, now).LatestRoute(context.Background(), "abc")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Expected ErrUnauthorized, got %v", err)
		}
		if auth.resets.Load() != 1 {
			t.Errorf("Expected 1 token reset, got %d", auth.resets.Load())
		}
	})

	t.Run("429 is rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Rate-Limit-Retry-After-Seconds", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := newTestHistoryClient(server.URL, nil, now).LatestRoute(context.Background(), "abc")
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("Expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("Token failure goes anonymous", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Expected anonymous request")
			}
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		auth := &fakeAuth{err: ErrNoToken}
		if _, err := newTestHistoryClient(server.URL, auth, now).LatestRoute(context.Background(), "abc"); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	})

	t.Run("Empty icao24 makes no call", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		route, err := newTestHistoryClient(server.URL, nil, now).LatestRoute(context.Background(), " ")
		if err != nil || !route.Empty() || calls.Load() != 0 {
			t.Errorf("Expected no call and empty route, got %+v %v calls=%d", route, err, calls.Load())
		}
	})
}

func TestFlightsByAircraftThrottled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := NewHistoryClient(HistoryConfig{BaseURL: server.URL, RequestsPerMinute: 1}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	end := time.Now()
	if _, err := c.FlightsByAircraft(ctx, "3c6444", end.Add(-time.Hour), end); err != nil {
		t.Fatalf("First call: %v", err)
	}
	_, err := c.FlightsByAircraft(ctx, "3c6444", end.Add(-time.Hour), end)
	if !errors.Is(err, ErrThrottled) {
		t.Errorf("Expected ErrThrottled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", calls.Load())
	}
}

func TestPartitions(t *testing.T) {
	end := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	begin := end.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		partition time.Duration
		wantSpans int
	}{
		{"Unpartitioned", 0, 1},
		{"Partition wider than window", 48 * time.Hour, 1},
		{"Even split", 6 * time.Hour, 4},
		{"Uneven split", 10 * time.Hour, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHistoryClient(HistoryConfig{MaxPartition: tt.partition}, nil, nil)
			spans := c.partitions(begin, end)

			if len(spans) != tt.wantSpans {
				t.Fatalf("Expected %d spans, got %d", tt.wantSpans, len(spans))
			}
			if !spans[0][1].Equal(end) {
				t.Errorf("Expected newest span first, got %v", spans[0])
			}
			if !spans[len(spans)-1][0].Equal(begin) {
				t.Errorf("Expected last span to start at window begin, got %v", spans[len(spans)-1])
			}
		})
	}
}
