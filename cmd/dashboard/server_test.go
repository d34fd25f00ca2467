package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/logging"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/config"
)

const feedBody = `{
	"ac": [
		{"hex":"3c6444","flight":"DLH123  ","lat":50.05,"lon":8.57,"alt_baro":12000,"gs":300,"track":90},
		{"hex":"4ca123","flight":"RYR42   ","lat":50.20,"lon":8.57,"alt_baro":30000,"gs":420,"track":180},
		{"hex":"abc999","flight":"XYZ999  ","lat":50.10,"lon":8.57,"alt_baro":8000,"gs":250,"track":270}
	],
	"total": 3,
	"now": 1700000000000
}`

const historyBody = `[
	{"icao24":"3c6444","firstSeen":1700010000,"estDepartureAirport":"EDDF","lastSeen":1700014000,"estArrivalAirport":"LIML","callsign":"DLH123  "}
]`

type testEnv struct {
	server     *Server
	configPath string
	contentDir string
	cache      *routecache.Cache
	history    atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/point/"):
			w.Write([]byte(feedBody))
		case r.URL.Path == "/flights/aircraft":
			env.history.Add(1)
			if r.URL.Query().Get("icao24") == "3c6444" {
				w.Write([]byte(historyBody))
				return
			}
			w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Location.Latitude, cfg.Location.Longitude = 50.0, 8.57
	cfg.Feed.BaseURL = upstream.URL
	cfg.OpenSky.BaseURL = upstream.URL
	cfg.OpenSky.RequestsPerMinute = 0
	cfg.RouteCache.Path = filepath.Join(dir, "routes.json")
	cfg.Admin.PasswordHash = string(hash)
	cfg.Admin.JWTSecret = "test-secret"
	cfg.FlightAware.APIKey = "fa-key"
	cfg.Content.Dir = filepath.Join(dir, "content")
	if err := os.Mkdir(cfg.Content.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	env.contentDir = cfg.Content.Dir

	env.configPath = filepath.Join(dir, "config.json")
	env.cache = routecache.New(routecache.NewFileStore(cfg.RouteCache.Path), logging.Discard())
	env.server = NewServer(cfg, env.configPath, env.cache, events.Nop{}, logging.Discard())
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"secret"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Login failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	if resp["status"] != "healthy" || resp["version"] != version {
		t.Errorf("Unexpected health response %v", resp)
	}
}

func TestNearbyFlights(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/flights/nearby", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count   int `json:"count"`
		Flights []struct {
			Callsign    string  `json:"callsign"`
			From        string  `json:"from"`
			To          string  `json:"to"`
			DistanceKm  float64 `json:"distance_km"`
			AirlineName string  `json:"airline_name"`
		} `json:"flights"`
	}
	decode(t, w, &resp)

	if resp.Count != 3 {
		t.Fatalf("Expected 3 flights, got %d", resp.Count)
	}
	want := []string{"DLH123", "XYZ999", "RYR42"}
	for i, f := range resp.Flights {
		if f.Callsign != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], f.Callsign)
		}
	}
	dlh := resp.Flights[0]
	if dlh.From != "EDDF" || dlh.To != "LIML" || dlh.AirlineName != "Lufthansa" {
		t.Errorf("Unexpected enrichment %+v", dlh)
	}

	if e, err := env.cache.Get(context.Background(), "XYZ999"); err != nil || !e.NotFound {
		t.Errorf("Expected negative entry for XYZ999, got %+v (%v)", e, err)
	}
}

func TestNearbyFlightsBadParams(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"lat=abc", "lat=95", "lon=-200", "radius_km=-1", "lat=NaN", "lon=nan", "radius_km=NaN", "lat=Inf"} {
		t.Run(q, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/flights/nearby?"+q, "", "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestResolveRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/routes/dlh123?icao24=3c6444", "", "")
	var resp map[string]string
	decode(t, w, &resp)
	if resp["callsign"] != "DLH123" || resp["from"] != "EDDF" || resp["to"] != "LIML" {
		t.Errorf("Unexpected route %v", resp)
	}
	if env.history.Load() != 1 {
		t.Errorf("Expected 1 history call, got %d", env.history.Load())
	}

	w = env.do(t, http.MethodGet, "/api/routes/DLH123", "", "")
	decode(t, w, &resp)
	if resp["from"] != "EDDF" || env.history.Load() != 1 {
		t.Errorf("Expected cached route without another call, got %v after %d calls", resp, env.history.Load())
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("GET redacts secrets", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/config", "", "")
		if strings.Contains(w.Body.String(), "test-secret") || strings.Contains(w.Body.String(), "fa-key") {
			t.Errorf("Secrets leaked: %s", w.Body.String())
		}
	})

	t.Run("POST requires admin", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/config", `{}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("POST rejects invalid config", func(t *testing.T) {
		token := env.login(t)
		w := env.do(t, http.MethodPost, "/api/config", `{"location":{"latitude":123}}`, token)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("POST round-trips redacted config", func(t *testing.T) {
		token := env.login(t)
		get := env.do(t, http.MethodGet, "/api/config", "", "")

		var cfg config.Config
		decode(t, get, &cfg)
		cfg.Location.Name = "Frankfurt"

		body, _ := json.Marshal(cfg)
		w := env.do(t, http.MethodPost, "/api/config", string(body), token)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		saved, err := config.Load(env.configPath)
		if err != nil {
			t.Fatal(err)
		}
		if saved.Location.Name != "Frankfurt" {
			t.Errorf("Expected saved name, got %q", saved.Location.Name)
		}
		if saved.Admin.JWTSecret != "test-secret" || saved.FlightAware.APIKey != "fa-key" {
			t.Error("Expected secrets to survive a redacted round trip")
		}

		// Old sessions stay valid because the secret did not change.
		if w := env.do(t, http.MethodGet, "/api/v1/admin/routes", "", token); w.Code != http.StatusOK {
			t.Errorf("Expected 200 after reload, got %d", w.Code)
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Login rejects bad password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"nope"}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("Requires token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/admin/routes", "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	token := env.login(t)

	t.Run("Set, get and list", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/v1/admin/routes/ual123", `{"from":"kord","to":"ksfo"}`, token)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		w = env.do(t, http.MethodGet, "/api/v1/admin/routes/UAL123", "", token)
		var entry routecache.KeyedEntry
		decode(t, w, &entry)
		if entry.Key != "UAL123" || entry.From != "KORD" || entry.To != "KSFO" || entry.NotFound {
			t.Errorf("Unexpected entry %+v", entry)
		}

		w = env.do(t, http.MethodGet, "/api/v1/admin/routes", "", token)
		var list struct {
			Count int `json:"count"`
		}
		decode(t, w, &list)
		if list.Count != 1 {
			t.Errorf("Expected 1 route, got %d", list.Count)
		}
	})

	t.Run("Unknown key", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/admin/routes/NOPE1", "", token)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("Empty route rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/v1/admin/routes/UAL1", `{"from":"","to":""}`, token)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}

func TestContent(t *testing.T) {
	env := newTestEnv(t)
	for name, body := range map[string]string{
		"a.jpg":     "jpeg-bytes",
		"b.MP4":     "video",
		"notes.txt": "not media",
	} {
		if err := os.WriteFile(filepath.Join(env.contentDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(env.contentDir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Run("List media files", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/content", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var resp struct {
			Success bool `json:"success"`
			Files   []struct {
				Name     string  `json:"name"`
				Size     int64   `json:"size"`
				Modified float64 `json:"modified"`
			} `json:"files"`
		}
		decode(t, w, &resp)
		if !resp.Success || len(resp.Files) != 2 {
			t.Fatalf("Expected 2 media files, got %+v", resp)
		}
		if resp.Files[0].Name != "a.jpg" || resp.Files[0].Size != int64(len("jpeg-bytes")) || resp.Files[0].Modified <= 0 {
			t.Errorf("Unexpected first file %+v", resp.Files[0])
		}
		if resp.Files[1].Name != "b.MP4" {
			t.Errorf("Expected b.MP4, got %s", resp.Files[1].Name)
		}
	})

	t.Run("Serve file", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/content/a.jpg", "", "")
		if w.Code != http.StatusOK || w.Body.String() != "jpeg-bytes" {
			t.Errorf("Expected file body, got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("Serve stays inside the content dir", func(t *testing.T) {
		for _, path := range []string{"/content/../config.json", "/content/"} {
			w := env.do(t, http.MethodGet, path, "", "")
			if w.Code == http.StatusOK {
				t.Errorf("%s: expected failure, got 200 %q", path, w.Body.String())
			}
		}
	})

	t.Run("Delete requires admin", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/content/a.jpg", "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	token := env.login(t)

	t.Run("Delete missing or non-file", func(t *testing.T) {
		for _, name := range []string{"missing.jpg", "sub.png", ".."} {
			w := env.do(t, http.MethodDelete, "/api/content/"+name, "", token)
			if w.Code != http.StatusNotFound {
				t.Errorf("%s: expected 404, got %d", name, w.Code)
			}
		}
		if _, err := os.Stat(filepath.Join(env.contentDir, "sub.png")); err != nil {
			t.Errorf("Expected directory kept: %v", err)
		}
	})

	t.Run("Delete file", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/content/a.jpg", "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, err := os.Stat(filepath.Join(env.contentDir, "a.jpg")); !os.IsNotExist(err) {
			t.Errorf("Expected a.jpg removed, got %v", err)
		}
	})
}
