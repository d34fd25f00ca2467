package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/flightboard/internal/logging"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/config"
)

// writeConfig writes a config using a file store in a temp dir.
func writeConfig(t *testing.T) (configPath, cachePath string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.RouteCache.Path = filepath.Join(dir, "routes.json")
	configPath = filepath.Join(dir, "config.json")
	if err := cfg.Save(configPath); err != nil {
		t.Fatal(err)
	}
	return configPath, cfg.RouteCache.Path
}

func TestRun(t *testing.T) {
	configPath, cachePath := writeConfig(t)

	t.Run("Set then show", func(t *testing.T) {
		var out bytes.Buffer
		if err := run([]string{"-config", configPath, "set", "ual123", "kord", "ksfo"}, &out); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), "UAL123: KORD -> KSFO") {
			t.Errorf("Unexpected output %q", out.String())
		}

		out.Reset()
		if err := run([]string{"-config", configPath, "show", "UAL123"}, &out); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), "fresh") {
			t.Errorf("Expected fresh status, got %q", out.String())
		}
		if _, err := os.Stat(cachePath); err != nil {
			t.Errorf("Expected cache file: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		var out bytes.Buffer
		if err := run([]string{"-config", configPath, "list"}, &out); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.String(), "UAL123") || !strings.Contains(out.String(), "1 routes") {
			t.Errorf("Unexpected list %q", out.String())
		}
	})

	t.Run("Show unknown key", func(t *testing.T) {
		err := run([]string{"-config", configPath, "show", "NOPE1"}, &bytes.Buffer{})
		if !errors.Is(err, routecache.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Hash password", func(t *testing.T) {
		var out bytes.Buffer
		if err := run([]string{"hash-password", "hunter2"}, &out); err != nil {
			t.Fatal(err)
		}
		hash := strings.TrimSpace(out.String())
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
			t.Errorf("Hash does not match: %v", err)
		}
	})

	t.Run("Usage errors", func(t *testing.T) {
		for _, args := range [][]string{
			nil,
			{"-config", configPath, "set", "A1"},
			{"-config", configPath, "bogus"},
			{"hash-password"},
		} {
			if err := run(args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
				t.Errorf("run(%v): expected usage error, got %v", args, err)
			}
		}
	})
}

func TestStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	rules := statusRules{cacheDays: 7, suppress: 24 * time.Hour}
	stamp := func(d time.Duration) string { return now.Add(-d).Format(time.RFC3339) }

	tests := []struct {
		name  string
		entry routecache.Entry
		want  string
	}{
		{"Fresh", routecache.Entry{From: "EDDF", LastSeen: stamp(time.Hour)}, "fresh"},
		{"Stale", routecache.Entry{From: "EDDF", LastSeen: stamp(8 * 24 * time.Hour)}, "stale"},
		{"Bad timestamp is fresh", routecache.Entry{From: "EDDF", LastSeen: "garbage"}, "fresh"},
		{"Suppressed", routecache.Entry{NotFound: true, LastSeen: stamp(time.Hour)}, "suppressed"},
		{"Expired negative", routecache.Entry{NotFound: true, LastSeen: stamp(25 * time.Hour)}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.status(tt.entry, now); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBrowser(t *testing.T) {
	ctx := context.Background()
	cache := routecache.New(routecache.NewFileStore(filepath.Join(t.TempDir(), "routes.json")), logging.Discard())
	for _, k := range []string{"AAL1", "DLH123", "DLH400"} {
		if _, err := cache.Set(ctx, k, "AAAA", "BBBB"); err != nil {
			t.Fatal(err)
		}
	}

	var m tea.Model = newBrowser(ctx, cache, statusRules{cacheDays: 7, suppress: 24 * time.Hour})
	m, _ = m.Update(m.Init()())
	if got := len(m.(browser).visible()); got != 3 {
		t.Fatalf("Expected 3 routes, got %d", got)
	}

	// Filter to DLH.
	m, _ = m.Update(key("/"))
	for _, r := range "dlh" {
		m, _ = m.Update(key(string(r)))
	}
	m, _ = m.Update(key("enter"))
	if got := len(m.(browser).visible()); got != 2 {
		t.Fatalf("Expected 2 filtered routes, got %d", got)
	}

	// Edit the second one.
	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("e"))
	b := m.(browser)
	b.inputBuffer = "EDDF LIML"
	m, cmd := b.Update(key("enter"))
	if cmd == nil {
		t.Fatal("Expected save command")
	}
	m, cmd = m.Update(cmd())
	if !strings.Contains(m.(browser).message, "Saved DLH400") {
		t.Errorf("Unexpected message %q", m.(browser).message)
	}
	m, _ = m.Update(cmd())

	e, err := cache.Get(ctx, "DLH400")
	if err != nil || e.From != "EDDF" || e.To != "LIML" {
		t.Errorf("Expected saved route, got %+v (%v)", e, err)
	}
	if !strings.Contains(m.View(), "DLH400") {
		t.Error("Expected view to list DLH400")
	}
}
