// routecache inspects and edits the flight route cache shared by the
// dashboard workers.
//
// Usage:
//
//	routecache [-config path] list
//	routecache [-config path] show KEY
//	routecache [-config path] set KEY FROM TO
//	routecache hash-password PASSWORD
//	routecache [-config path] browse
//	routecache [-config path] watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/flightboard/internal/events"
	"github.com/unklstewy/flightboard/internal/logging"
	"github.com/unklstewy/flightboard/internal/routecache"
	"github.com/unklstewy/flightboard/pkg/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "routecache: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: routecache [-config path] list | show KEY | set KEY FROM TO | hash-password PASSWORD | browse | watch")

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("routecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "configs/config.json", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	args = fs.Args()
	if len(args) == 0 {
		return errUsage
	}

	// No cache access needed.
	if args[0] == "hash-password" {
		if len(args) != 2 {
			return errUsage
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(args[1]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Fprintln(out, string(hash))
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if args[0] == "watch" {
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is not configured")
		}
		fmt.Fprintf(out, "Watching %s on %s\n", cfg.NATS.Subject, cfg.NATS.URL)
		return events.Subscribe(ctx, cfg.NATS.URL, cfg.NATS.Subject, func(ev events.RouteResolved) {
			printEvent(out, ev)
		})
	}

	logger := logging.Discard()
	store, err := routecache.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open route cache: %w", err)
	}
	cache := routecache.New(store, logger)
	defer cache.Close()

	rules := statusRules{
		cacheDays: cfg.OpenSky.CacheDays,
		suppress:  cfg.OpenSky.SuppressWindow(),
	}

	switch args[0] {
	case "list":
		return listRoutes(ctx, cache, rules, time.Now(), out)

	case "show":
		if len(args) != 2 {
			return errUsage
		}
		key := routecache.NormalizeKey(args[1])
		e, err := cache.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		printEntries(out, []routecache.KeyedEntry{{Key: key, Entry: e}}, rules, time.Now())
		return nil

	case "set":
		if len(args) != 4 {
			return errUsage
		}
		e, err := cache.Set(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s -> %s\n", routecache.NormalizeKey(args[1]), e.From, e.To)
		return nil

	case "browse":
		p := tea.NewProgram(newBrowser(ctx, cache, rules), tea.WithAltScreen())
		_, err := p.Run()
		return err

	default:
		return errUsage
	}
}

func listRoutes(ctx context.Context, cache *routecache.Cache, rules statusRules, now time.Time, out io.Writer) error {
	routes, err := cache.List(ctx)
	if err != nil {
		return err
	}
	printEntries(out, routes, rules, now)
	fmt.Fprintf(out, "\n%d routes\n", len(routes))
	return nil
}

func printEntries(out io.Writer, routes []routecache.KeyedEntry, rules statusRules, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tFROM\tTO\tLAST SEEN\tSTATUS")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Key, dash(r.From), dash(r.To), dash(r.LastSeen), rules.status(r.Entry, now))
	}
	tw.Flush()
}

func printEvent(out io.Writer, ev events.RouteResolved) {
	if ev.NotFound {
		fmt.Fprintf(out, "%s  %-8s %-7s not found (%s)\n", ev.At.Format(time.RFC3339), ev.Key, ev.ICAO24, ev.Source)
		return
	}
	fmt.Fprintf(out, "%s  %-8s %-7s %s -> %s (%s)\n", ev.At.Format(time.RFC3339), ev.Key, ev.ICAO24, dash(ev.From), dash(ev.To), ev.Source)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// statusRules classifies entries the same way the resolver treats them.
type statusRules struct {
	cacheDays int
	suppress  time.Duration
}

func (r statusRules) status(e routecache.Entry, now time.Time) string {
	ts, ok := e.Timestamp()
	if e.NotFound {
		if ok && now.Sub(ts) < r.suppress {
			return "suppressed"
		}
		return "not found"
	}
	if !ok {
		return "fresh"
	}
	days := int(now.Sub(ts).Hours() / 24)
	if days < r.cacheDays {
		return "fresh"
	}
	return "stale"
}
