package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flightboard/internal/routecache"
)

const pageSize = 20

// browser is an interactive view of the route cache. Routes can be
// filtered by key and overridden in place.
type browser struct {
	ctx   context.Context
	cache *routecache.Cache
	rules statusRules
	now   func() time.Time

	routes   []routecache.KeyedEntry
	filter   string
	selected int

	inputMode   string // "filter", "edit" or ""
	inputBuffer string

	message        string
	messageIsError bool
}

type routesLoadedMsg struct {
	routes []routecache.KeyedEntry
	err    error
}

type routeSavedMsg struct {
	key   string
	entry routecache.Entry
	err   error
}

func newBrowser(ctx context.Context, cache *routecache.Cache, rules statusRules) browser {
	return browser{ctx: ctx, cache: cache, rules: rules, now: time.Now}
}

func (m browser) Init() tea.Cmd {
	return m.reload()
}

func (m browser) reload() tea.Cmd {
	return func() tea.Msg {
		routes, err := m.cache.List(m.ctx)
		return routesLoadedMsg{routes: routes, err: err}
	}
}

func (m browser) save(key, from, to string) tea.Cmd {
	return func() tea.Msg {
		e, err := m.cache.Set(m.ctx, key, from, to)
		return routeSavedMsg{key: key, entry: e, err: err}
	}
}

// visible returns the routes matching the filter.
func (m browser) visible() []routecache.KeyedEntry {
	if m.filter == "" {
		return m.routes
	}
	var out []routecache.KeyedEntry
	for _, r := range m.routes {
		if strings.Contains(r.Key, m.filter) {
			out = append(out, r)
		}
	}
	return out
}

func (m browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case routesLoadedMsg:
		if msg.err != nil {
			m.message, m.messageIsError = fmt.Sprintf("Load failed: %v", msg.err), true
			return m, nil
		}
		m.routes = msg.routes
		m.clampSelection()
		return m, nil

	case routeSavedMsg:
		if msg.err != nil {
			m.message, m.messageIsError = fmt.Sprintf("Save failed: %v", msg.err), true
			return m, nil
		}
		m.message, m.messageIsError = fmt.Sprintf("Saved %s: %s -> %s", msg.key, dash(msg.entry.From), dash(msg.entry.To)), false
		return m, m.reload()

	case tea.KeyMsg:
		if m.inputMode != "" {
			return m.handleInput(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.visible())-1 {
				m.selected++
			}
		case "/":
			m.inputMode, m.inputBuffer = "filter", m.filter
		case "e", "enter":
			if r, ok := m.current(); ok {
				m.inputMode = "edit"
				m.inputBuffer = strings.TrimSpace(r.From + " " + r.To)
			}
		case "r":
			m.message = ""
			return m, m.reload()
		}
	}
	return m, nil
}

func (m browser) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		mode, buf := m.inputMode, strings.TrimSpace(m.inputBuffer)
		m.inputMode, m.inputBuffer = "", ""
		switch mode {
		case "filter":
			m.filter = strings.ToUpper(buf)
			m.selected = 0
		case "edit":
			fields := strings.Fields(buf)
			if len(fields) != 2 {
				m.message, m.messageIsError = "Enter two airport codes: FROM TO", true
				return m, nil
			}
			r, ok := m.current()
			if !ok {
				return m, nil
			}
			return m, m.save(r.Key, fields[0], fields[1])
		}
	case "esc":
		m.inputMode, m.inputBuffer = "", ""
	case "backspace":
		if len(m.inputBuffer) > 0 {
			m.inputBuffer = m.inputBuffer[:len(m.inputBuffer)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.inputBuffer += msg.String()
		}
	}
	return m, nil
}

func (m browser) current() (routecache.KeyedEntry, bool) {
	v := m.visible()
	if m.selected < 0 || m.selected >= len(v) {
		return routecache.KeyedEntry{}, false
	}
	return v[m.selected], true
}

func (m *browser) clampSelection() {
	if n := len(m.visible()); m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m browser) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	s.WriteString(titleStyle.Render("FLIGHTBOARD ROUTE CACHE"))
	s.WriteString("\n\n")

	if m.inputMode != "" {
		promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
		inputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
		prompt := "Filter by key:"
		if m.inputMode == "edit" {
			r, _ := m.current()
			prompt = fmt.Sprintf("Route for %s (FROM TO):", r.Key)
		}
		s.WriteString(promptStyle.Render(prompt))
		s.WriteString("\n")
		s.WriteString(inputStyle.Render("> " + m.inputBuffer + "_"))
		s.WriteString("\n\n")
	}

	if m.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
		if m.messageIsError {
			msgStyle = msgStyle.Foreground(lipgloss.Color("196"))
		}
		s.WriteString(msgStyle.Render(m.message))
		s.WriteString("\n\n")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	s.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %-6s %-6s %-22s %s", "KEY", "FROM", "TO", "LAST SEEN", "STATUS")))
	s.WriteString("\n")

	statusColor := map[string]lipgloss.Color{
		"fresh":      "46",
		"stale":      "226",
		"suppressed": "196",
		"not found":  "240",
	}

	v := m.visible()
	start := 0
	if m.selected >= pageSize {
		start = m.selected - pageSize + 1
	}
	now := m.now()
	for i := start; i < len(v) && i < start+pageSize; i++ {
		r := v[i]
		status := m.rules.status(r.Entry, now)
		line := fmt.Sprintf("%-10s %-6s %-6s %-22s ", r.Key, dash(r.From), dash(r.To), dash(r.LastSeen))

		rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
		prefix := "  "
		if i == m.selected {
			rowStyle = rowStyle.Bold(true).Background(lipgloss.Color("237"))
			prefix = "▸ "
		}
		s.WriteString(prefix)
		s.WriteString(rowStyle.Render(line))
		s.WriteString(lipgloss.NewStyle().Foreground(statusColor[status]).Render(status))
		s.WriteString("\n")
	}
	if len(v) == 0 {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true).Render("  No routes"))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	summary := fmt.Sprintf("%d of %d routes", len(v), len(m.routes))
	if m.filter != "" {
		summary += fmt.Sprintf(" matching %q", m.filter)
	}
	s.WriteString(helpStyle.Render(summary))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: Select  ENTER/E: Edit route  /: Filter  R: Reload  Q: Quit"))
	s.WriteString("\n")

	return s.String()
}
