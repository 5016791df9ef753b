package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// healthSnapshot mirrors models.Health's JSON shape without importing the
// server module's internal packages — the dashboard talks to the server
// only over HTTP, the way an operator's laptop would.
type healthSnapshot struct {
	Status        string  `json:"status"`
	QueueDepth    int     `json:"queue_depth"`
	ActiveWorkers int     `json:"active_workers"`
	DBConnected   bool    `json:"db_connected"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type statsSnapshot struct {
	Work struct {
		Count int64 `json:"count"`
		P50   int64 `json:"p50"`
		P99   int64 `json:"p99"`
	} `json:"work"`
	Callbacks struct {
		Count int64 `json:"count"`
		P50   int64 `json:"p50"`
		P99   int64 `json:"p99"`
	} `json:"callbacks"`
}

type tickMsg time.Time

type pollResultMsg struct {
	health *healthSnapshot
	stats  *statsSnapshot
	err    error
}

// Model is the bubbletea model for the live dashboard screen.
type Model struct {
	targetURL string
	client    *http.Client
	progress  progress.Model

	health *healthSnapshot
	stats  *statsSnapshot
	lastErr error

	pollEvery time.Duration
	quitting  bool
}

// New builds a dashboard Model pointed at targetURL (the consuma server's
// base address, e.g. "http://localhost:8080").
func New(targetURL string) Model {
	p := progress.New(
		progress.WithScaledGradient("#00FFFF", "#FF6B9D"),
		progress.WithoutPercentage(),
	)
	return Model{
		targetURL: strings.TrimSuffix(targetURL, "/"),
		client:    &http.Client{Timeout: 3 * time.Second},
		progress:  p,
		pollEvery: time.Second,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick(m.pollEvery))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		health, herr := fetchJSON[healthSnapshot](ctx, m.client, m.targetURL+"/healthz")
		if herr != nil {
			return pollResultMsg{err: herr}
		}
		stats, serr := fetchJSON[statsSnapshot](ctx, m.client, m.targetURL+"/requests/stats")
		if serr != nil {
			return pollResultMsg{health: health, err: serr}
		}
		return pollResultMsg{health: health, stats: stats}
	}
}

func fetchJSON[T any](ctx context.Context, client *http.Client, url string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tick(m.pollEvery))
	case pollResultMsg:
		m.lastErr = msg.err
		if msg.health != nil {
			m.health = msg.health
		}
		if msg.stats != nil {
			m.stats = msg.stats
		}
		return m, nil
	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		if p, ok := newModel.(progress.Model); ok {
			m.progress = p
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(logoStyle.Render(asciiLogo))
	b.WriteString("  ")
	b.WriteString(subtitleStyle.Render(m.targetURL))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(errText.Render(fmt.Sprintf("poll error: %v", m.lastErr)))
		b.WriteString("\n\n")
	}

	if m.health == nil {
		b.WriteString(labelStyle.Render("waiting for first response..."))
		return borderStyle.Render(b.String())
	}

	statusStyle := successText
	if m.health.Status != "ok" {
		statusStyle = warnText
	}
	b.WriteString(labelStyle.Render("status:          "))
	b.WriteString(statusStyle.Render(strings.ToUpper(m.health.Status)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("queue depth:     "))
	b.WriteString(infoText.Render(fmt.Sprintf("%d", m.health.QueueDepth)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("active workers:  "))
	b.WriteString(infoText.Render(fmt.Sprintf("%d", m.health.ActiveWorkers)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("db connected:    "))
	if m.health.DBConnected {
		b.WriteString(successText.Render("yes"))
	} else {
		b.WriteString(errText.Render("no"))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("uptime:          "))
	b.WriteString(infoText.Render(fmt.Sprintf("%.0fs", m.health.UptimeSeconds)))
	b.WriteString("\n\n")

	if m.stats != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf(
			"work:      count=%d  p50=%s  p99=%s\n",
			m.stats.Work.Count, time.Duration(m.stats.Work.P50), time.Duration(m.stats.Work.P99),
		)))
		b.WriteString(labelStyle.Render(fmt.Sprintf(
			"callbacks: count=%d  p50=%s  p99=%s\n",
			m.stats.Callbacks.Count, time.Duration(m.stats.Callbacks.P50), time.Duration(m.stats.Callbacks.P99),
		)))
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(subColor).Render("press q to quit"))

	return borderStyle.Render(b.String())
}
