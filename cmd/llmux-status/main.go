// Command llmux-status is a terminal dashboard over a running gateway's
// /providers endpoint: one row per provider:model pair, its circuit state,
// and whether it's currently available for routing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type providerHealth struct {
	Provider     string `json:"Provider"`
	Model        string `json:"Model"`
	CircuitState string `json:"CircuitState"`
	Available    bool   `json:"Available"`
}

type providersResponse struct {
	Providers []providerHealth `json:"providers"`
}

type tickMsg time.Time

type fetchedMsg struct {
	rows []providerHealth
	err  error
}

type model struct {
	addr     string
	table    table.Model
	renderer *glamour.TermRenderer
	summary  string
	err      error
	updated  time.Time
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	footStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func initialModel(addr string) model {
	columns := []table.Column{
		{Title: "Provider", Width: 16},
		{Title: "Model", Width: 28},
		{Title: "Circuit", Width: 12},
		{Title: "Available", Width: 10},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(12))
	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(76))
	return model{addr: addr, table: t, renderer: renderer}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.addr), tick())
}

func tick() tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchStatus(addr string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(addr + "/providers")
		if err != nil {
			return fetchedMsg{err: err}
		}
		defer resp.Body.Close()

		var body providersResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fetchedMsg{err: err}
		}
		return fetchedMsg{rows: body.Providers}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(fetchStatus(m.addr), tick())
	case fetchedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.updated = time.Now()
			rows := make([]table.Row, 0, len(msg.rows))
			available, total := 0, len(msg.rows)
			for _, p := range msg.rows {
				state := "yes"
				if !p.Available {
					state = "no"
				} else {
					available++
				}
				rows = append(rows, table.Row{p.Provider, p.Model, p.CircuitState, state})
			}
			m.table.SetRows(rows)
			m.summary = fmt.Sprintf("**%d / %d** provider:model targets available", available, total)
		}
	}
	return m, nil
}

func (m model) View() string {
	header := titleStyle.Render("llmux-status") + "  " + m.addr
	body := m.table.View()
	if m.err != nil {
		body = errStyle.Render(fmt.Sprintf("fetch error: %v", m.err))
	}
	summary := m.summary
	if m.renderer != nil && summary != "" {
		if rendered, err := m.renderer.Render(summary); err == nil {
			summary = strings.TrimSpace(rendered)
		}
	}
	footer := footStyle.Render(fmt.Sprintf("updated %s  (q to quit)", m.updated.Format(time.Kitchen)))
	return header + "\n\n" + body + "\n\n" + summary + "\n" + footer
}

func main() {
	addr := flag.String("addr", "http://localhost:8743", "gateway admin address")
	flag.Parse()

	p := tea.NewProgram(initialModel(*addr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
