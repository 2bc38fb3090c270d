// Package tui is the terminal node list. It follows the service event
// stream and lets the operator ping or blink the selected node.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"meshview/internal/domain"
	"meshview/internal/service"
)

const commandTimeout = 5 * time.Second

// Commander is the slice of the mesh service the list view drives
type Commander interface {
	Ping(ctx context.Context, id string) error
	Blink(ctx context.Context, id string) error
}

// ─── messages ────────────────────────────────────────────────────────────────

type eventMsg struct{ ev service.Event }

type streamClosedMsg struct{}

type commandDoneMsg struct {
	action string
	id     string
	err    error
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model
type Model struct {
	cmds   Commander
	events <-chan service.Event

	nodes     []domain.ActiveNode
	latencies map[string]domain.Latency
	total     int
	cursor    int
	status    string
	statusErr bool
	width     int
	height    int
}

// New creates the list view. events is normally a channel subscribed to
// the service EventBus.
func New(cmds Commander, events <-chan service.Event) Model {
	return Model{
		cmds:      cmds,
		events:    events,
		latencies: map[string]domain.Latency{},
		status:    "Waiting for mesh reports...",
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan service.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case eventMsg:
		m.apply(msg.ev)
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.setStatus("Event stream closed", true)
		return m, nil

	case commandDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s %s failed: %v", msg.action, msg.id, msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Sent %s to %s", msg.action, msg.id), false)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.nodes)-1 {
				m.cursor++
			}
		case "p":
			if id, ok := m.selected(); ok {
				return m, m.run("ping", id, m.cmds.Ping)
			}
		case "b":
			if id, ok := m.selected(); ok {
				return m, m.run("blink", id, m.cmds.Blink)
			}
		}
	}
	return m, nil
}

func (m *Model) apply(ev service.Event) {
	switch ev.Type {
	case service.EventNodesChanged:
		if nodes, ok := ev.Payload.([]domain.ActiveNode); ok {
			m.nodes = nodes
			if m.cursor >= len(m.nodes) {
				m.cursor = max(len(m.nodes)-1, 0)
			}
		}
	case service.EventTopologyUpdated:
		if frame, ok := ev.Payload.(domain.Frame); ok {
			m.latencies = make(map[string]domain.Latency, len(frame.Latencies))
			for id, l := range frame.Latencies {
				m.latencies[id] = l
			}
			m.total = len(frame.Snapshot.Nodes)
		}
	case service.EventProbeCompleted:
		if res, ok := ev.Payload.(service.ProbeResult); ok {
			m.latencies[res.ID] = res.Latency
			m.setStatus(fmt.Sprintf("Pong from %s in %.1fms", res.ID, res.Latency.Milliseconds()), false)
		}
	}
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m Model) selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.nodes) {
		return "", false
	}
	return m.nodes[m.cursor].ID, true
}

func (m Model) run(action, id string, fn func(context.Context, string) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{action: action, id: id, err: fn(ctx, id)}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(Title.Render("meshview"))
	b.WriteString(Muted.Render(fmt.Sprintf("  %d active, %d in snapshot", len(m.nodes), m.total)))
	b.WriteString("\n\n")

	var rows []string
	if len(m.nodes) == 0 {
		rows = append(rows, Muted.Render("no nodes"))
	}
	for i, n := range m.nodes {
		latency := "   -  "
		if l, ok := m.latencies[n.ID]; ok {
			latency = fmt.Sprintf("%5.1fms", l.Milliseconds())
		}
		row := fmt.Sprintf("%-36s %s", n.Label(), latency)
		if i == m.cursor {
			rows = append(rows, Selected.Render("> "+row))
		} else {
			rows = append(rows, "  "+hopStyle(n.Hops).Render(row))
		}
	}
	b.WriteString(Pane.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	if m.statusErr {
		b.WriteString(Error.Render(m.status))
	} else {
		b.WriteString(Muted.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(Muted.Render("↑/↓ select • p ping • b blink • q quit"))

	return App.Render(b.String())
}
