// Package tui provides the live run viewer.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/render"
	"github.com/joss/obsreport/internal/store"
)

// DefaultInterval is how often the snapshot is polled.
const DefaultInterval = time.Second

var (
	styleIdle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	styleRunning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Bold(true)

	styleSummarize = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00")).
			Bold(true)

	styleDone = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	styleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	barColorFill  = lipgloss.Color("#00FF00")
	barColorEmpty = lipgloss.Color("#333333")
)

// Messages
type (
	snapshotMsg struct {
		snap *domain.Snapshot
		err  error
	}
	tickMsg struct{}
)

// WatchModel polls one run's snapshot and renders it until the run ends.
type WatchModel struct {
	ctx      context.Context
	source   store.SnapshotStore
	runID    string
	interval time.Duration

	Spinner spinner.Model
	Snap    *domain.Snapshot
	Err     error
	Height  int
	Width   int
	Done    bool
}

// NewWatchModel creates the viewer for runID.
func NewWatchModel(ctx context.Context, source store.SnapshotStore, runID string, interval time.Duration) WatchModel {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := spinner.New()
	s.Spinner = spinner.Pulse
	s.Style = styleIdle
	return WatchModel{ctx: ctx, source: source, runID: runID, interval: interval, Spinner: s}
}

// Init starts the spinner and the first fetch.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, m.fetch())
}

func (m WatchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.source.GetSnapshot(m.ctx, m.runID)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update handles polling and key input.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		return m, nil

	case snapshotMsg:
		m.Err = msg.err
		if msg.snap != nil {
			m.Snap = msg.snap
			m.Spinner.Style = statusStyle(msg.snap.Status)
			if msg.snap.Status.Terminal() {
				m.Done = true
				return m, tea.Quit
			}
		}
		return m, m.tick()

	case tickMsg:
		return m, m.fetch()
	}

	var cmd tea.Cmd
	m.Spinner, cmd = m.Spinner.Update(msg)
	return m, cmd
}

// View renders the header, progress bar and the current outline.
func (m WatchModel) View() string {
	var sb strings.Builder

	status := "waiting"
	label := styleIdle
	if m.Snap != nil {
		status = string(m.Snap.Status)
		label = statusStyle(m.Snap.Status)
	}
	header := fmt.Sprintf("%s %s %s", m.Spinner.View(), label.Render(strings.ToUpper(status)), m.runID)
	left := containerStyle.Render(header)
	right := containerStyle.Render(m.renderProgressBar(24))
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", right))
	sb.WriteString("\n")

	if m.Err != nil {
		if store.IsNotFound(m.Err) {
			sb.WriteString(styleIdle.Render("no snapshot yet"))
		} else {
			sb.WriteString(styleFailed.Render("error: " + m.Err.Error()))
		}
		sb.WriteString("\n")
	}
	if m.Snap == nil {
		return sb.String()
	}
	if m.Snap.Message != "" {
		sb.WriteString(m.Snap.Message + "\n")
	}
	if len(m.Snap.Sections) > 0 {
		sb.WriteString("\n")
		sb.WriteString(m.clip(render.New(false).Outline(m.Snap.Sections)))
	}
	if !m.Done {
		sb.WriteString(styleIdle.Render("\nq to quit"))
	}
	return sb.String()
}

// clip keeps the outline within the window height.
func (m WatchModel) clip(s string) string {
	if m.Height <= 0 {
		return s
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	room := m.Height - 6
	if room < 1 {
		room = 1
	}
	if len(lines) <= room {
		return strings.Join(lines, "\n") + "\n"
	}
	hidden := len(lines) - room
	return strings.Join(lines[:room], "\n") + fmt.Sprintf("\n… %d more lines\n", hidden)
}

// renderProgressBar draws processed/expected as a bar.
func (m WatchModel) renderProgressBar(width int) string {
	processed, expected := 0, 0
	if m.Snap != nil {
		processed, expected = m.Snap.Processed, m.Snap.Expected
	}
	pct := 0.0
	if expected > 0 {
		pct = float64(processed) / float64(expected)
	}
	if pct > 1 {
		pct = 1
	}
	full := int(pct * float64(width))
	fullBar := lipgloss.NewStyle().Foreground(barColorFill).Render(strings.Repeat("█", full))
	emptyBar := lipgloss.NewStyle().Foreground(barColorEmpty).Render(strings.Repeat("░", width-full))
	return fullBar + emptyBar + fmt.Sprintf(" %d/%d", processed, expected)
}

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusRunning, domain.StatusStarted:
		return styleRunning
	case domain.StatusSummarize:
		return styleSummarize
	case domain.StatusCompleted:
		return styleDone
	case domain.StatusFailed:
		return styleFailed
	default:
		return styleIdle
	}
}

// Watch runs the viewer until the run ends or the user quits. It returns
// the last snapshot seen.
func Watch(ctx context.Context, source store.SnapshotStore, runID string, interval time.Duration) (*domain.Snapshot, error) {
	p := tea.NewProgram(NewWatchModel(ctx, source, runID, interval), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	m := final.(WatchModel)
	return m.Snap, nil
}
