// Package tui is the interactive log stream viewer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/your-username/ehr-console/internal/auth"
	"github.com/your-username/ehr-console/internal/buffer"
	"github.com/your-username/ehr-console/internal/export"
	"github.com/your-username/ehr-console/internal/models"
	"github.com/your-username/ehr-console/internal/monitoring"
	"github.com/your-username/ehr-console/internal/output"
	"github.com/your-username/ehr-console/internal/stream"
	"github.com/your-username/ehr-console/internal/view"
)

// Lines used by the status, banner, level, search and help rows
const chromeHeight = 5

// Most events folded into one update
const maxBatch = 256

// Controller is the stream manager as seen by the viewer
type Controller interface {
	Events() <-chan stream.Event
	Pause()
	Resume()
	Dropped() int64
}

type Options struct {
	Stream     Controller
	Buffer     *buffer.Buffer
	Filter     view.Filter
	Paused     bool
	StreamPath string
	ExportDir  string
	// Tokens supplies the access token for the expiry hint; optional
	Tokens  interface{ Get() string }
	Metrics *monitoring.MetricsCollector
}

type (
	eventsMsg struct {
		events []stream.Event
		closed bool
	}
	tickMsg     time.Time
	exportedMsg struct {
		result *export.Result
		err    error
	}
)

type Model struct {
	opts Options
	buf  *buffer.Buffer
	now  func() time.Time

	// connection, as last reported by the manager
	state      models.ConnectionState
	attempt    int
	refreshing bool
	retryAt    time.Time
	lastErr    error
	closed     bool

	// UI state
	paused     bool
	autoScroll bool
	filter     view.Filter
	visible    []models.Record
	flash      string

	search   textinput.Model
	editing  bool
	previous string

	viewport viewport.Model
	help     help.Model
	width    int
	height   int
}

func New(opts Options) *Model {
	if opts.Filter.Levels == nil {
		opts.Filter = view.NewFilter()
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search messages, params or raw text"
	search.CharLimit = 256
	search.SetValue(opts.Filter.Query)

	m := &Model{
		opts:       opts,
		buf:        opts.Buffer,
		now:        time.Now,
		state:      models.StateConnecting,
		paused:     opts.Paused,
		autoScroll: true,
		filter:     opts.Filter,
		search:     search,
		viewport:   viewport.New(80, 20),
		help:       help.New(),
	}
	if m.paused {
		m.state = models.StateClosed
	}
	m.refresh()
	return m
}

// Run starts the viewer and blocks until the operator quits or ctx ends
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithContext(ctx), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForEvents(m.opts.Stream.Events()), tick())
}

func waitForEvents(ch <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsMsg{closed: true}
		}
		events := []stream.Event{ev}
		for len(events) < maxBatch {
			select {
			case ev, ok := <-ch:
				if !ok {
					return eventsMsg{events: events, closed: true}
				}
				events = append(events, ev)
			default:
				return eventsMsg{events: events}
			}
		}
		return eventsMsg{events: events}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.refresh()
		return m, nil

	case eventsMsg:
		m.handleEvents(msg.events)
		if msg.closed {
			m.closed = true
			return m, nil
		}
		return m, waitForEvents(m.opts.Stream.Events())

	case tickMsg:
		return m, tick()

	case exportedMsg:
		if msg.err != nil {
			log.Error().Err(msg.err).Msg("Export failed")
			m.flash = "Export failed: " + msg.err.Error()
		} else {
			m.flash = fmt.Sprintf("Exported %d entries to %s", msg.result.RowCount, msg.result.FileName)
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateSearch(msg)
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleEvents(events []stream.Event) {
	ingested := false
	evicted := m.buf.Evicted()

	for _, ev := range events {
		switch ev := ev.(type) {
		case stream.StateEvent:
			m.applyState(ev)
		case stream.FrameEvent:
			// frames already in flight when pause was requested
			if m.paused {
				continue
			}
			rec := m.buf.Ingest(ev.Data)
			if rec.IsRaw() {
				m.opts.Metrics.IncrementCounter(monitoring.ParseFallbacks, 1)
			}
			ingested = true
		}
	}

	if n := m.buf.Evicted() - evicted; n > 0 {
		m.opts.Metrics.IncrementCounter(monitoring.Evictions, n)
	}
	if ingested {
		m.refresh()
	}
}

func (m *Model) applyState(ev stream.StateEvent) {
	m.state = ev.State
	m.attempt = ev.Attempt
	m.refreshing = ev.Refreshing
	m.retryAt = time.Time{}
	if ev.RetryIn > 0 {
		m.retryAt = m.now().Add(ev.RetryIn)
	}
	if ev.State == models.StateOpen || ev.Err != nil {
		m.lastErr = ev.Err
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Pause):
		m.togglePause()

	case key.Matches(msg, keys.Reconnect):
		if !m.paused && m.state == models.StateClosed {
			m.opts.Stream.Resume()
		}

	case key.Matches(msg, keys.AutoScroll):
		m.autoScroll = !m.autoScroll
		if m.autoScroll {
			m.viewport.GotoBottom()
		}

	case key.Matches(msg, keys.Buffer):
		m.cycleCapacity()

	case key.Matches(msg, keys.Levels):
		idx := int(msg.String()[0] - '1')
		if idx >= 0 && idx < len(models.Levels) {
			m.filter = m.filter.Toggle(models.Levels[idx])
			m.refresh()
		}

	case key.Matches(msg, keys.Search):
		m.editing = true
		m.previous = m.filter.Query
		return m, m.search.Focus()

	case key.Matches(msg, keys.Clear):
		n := view.ClearVisible(m.buf, m.filter)
		m.flash = fmt.Sprintf("Cleared %d entries", n)
		m.refresh()

	case key.Matches(msg, keys.Export):
		return m, m.exportVisible()

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.editing = false
		m.search.Blur()
		return m, nil
	case tea.KeyEsc:
		m.editing = false
		m.search.Blur()
		m.search.SetValue(m.previous)
		m.filter = m.filter.WithQuery(m.previous)
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if q := m.search.Value(); q != m.filter.Query {
		m.filter = m.filter.WithQuery(q)
		m.refresh()
	}
	return m, cmd
}

func (m *Model) togglePause() {
	if m.paused {
		m.paused = false
		m.opts.Stream.Resume()
		return
	}
	m.paused = true
	m.opts.Stream.Pause()
}

func (m *Model) cycleCapacity() {
	next := buffer.Capacities[0]
	for i, c := range buffer.Capacities {
		if c == m.buf.Cap() && i+1 < len(buffer.Capacities) {
			next = buffer.Capacities[i+1]
			break
		}
	}

	evicted := m.buf.Evicted()
	if err := m.buf.SetCapacity(next); err != nil {
		m.flash = err.Error()
		return
	}
	if n := m.buf.Evicted() - evicted; n > 0 {
		m.opts.Metrics.IncrementCounter(monitoring.Evictions, n)
	}
	m.flash = fmt.Sprintf("Buffer size %d", next)
	m.refresh()
}

func (m *Model) exportVisible() tea.Cmd {
	records := make([]models.Record, len(m.visible))
	copy(records, m.visible)
	path := filepath.Join(m.opts.ExportDir, export.DefaultFileName(export.FormatJSONL, m.now()))

	return func() tea.Msg {
		result, err := export.ExportFile(path, records)
		return exportedMsg{result: result, err: err}
	}
}

// refresh recomputes the visible view. The viewport follows new entries
// only while it is already at the bottom.
func (m *Model) refresh() {
	m.visible = view.Apply(m.buf.Records(), m.filter)

	lines := make([]string, len(m.visible))
	for i, rec := range m.visible {
		lines[i] = output.Line(rec, true)
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.autoScroll && atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	rows := []string{
		m.statusLine(),
		m.banner(),
		m.levelChips(),
		m.searchLine(),
		m.viewport.View(),
		m.help.View(keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) statusLine() string {
	parts := []string{
		dot(m.state),
		styleLabel.Render(string(m.state)),
		m.statusText(),
		styleMuted.Render(fmt.Sprintf("buffer %d/%d", m.buf.Len(), m.buf.Cap())),
		styleMuted.Render(fmt.Sprintf("visible %d", len(m.visible))),
	}
	if m.opts.Metrics != nil && m.state == models.StateOpen {
		parts = append(parts, styleMuted.Render(fmt.Sprintf("%.1f/s", m.opts.Metrics.FrameRate())))
	}
	if dropped := m.opts.Stream.Dropped(); dropped > 0 {
		parts = append(parts, styleMuted.Render(fmt.Sprintf("dropped %d", dropped)))
	}
	if !m.autoScroll {
		parts = append(parts, styleMuted.Render("scroll locked"))
	}
	if hint := m.tokenHint(); hint != "" {
		parts = append(parts, styleMuted.Render(hint))
	}
	if m.flash != "" {
		parts = append(parts, styleFlash.Render(m.flash))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) statusText() string {
	switch {
	case m.closed:
		return "Stream shut down"
	case m.paused:
		return "Paused"
	}

	switch m.state {
	case models.StateConnecting:
		if m.attempt > 0 {
			return fmt.Sprintf("Connecting to %s... (attempt %d)", m.opts.StreamPath, m.attempt+1)
		}
		return fmt.Sprintf("Connecting to %s...", m.opts.StreamPath)
	case models.StateOpen:
		return "Live"
	case models.StateError:
		if m.refreshing {
			return "Refreshing access token..."
		}
		return fmt.Sprintf("Retrying in %ds (attempt %d)", m.retrySeconds(), m.attempt)
	default:
		if m.lastErr != nil {
			return "Stream closed, press r to reconnect"
		}
		return "Stream closed"
	}
}

func (m *Model) banner() string {
	if m.lastErr == nil || m.paused || m.state == models.StateOpen {
		return ""
	}
	if m.state == models.StateError && !m.refreshing {
		return styleBanner.Render(fmt.Sprintf("Connection lost: %v. Retrying in %ds (attempt %d)", m.lastErr, m.retrySeconds(), m.attempt))
	}
	if m.state == models.StateClosed {
		return styleBanner.Render(fmt.Sprintf("%v", m.lastErr))
	}
	return ""
}

func (m *Model) retrySeconds() int {
	if m.retryAt.IsZero() {
		return 0
	}
	d := m.retryAt.Sub(m.now())
	if d < 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (m *Model) levelChips() string {
	chips := make([]string, 0, len(models.Levels))
	for i, level := range models.Levels {
		label := fmt.Sprintf("%d %s", i+1, level)
		if m.filter.Levels[level] {
			chips = append(chips, output.LevelStyle(level).Render(label))
		} else {
			chips = append(chips, styleChipOff.Render(label))
		}
	}
	return strings.Join(chips, "  ")
}

func (m *Model) searchLine() string {
	if m.editing {
		return m.search.View()
	}
	if m.filter.Query != "" {
		return styleSearch.Render("/ " + m.filter.Query)
	}
	return ""
}

func (m *Model) tokenHint() string {
	if m.opts.Tokens == nil {
		return ""
	}
	token := m.opts.Tokens.Get()
	if token == "" {
		return "no token"
	}
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return ""
	}
	left, ok := claims.ExpiresIn(m.now())
	if !ok {
		return ""
	}
	if left <= 0 {
		return "token expired"
	}
	return "token " + left.Truncate(time.Second).String()
}
