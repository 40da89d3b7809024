package ui

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/ontaudit/internal/cli/hooks"
	"github.com/stackvity/ontaudit/pkg/audit"
)

const listHeightMargin = 4

const (
	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseAuditing     = "Auditing..."
	phaseComplete     = "Complete"
)

// Model is the TUI state: one list row per ontology plus a running summary.
type Model struct {
	list    list.Model
	spinner spinner.Model
	version string

	width       int
	height      int
	initialized bool

	// items and itemMap are guarded by listLock.
	items    []listItem
	itemMap  map[string]int
	listLock sync.Mutex

	summary      Summary
	phaseMessage string
	notice       string
	quitting     bool
	startedAt    map[string]time.Time

	debounceTimer *time.Timer
}

type listItem struct {
	path     string
	status   audit.Status
	message  string
	duration time.Duration
}

// Summary holds the counts shown in the footer.
type Summary struct {
	Discovered       int
	Succeeded        int
	Skipped          int
	Failed           int
	ReportsGenerated int
	StartTime        time.Time
}

// NewModel creates the initial model.
func NewModel(version string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return &Model{
		list:         l,
		spinner:      s,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		items:        make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		startedAt:    make(map[string]time.Time),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.OntologyDiscoveredMsg:
		m.listLock.Lock()
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.items = append(m.items, listItem{path: msg.Path, status: audit.StatusPending})
			m.itemMap[msg.Path] = len(m.items) - 1
			m.summary.Discovered++
			cmds = append(cmds, m.debounceListUpdate())
		}
		m.listLock.Unlock()
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.OntologyStatusUpdateMsg:
		m.listLock.Lock()
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			m.items = append(m.items, listItem{path: msg.Path, status: audit.StatusPending})
			idx = len(m.items) - 1
			m.itemMap[msg.Path] = idx
			m.summary.Discovered++
		}
		item := &m.items[idx]
		switch {
		case msg.Status == audit.StatusProcessing:
			m.startedAt[msg.Path] = time.Now()
			item.duration = 0
		case msg.Status.IsFinal():
			item.duration = msg.Duration
			if item.duration == 0 {
				if start, found := m.startedAt[msg.Path]; found {
					item.duration = time.Since(start)
				}
			}
			delete(m.startedAt, msg.Path)
		}
		if msg.Status.IsFinal() && !item.status.IsFinal() {
			m.count(msg.Status, 1)
		} else if !msg.Status.IsFinal() && item.status.IsFinal() {
			m.count(item.status, -1)
		}
		item.status = msg.Status
		item.message = msg.Message
		cmds = append(cmds, m.debounceListUpdate())
		m.listLock.Unlock()

		if msg.Status == audit.StatusProcessing && m.phaseMessage != phaseComplete {
			m.phaseMessage = phaseAuditing
		}

	case hooks.RunCompleteMsg:
		s := msg.Report.Summary
		m.phaseMessage = phaseComplete
		m.summary.Succeeded = s.SucceededCount
		m.summary.Skipped = s.SkippedCount
		m.summary.Failed = s.FailedCount
		m.summary.ReportsGenerated = s.ReportsGenerated
		if s.Cancelled {
			m.notice = "Run cancelled before every ontology was audited."
		} else if s.FailedCount > 0 {
			m.notice = fmt.Sprintf("%d ontologies had failed reports; see the batch report for details.", s.FailedCount)
		}

	case UpdateListMsg:
		m.listLock.Lock()
		items := make([]list.Item, len(m.items))
		for i, item := range m.items {
			items[i] = item
		}
		m.listLock.Unlock()
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

// count adjusts the footer counter for status by delta. Caller holds listLock.
func (m *Model) count(status audit.Status, delta int) {
	switch status {
	case audit.StatusSuccess, audit.StatusGenerated:
		m.summary.Succeeded += delta
	case audit.StatusSkipped:
		m.summary.Skipped += delta
	case audit.StatusFailed:
		m.summary.Failed += delta
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("ontaudit %s", m.version)
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseComplete && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width-HeaderStyle.GetHorizontalFrameSize(), headerLeft, headerRight, lipgloss.Top))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf(
		"Done: %d | Complete: %d | Failed: %d | Reports: %d | Found: %d | Elapsed: %s",
		m.summary.Succeeded,
		m.summary.Skipped,
		m.summary.Failed,
		m.summary.ReportsGenerated,
		m.summary.Discovered,
		elapsed,
	)
	footer := FooterStyle.Width(m.width).Render(spread(m.width-FooterStyle.GetHorizontalFrameSize(), footerLeft, "q: quit", lipgloss.Bottom))

	noticeView := ""
	if m.notice != "" {
		noticeView = StatusStyleFailed.Render(m.notice) + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), noticeView, footer)
}

// spread places left and right at the two ends of a line of width.
func spread(width int, left, right string, pos lipgloss.Position) string {
	center := ""
	if gap := width - lipgloss.Width(left) - lipgloss.Width(right); gap > 0 {
		center = lipgloss.PlaceHorizontal(gap, lipgloss.Center, " ")
	}
	return lipgloss.JoinHorizontal(pos, left, center, right)
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.DefaultItem.
func (i listItem) Title() string { return filepath.Base(i.path) }

// Description implements list.DefaultItem.
func (i listItem) Description() string {
	style := StatusStylePending
	icon := " "
	details := ""
	switch i.status {
	case audit.StatusSuccess, audit.StatusGenerated:
		style, icon = StatusStyleSuccess, "✓"
		details = formatDuration(i.duration)
	case audit.StatusSkipped:
		style, icon = StatusStyleSkipped, "="
		details = "reports already complete"
	case audit.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
		details = i.message
	case audit.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	}
	return fmt.Sprintf("%s %s", style.Render(fmt.Sprintf("[%s]", icon)), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// UpdateListMsg asks the model to copy its items into the list component.
type UpdateListMsg struct{}

const listUpdateDebounceDuration = 50 * time.Millisecond

// debounceListUpdate coalesces bursts of status messages into one list
// refresh. Caller holds listLock.
func (m *Model) debounceListUpdate() tea.Cmd {
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	timer := time.NewTimer(listUpdateDebounceDuration)
	m.debounceTimer = timer
	return func() tea.Msg {
		<-timer.C
		return UpdateListMsg{}
	}
}

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("24")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("23")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("23")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusSkipped    = lipgloss.Color("39")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("214")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped    = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
