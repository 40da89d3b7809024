package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/ontaudit/internal/cli/hooks"
	"github.com/stackvity/ontaudit/pkg/audit"
)

func newTestModel(width, height int) *Model {
	m := NewModel("1.0.0")
	m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return m
}

func update(t *testing.T, m *Model, msg tea.Msg) *Model {
	t.Helper()
	next, _ := m.Update(msg)
	updated, ok := next.(*Model)
	require.True(t, ok)
	return updated
}

func TestModel_Init(t *testing.T) {
	cmd := newTestModel(80, 25).Init()
	require.NotNil(t, cmd)
	_, ok := cmd().(spinner.TickMsg)
	assert.True(t, ok, "Init should start the spinner")
}

func TestModel_Update_Quit(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := newTestModel(80, 25)
			var msg tea.KeyMsg
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else {
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			}
			next, cmd := m.Update(msg)
			require.NotNil(t, cmd)
			assert.True(t, next.(*Model).quitting)
			assert.Equal(t, tea.Quit(), cmd())
			assert.Equal(t, "Exiting...\n", next.View())
		})
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	m := newTestModel(80, 25)
	next, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Nil(t, cmd)

	updated := next.(*Model)
	assert.True(t, updated.initialized)
	assert.Equal(t, 100, updated.list.Width())
	assert.Equal(t, 30-listHeightMargin, updated.list.Height())

	tiny := update(t, m, tea.WindowSizeMsg{Width: 10, Height: 2})
	assert.Equal(t, 1, tiny.list.Height())
}

func TestModel_Update_Discovered(t *testing.T) {
	m := newTestModel(80, 25)
	next, cmd := m.Update(hooks.OntologyDiscoveredMsg{Path: "corpus/geo.owl"})
	require.NotNil(t, cmd, "discovery schedules a list refresh")

	updated := next.(*Model)
	require.Len(t, updated.items, 1)
	assert.Equal(t, audit.StatusPending, updated.items[0].status)
	assert.Equal(t, 1, updated.summary.Discovered)
	assert.Equal(t, phaseScanning, updated.phaseMessage)

	updated = update(t, updated, hooks.OntologyDiscoveredMsg{Path: "corpus/geo.owl"})
	assert.Len(t, updated.items, 1, "duplicate discovery is ignored")
}

func TestModel_Update_StatusFlow(t *testing.T) {
	m := newTestModel(80, 25)
	m = update(t, m, hooks.OntologyDiscoveredMsg{Path: "a.owl"})
	m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "a.owl", Status: audit.StatusProcessing})
	assert.Equal(t, phaseAuditing, m.phaseMessage)
	assert.Contains(t, m.startedAt, "a.owl")

	m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "a.owl", Status: audit.StatusSuccess, Duration: 80 * time.Millisecond})
	assert.Equal(t, audit.StatusSuccess, m.items[0].status)
	assert.Equal(t, 80*time.Millisecond, m.items[0].duration)
	assert.NotContains(t, m.startedAt, "a.owl")
	assert.Equal(t, 1, m.summary.Succeeded)

	m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "b.owl", Status: audit.StatusSkipped})
	assert.Equal(t, 2, m.summary.Discovered, "status for an unseen ontology adds a row")
	assert.Equal(t, 1, m.summary.Skipped)

	m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "c.owl", Status: audit.StatusFailed, Message: "load: bad syntax"})
	assert.Equal(t, 1, m.summary.Failed)
	assert.Equal(t, "load: bad syntax", m.items[2].message)

	m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "c.owl", Status: audit.StatusProcessing})
	assert.Equal(t, 0, m.summary.Failed, "leaving a final state reverts its count")
}

func TestModel_Update_RunComplete(t *testing.T) {
	m := newTestModel(80, 25)
	m = update(t, m, hooks.RunCompleteMsg{Report: audit.Report{Summary: audit.ReportSummary{
		SucceededCount:   3,
		SkippedCount:     2,
		FailedCount:      1,
		ReportsGenerated: 9,
	}}})

	assert.Equal(t, phaseComplete, m.phaseMessage)
	assert.Equal(t, Summary{Succeeded: 3, Skipped: 2, Failed: 1, ReportsGenerated: 9, StartTime: m.summary.StartTime}, m.summary)
	assert.Contains(t, m.notice, "1 ontologies had failed reports")

	cancelled := update(t, newTestModel(80, 25), hooks.RunCompleteMsg{Report: audit.Report{Summary: audit.ReportSummary{Cancelled: true}}})
	assert.Contains(t, cancelled.notice, "cancelled")
}

func TestModel_UpdateListMsg(t *testing.T) {
	m := newTestModel(80, 25)
	m = update(t, m, hooks.OntologyDiscoveredMsg{Path: "corpus/a.owl"})
	m = update(t, m, hooks.OntologyDiscoveredMsg{Path: "corpus/b.owl"})
	m = update(t, m, UpdateListMsg{})
	assert.Len(t, m.list.Items(), 2)
}

func TestModel_View(t *testing.T) {
	t.Run("uninitialized", func(t *testing.T) {
		assert.Equal(t, phaseInitializing, NewModel("").View())
	})

	t.Run("running", func(t *testing.T) {
		m := newTestModel(120, 20)
		m = update(t, m, hooks.OntologyStatusUpdateMsg{Path: "corpus/geo.owl", Status: audit.StatusFailed, Message: "fair_check: HTTP 502"})
		m = update(t, m, UpdateListMsg{})
		view := m.View()
		assert.Contains(t, view, "ontaudit 1.0.0")
		assert.Contains(t, view, "geo.owl")
		assert.Contains(t, view, "fair_check: HTTP 502")
		assert.Contains(t, view, "Failed: 1")
		assert.Contains(t, view, "q: quit")
	})

	t.Run("header and footer fit the width", func(t *testing.T) {
		m := newTestModel(120, 20)
		m = update(t, m, UpdateListMsg{})
		lines := strings.Split(m.View(), "\n")
		assert.Contains(t, lines[0], "ontaudit 1.0.0")
		assert.Contains(t, lines[len(lines)-1], "q: quit")
		for i, line := range lines {
			assert.LessOrEqual(t, lipgloss.Width(line), 120, "line %d overflows", i)
		}
	})

	t.Run("complete", func(t *testing.T) {
		m := newTestModel(120, 20)
		m = update(t, m, hooks.RunCompleteMsg{Report: audit.Report{Summary: audit.ReportSummary{Cancelled: true}}})
		view := m.View()
		assert.Contains(t, view, phaseComplete)
		assert.True(t, strings.Contains(view, "Run cancelled"))
	})
}

func TestListItem_Description(t *testing.T) {
	tests := []struct {
		item listItem
		want string
	}{
		{listItem{status: audit.StatusSuccess, duration: 1500 * time.Millisecond}, "1.50s"},
		{listItem{status: audit.StatusGenerated, duration: 20 * time.Millisecond}, "20ms"},
		{listItem{status: audit.StatusSkipped}, "reports already complete"},
		{listItem{status: audit.StatusFailed, message: "boom"}, "boom"},
	}
	for _, tt := range tests {
		t.Run(string(tt.item.status), func(t *testing.T) {
			assert.Contains(t, tt.item.Description(), tt.want)
		})
	}
	assert.Equal(t, "geo.owl", listItem{path: "x/y/geo.owl"}.Title())
	assert.Equal(t, "x/y/geo.owl", listItem{path: "x/y/geo.owl"}.FilterValue())
	assert.Equal(t, "", formatDuration(0))
	assert.Equal(t, "500µs", formatDuration(500*time.Microsecond))
}
