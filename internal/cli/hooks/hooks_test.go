package hooks

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/ontaudit/pkg/audit"
)

type MockTUIProgram struct {
	mock.Mock
}

func (m *MockTUIProgram) Send(msg tea.Msg) {
	m.Called(msg)
}

type MockProgressBar struct {
	mock.Mock
}

func (m *MockProgressBar) Add(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProgressBar) Describe(description string) {
	m.Called(description)
}

func (m *MockProgressBar) Close() error {
	args := m.Called()
	return args.Error(0)
}

func jsonLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func TestCLIHooks_OnOntologyDiscovered(t *testing.T) {
	testPath := "corpus/DABGEO/geo.owl"

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", OntologyDiscoveredMsg{Path: testPath}).Once()

		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), true, false, mockTUI, nil)
		require.NoError(t, hooks.OnOntologyDiscovered(testPath))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("Verbose Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), false, true, mockTUI, nil)
		require.NoError(t, hooks.OnOntologyDiscovered(testPath))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"level":"DEBUG"`)
		assert.Contains(t, logOutput, `"msg":"Ontology discovered"`)
		assert.Contains(t, logOutput, `"path":"`+testPath+`"`)
	})

	t.Run("Neither TUI nor Verbose Enabled", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), false, false, nil, nil)
		require.NoError(t, hooks.OnOntologyDiscovered(testPath))
		assert.Empty(t, logBuf.String())
	})
}

func TestCLIHooks_OnOntologyStatusUpdate(t *testing.T) {
	testPath := "corpus/pizza.owl"
	testDuration := 50 * time.Millisecond

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg OntologyStatusUpdateMsg) bool {
			return msg.Path == testPath &&
				msg.Status == audit.StatusProcessing &&
				msg.Message == "starting" &&
				msg.Duration == testDuration
		})).Once()

		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), true, false, mockTUI, nil)
		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusProcessing, "starting", testDuration))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("Verbose Enabled", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), false, true, nil, nil)

		testCases := []struct {
			status        audit.Status
			message       string
			expectedLevel string
			expectedMsg   string
			checkKey      string
		}{
			{audit.StatusProcessing, "starting", "DEBUG", "Ontology status updated", "message"},
			{audit.StatusSuccess, "done", "INFO", "Ontology status updated", "message"},
			{audit.StatusSkipped, "complete", "INFO", "Ontology status updated", "message"},
			{audit.StatusFailed, "pitfalls: HTTP 502", "ERROR", "Ontology processing failed", "error"},
		}
		for _, tc := range testCases {
			logBuf.Reset()
			require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, tc.status, tc.message, testDuration))
			logOutput := logBuf.String()

			assert.Regexp(t, regexp.QuoteMeta(fmt.Sprintf(`"duration":%d`, testDuration.Nanoseconds())), logOutput)
			assert.Contains(t, logOutput, `"level":"`+tc.expectedLevel+`"`)
			assert.Contains(t, logOutput, `"msg":"`+tc.expectedMsg+`"`)
			assert.Contains(t, logOutput, `"status":"`+string(tc.status)+`"`)
			assert.Contains(t, logOutput, `"`+tc.checkKey+`":"`+tc.message+`"`)
		}
	})

	t.Run("Progress Bar Enabled", func(t *testing.T) {
		mockProgress := new(MockProgressBar)
		mockProgress.On("Add", 1).Return(nil).Times(3)
		mockProgress.On("Describe", "pizza.owl").Once()
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelError), false, false, nil, mockProgress)

		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusProcessing, "", 0))
		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusSuccess, "", testDuration))
		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusSkipped, "", 0))
		assert.Empty(t, logBuf.String())

		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusFailed, "load: broken", testDuration))
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"msg":"Ontology processing failed"`)
		assert.Contains(t, logOutput, `"error":"load: broken"`)
		mockProgress.AssertExpectations(t)
	})

	t.Run("Standard Log Mode", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelInfo), false, false, nil, nil)

		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusSuccess, "", testDuration))
		assert.Empty(t, logBuf.String())
		require.NoError(t, hooks.OnOntologyStatusUpdate(testPath, audit.StatusFailed, "reasoner: timeout", testDuration))
		assert.Contains(t, logBuf.String(), `"level":"ERROR"`)
	})
}

func TestCLIHooks_OnRunComplete(t *testing.T) {
	finalReport := audit.Report{Summary: audit.ReportSummary{TotalOntologies: 10}}

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg RunCompleteMsg) bool {
			return msg.Report.Summary.TotalOntologies == 10
		})).Once()
		mockProgress := new(MockProgressBar)

		hooks := NewCLIHooks(jsonLogger(&bytes.Buffer{}, slog.LevelDebug), true, false, mockTUI, mockProgress)
		require.NoError(t, hooks.OnRunComplete(finalReport))
		mockTUI.AssertExpectations(t)
		mockProgress.AssertNotCalled(t, "Close")
	})

	t.Run("Progress Bar Enabled", func(t *testing.T) {
		mockProgress := new(MockProgressBar)
		mockProgress.On("Close").Return(nil).Once()
		out := &bytes.Buffer{}

		hooks := NewCLIHooks(jsonLogger(&bytes.Buffer{}, slog.LevelInfo), false, false, nil, mockProgress)
		hooks.out = out
		require.NoError(t, hooks.OnRunComplete(finalReport))

		mockProgress.AssertExpectations(t)
		assert.Equal(t, "\n", out.String())
	})

	t.Run("Standard Log Mode", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(jsonLogger(logBuf, slog.LevelDebug), false, false, nil, nil)
		require.NoError(t, hooks.OnRunComplete(finalReport))
		assert.Empty(t, logBuf.String())
	})
}
