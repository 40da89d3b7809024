package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// Helper function to create a temporary config file
func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ontaudit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	out := filepath.Join(t.TempDir(), "analysis")
	flags := newFlags(t, "--output", out)

	opts, logger, err := LoadAndValidate("", "", "1.2.3", false, flags)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, opts.Logger)

	assert.Equal(t, out, opts.OutputPath)
	assert.Equal(t, audit.DefaultGroupMarker, opts.GroupMarker)
	assert.Equal(t, audit.DefaultGroupDir, opts.GroupDir)
	assert.Equal(t, audit.DefaultSampleSize, opts.SampleSize)
	assert.Equal(t, uint64(audit.DefaultSeed), opts.Seed)
	assert.Equal(t, audit.DefaultConcurrency, opts.Concurrency)
	assert.True(t, opts.RunRemote)
	assert.True(t, opts.TuiEnabled)
	assert.True(t, opts.PerOntologyPitfallSummary)
	assert.Equal(t, audit.DefaultPitfallIDs, opts.PitfallIDs)
	assert.Equal(t, audit.DefaultFairDivisors(), opts.FairDivisors)
	assert.Equal(t, audit.DefaultReasonerCommand, opts.ReasonerConfig.Command)
	assert.Equal(t, audit.DefaultReasonerTimeout, opts.ReasonerTimeout)
	assert.Equal(t, audit.DefaultIRITemplate, opts.IRITemplate)
	assert.Equal(t, audit.OutputFormatText, opts.OutputFormat)

	assert.Equal(t, audit.RetryPolicy{
		MaxAttempts:     audit.DefaultMaxAttempts,
		InitialInterval: audit.DefaultInitialInterval,
		MaxInterval:     audit.DefaultMaxInterval,
		AttemptTimeout:  audit.DefaultAttemptTimeout,
	}, opts.Retry)
	assert.Equal(t, audit.DefaultSweepAttempts, opts.SweepAttempts)

	assert.Equal(t, audit.DefaultPitfallURL, opts.Services.PitfallURL)
	assert.Equal(t, audit.DefaultRequestsPerMinute, opts.Services.RequestsPerMinute)
	assert.Equal(t, "ontaudit/1.2.3", opts.Services.UserAgent)

	assert.True(t, opts.LedgerConfig.Enabled)
	assert.Equal(t, filepath.Join(out, audit.LedgerFileName), opts.LedgerConfig.Path)
	assert.Equal(t, "gob", opts.LedgerConfig.Format)
	assert.Equal(t, "1.2.3", opts.AppVersion)
}

func TestLoadAndValidate_ConfigFileAndProfile(t *testing.T) {
	out := t.TempDir()
	cfg := createTempConfigFile(t, `
output: `+out+`
sampleSize: 7
runRemote: false
fairDivisors:
  A: 1
retry:
  maxAttempts: 3
  initialInterval: 10ms
reasoner:
  command: ["hermit", "-k", "{input}"]
  timeout: 30s
ledger:
  format: json
profiles:
  fast:
    concurrency: 4
    retry:
      maxAttempts: 1
`)

	t.Run("file", func(t *testing.T) {
		opts, _, err := LoadAndValidate(cfg, "", "dev", false, newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, cfg, opts.ConfigFilePath)
		assert.Equal(t, out, opts.OutputPath)
		assert.Equal(t, 7, opts.SampleSize)
		assert.False(t, opts.RunRemote)
		assert.Equal(t, audit.FairDivisorAUnaveraged, opts.FairDivisors["A"])
		assert.Equal(t, 4.0, opts.FairDivisors["F"], "unset buckets keep their defaults")
		assert.Equal(t, 3, opts.Retry.MaxAttempts)
		assert.Equal(t, 10*time.Millisecond, opts.Retry.InitialInterval)
		assert.Equal(t, []string{"hermit", "-k", "{input}"}, opts.ReasonerConfig.Command)
		assert.Equal(t, 30*time.Second, opts.ReasonerTimeout)
		assert.Equal(t, "json", opts.LedgerConfig.Format)
	})

	t.Run("profile", func(t *testing.T) {
		opts, _, err := LoadAndValidate(cfg, "fast", "dev", false, newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, "fast", opts.ProfileName)
		assert.Equal(t, 4, opts.Concurrency)
		assert.Equal(t, 1, opts.Retry.MaxAttempts)
		assert.Equal(t, 7, opts.SampleSize, "file values outside the profile survive")
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, _, err := LoadAndValidate(cfg, "missing", "dev", false, newFlags(t))
		assert.ErrorIs(t, err, audit.ErrConfigValidation)
	})

	t.Run("flags win", func(t *testing.T) {
		flags := newFlags(t, "--sample-size", "2", "--max-attempts", "9", "--fair-divisor-a", "2")
		opts, _, err := LoadAndValidate(cfg, "fast", "dev", false, flags)
		require.NoError(t, err)
		assert.Equal(t, 2, opts.SampleSize)
		assert.Equal(t, 9, opts.Retry.MaxAttempts)
		assert.Equal(t, audit.DefaultFairDivisorA, opts.FairDivisors["A"])
	})
}

func TestLoadAndValidate_MissingConfigFile(t *testing.T) {
	_, _, err := LoadAndValidate(filepath.Join(t.TempDir(), "nope.yaml"), "", "dev", false, newFlags(t))
	assert.ErrorIs(t, err, audit.ErrConfigValidation)
}

func TestLoadAndValidate_Env(t *testing.T) {
	t.Setenv("ONTAUDIT_SAMPLESIZE", "11")
	t.Setenv("ONTAUDIT_RETRY_ATTEMPTTIMEOUT", "5s")

	opts, _, err := LoadAndValidate("", "", "dev", false, newFlags(t, "-o", t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 11, opts.SampleSize)
	assert.Equal(t, 5*time.Second, opts.Retry.AttemptTimeout)
}

func TestLoadAndValidate_ExplicitFlags(t *testing.T) {
	out := t.TempDir()
	ledgerPath := filepath.Join(t.TempDir(), "attempts.json")
	flags := newFlags(t,
		"-o", out,
		"--no-remote",
		"--no-tui",
		"--reasoner-command", "robot reason --input {input}",
		"--ledger", ledgerPath,
		"--ignore", "drafts/**",
		"--ignore", "*.bak",
		"--concurrency", "0",
		"--output-format", "YAML",
	)
	opts, _, err := LoadAndValidate("", "", "dev", false, flags)
	require.NoError(t, err)

	assert.False(t, opts.RunRemote)
	assert.False(t, opts.TuiEnabled)
	assert.Equal(t, []string{"robot", "reason", "--input", "{input}"}, opts.ReasonerConfig.Command)
	assert.Equal(t, ledgerPath, opts.LedgerConfig.Path)
	assert.Equal(t, []string{"drafts/**", "*.bak"}, opts.IgnorePatterns)
	assert.Greater(t, opts.Concurrency, 0, "zero concurrency derives the CPU count")
	assert.Equal(t, audit.OutputFormatYAML, opts.OutputFormat)

	opts, _, err = LoadAndValidate("", "", "dev", false, newFlags(t, "-o", out, "--ledger", "off"))
	require.NoError(t, err)
	assert.False(t, opts.LedgerConfig.Enabled)
	assert.Empty(t, opts.LedgerConfig.Path)
}

func TestLoadAndValidate_VerboseDisablesTUI(t *testing.T) {
	opts, _, err := LoadAndValidate("", "", "dev", true, newFlags(t, "-o", t.TempDir()))
	require.NoError(t, err)
	assert.True(t, opts.Verbose)
	assert.False(t, opts.TuiEnabled)
}

func TestLoadAndValidate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		cfg  string
	}{
		{name: "negative concurrency", args: []string{"--concurrency", "-1"}},
		{name: "negative sample size", args: []string{"--sample-size", "-2"}},
		{name: "zero attempts", args: []string{"--max-attempts", "0"}},
		{name: "bad timeout", args: []string{"--attempt-timeout", "soon"}},
		{name: "negative timeout", args: []string{"--attempt-timeout", "-1s"}},
		{name: "unknown output format", args: []string{"--output-format", "xml"}},
		{name: "zero divisor", args: []string{"--fair-divisor-a", "0"}},
		{name: "bad ignore glob", args: []string{"--ignore", "[abc"}},
		{name: "bad iri template", args: []string{"--iri-template", "{{.Seg"}},
		{name: "empty reasoner command", args: []string{"--reasoner-command", "  "}},
		{name: "unknown fair bucket", cfg: "fairDivisors:\n  X: 2\n"},
		{name: "bad ledger format", cfg: "ledger:\n  format: xml\n"},
		{name: "zero sweep attempts", cfg: "retry:\n  sweepAttempts: 0\n"},
		{name: "negative rate", cfg: "services:\n  requestsPerMinute: -1\n"},
		{name: "nested group dir", cfg: "groupDir: a/b\n"},
		{name: "bad pitfall id", cfg: "pitfalls: [2, -3]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile := ""
			if tt.cfg != "" {
				cfgFile = createTempConfigFile(t, tt.cfg)
			}
			flags := newFlags(t, append([]string{"-o", t.TempDir()}, tt.args...)...)
			_, _, err := LoadAndValidate(cfgFile, "", "dev", false, flags)
			require.Error(t, err)
			assert.ErrorIs(t, err, audit.ErrConfigValidation)
		})
	}
}
