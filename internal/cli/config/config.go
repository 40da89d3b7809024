package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stackvity/ontaudit/pkg/audit/ledger"
	"github.com/stackvity/ontaudit/pkg/util"
)

const (
	EnvPrefix         = "ONTAUDIT"
	DefaultConfigName = "ontaudit"
)

// flagKeys maps flags bound through viper to their config keys. Flags whose
// value needs translation (negations, single map entries, split commands)
// are applied explicitly after Unmarshal instead.
var flagKeys = map[string]string{
	"output":          "output",
	"verbose":         "verbose",
	"output-format":   "outputFormat",
	"report-file":     "reportFile",
	"metrics-file":    "metricsFile",
	"concurrency":     "concurrency",
	"max-attempts":    "retry.maxAttempts",
	"attempt-timeout": "retry.attemptTimeout",
	"seed":            "seed",
	"sample-size":     "sampleSize",
	"ignore":          "ignore",
	"iri-template":    "iriTemplate",
}

// RegisterFlags defines the persistent flags every subcommand shares.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("output", "o", audit.DefaultOutputPath, "Root directory for generated reports")
	flags.String("config", "", "Config file (default searches ./ontaudit.yaml, ~/.config/ontaudit/, ~/.ontaudit/)")
	flags.String("profile", "", "Configuration profile to apply")
	flags.BoolP("verbose", "v", false, "Enable debug logging (disables the TUI)")
	flags.Bool("no-tui", false, "Disable the interactive terminal UI")
	flags.String("output-format", audit.OutputFormatText, "Batch report format (text, json, yaml, toml)")
	flags.String("report-file", "", "Write the batch report to this file instead of stdout")
	flags.String("metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	flags.Int("concurrency", audit.DefaultConcurrency, "Ontologies processed in parallel (0 = number of CPUs)")
	flags.Int("max-attempts", audit.DefaultMaxAttempts, "Maximum attempts per remote report")
	flags.String("attempt-timeout", audit.DefaultAttemptTimeout.String(), "Timeout of a single remote attempt")
	flags.Uint64("seed", audit.DefaultSeed, "Seed of the class sample")
	flags.Int("sample-size", audit.DefaultSampleSize, "Number of classes sampled into the statistics report")
	flags.Bool("no-remote", false, "Skip the remote assessment services")
	flags.Float64("fair-divisor-a", audit.DefaultFairDivisorA, "Divisor of the FAIR Accessibility bucket")
	flags.StringArray("ignore", []string{}, "Glob patterns of corpus paths to skip (repeatable)")
	flags.String("reasoner-command", "", "Reasoner command line; {input} is replaced by the ontology path")
	flags.String("ledger", "", "Attempt ledger file (\"off\" disables it)")
	flags.String("iri-template", "", "Template deriving an ontology IRI from its corpus path")
}

// LoadAndValidate loads configuration from defaults, file, profile,
// environment and flags, validates the merged result and derives the typed
// fields of audit.Options. Collaborators are not injected here.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (audit.Options, *slog.Logger, error) {
	var opts audit.Options
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v, appVersion)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("User home directory unavailable, searching only the working directory", slog.Any("error", err))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			configFileUsed := cfgFile
			if configFileUsed == "" {
				configFileUsed = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", configFileUsed), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("%w: error reading config file '%s': %w", audit.ErrConfigValidation, configFileUsed, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", audit.ErrConfigValidation, profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			err := fmt.Errorf("%w: failed to load profile '%s' settings", audit.ErrConfigValidation, profileName)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagKeys {
		flag := flags.Lookup(flagName)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", flagName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
		}
	}

	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("%w: error unmarshalling configuration: %w", audit.ErrConfigValidation, err)
	}

	if verbose || (flags.Changed("verbose") && flagBool(flags, "verbose")) {
		opts.Verbose = true
	}
	if flags.Changed("no-tui") && flagBool(flags, "no-tui") {
		opts.TuiEnabled = false
	}
	if flags.Changed("no-remote") && flagBool(flags, "no-remote") {
		opts.RunRemote = false
	}
	if flags.Changed("reasoner-command") {
		command, _ := flags.GetString("reasoner-command")
		opts.ReasonerConfig.Command = strings.Fields(command)
	}
	if flags.Changed("ledger") {
		ledgerPath, _ := flags.GetString("ledger")
		if strings.EqualFold(ledgerPath, "off") {
			opts.LedgerConfig.Enabled = false
		} else {
			opts.LedgerConfig.Enabled = true
			opts.LedgerConfig.Path = ledgerPath
		}
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.Bool("verbose", opts.Verbose),
		slog.String("logLevel", logLevel.String()),
	)
	return opts, logger, nil
}

func flagBool(flags *pflag.FlagSet, name string) bool {
	b, _ := flags.GetBool(name)
	return b
}

// setDefaults establishes the default values for configuration options in Viper.
func setDefaults(v *viper.Viper, appVersion string) {
	// --- Paths ---
	v.SetDefault("output", audit.DefaultOutputPath)
	v.SetDefault("groupMarker", audit.DefaultGroupMarker)
	v.SetDefault("groupDir", audit.DefaultGroupDir)

	// --- Behavior & Control ---
	v.SetDefault("verbose", false)
	v.SetDefault("tuiEnabled", true)
	v.SetDefault("concurrency", audit.DefaultConcurrency)
	v.SetDefault("runRemote", true)
	v.SetDefault("ignore", []string{})
	v.SetDefault("defaultEncoding", "")

	// --- Statistics ---
	v.SetDefault("sampleSize", audit.DefaultSampleSize)
	v.SetDefault("seed", audit.DefaultSeed)

	// --- Remote Assessments ---
	v.SetDefault("pitfalls", audit.DefaultPitfallIDs)
	v.SetDefault("perOntologyPitfallSummary", true)
	v.SetDefault("fairDivisors", audit.DefaultFairDivisors())
	v.SetDefault("services.pitfallURL", audit.DefaultPitfallURL)
	v.SetDefault("services.fairURL", audit.DefaultFairURL)
	v.SetDefault("services.qualityURL", audit.DefaultQualityURL)
	v.SetDefault("services.requestsPerMinute", audit.DefaultRequestsPerMinute)
	v.SetDefault("services.userAgent", "ontaudit/"+appVersion)
	v.SetDefault("retry.maxAttempts", audit.DefaultMaxAttempts)
	v.SetDefault("retry.sweepAttempts", audit.DefaultSweepAttempts)
	v.SetDefault("retry.initialInterval", audit.DefaultInitialInterval.String())
	v.SetDefault("retry.maxInterval", audit.DefaultMaxInterval.String())
	v.SetDefault("retry.attemptTimeout", audit.DefaultAttemptTimeout.String())

	// --- Reasoner ---
	v.SetDefault("reasoner.command", audit.DefaultReasonerCommand)
	v.SetDefault("reasoner.timeout", audit.DefaultReasonerTimeout.String())

	// --- Reconciliation ---
	v.SetDefault("iriTemplate", audit.DefaultIRITemplate)

	// --- Output & Reporting ---
	v.SetDefault("outputFormat", audit.OutputFormatText)
	v.SetDefault("reportFile", "")
	v.SetDefault("metricsFile", "")
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "")
	v.SetDefault("ledger.format", ledger.FormatGob)
}

// isValidEnumValue checks if a given string value is present in a slice of allowed enum values.
func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// parseDuration parses a duration key, rejecting negative values.
func parseDuration(key, value string, logger *slog.Logger) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		err = fmt.Errorf("%w: invalid duration '%s' for key '%s': %w", audit.ErrConfigValidation, value, key, err)
		logger.Error(err.Error(), slog.String("key", key), slog.String("value", value))
		return 0, err
	}
	if d < 0 {
		err = fmt.Errorf("%w: invalid negative duration '%s' for key '%s'", audit.ErrConfigValidation, value, key)
		logger.Error(err.Error(), slog.String("key", key), slog.String("value", value))
		return 0, err
	}
	return d, nil
}

// absPath resolves an optional path key to an absolute path.
func absPath(key, value string, logger *slog.Logger) (string, error) {
	if value == "" {
		return "", nil
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		err = fmt.Errorf("%w: cannot resolve absolute path '%s' for key '%s': %w", audit.ErrConfigValidation, value, key, err)
		logger.Error(err.Error(), slog.String("key", key), slog.String("value", value))
		return "", err
	}
	return abs, nil
}

// validateAndDeriveOptions performs semantic validation on the populated
// Options and calculates derived fields. Errors wrap audit.ErrConfigValidation.
func validateAndDeriveOptions(opts *audit.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	// === Paths ===
	if opts.OutputPath == "" {
		err := fmt.Errorf("%w: output path is required (-o, --output)", audit.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "output"))
		return err
	}
	var err error
	if opts.OutputPath, err = absPath("output", opts.OutputPath, logger); err != nil {
		return err
	}
	if opts.ReportFile, err = absPath("reportFile", opts.ReportFile, logger); err != nil {
		return err
	}
	if opts.MetricsFile, err = absPath("metricsFile", opts.MetricsFile, logger); err != nil {
		return err
	}
	if opts.GroupDir == "" {
		opts.GroupDir = audit.DefaultGroupDir
	}
	if opts.GroupDir != filepath.Base(opts.GroupDir) {
		err := fmt.Errorf("%w: groupDir '%s' must be a single directory name", audit.ErrConfigValidation, opts.GroupDir)
		logger.Error(err.Error(), slog.String("key", "groupDir"))
		return err
	}
	if invalid := util.InvalidPatterns(opts.IgnorePatterns); len(invalid) > 0 {
		err := fmt.Errorf("%w: invalid ignore patterns %v", audit.ErrConfigValidation, invalid)
		logger.Error(err.Error(), slog.String("key", "ignore"))
		return err
	}

	// === Enums ===
	opts.OutputFormat = strings.ToLower(opts.OutputFormat)
	if !isValidEnumValue(opts.OutputFormat, audit.ValidOutputFormats) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", audit.ErrConfigValidation, opts.OutputFormat, audit.ValidOutputFormats)
		logger.Error(err.Error(), slog.String("key", "outputFormat"), slog.String("value", opts.OutputFormat))
		return err
	}
	opts.LedgerConfig.Format = strings.ToLower(opts.LedgerConfig.Format)
	allowedLedgerFormats := []string{ledger.FormatGob, ledger.FormatJSON}
	if !isValidEnumValue(opts.LedgerConfig.Format, allowedLedgerFormats) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'ledger.format'. Allowed: %v", audit.ErrConfigValidation, opts.LedgerConfig.Format, allowedLedgerFormats)
		logger.Error(err.Error(), slog.String("key", "ledger.format"), slog.String("value", opts.LedgerConfig.Format))
		return err
	}

	// === Numeric ranges ===
	if opts.Concurrency < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", audit.ErrConfigValidation, opts.Concurrency)
		logger.Error(err.Error(), slog.String("key", "concurrency"), slog.Int("value", opts.Concurrency))
		return err
	}
	if opts.SampleSize < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'sampleSize' (flag --sample-size). Must be >= 0", audit.ErrConfigValidation, opts.SampleSize)
		logger.Error(err.Error(), slog.String("key", "sampleSize"), slog.Int("value", opts.SampleSize))
		return err
	}
	if opts.RetryConfig.MaxAttempts < 1 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'retry.maxAttempts' (flag --max-attempts). Must be >= 1", audit.ErrConfigValidation, opts.RetryConfig.MaxAttempts)
		logger.Error(err.Error(), slog.String("key", "retry.maxAttempts"), slog.Int("value", opts.RetryConfig.MaxAttempts))
		return err
	}
	if opts.RetryConfig.SweepAttempts < 1 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'retry.sweepAttempts'. Must be >= 1", audit.ErrConfigValidation, opts.RetryConfig.SweepAttempts)
		logger.Error(err.Error(), slog.String("key", "retry.sweepAttempts"), slog.Int("value", opts.RetryConfig.SweepAttempts))
		return err
	}
	if opts.Services.RequestsPerMinute < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'services.requestsPerMinute'. Must be >= 0", audit.ErrConfigValidation, opts.Services.RequestsPerMinute)
		logger.Error(err.Error(), slog.String("key", "services.requestsPerMinute"), slog.Int("value", opts.Services.RequestsPerMinute))
		return err
	}
	for _, id := range opts.PitfallIDs {
		if id <= 0 {
			err := fmt.Errorf("%w: invalid pitfall id %d for key 'pitfalls'. Must be > 0", audit.ErrConfigValidation, id)
			logger.Error(err.Error(), slog.String("key", "pitfalls"))
			return err
		}
	}

	// === Durations ===
	initial, err := parseDuration("retry.initialInterval", opts.RetryConfig.InitialInterval, logger)
	if err != nil {
		return err
	}
	maxInterval, err := parseDuration("retry.maxInterval", opts.RetryConfig.MaxInterval, logger)
	if err != nil {
		return err
	}
	attemptTimeout, err := parseDuration("retry.attemptTimeout", opts.RetryConfig.AttemptTimeout, logger)
	if err != nil {
		return err
	}
	if opts.ReasonerTimeout, err = parseDuration("reasoner.timeout", opts.ReasonerConfig.Timeout, logger); err != nil {
		return err
	}
	opts.Retry = audit.RetryPolicy{
		MaxAttempts:     opts.RetryConfig.MaxAttempts,
		InitialInterval: initial,
		MaxInterval:     maxInterval,
		AttemptTimeout:  attemptTimeout,
	}
	opts.SweepAttempts = opts.RetryConfig.SweepAttempts

	// === FAIR divisors ===
	// viper lowercases map keys; the buckets are upper case.
	divisors := audit.DefaultFairDivisors()
	for group, divisor := range opts.FairDivisors {
		group = strings.ToUpper(group)
		if !slices.Contains(audit.FairGroups, group) {
			err := fmt.Errorf("%w: unknown FAIR bucket '%s' in key 'fairDivisors'. Allowed: %v", audit.ErrConfigValidation, group, audit.FairGroups)
			logger.Error(err.Error(), slog.String("key", "fairDivisors"))
			return err
		}
		divisors[group] = divisor
	}
	if flags.Changed("fair-divisor-a") {
		divisors["A"], _ = flags.GetFloat64("fair-divisor-a")
	}
	for group, divisor := range divisors {
		if divisor <= 0 {
			err := fmt.Errorf("%w: FAIR divisor for bucket '%s' must be > 0, got %g", audit.ErrConfigValidation, group, divisor)
			logger.Error(err.Error(), slog.String("key", "fairDivisors"))
			return err
		}
	}
	opts.FairDivisors = divisors

	// === Reasoner & IRI template ===
	if len(opts.ReasonerConfig.Command) == 0 {
		err := fmt.Errorf("%w: reasoner command cannot be empty (key 'reasoner.command', flag --reasoner-command)", audit.ErrConfigValidation)
		logger.Error(err.Error(), slog.String("key", "reasoner.command"))
		return err
	}
	if opts.IRITemplate == "" {
		opts.IRITemplate = audit.DefaultIRITemplate
	}
	if _, err := audit.NewTemplateStrategy(opts.IRITemplate, "", ""); err != nil {
		logger.Error("Invalid IRI template", slog.String("key", "iriTemplate"), slog.Any("error", err))
		return err
	}

	// === Derived ===
	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.NumCPU()
		logger.Debug("Concurrency not set, defaulting to number of CPUs", slog.Int("concurrency", opts.Concurrency))
	}
	if opts.LedgerConfig.Enabled {
		if opts.LedgerConfig.Path == "" {
			opts.LedgerConfig.Path = filepath.Join(opts.OutputPath, audit.LedgerFileName)
		} else if opts.LedgerConfig.Path, err = absPath("ledger.path", opts.LedgerConfig.Path, logger); err != nil {
			return err
		}
	} else {
		opts.LedgerConfig.Path = ""
	}
	if opts.Verbose {
		if opts.TuiEnabled {
			logger.Debug("Verbose mode enabled, TUI disabled")
		}
		opts.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.String("output", opts.OutputPath),
		slog.Int("concurrency", opts.Concurrency),
		slog.Int("maxAttempts", opts.Retry.MaxAttempts),
		slog.Duration("attemptTimeout", opts.Retry.AttemptTimeout),
		slog.Bool("runRemote", opts.RunRemote),
		slog.String("ledgerPath", opts.LedgerConfig.Path),
		slog.Bool("tuiEnabledEffective", opts.TuiEnabled),
	)
	return nil
}
