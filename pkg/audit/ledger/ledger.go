// Package ledger persists the per-report attempt history of audit runs. The
// report files remain the only completeness signal; the ledger records how
// many attempts a report took and why the last one failed.
package ledger

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// SchemaVersion is bumped whenever the on-disk layout changes; files with a
// different version are discarded on Load.
const SchemaVersion = "1"

const (
	FormatGob  = "gob"
	FormatJSON = "json"
)

// ErrLedgerLoad indicates the ledger file exists but cannot be opened.
var ErrLedgerLoad = errors.New("failed to load ledger")

// ErrLedgerPersist indicates the ledger could not be written.
var ErrLedgerPersist = errors.New("failed to persist ledger")

// fileHeader is written ahead of the entries.
type fileHeader struct {
	SchemaVersion string `json:"schemaVersion"`
	ToolVersion   string `json:"toolVersion"`
}

type jsonFile struct {
	Header  fileHeader          `json:"header"`
	Entries []audit.LedgerEntry `json:"entries"`
}

// FileLedger is an audit.Ledger kept in memory and persisted as gob or JSON.
// Safe for concurrent use.
type FileLedger struct {
	mu          sync.RWMutex
	index       map[string]audit.LedgerEntry
	format      string
	toolVersion string
	logger      *slog.Logger
}

// New creates an empty ledger. An unknown format falls back to gob.
func New(format, toolVersion string, loggerHandler slog.Handler) *FileLedger {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format = strings.ToLower(format)
	if format != FormatJSON {
		format = FormatGob
	}
	if toolVersion == "" {
		toolVersion = "dev"
	}
	return &FileLedger{
		index:       map[string]audit.LedgerEntry{},
		format:      format,
		toolVersion: toolVersion,
		logger: slog.New(loggerHandler).With(
			slog.String("component", "ledger"),
			slog.String("format", format)),
	}
}

func key(ontology string, kind audit.ReportKind) string {
	return ontology + "\x00" + string(kind)
}

// Load replaces the in-memory entries with the content of path. A missing,
// empty, corrupt or outdated file leaves the ledger empty without error;
// only an unreadable file is reported.
func (l *FileLedger) Load(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = map[string]audit.LedgerEntry{}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Info("Ledger file not found, starting empty", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("%w: failed to open '%s': %w", ErrLedgerLoad, path, err)
	}
	defer file.Close()

	var header fileHeader
	var entries []audit.LedgerEntry
	var decodeErr error
	if l.format == FormatJSON {
		var data jsonFile
		decodeErr = json.NewDecoder(file).Decode(&data)
		header, entries = data.Header, data.Entries
	} else {
		dec := gob.NewDecoder(file)
		if decodeErr = dec.Decode(&header); decodeErr == nil {
			decodeErr = dec.Decode(&entries)
		}
	}
	if decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) || errors.Is(decodeErr, io.ErrUnexpectedEOF) {
			l.logger.Warn("Ledger file is empty or truncated, starting empty", slog.String("path", path))
			return nil
		}
		l.logger.Warn("Ledger file cannot be decoded, starting empty", slog.String("path", path), slog.Any("error", decodeErr))
		return nil
	}
	if header.SchemaVersion != SchemaVersion {
		l.logger.Warn("Ledger schema version mismatch, starting empty",
			slog.String("path", path),
			slog.String("fileSchema", header.SchemaVersion),
			slog.String("expectedSchema", SchemaVersion))
		return nil
	}

	for _, e := range entries {
		l.index[key(e.Ontology, e.Kind)] = e
	}
	l.logger.Info("Ledger loaded", slog.String("path", path), slog.Int("entries", len(l.index)))
	return nil
}

// Record stores entry, adding its attempts to those already recorded for
// the same ontology and kind.
func (l *FileLedger) Record(entry audit.LedgerEntry) error {
	if entry.Ontology == "" || entry.Kind == "" {
		return fmt.Errorf("%w: ledger entry needs an ontology and a kind", audit.ErrArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(entry.Ontology, entry.Kind)
	if prev, ok := l.index[k]; ok {
		entry.Attempts += prev.Attempts
	}
	l.index[k] = entry
	return nil
}

// Get returns the entry for ontology and kind.
func (l *FileLedger) Get(ontology string, kind audit.ReportKind) (audit.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.index[key(ontology, kind)]
	return e, ok
}

// Entries returns all entries ordered by ontology, then kind.
func (l *FileLedger) Entries() []audit.LedgerEntry {
	l.mu.RLock()
	out := make([]audit.LedgerEntry, 0, len(l.index))
	for _, e := range l.index {
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ontology != out[j].Ontology {
			return out[i].Ontology < out[j].Ontology
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Persist writes the ledger to path through a temp file and rename. An empty
// ledger removes path instead.
func (l *FileLedger) Persist(path string) error {
	entries := l.Entries()
	if len(entries) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to remove empty ledger file", slog.String("path", path), slog.Any("error", err))
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory '%s': %w", ErrLedgerPersist, dir, err)
	}
	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file in '%s': %w", ErrLedgerPersist, dir, err)
	}
	tempPath := tempFile.Name()
	defer func() {
		if _, statErr := os.Stat(tempPath); statErr == nil {
			_ = os.Remove(tempPath)
		}
	}()

	header := fileHeader{SchemaVersion: SchemaVersion, ToolVersion: l.toolVersion}
	if l.format == FormatJSON {
		enc := json.NewEncoder(tempFile)
		enc.SetIndent("", "  ")
		err = enc.Encode(jsonFile{Header: header, Entries: entries})
	} else {
		enc := gob.NewEncoder(tempFile)
		if err = enc.Encode(header); err == nil {
			err = enc.Encode(entries)
		}
	}
	if err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("%w: failed to encode ledger: %w", ErrLedgerPersist, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temporary file '%s': %w", ErrLedgerPersist, tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%w: failed to rename '%s' to '%s': %w", ErrLedgerPersist, tempPath, path, err)
	}
	l.logger.Debug("Ledger persisted", slog.String("path", path), slog.Int("entries", len(entries)))
	return nil
}

var _ audit.Ledger = (*FileLedger)(nil)
