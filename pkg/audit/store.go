package audit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store owns the on-disk report corpus: the completeness gate and atomic writes.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a report store. A nil handler discards logs.
func NewStore(loggerHandler slog.Handler) *Store {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Store{logger: slog.New(loggerHandler).With(slog.String("component", "store"))}
}

// ShouldGenerate is true iff no regular file with content exists at path.
func (s *Store) ShouldGenerate(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return !info.Mode().IsRegular() || info.Size() == 0
}

// Write persists data at path through a temp file and rename, creating the
// containing directory. Empty data is refused so a zero-byte file never
// stands for a finished report.
func (s *Store) Write(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyReport, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create report directory '%s': %w", ErrReportWrite, dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file in '%s': %w", ErrReportWrite, dir, err)
	}
	tempPath := tempFile.Name()

	closed := false
	defer func() {
		if !closed {
			_ = tempFile.Close()
		}
		if _, statErr := os.Stat(tempPath); statErr == nil {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write temporary file '%s': %w", ErrReportWrite, tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		closed = true
		return fmt.Errorf("%w: failed to close temporary file '%s': %w", ErrReportWrite, tempPath, err)
	}
	closed = true

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%w: failed to rename '%s' to '%s': %w", ErrReportWrite, tempPath, path, err)
	}

	s.logger.Debug("Report written", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}

// WriteException records cause in the load-exception artifact that sits next
// to loc, never at loc.Path itself.
func (s *Store) WriteException(loc Location, cause error) error {
	path := filepath.Join(loc.Dir, loc.Name+ReportLoadException.Suffix())
	return s.Write(path, []byte(errorText(cause)))
}

// FailurePath is the terminal failure artifact for a report path.
func FailurePath(reportPath string) string {
	return reportPath + FailureArtifactExt
}

// WriteFailure records that the report at reportPath could not be produced.
func (s *Store) WriteFailure(reportPath string, attempts int, cause error) error {
	body := fmt.Sprintf("report: %s\nattempts: %d\nfailed_at: %s\nerror: %s\n",
		reportPath, attempts, time.Now().UTC().Format(time.RFC3339), errorText(cause))
	return s.Write(FailurePath(reportPath), []byte(body))
}

// ClearFailure removes a stale terminal failure artifact, if any.
func (s *Store) ClearFailure(reportPath string) {
	if err := s.Remove(FailurePath(reportPath)); err != nil {
		s.logger.Warn("Failed to remove stale failure artifact", slog.String("path", reportPath), slog.Any("error", err))
	}
}

// Remove deletes path; a missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func errorText(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
