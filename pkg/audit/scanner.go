package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
	"github.com/stackvity/ontaudit/pkg/util"
)

// sniffBytes is how much of each file is read to confirm its serialization.
const sniffBytes = 8 * 1024

// Scanner discovers ontology files below a root directory.
type Scanner struct {
	ignore []string
	enc    encoding.EncodingHandler
	det    format.Detector
	logger *slog.Logger
}

// NewScanner creates a scanner; nil collaborators get defaults.
func NewScanner(ignore []string, enc encoding.EncodingHandler, det format.Detector, loggerHandler slog.Handler) *Scanner {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if enc == nil {
		enc = encoding.NewGoCharsetEncodingHandler("")
	}
	if det == nil {
		det = format.NewGoEnryDetector(nil)
	}
	return &Scanner{
		ignore: ignore,
		enc:    enc,
		det:    det,
		logger: slog.New(loggerHandler).With(slog.String("component", "scanner")),
	}
}

// Scan returns the .owl and .ttl files under root in lexical order. Symlinks,
// ignored paths and binary files are skipped. A .ttl file whose content is
// RDF/XML is reported as KindOWL. When x.ttl and x.owl sit in the same
// directory only the Turtle file is kept, the .owl being its conversion.
func (s *Scanner) Scan(ctx context.Context, root string) ([]OntologyRef, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access ontology root '%s': %w", root, err)
	}
	if !info.IsDir() {
		ref, ok := s.inspect(root)
		if !ok {
			return nil, fmt.Errorf("%w: '%s' is not an .owl or .ttl ontology", ErrArgument, root)
		}
		return []OntologyRef{ref}, nil
	}

	var refs []OntologyRef
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("Error accessing path during scan", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type()&fs.ModeSymlink != 0 {
			s.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && util.MatchesIgnore(s.ignore, rel) {
			s.logger.Debug("Skipping ignored path", slog.String("path", rel))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if ref, ok := s.inspect(path); ok {
			refs = append(refs, ref)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("ontology scan failed: %w", walkErr)
	}

	refs = dropConvertedSiblings(refs)
	s.logger.Info("Ontology scan completed", slog.String("root", root), slog.Int("ontologies", len(refs)))
	return refs, nil
}

// inspect classifies one file.
func (s *Scanner) inspect(path string) (OntologyRef, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtOWL && ext != ExtTurtle {
		return OntologyRef{}, false
	}
	head, err := readHead(path, sniffBytes)
	if err != nil {
		s.logger.Warn("Cannot read ontology file", slog.String("path", path), slog.Any("error", err))
		return OntologyRef{}, false
	}
	if s.enc.IsBinary(head) {
		s.logger.Info("Skipping binary file", slog.String("path", path))
		return OntologyRef{}, false
	}

	ref := NewOntologyRef(path)
	if ref.Kind == KindTurtle {
		content := head
		if decoded, _, _, err := s.enc.DetectAndDecode(head); err == nil {
			content = decoded
		}
		if s.det.Detect(content, path) == format.RDFXML {
			s.logger.Debug("Turtle extension holds RDF/XML, treating as OWL", slog.String("path", path))
			ref.Kind = KindOWL
		}
	}
	return ref, true
}

func readHead(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, n))
}

func dropConvertedSiblings(refs []OntologyRef) []OntologyRef {
	turtle := map[string]bool{}
	for _, r := range refs {
		if strings.EqualFold(filepath.Ext(r.Path), ExtTurtle) {
			turtle[strings.TrimSuffix(r.Path, filepath.Ext(r.Path))] = true
		}
	}
	out := refs[:0]
	for _, r := range refs {
		ext := filepath.Ext(r.Path)
		if strings.EqualFold(ext, ExtOWL) && turtle[strings.TrimSuffix(r.Path, ext)] {
			continue
		}
		out = append(out, r)
	}
	return out
}
