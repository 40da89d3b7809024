package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

// IRIStrategy derives the public IRI of an ontology for services that fetch
// it themselves. ok is false when the strategy has no answer for ref.
type IRIStrategy interface {
	IRIFor(ctx context.Context, ref OntologyRef) (iri string, ok bool, err error)
}

// IRIData is the data passed to an IRI template.
type IRIData struct {
	Name string
	// Rel is the slash-separated path relative to the corpus root.
	Rel string
	// Segments are the components of Rel, the file name last.
	Segments []string
}

// Seg returns segment i; negative indexes count from the end, so -1 is the
// file name and -2 its directory.
func (d IRIData) Seg(i int) (string, error) {
	if i < 0 {
		i += len(d.Segments)
	}
	if i < 0 || i >= len(d.Segments) {
		return "", fmt.Errorf("path '%s' has no segment %d", d.Rel, i)
	}
	return d.Segments[i], nil
}

// TemplateStrategy renders a text/template over IRIData for ontologies whose
// path contains the marker (every ontology when the marker is empty).
type TemplateStrategy struct {
	root   string
	marker string
	tmpl   *template.Template
}

// NewTemplateStrategy parses text. root is the corpus root Rel is computed from.
func NewTemplateStrategy(text, root, marker string) (*TemplateStrategy, error) {
	tmpl, err := template.New("iri").
		Funcs(template.FuncMap{"lower": strings.ToLower}).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid IRI template: %w", ErrConfigValidation, err)
	}
	return &TemplateStrategy{root: root, marker: marker, tmpl: tmpl}, nil
}

// Data builds the template data for path.
func (s *TemplateStrategy) Data(path string) IRIData {
	rel := path
	if s.root != "" {
		if r, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	return IRIData{Name: ShortName(path), Rel: rel, Segments: strings.Split(rel, "/")}
}

// IRIFor implements IRIStrategy.
func (s *TemplateStrategy) IRIFor(_ context.Context, ref OntologyRef) (string, bool, error) {
	if s.marker != "" && !strings.Contains(ref.Path, s.marker) {
		return "", false, nil
	}
	var b strings.Builder
	if err := s.tmpl.Execute(&b, s.Data(ref.Path)); err != nil {
		return "", false, fmt.Errorf("rendering IRI for '%s': %w", ref.Path, err)
	}
	iri := strings.TrimSpace(b.String())
	return iri, iri != "", nil
}

// LoadedIRIStrategy uses the IRI the ontology declares for itself.
type LoadedIRIStrategy struct {
	loader OntologyLoader
}

// NewLoadedIRIStrategy creates a strategy loading ontologies with loader.
func NewLoadedIRIStrategy(loader OntologyLoader) *LoadedIRIStrategy {
	return &LoadedIRIStrategy{loader: loader}
}

// IRIFor implements IRIStrategy. A file that fails to load has no answer.
func (s *LoadedIRIStrategy) IRIFor(ctx context.Context, ref OntologyRef) (string, bool, error) {
	if ref.BaseIRI != "" {
		return ref.BaseIRI, true, nil
	}
	o, err := s.loader.Load(ctx, ref.Path)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, nil
	}
	return o.BaseIRI, o.BaseIRI != "", nil
}

// ChainStrategy asks each strategy in order and returns the first answer.
type ChainStrategy []IRIStrategy

// IRIFor implements IRIStrategy.
func (c ChainStrategy) IRIFor(ctx context.Context, ref OntologyRef) (string, bool, error) {
	for _, s := range c {
		iri, ok, err := s.IRIFor(ctx, ref)
		if err != nil {
			return "", false, err
		}
		if ok {
			return iri, true, nil
		}
	}
	return "", false, nil
}
