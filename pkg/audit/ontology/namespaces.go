package ontology

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
)

// Namespace is one prefix binding declared by a document. The default
// namespace has an empty prefix.
type Namespace struct {
	Prefix string
	IRI    string
}

var turtlePrefix = regexp.MustCompile(`(?mi)^[ \t]*(?:@prefix|prefix)[ \t]+([A-Za-z][\w.-]*)?:[ \t]*<([^>]*)>`)

// NamespaceParser lists the prefixes a file binds. It validates the whole
// graph first, so it fails on the same inputs a graph parser would, but it
// does not depend on the Loader.
type NamespaceParser struct {
	reader
	logger *slog.Logger
}

// NewNamespaceParser creates a parser; nil collaborators get defaults.
func NewNamespaceParser(enc encoding.EncodingHandler, det format.Detector, loggerHandler slog.Handler) *NamespaceParser {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &NamespaceParser{
		reader: newReader(enc, det),
		logger: slog.New(loggerHandler).With(slog.String("component", "namespaces")),
	}
}

// Namespaces returns the distinct bindings in declaration order.
func (p *NamespaceParser) Namespaces(ctx context.Context, path string) ([]Namespace, error) {
	g, err := p.read(ctx, path)
	if err != nil {
		return nil, err
	}

	var ns []Namespace
	switch g.format {
	case format.Turtle:
		ns = TurtlePrefixes(g.content)
	case format.RDFXML:
		ns, err = XMLNamespaces(g.content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}
	}
	p.logger.Debug("Namespaces collected", slog.String("path", path), slog.Int("count", len(ns)))
	return ns, nil
}

// TurtlePrefixes scans @prefix and SPARQL PREFIX directives.
func TurtlePrefixes(content []byte) []Namespace {
	var out []Namespace
	seen := map[Namespace]bool{}
	for _, m := range turtlePrefix.FindAllSubmatch(content, -1) {
		n := Namespace{Prefix: string(m[1]), IRI: string(m[2])}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// XMLNamespaces collects xmlns declarations from every element.
func XMLNamespaces(content []byte) ([]Namespace, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = false

	var out []Namespace
	seen := map[Namespace]bool{}
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			var n Namespace
			switch {
			case attr.Name.Space == "xmlns":
				n = Namespace{Prefix: attr.Name.Local, IRI: attr.Value}
			case attr.Name.Space == "" && attr.Name.Local == "xmlns":
				n = Namespace{Prefix: "", IRI: attr.Value}
			default:
				continue
			}
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
}
