package ontology

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/knakk/rdf"
	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
)

// ErrUnserializable indicates a predicate IRI that cannot be written as an
// XML element name.
var ErrUnserializable = errors.New("predicate cannot be serialized as RDF/XML")

var wellKnownPrefixes = map[string]string{
	NSRDF:  "rdf",
	NSRDFS: "rdfs",
	NSOWL:  "owl",
	NSXSD:  "xsd",
}

// WriteFunc persists converted bytes at path.
type WriteFunc func(path string, data []byte) error

// Converter rewrites Turtle ontologies as RDF/XML.
type Converter struct {
	reader
	logger *slog.Logger
	write  WriteFunc
}

// NewConverter creates a converter. write defaults to os.WriteFile.
func NewConverter(enc encoding.EncodingHandler, det format.Detector, write WriteFunc, loggerHandler slog.Handler) *Converter {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if write == nil {
		write = func(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }
	}
	return &Converter{
		reader: newReader(enc, det),
		logger: slog.New(loggerHandler).With(slog.String("component", "converter")),
		write:  write,
	}
}

// OWLPath is the sibling path the converter writes for a Turtle file.
func OWLPath(ttlPath string) string {
	ext := filepath.Ext(ttlPath)
	return strings.TrimSuffix(ttlPath, ext) + ".owl"
}

// Convert parses ttlPath and writes RDF/XML to OWLPath(ttlPath), always
// overwriting. It returns the written path.
func (c *Converter) Convert(ctx context.Context, ttlPath string) (string, error) {
	g, err := c.read(ctx, ttlPath)
	if err != nil {
		return "", err
	}
	data, err := SerializeRDFXML(g.triples)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ttlPath, err)
	}
	out := OWLPath(ttlPath)
	if err := c.write(out, data); err != nil {
		return "", err
	}
	c.logger.Debug("Converted Turtle to RDF/XML", slog.String("source", ttlPath), slog.String("target", out), slog.Int("triples", len(g.triples)))
	return out, nil
}

// RDFXML returns the file as RDF/XML. RDF/XML input is returned as its
// decoded UTF-8 content once it parses; other formats are re-serialized.
func (c *Converter) RDFXML(ctx context.Context, path string) ([]byte, error) {
	g, err := c.read(ctx, path)
	if err != nil {
		return nil, err
	}
	if g.format == format.RDFXML {
		return g.content, nil
	}
	data, err := SerializeRDFXML(g.triples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// SerializeRDFXML writes triples as one rdf:Description per subject, in order
// of first appearance.
func SerializeRDFXML(triples []rdf.Triple) ([]byte, error) {
	prefixes := map[string]string{}
	var nsOrder []string
	qname := func(iri string) (string, error) {
		ns, local, ok := splitIRI(iri)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnserializable, iri)
		}
		p, known := prefixes[ns]
		if !known {
			p = wellKnownPrefixes[ns]
			if p == "" {
				p = fmt.Sprintf("ns%d", len(nsOrder)+1)
			}
			prefixes[ns] = p
			nsOrder = append(nsOrder, ns)
		}
		return p + ":" + local, nil
	}
	// rdf: is always declared
	if _, err := qname(NSRDF + "type"); err != nil {
		return nil, err
	}

	type subject struct {
		open  string
		props []string
	}
	bySubject := map[string]*subject{}
	var order []string
	blank := newBlankLabeler()

	for _, t := range triples {
		key, open := "", ""
		switch s := t.Subj.(type) {
		case rdf.IRI:
			key, open = "i"+s.String(), fmt.Sprintf(`rdf:about="%s"`, escape(s.String()))
		case rdf.Blank:
			id := blank.label(s.String())
			key, open = "b"+id, fmt.Sprintf(`rdf:nodeID="%s"`, id)
		default:
			continue
		}
		name, err := qname(t.Pred.String())
		if err != nil {
			return nil, err
		}

		var prop string
		switch o := t.Obj.(type) {
		case rdf.IRI:
			prop = fmt.Sprintf(`<%s rdf:resource="%s"/>`, name, escape(o.String()))
		case rdf.Blank:
			prop = fmt.Sprintf(`<%s rdf:nodeID="%s"/>`, name, blank.label(o.String()))
		case rdf.Literal:
			attr := ""
			if lang := o.Lang(); lang != "" {
				attr = fmt.Sprintf(` xml:lang="%s"`, escape(lang))
			} else if dt := o.DataType.String(); dt != "" && dt != NSXSD+"string" && dt != NSRDF+"langString" {
				attr = fmt.Sprintf(` rdf:datatype="%s"`, escape(dt))
			}
			prop = fmt.Sprintf(`<%s%s>%s</%s>`, name, attr, escape(o.String()), name)
		default:
			continue
		}

		sub, ok := bySubject[key]
		if !ok {
			sub = &subject{open: open}
			bySubject[key] = sub
			order = append(order, key)
		}
		sub.props = append(sub.props, prop)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<rdf:RDF")
	for _, ns := range nsOrder {
		fmt.Fprintf(&buf, "\n    xmlns:%s=\"%s\"", prefixes[ns], escape(ns))
	}
	buf.WriteString(">\n")
	for _, key := range order {
		sub := bySubject[key]
		fmt.Fprintf(&buf, "  <rdf:Description %s>\n", sub.open)
		for _, p := range sub.props {
			fmt.Fprintf(&buf, "    %s\n", p)
		}
		buf.WriteString("  </rdf:Description>\n")
	}
	buf.WriteString("</rdf:RDF>\n")
	return buf.Bytes(), nil
}

// splitIRI cuts iri into a namespace and an NCName local part, choosing the
// longest valid local part after the last '#' or '/'.
func splitIRI(iri string) (ns, local string, ok bool) {
	cut := strings.LastIndexAny(iri, "#/")
	start := cut + 1
	for start < len(iri) && !isNameStart(rune(iri[start])) {
		start++
	}
	if start >= len(iri) {
		return "", "", false
	}
	local = iri[start:]
	for _, r := range local {
		if !isNameChar(r) {
			return "", "", false
		}
	}
	return iri[:start], local, true
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || unicode.IsDigit(r)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// blankLabeler maps parser blank node ids onto stable NCName node ids.
type blankLabeler struct {
	ids map[string]string
}

func newBlankLabeler() *blankLabeler {
	return &blankLabeler{ids: map[string]string{}}
}

func (b *blankLabeler) label(raw string) string {
	raw = strings.TrimPrefix(raw, "_:")
	if id, ok := b.ids[raw]; ok {
		return id
	}
	id := fmt.Sprintf("b%d", len(b.ids)+1)
	b.ids[raw] = id
	return id
}
