package format

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Format is an RDF serialization.
type Format string

const (
	Unknown  Format = "unknown"
	RDFXML   Format = "rdfxml"
	Turtle   Format = "turtle"
	NTriples Format = "ntriples"
)

// xmlStart matches an XML prolog or a qualified/unqualified element opening.
// A Turtle IRI such as <http://x> fails because "//" is not a name character.
var xmlStart = regexp.MustCompile(`^<(\?xml|!|[A-Za-z_][\w.-]*(:[A-Za-z_][\w.-]*)?[\s>/])`)

// Detector decides which serialization a file uses.
//
// Stability: implementations can be provided externally.
type Detector interface {
	// Detect inspects the leading bytes of content, using filePath as a hint.
	// It returns Unknown when neither content nor name are conclusive.
	Detect(content []byte, filePath string) Format
}

type goEnryDetector struct {
	overrides map[string]Format
}

// NewGoEnryDetector creates a detector. overrides maps file extensions to a
// forced format; keys are normalized to lowercase with a leading dot.
func NewGoEnryDetector(overrides map[string]Format) Detector {
	normalized := make(map[string]Format, len(overrides))
	for ext, f := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." || f == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = f
	}
	return &goEnryDetector{overrides: normalized}
}

// Detect implements Detector. Overrides win, then an XML prolog, then
// go-enry's linguist data, then the extension.
func (d *goEnryDetector) Detect(content []byte, filePath string) Format {
	ext := strings.ToLower(filepath.Ext(filePath))
	if f, ok := d.overrides[ext]; ok {
		return f
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF}), " \t\r\n")
	if len(trimmed) == 0 {
		return byExtension(ext)
	}
	if enry.IsBinary(trimmed) {
		return Unknown
	}
	if xmlStart.Match(trimmed) {
		return RDFXML
	}

	switch enry.GetLanguage(filepath.Base(filePath), content) {
	case "Turtle":
		return Turtle
	case "Web Ontology Language", "XML":
		if bytes.HasPrefix(trimmed, []byte("@prefix")) || bytes.HasPrefix(trimmed, []byte("@base")) {
			return Turtle
		}
		return RDFXML
	}

	if f := byExtension(ext); f != Unknown {
		return f
	}
	if looksLikeTurtle(trimmed) {
		return Turtle
	}
	return Unknown
}

func byExtension(ext string) Format {
	switch ext {
	case ".owl", ".rdf", ".xml":
		return RDFXML
	case ".ttl":
		return Turtle
	case ".nt":
		return NTriples
	}
	return Unknown
}

func looksLikeTurtle(content []byte) bool {
	lower := bytes.ToLower(content)
	return bytes.HasPrefix(lower, []byte("@prefix")) ||
		bytes.HasPrefix(lower, []byte("prefix ")) ||
		bytes.HasPrefix(lower, []byte("@base")) ||
		bytes.HasPrefix(lower, []byte("#"))
}
