package ontology

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/knakk/rdf"
	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
)

// ErrParse indicates that an ontology file could not be decoded as RDF.
var ErrParse = errors.New("ontology parse failed")

// ErrUnsupportedFormat indicates a serialization this package cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported ontology serialization")

// checkEvery is how many triples are decoded between context checks.
const checkEvery = 4096

// graph is one decoded file: its UTF-8 content, detected format and triples.
type graph struct {
	content []byte
	format  format.Format
	triples []rdf.Triple
}

// reader decodes ontology files; shared by the loader, the namespace parser
// and the converter.
type reader struct {
	enc encoding.EncodingHandler
	det format.Detector
}

func newReader(enc encoding.EncodingHandler, det format.Detector) reader {
	if enc == nil {
		enc = encoding.NewGoCharsetEncodingHandler("")
	}
	if det == nil {
		det = format.NewGoEnryDetector(nil)
	}
	return reader{enc: enc, det: det}
}

// ReadContent returns the file as UTF-8 bytes.
func (r reader) ReadContent(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content, _, _, err := r.enc.DetectAndDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}
	return content, nil
}

func (r reader) read(ctx context.Context, path string) (*graph, error) {
	content, err := r.ReadContent(path)
	if err != nil {
		return nil, err
	}

	f := r.det.Detect(content, path)
	var rf rdf.Format
	switch f {
	case format.RDFXML:
	case format.Turtle:
		rf = rdf.Turtle
	case format.NTriples:
		rf = rdf.NTriples
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	var triples []rdf.Triple
	if f == format.RDFXML {
		triples, err = decodeRDFXML(ctx, content, fileIRI(path))
	} else {
		triples, err = decodeTriples(ctx, content, rf)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}
	return &graph{content: content, format: f, triples: triples}, nil
}

// fileIRI is the document base of a file without xml:base.
func fileIRI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// decodeTriples reads Turtle and N-Triples with knakk/rdf.
func decodeTriples(ctx context.Context, content []byte, f rdf.Format) ([]rdf.Triple, error) {
	dec := rdf.NewTripleDecoder(bytes.NewReader(content), f)
	var triples []rdf.Triple
	for {
		if len(triples)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return triples, nil
		}
		if err != nil {
			return nil, err
		}
		triples = append(triples, t)
	}
}
