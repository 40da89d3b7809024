package ontology

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/knakk/rdf"
	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
)

const (
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS = "http://www.w3.org/2000/01/rdf-schema#"
	NSOWL  = "http://www.w3.org/2002/07/owl#"
	NSXSD  = "http://www.w3.org/2001/XMLSchema#"

	rdfType     = NSRDF + "type"
	rdfsComment = NSRDFS + "comment"
)

// Class is a named OWL class with its rdfs:comment values in document order.
type Class struct {
	IRI      string
	Comments []string
}

// FirstComment returns the first comment, or "" when there is none.
func (c Class) FirstComment() string {
	if len(c.Comments) == 0 {
		return ""
	}
	return c.Comments[0]
}

// Ontology is the structural summary of one loaded file. Entity lists are
// sorted by IRI.
type Ontology struct {
	Path                 string
	BaseIRI              string
	Classes              []Class
	AnnotationProperties []string
	DataProperties       []string
	ObjectProperties     []string
	// TotalProperties counts distinct IRIs across the three property lists.
	TotalProperties int
	TripleCount     int
}

// Loader loads an ontology file.
type Loader interface {
	Load(ctx context.Context, path string) (*Ontology, error)
}

var objectPropertyTypes = map[string]bool{
	NSOWL + "ObjectProperty":            true,
	NSOWL + "TransitiveProperty":        true,
	NSOWL + "SymmetricProperty":         true,
	NSOWL + "AsymmetricProperty":        true,
	NSOWL + "ReflexiveProperty":         true,
	NSOWL + "IrreflexiveProperty":       true,
	NSOWL + "InverseFunctionalProperty": true,
}

// RDFLoader summarizes RDF/XML, Turtle and N-Triples files.
type RDFLoader struct {
	reader
	logger *slog.Logger
}

// NewRDFLoader creates a loader; nil collaborators get defaults.
func NewRDFLoader(enc encoding.EncodingHandler, det format.Detector, loggerHandler slog.Handler) *RDFLoader {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &RDFLoader{
		reader: newReader(enc, det),
		logger: slog.New(loggerHandler).With(slog.String("component", "loader")),
	}
}

// Load implements Loader.
func (l *RDFLoader) Load(ctx context.Context, path string) (*Ontology, error) {
	g, err := l.read(ctx, path)
	if err != nil {
		return nil, err
	}
	o := Summarize(g.triples)
	o.Path = path
	l.logger.Debug("Ontology loaded",
		slog.String("path", path),
		slog.String("format", string(g.format)),
		slog.Int("triples", o.TripleCount),
		slog.Int("classes", len(o.Classes)))
	return o, nil
}

// Summarize counts named classes and properties in triples.
func Summarize(triples []rdf.Triple) *Ontology {
	classes := map[string]*Class{}
	comments := map[string][]string{}
	annotation := map[string]bool{}
	data := map[string]bool{}
	object := map[string]bool{}
	base := ""

	for _, t := range triples {
		subj, ok := t.Subj.(rdf.IRI)
		if !ok {
			continue
		}
		s := subj.String()
		switch t.Pred.String() {
		case rdfType:
			typ, ok := t.Obj.(rdf.IRI)
			if !ok {
				continue
			}
			switch o := typ.String(); {
			case o == NSOWL+"Class":
				if _, seen := classes[s]; !seen {
					classes[s] = &Class{IRI: s}
				}
			case o == NSOWL+"AnnotationProperty":
				annotation[s] = true
			case o == NSOWL+"DatatypeProperty":
				data[s] = true
			case objectPropertyTypes[o]:
				object[s] = true
			case o == NSOWL+"Ontology" && base == "":
				base = s
			}
		case rdfsComment:
			if lit, ok := t.Obj.(rdf.Literal); ok {
				comments[s] = append(comments[s], lit.String())
			}
		}
	}

	o := &Ontology{BaseIRI: base, TripleCount: len(triples)}
	for iri, c := range classes {
		c.Comments = comments[iri]
		o.Classes = append(o.Classes, *c)
	}
	sort.Slice(o.Classes, func(i, j int) bool { return o.Classes[i].IRI < o.Classes[j].IRI })

	o.AnnotationProperties = sortedKeys(annotation)
	o.DataProperties = sortedKeys(data)
	o.ObjectProperties = sortedKeys(object)

	all := make(map[string]bool, len(annotation)+len(data)+len(object))
	for _, set := range []map[string]bool{annotation, data, object} {
		for k := range set {
			all[k] = true
		}
	}
	o.TotalProperties = len(all)
	return o
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
