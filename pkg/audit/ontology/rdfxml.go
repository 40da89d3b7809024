package ontology

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/knakk/rdf"
)

const nsXML = "http://www.w3.org/XML/1998/namespace"

var (
	entityDecl = regexp.MustCompile(`<!ENTITY\s+([A-Za-z_][\w.-]*)\s+(?:"([^"]*)"|'([^']*)')\s*>`)
	entityRef  = regexp.MustCompile(`&([A-Za-z_][\w.-]*);`)
	hasScheme  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// rdfSyntaxAttrs are rdf: attributes that never become property triples.
var rdfSyntaxAttrs = map[string]bool{
	"about": true, "ID": true, "nodeID": true, "resource": true,
	"parseType": true, "datatype": true, "bagID": true,
	"aboutEach": true, "aboutEachPrefix": true, "li": true,
}

// node is a term usable as both subject and object.
type node interface {
	rdf.Subject
	rdf.Object
}

// scope carries the in-scope xml:base and xml:lang of an element.
type scope struct {
	base string
	lang string
}

func (s scope) with(el xml.StartElement) scope {
	for _, a := range el.Attr {
		if a.Name.Space != nsXML {
			continue
		}
		switch a.Name.Local {
		case "base":
			s.base = resolveIRI(s.base, a.Value)
		case "lang":
			s.lang = a.Value
		}
	}
	return s
}

// rdfXMLParser decodes RDF/XML into triples. It covers the full node and
// property element grammar, including DTD entity declarations, nested typed
// blank nodes and rdf:parseType Resource, Literal and Collection.
type rdfXMLParser struct {
	ctx     context.Context
	content []byte
	dec     *xml.Decoder
	triples []rdf.Triple
	bnodes  int
	tokens  int
	err     error
}

func decodeRDFXML(ctx context.Context, content []byte, base string) ([]rdf.Triple, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Entity = internalEntities(content)
	// content is already UTF-8; a declared legacy encoding must not re-decode it
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	p := &rdfXMLParser{ctx: ctx, content: content, dec: dec}
	if err := p.document(scope{base: base}); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.triples, nil
}

// internalEntities reads the <!ENTITY> declarations of the internal DTD
// subset, expanding references between them.
func internalEntities(content []byte) map[string]string {
	entities := map[string]string{}
	for _, m := range entityDecl.FindAllSubmatch(content, -1) {
		value := string(m[2])
		if len(m[3]) > 0 {
			value = string(m[3])
		}
		entities[string(m[1])] = value
	}
	for range entities {
		changed := false
		for name, value := range entities {
			expanded := entityRef.ReplaceAllStringFunc(value, func(ref string) string {
				if v, ok := entities[ref[1:len(ref)-1]]; ok {
					return v
				}
				return ref
			})
			if expanded != value {
				entities[name] = expanded
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return entities
}

func (p *rdfXMLParser) document(sc scope) error {
	var root xml.StartElement
	for {
		tok, err := p.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if el, ok := tok.(xml.StartElement); ok {
			root = el
			break
		}
	}

	if !isRDF(root.Name, "RDF") {
		_, err := p.nodeElement(root, sc)
		return err
	}
	sc = sc.with(root)
	for {
		child, ok, err := p.nextChild()
		if err != nil || !ok {
			return err
		}
		if _, err := p.nodeElement(child, sc); err != nil {
			return err
		}
	}
}

// next returns the next token that is not a comment, directive or
// processing instruction.
func (p *rdfXMLParser) next() (xml.Token, error) {
	for {
		if p.tokens%checkEvery == 0 {
			if err := p.ctx.Err(); err != nil {
				return nil, err
			}
		}
		p.tokens++
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch tok.(type) {
		case xml.Comment, xml.Directive, xml.ProcInst:
			continue
		}
		return tok, nil
	}
}

// nextChild returns the next child element, or false when the enclosing
// element ends. Text between elements is ignored.
func (p *rdfXMLParser) nextChild() (xml.StartElement, bool, error) {
	for {
		tok, err := p.next()
		if err != nil {
			return xml.StartElement{}, false, unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, true, nil
		case xml.EndElement:
			return xml.StartElement{}, false, nil
		}
	}
}

// skipToEnd consumes everything up to and including the end of the current
// element.
func (p *rdfXMLParser) skipToEnd() error {
	depth := 0
	for {
		tok, err := p.next()
		if err != nil {
			return unexpectedEOF(err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

func (p *rdfXMLParser) nodeElement(el xml.StartElement, sc scope) (node, error) {
	sc = sc.with(el)
	subj := p.subject(el, sc)
	if !isRDF(el.Name, "Description") {
		p.emit(subj, p.iri(NSRDF+"type"), p.iri(el.Name.Space+el.Name.Local))
	}
	for _, a := range el.Attr {
		switch {
		case isSyntaxAttr(a.Name):
		case isRDF(a.Name, "type"):
			p.emit(subj, p.iri(NSRDF+"type"), p.iri(resolveIRI(sc.base, a.Value)))
		default:
			p.emit(subj, p.iri(a.Name.Space+a.Name.Local), p.literal(a.Value, sc.lang, ""))
		}
	}

	li := 0
	for {
		child, ok, err := p.nextChild()
		if err != nil {
			return nil, err
		}
		if !ok {
			return subj, nil
		}
		if err := p.propertyElement(child, subj, sc, &li); err != nil {
			return nil, err
		}
	}
}

func (p *rdfXMLParser) subject(el xml.StartElement, sc scope) node {
	if v, ok := rdfAttr(el, "about"); ok {
		return p.iri(resolveIRI(sc.base, v))
	}
	if v, ok := rdfAttr(el, "ID"); ok {
		return p.iri(resolveIRI(sc.base, "#"+v))
	}
	if v, ok := rdfAttr(el, "nodeID"); ok {
		return p.namedBlank(v)
	}
	return p.blank()
}

func (p *rdfXMLParser) propertyElement(el xml.StartElement, subj rdf.Subject, sc scope, li *int) error {
	sc = sc.with(el)
	predIRI := el.Name.Space + el.Name.Local
	if isRDF(el.Name, "li") {
		*li++
		predIRI = NSRDF + "_" + strconv.Itoa(*li)
	}
	pred := p.iri(predIRI)

	parseType, _ := rdfAttr(el, "parseType")
	resource, hasResource := rdfAttr(el, "resource")
	nodeID, hasNodeID := rdfAttr(el, "nodeID")
	datatype, _ := rdfAttr(el, "datatype")
	var props []xml.Attr
	for _, a := range el.Attr {
		if !isSyntaxAttr(a.Name) {
			props = append(props, a)
		}
	}

	switch {
	case parseType == "Resource":
		obj := p.blank()
		p.emit(subj, pred, obj)
		inner := 0
		for {
			child, ok, err := p.nextChild()
			if err != nil || !ok {
				return err
			}
			if err := p.propertyElement(child, obj, sc, &inner); err != nil {
				return err
			}
		}

	case parseType == "Collection":
		var items []node
		for {
			child, ok, err := p.nextChild()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			item, err := p.nodeElement(child, sc)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		p.emit(subj, pred, p.list(items))
		return nil

	case parseType != "":
		lit, err := p.xmlLiteral()
		if err != nil {
			return err
		}
		p.emit(subj, pred, lit)
		return nil

	case hasResource || hasNodeID || len(props) > 0:
		var obj node
		switch {
		case hasResource:
			obj = p.iri(resolveIRI(sc.base, resource))
		case hasNodeID:
			obj = p.namedBlank(nodeID)
		default:
			obj = p.blank()
		}
		p.emit(subj, pred, obj)
		for _, a := range props {
			if isRDF(a.Name, "type") {
				p.emit(obj, p.iri(NSRDF+"type"), p.iri(resolveIRI(sc.base, a.Value)))
				continue
			}
			p.emit(obj, p.iri(a.Name.Space+a.Name.Local), p.literal(a.Value, sc.lang, ""))
		}
		return p.skipToEnd()
	}

	var text strings.Builder
	for {
		tok, err := p.next()
		if err != nil {
			return unexpectedEOF(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			obj, err := p.nodeElement(t, sc)
			if err != nil {
				return err
			}
			p.emit(subj, pred, obj)
			return p.skipToEnd()
		case xml.EndElement:
			dt := ""
			if datatype != "" {
				dt = resolveIRI(sc.base, datatype)
			}
			p.emit(subj, pred, p.literal(text.String(), sc.lang, dt))
			return nil
		}
	}
}

// xmlLiteral captures the raw markup of a parseType="Literal" property.
func (p *rdfXMLParser) xmlLiteral() (rdf.Literal, error) {
	start := p.dec.InputOffset()
	depth := 0
	for {
		before := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return rdf.Literal{}, unexpectedEOF(err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				raw := string(p.content[start:before])
				return rdf.NewTypedLiteral(raw, p.iri(NSRDF+"XMLLiteral")), nil
			}
			depth--
		}
	}
}

// list builds an rdf:first/rdf:rest chain and returns its head.
func (p *rdfXMLParser) list(items []node) rdf.Object {
	if len(items) == 0 {
		return p.iri(NSRDF + "nil")
	}
	head := p.blank()
	cell := head
	for i, item := range items {
		p.emit(cell, p.iri(NSRDF+"first"), item)
		if i == len(items)-1 {
			p.emit(cell, p.iri(NSRDF+"rest"), p.iri(NSRDF+"nil"))
			break
		}
		nextCell := p.blank()
		p.emit(cell, p.iri(NSRDF+"rest"), nextCell)
		cell = nextCell
	}
	return head
}

func (p *rdfXMLParser) emit(s rdf.Subject, pred rdf.Predicate, o rdf.Object) {
	p.triples = append(p.triples, rdf.Triple{Subj: s, Pred: pred, Obj: o})
}

// iri records the first invalid IRI as the parse error.
func (p *rdfXMLParser) iri(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid IRI %q: %w", s, err)
	}
	return iri
}

func (p *rdfXMLParser) blank() rdf.Blank {
	p.bnodes++
	b, _ := rdf.NewBlank("genid" + strconv.Itoa(p.bnodes))
	return b
}

func (p *rdfXMLParser) namedBlank(id string) rdf.Blank {
	b, err := rdf.NewBlank("n" + id)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid rdf:nodeID %q: %w", id, err)
	}
	return b
}

func (p *rdfXMLParser) literal(value, lang, datatype string) rdf.Literal {
	if datatype != "" {
		return rdf.NewTypedLiteral(value, p.iri(datatype))
	}
	if lang != "" {
		if lit, err := rdf.NewLangLiteral(value, lang); err == nil {
			return lit
		}
	}
	lit, _ := rdf.NewLiteral(value)
	return lit
}

func isRDF(name xml.Name, local string) bool {
	return name.Space == NSRDF && name.Local == local
}

func isSyntaxAttr(name xml.Name) bool {
	switch {
	case name.Space == "xmlns", name.Space == "" && name.Local == "xmlns":
		return true
	case name.Space == nsXML, name.Space == "":
		return true
	case name.Space == NSRDF:
		return rdfSyntaxAttrs[name.Local]
	}
	return false
}

func rdfAttr(el xml.StartElement, local string) (string, bool) {
	for _, a := range el.Attr {
		if isRDF(a.Name, local) {
			return a.Value, true
		}
	}
	return "", false
}

// resolveIRI resolves ref against base. Absolute references are returned
// untouched so non-ASCII IRIs are not percent-encoded.
func resolveIRI(base, ref string) string {
	if base == "" || hasScheme.MatchString(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
