package remote

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// OOPS! output formats. Inline scans ask for RDF/XML, IRI scans for XML.
const (
	oopsOutputRDFXML = "RDF/XML"
	oopsOutputXML    = "XML"
)

type cdata struct {
	Text string `xml:",cdata"`
}

type oopsRequest struct {
	XMLName         xml.Name `xml:"OOPSRequest"`
	OntologyURL     string   `xml:"OntologyUrl"`
	OntologyContent cdata    `xml:"OntologyContent"`
	Pitfalls        string   `xml:"Pitfalls"`
	OutputFormat    string   `xml:"OutputFormat"`
}

// EncodeOOPSRequest renders the request envelope. Exactly one of iri and
// content is expected to be set.
func EncodeOOPSRequest(iri string, content []byte, pitfalls []int, outputFormat string) ([]byte, error) {
	ids := make([]string, len(pitfalls))
	for i, id := range pitfalls {
		ids[i] = strconv.Itoa(id)
	}
	body, err := xml.MarshalIndent(oopsRequest{
		OntologyURL:     iri,
		OntologyContent: cdata{Text: string(content)},
		Pitfalls:        strings.Join(ids, ", "),
		OutputFormat:    outputFormat,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode pitfall request: %w", audit.ErrRemoteService, err)
	}
	return append([]byte(xml.Header), body...), nil
}

// ScanContent implements audit.PitfallService by submitting the ontology inline.
func (c *Client) ScanContent(ctx context.Context, content []byte) ([]byte, error) {
	body, err := EncodeOOPSRequest("", content, c.pitfallIDs, oopsOutputRDFXML)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, ServicePitfalls, http.MethodPost, c.pitfallURL, "application/xml", body)
}

// ScanIRI implements audit.PitfallService by letting the scanner fetch iri.
func (c *Client) ScanIRI(ctx context.Context, iri string) ([]byte, error) {
	if iri == "" {
		return nil, fmt.Errorf("%w: empty ontology IRI", audit.ErrArgument)
	}
	body, err := EncodeOOPSRequest(iri, nil, c.pitfallIDs, oopsOutputXML)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, ServicePitfalls, http.MethodPost, c.pitfallURL, "application/xml", body)
}
