package format_test

import (
	"testing"

	"github.com/stackvity/ontaudit/pkg/audit/format"
	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	detector := format.NewGoEnryDetector(nil)

	testCases := []struct {
		name     string
		path     string
		content  string
		expected format.Format
	}{
		{"rdfxml with prolog", "onto.owl", `<?xml version="1.0"?><rdf:RDF/>`, format.RDFXML},
		{"rdfxml without prolog", "onto.owl", "\n<rdf:RDF xmlns:rdf=\"http://www.w3.org/1999/02/22-rdf-syntax-ns#\"/>", format.RDFXML},
		{"rdfxml named ttl", "onto.ttl", `<?xml version="1.0"?><rdf:RDF/>`, format.RDFXML},
		{"turtle prefix", "onto.ttl", "@prefix owl: <http://www.w3.org/2002/07/owl#> .", format.Turtle},
		{"turtle starting with iri", "onto.ttl", "<http://example.org/o> a <http://www.w3.org/2002/07/owl#Ontology> .", format.Turtle},
		{"turtle in owl file", "onto.owl", "@prefix owl: <http://www.w3.org/2002/07/owl#> .", format.Turtle},
		{"empty uses extension", "onto.ttl", "", format.Turtle},
		{"unknown", "notes.bin", "\x00\x01\x02\x03\x00\x00\x00\x00", format.Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, detector.Detect([]byte(tc.content), tc.path))
		})
	}
}

func TestDetect_Overrides(t *testing.T) {
	detector := format.NewGoEnryDetector(map[string]format.Format{
		"OWX": format.RDFXML,
		"":    format.Turtle,
	})

	assert.Equal(t, format.RDFXML, detector.Detect([]byte("@prefix a: <b> ."), "file.owx"))
	assert.Equal(t, format.Unknown, detector.Detect([]byte("\x00\x00\x00\x00\x00"), "file"))
}
