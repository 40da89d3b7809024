package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// PizzaTurtle is a small Turtle ontology with three classes and four properties.
const PizzaTurtle = `@prefix : <http://example.org/pizza#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .

<http://example.org/pizza> rdf:type owl:Ontology .

:Pizza rdf:type owl:Class ;
    rdfs:comment "A flat baked dish." .
:Topping rdf:type owl:Class .
:Base rdf:type owl:Class .

:hasTopping rdf:type owl:ObjectProperty .
:isToppingOf rdf:type owl:ObjectProperty .
:hasCalories rdf:type owl:DatatypeProperty .
:editorNote rdf:type owl:AnnotationProperty .
`

// PizzaRDFXML is an RDF/XML ontology with two classes and three properties.
const PizzaRDFXML = `<?xml version="1.0"?>
<rdf:RDF xmlns="http://example.org/pizza#"
     xml:base="http://example.org/pizza"
     xmlns:owl="http://www.w3.org/2002/07/owl#"
     xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#">
    <owl:Ontology rdf:about="http://example.org/pizza"/>
    <owl:Class rdf:about="http://example.org/pizza#Pizza">
        <rdfs:comment>A flat baked dish.</rdfs:comment>
    </owl:Class>
    <owl:Class rdf:about="http://example.org/pizza#Topping"/>
    <owl:ObjectProperty rdf:about="http://example.org/pizza#hasTopping"/>
    <owl:DatatypeProperty rdf:about="http://example.org/pizza#hasCalories"/>
    <owl:AnnotationProperty rdf:about="http://example.org/pizza#editorNote"/>
</rdf:RDF>
`

// CreateDummyFile writes content at path, creating parent directories.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0o755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0o644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	err := os.MkdirAll(filepath.Clean(path), 0o755)
	require.NoError(t, err, "Failed to create dummy directory %s", path)
}

// ReadFile returns the content of path as a string, failing the test if it
// cannot be read.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read %s", path)
	return string(data)
}
