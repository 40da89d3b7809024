package audit

import (
	"path/filepath"
	"strings"
)

// Location is where one report for one ontology lives.
type Location struct {
	Name string
	Dir  string
	Path string
}

// Resolver maps ontology paths to report locations under an output root.
// Paths containing GroupMarker share GroupDir; all others get a directory
// named after the ontology.
type Resolver struct {
	OutputRoot  string
	GroupMarker string
	GroupDir    string
}

// NewResolver returns a resolver, filling empty grouping fields with defaults.
func NewResolver(outputRoot, groupMarker, groupDir string) Resolver {
	if groupDir == "" {
		groupDir = DefaultGroupDir
	}
	return Resolver{OutputRoot: outputRoot, GroupMarker: groupMarker, GroupDir: groupDir}
}

// Resolve performs no I/O; the same arguments always give the same location.
func (r Resolver) Resolve(ontologyPath, suffix string) Location {
	name := ShortName(ontologyPath)
	dir := r.DirFor(ontologyPath)
	return Location{Name: name, Dir: dir, Path: filepath.Join(dir, name+suffix)}
}

// DirFor returns the report directory for an ontology path.
func (r Resolver) DirFor(ontologyPath string) string {
	if r.Grouped(ontologyPath) {
		return filepath.Join(r.OutputRoot, r.GroupDir)
	}
	return filepath.Join(r.OutputRoot, ShortName(ontologyPath))
}

// Grouped reports whether the path carries the grouping marker.
func (r Resolver) Grouped(ontologyPath string) bool {
	return r.GroupMarker != "" && strings.Contains(ontologyPath, r.GroupMarker)
}

// For resolves the location of a report kind for ref.
func (r Resolver) For(ref OntologyRef, kind ReportKind) Location {
	return r.Resolve(ref.Path, kind.Suffix())
}
