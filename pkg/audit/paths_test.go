package audit_test

import (
	"path/filepath"
	"testing"

	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
)

func TestShortName(t *testing.T) {
	assert.Equal(t, "pizza", audit.ShortName("/corpus/pizza.owl"))
	assert.Equal(t, "pizza", audit.ShortName("/corpus/pizza.v2.ttl"), "name stops at the first dot")
	assert.Equal(t, "README", audit.ShortName("README"))
}

func TestNewOntologyRef(t *testing.T) {
	ref := audit.NewOntologyRef("/corpus/a/Geo.TTL")
	assert.Equal(t, audit.KindTurtle, ref.Kind)
	assert.Equal(t, "Geo", ref.Name)

	ref = audit.NewOntologyRef("/corpus/a/geo.owl")
	assert.Equal(t, audit.KindOWL, ref.Kind)
}

func TestResolver(t *testing.T) {
	out := filepath.Join("out")
	r := audit.NewResolver(out, "DABGEO", "")

	tests := []struct {
		name     string
		path     string
		kind     audit.ReportKind
		wantDir  string
		wantPath string
	}{
		{
			name:     "ungrouped ontology gets its own directory",
			path:     "/corpus/pizza/pizza.owl",
			kind:     audit.ReportStatistics,
			wantDir:  filepath.Join(out, "pizza"),
			wantPath: filepath.Join(out, "pizza", "pizza.txt"),
		},
		{
			name:     "grouped ontology shares the group directory",
			path:     "/corpus/DABGEO/energy/solar/solar.owl",
			kind:     audit.ReportPitfalls,
			wantDir:  filepath.Join(out, "dabgeo"),
			wantPath: filepath.Join(out, "dabgeo", "solar_OOPS.txt"),
		},
		{
			name:     "quality report suffix",
			path:     "/corpus/geo.owl",
			kind:     audit.ReportQualityScore,
			wantDir:  filepath.Join(out, "geo"),
			wantPath: filepath.Join(out, "geo", "geo_FOOPS.json"),
		},
		{
			name:     "fair report suffix",
			path:     "/corpus/geo.owl",
			kind:     audit.ReportFairCheck,
			wantDir:  filepath.Join(out, "geo"),
			wantPath: filepath.Join(out, "geo", "geo_Fair_Checker.json"),
		},
		{
			name:     "namespaces report suffix",
			path:     "/corpus/geo.ttl",
			kind:     audit.ReportUsedNamespaces,
			wantDir:  filepath.Join(out, "geo"),
			wantPath: filepath.Join(out, "geo", "geo_used_Ontologies.txt"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := r.For(audit.NewOntologyRef(tt.path), tt.kind)
			assert.Equal(t, tt.wantDir, loc.Dir)
			assert.Equal(t, tt.wantPath, loc.Path)
			assert.Equal(t, loc, r.For(audit.NewOntologyRef(tt.path), tt.kind), "resolution is deterministic")
		})
	}
}

func TestResolver_NoMarker(t *testing.T) {
	r := audit.NewResolver("out", "", "")
	assert.False(t, r.Grouped("/corpus/DABGEO/x.owl"), "empty marker disables grouping")
	assert.Equal(t, filepath.Join("out", "x"), r.DirFor("/corpus/DABGEO/x.owl"))
}
