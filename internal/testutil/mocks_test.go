package testutil_test

import (
	"testing"

	"github.com/stackvity/ontaudit/internal/testutil"
	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
)

// The testify mocks only record calls; MemoryLedger has lookup logic of its own.
func TestMemoryLedger_GetReturnsLatest(t *testing.T) {
	l := &testutil.MemoryLedger{}
	_ = l.Record(audit.LedgerEntry{Ontology: "a.owl", Kind: audit.ReportPitfalls, Status: audit.StatusFailed})
	_ = l.Record(audit.LedgerEntry{Ontology: "a.owl", Kind: audit.ReportPitfalls, Status: audit.StatusGenerated})
	_ = l.Record(audit.LedgerEntry{Ontology: "b.owl", Kind: audit.ReportPitfalls, Status: audit.StatusFailed})

	got, ok := l.Get("a.owl", audit.ReportPitfalls)
	assert.True(t, ok)
	assert.Equal(t, audit.StatusGenerated, got.Status)

	_, ok = l.Get("a.owl", audit.ReportFairCheck)
	assert.False(t, ok)
	assert.Len(t, l.Entries(), 3)
}
