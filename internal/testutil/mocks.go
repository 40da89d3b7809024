// Package testutil provides mock implementations for the interfaces defined in
// pkg/audit and its subpackages, so the engine and generators can be tested
// without a reasoner binary or network access.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stackvity/ontaudit/pkg/audit/ontology"
	"github.com/stretchr/testify/mock"
)

// MockHooks provides a mock implementation of the audit.Hooks interface.
type MockHooks struct {
	mock.Mock
}

// OnOntologyDiscovered mocks the OnOntologyDiscovered method.
func (m *MockHooks) OnOntologyDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

// OnOntologyStatusUpdate mocks the OnOntologyStatusUpdate method.
func (m *MockHooks) OnOntologyStatusUpdate(path string, status audit.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report audit.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockLoader provides a mock implementation of audit.OntologyLoader.
type MockLoader struct {
	mock.Mock
}

// Load mocks the Load method.
func (m *MockLoader) Load(ctx context.Context, path string) (*ontology.Ontology, error) {
	args := m.Called(ctx, path)
	o, _ := args.Get(0).(*ontology.Ontology)
	return o, args.Error(1)
}

// MockNamespaceParser provides a mock implementation of audit.NamespaceParser.
type MockNamespaceParser struct {
	mock.Mock
}

// Namespaces mocks the Namespaces method.
func (m *MockNamespaceParser) Namespaces(ctx context.Context, path string) ([]ontology.Namespace, error) {
	args := m.Called(ctx, path)
	ns, _ := args.Get(0).([]ontology.Namespace)
	return ns, args.Error(1)
}

// MockConverter provides a mock implementation of audit.FormatConverter.
type MockConverter struct {
	mock.Mock
}

// Convert mocks the Convert method.
func (m *MockConverter) Convert(ctx context.Context, ttlPath string) (string, error) {
	args := m.Called(ctx, ttlPath)
	return args.String(0), args.Error(1)
}

// RDFXML mocks the RDFXML method.
func (m *MockConverter) RDFXML(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// MockPitfallService provides a mock implementation of audit.PitfallService.
type MockPitfallService struct {
	mock.Mock
}

// ScanContent mocks the ScanContent method.
func (m *MockPitfallService) ScanContent(ctx context.Context, content []byte) ([]byte, error) {
	args := m.Called(ctx, content)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// ScanIRI mocks the ScanIRI method.
func (m *MockPitfallService) ScanIRI(ctx context.Context, iri string) ([]byte, error) {
	args := m.Called(ctx, iri)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockFairService provides a mock implementation of audit.FairService.
type MockFairService struct {
	mock.Mock
}

// Check mocks the Check method.
func (m *MockFairService) Check(ctx context.Context, iri string) ([]byte, error) {
	args := m.Called(ctx, iri)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockQualityService provides a mock implementation of audit.QualityService.
type MockQualityService struct {
	mock.Mock
}

// Assess mocks the Assess method.
func (m *MockQualityService) Assess(ctx context.Context, iri string) ([]byte, error) {
	args := m.Called(ctx, iri)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockReasoner provides a mock implementation of reasoner.Reasoner.
type MockReasoner struct {
	mock.Mock
}

// Check mocks the Check method.
func (m *MockReasoner) Check(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

// MockIRIStrategy provides a mock implementation of audit.IRIStrategy.
type MockIRIStrategy struct {
	mock.Mock
}

// IRIFor mocks the IRIFor method.
func (m *MockIRIStrategy) IRIFor(ctx context.Context, ref audit.OntologyRef) (string, bool, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Bool(1), args.Error(2)
}

// MemoryLedger is an in-memory audit.Ledger that records everything it is
// given. Safe for concurrent use.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []audit.LedgerEntry
	// LoadErr and PersistErr are returned by Load and Persist.
	LoadErr    error
	PersistErr error
	Persisted  int
}

// Load implements audit.Ledger.
func (l *MemoryLedger) Load(path string) error { return l.LoadErr }

// Record implements audit.Ledger.
func (l *MemoryLedger) Record(entry audit.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Get implements audit.Ledger, returning the latest entry.
func (l *MemoryLedger) Get(ontologyPath string, kind audit.ReportKind) (audit.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Ontology == ontologyPath && l.entries[i].Kind == kind {
			return l.entries[i], true
		}
	}
	return audit.LedgerEntry{}, false
}

// Entries implements audit.Ledger.
func (l *MemoryLedger) Entries() []audit.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audit.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Persist implements audit.Ledger.
func (l *MemoryLedger) Persist(path string) error {
	l.mu.Lock()
	l.Persisted++
	l.mu.Unlock()
	return l.PersistErr
}

var (
	_ audit.Hooks           = (*MockHooks)(nil)
	_ audit.OntologyLoader  = (*MockLoader)(nil)
	_ audit.NamespaceParser = (*MockNamespaceParser)(nil)
	_ audit.FormatConverter = (*MockConverter)(nil)
	_ audit.PitfallService  = (*MockPitfallService)(nil)
	_ audit.FairService     = (*MockFairService)(nil)
	_ audit.QualityService  = (*MockQualityService)(nil)
	_ audit.IRIStrategy     = (*MockIRIStrategy)(nil)
	_ audit.Ledger          = (*MemoryLedger)(nil)
)
