package status

import (
	"context"
	"sync"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

// Store persists the latest record per (namespace, jobID). Implementations
// only need atomic per-key writes; ordering is enforced by the Tracker.
type Store interface {
	// Get returns the stored record or nil when there is none.
	Get(ctx context.Context, namespace, jobID string) (*models.JobStatusRecord, error)
	// Put overwrites the record. Stores that expire keys natively use ttl.
	Put(ctx context.Context, rec *models.JobStatusRecord, ttl time.Duration) error
	// Create writes rec only if no live record holds its key, atomically
	// across every process sharing the store, and reports whether it wrote.
	// A record whose ExpiresAt is not after rec.StartedAt counts as absent.
	Create(ctx context.Context, rec *models.JobStatusRecord, ttl time.Duration) (bool, error)
	// Sweep removes records whose ExpiresAt is not after now and returns how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

func key(namespace, jobID string) string {
	return namespace + ":" + jobID
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.JobStatusRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.JobStatusRecord)}
}

func (m *MemoryStore) Get(_ context.Context, namespace, jobID string) (*models.JobStatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key(namespace, jobID)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Put(_ context.Context, rec *models.JobStatusRecord, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(rec.Namespace, rec.JobID)] = *rec
	return nil
}

func (m *MemoryStore) Create(_ context.Context, rec *models.JobStatusRecord, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(rec.Namespace, rec.JobID)
	if prev, ok := m.records[k]; ok && prev.ExpiresAt.After(rec.StartedAt) {
		return false, nil
	}
	m.records[k] = *rec
	return true, nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, rec := range m.records {
		if !rec.ExpiresAt.After(now) {
			delete(m.records, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records currently held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
