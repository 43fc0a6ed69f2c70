package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/builders-garden/watchy/internal/model"
)

type memoryEntry struct {
	job     *model.AuditJob
	expires time.Time // zero until the job reaches a terminal state
}

// MemoryStore is the in-memory Job Store backend, a direct adaptation of
// the teacher's mutex-guarded, lazily-expiring cache entries.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryEntry
	byAgent map[string][]string // "chainID:agentID" -> audit IDs, insertion order
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
		byAgent: make(map[string][]string),
	}
}

func agentKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("%d:%s", chainID, agentID)
}

func (m *MemoryStore) Create(_ context.Context, job *model.AuditJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[job.AuditID]; exists {
		return fmt.Errorf("jobstore: audit id %q already exists", job.AuditID)
	}

	clone := *job
	m.records[job.AuditID] = &memoryEntry{job: &clone}

	key := agentKey(job.ChainID, job.AgentID.String())
	m.byAgent[key] = append(m.byAgent[key], job.AuditID)
	return nil
}

func (m *MemoryStore) get(auditID string) (*memoryEntry, error) {
	entry, ok := m.records[auditID]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, auditID string, status model.Status, progress *model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(auditID)
	if err != nil {
		return err
	}

	now := time.Now()
	entry.job.Status = status
	entry.job.Progress = progress

	switch status {
	case model.StatusInProgress:
		if entry.job.StartedAt == nil {
			entry.job.StartedAt = &now
		}
	case model.StatusCompleted:
		entry.job.CompletedAt = &now
		entry.expires = now.Add(TTL)
	case model.StatusFailed:
		entry.job.FailedAt = &now
		entry.expires = now.Add(TTL)
	}
	return nil
}

func (m *MemoryStore) SetResult(_ context.Context, auditID string, report *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(auditID)
	if err != nil {
		return err
	}
	entry.job.Result = report
	entry.job.Error = nil
	return nil
}

func (m *MemoryStore) SetError(_ context.Context, auditID string, jobErr *model.JobError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(auditID)
	if err != nil {
		return err
	}
	entry.job.Error = jobErr
	return nil
}

func (m *MemoryStore) Get(_ context.Context, auditID string) (*model.AuditJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, err := m.get(auditID)
	if err != nil {
		return nil, err
	}
	clone := *entry.job
	return &clone, nil
}

func (m *MemoryStore) ListByAgent(_ context.Context, chainID uint64, agentID string, opts ListOptions) ([]*model.AuditJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byAgent[agentKey(chainID, agentID)]
	limit := clampLimit(opts.Limit)

	out := make([]*model.AuditJob, 0, limit)
	for i := opts.Offset; i < len(ids) && len(out) < limit; i++ {
		entry, err := m.get(ids[i])
		if err != nil {
			continue
		}
		clone := *entry.job
		out = append(out, &clone)
	}
	return out, nil
}
