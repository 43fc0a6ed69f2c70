// Package jobstore implements the key->record Job Store (spec.md §4.6):
// create/update/get/list operations over AuditJob records, behind one
// contract with interchangeable in-memory and durable (Redis) backends.
// Point-wise atomicity (a reader never observes a partially-updated
// record) is the contract every implementation must uphold.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/builders-garden/watchy/internal/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("jobstore: not found")

// TTL is the fixed record lifetime after a job reaches a terminal state
// (spec.md §4.6).
const TTL = 7 * 24 * time.Hour

// ListOptions bounds a List call. Limit is clamped to [1, 100].
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the contract both backends implement.
type Store interface {
	// Create inserts a new job in StatusPending. Returns an error if the
	// audit ID already exists.
	Create(ctx context.Context, job *model.AuditJob) error

	// UpdateStatus performs a monotone status transition, stamping the
	// matching timestamp field and applying the TTL when the new status
	// is terminal.
	UpdateStatus(ctx context.Context, auditID string, status model.Status, progress *model.Progress) error

	// SetResult attaches a finished report (and clears any error) to a
	// job, without changing its status; callers transition to completed
	// separately so status-then-result ordering is explicit.
	SetResult(ctx context.Context, auditID string, report *model.Report) error

	// SetError attaches a terminal error to a job, without changing its
	// status.
	SetError(ctx context.Context, auditID string, jobErr *model.JobError) error

	// Get returns the job's current snapshot.
	Get(ctx context.Context, auditID string) (*model.AuditJob, error)

	// ListByAgent returns audit IDs submitted for (chainID, agentID), in
	// insertion order, offset-paginated.
	ListByAgent(ctx context.Context, chainID uint64, agentID string, opts ListOptions) ([]*model.AuditJob, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
