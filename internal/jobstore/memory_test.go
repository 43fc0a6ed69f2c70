package jobstore

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builders-garden/watchy/internal/model"
)

func newTestJob(auditID string, agentID int64) *model.AuditJob {
	return &model.AuditJob{
		AuditID: auditID,
		AgentID: big.NewInt(agentID),
		ChainID: 1,
		Status:  model.StatusPending,
	}
}

func TestCreateThenGetRoundTrips(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newTestJob("aud_1", 42)
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "aud_1")
	require.NoError(t, err)
	assert.Equal(t, "aud_1", got.AuditID)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestCreateRejectsDuplicateAuditID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("aud_1", 1)))
	assert.Error(t, s.Create(ctx, newTestJob("aud_1", 1)))
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusStampsTimestamps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("aud_1", 1)))

	require.NoError(t, s.UpdateStatus(ctx, "aud_1", model.StatusInProgress, &model.Progress{Phase: "onchain"}))
	job, err := s.Get(ctx, "aud_1")
	require.NoError(t, err)
	assert.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, s.UpdateStatus(ctx, "aud_1", model.StatusCompleted, nil))
	job, err = s.Get(ctx, "aud_1")
	require.NoError(t, err)
	assert.NotNil(t, job.CompletedAt)
}

func TestSetResultAndSetError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("aud_1", 1)))

	require.NoError(t, s.SetError(ctx, "aud_1", &model.JobError{Code: "ONCHAIN_FAILED", Message: "rpc down"}))
	job, err := s.Get(ctx, "aud_1")
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	assert.Equal(t, "ONCHAIN_FAILED", job.Error.Code)

	require.NoError(t, s.SetResult(ctx, "aud_1", &model.Report{Version: "1"}))
	job, err = s.Get(ctx, "aud_1")
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Nil(t, job.Error, "setting a result clears any prior error")
}

func TestListByAgentIsInsertionOrderedAndPaginated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		job := newTestJob(stringAuditID(i), 99)
		require.NoError(t, s.Create(ctx, job))
	}

	page, err := s.ListByAgent(ctx, 1, "99", ListOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "aud_0", page[0].AuditID)
	assert.Equal(t, "aud_1", page[1].AuditID)

	page, err = s.ListByAgent(ctx, 1, "99", ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "aud_4", page[0].AuditID)
}

func TestListByAgentScopesByChainAndAgent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("aud_1", 1)))

	other := newTestJob("aud_2", 2)
	other.ChainID = 2
	require.NoError(t, s.Create(ctx, other))

	page, err := s.ListByAgent(ctx, 1, "1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "aud_1", page[0].AuditID)
}

func stringAuditID(i int) string {
	return fmt.Sprintf("aud_%d", i)
}
