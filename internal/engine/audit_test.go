package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builders-garden/watchy/internal/chainregistry"
	"github.com/builders-garden/watchy/internal/checks/onchain"
	"github.com/builders-garden/watchy/internal/jobstore"
	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/ratelimit"
	"github.com/builders-garden/watchy/internal/submission"
)

func failingDial(cfg chainregistry.ChainConfig) (*onchain.Verifier, *ethclient.Client, error) {
	return nil, nil, errors.New("dial refused in test")
}

func newTestEngine(t *testing.T, limiterCfg ratelimit.Config) (*Engine, jobstore.Store) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	eng := New(Dependencies{
		Chains:         chainregistry.New(),
		Store:          store,
		Limiter:        ratelimit.New(limiterCfg),
		GlobalPoolSize: 2,
		ProbePoolSize:  2,
		Uploader:       submission.NullUploader{},
		AuditorName:    "watchy-test",
		DialOnchain:    failingDial,
		WebhookSecret:  "secret",
	})
	return eng, store
}

func TestSubmitRejectsUnsupportedChain(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	_, err := eng.Submit(context.Background(), big.NewInt(1), 999999, "")
	assert.ErrorIs(t, err, ErrInvalidAgent)
}

func TestSubmitEnforcesPerAgentRateLimit(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 1, Window: time.Hour})
	_, err := eng.Submit(context.Background(), big.NewInt(1), 8453, "")
	require.NoError(t, err)

	_, err = eng.Submit(context.Background(), big.NewInt(1), 8453, "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSubmitCreatesAPendingJob(t *testing.T) {
	eng, store := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	auditID, err := eng.Submit(context.Background(), big.NewInt(1), 8453, "")
	require.NoError(t, err)

	job, err := store.Get(context.Background(), auditID)
	require.NoError(t, err)
	assert.Equal(t, auditID, job.AuditID)
}

func TestSubmitEventuallyFailsWhenDialingRPCErrors(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	auditID, err := eng.Submit(context.Background(), big.NewInt(1), 8453, "")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := eng.Status(context.Background(), auditID)
		require.NoError(t, err)
		if job.Error != nil {
			assert.Equal(t, "INTERNAL_ERROR", job.Error.Code)
			assert.Equal(t, model.StatusFailed, job.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audit never reached a failed state after the rpc dial errored")
}

// TestFinalizeTransitionsJobToCompleted exercises the success-path
// terminal transition directly: finalize is the step run() hands off to
// once a report has been assembled, and it must move the job to
// completed and make its result available, matching the failure path's
// symmetric fail() transition to failed.
func TestFinalizeTransitionsJobToCompleted(t *testing.T) {
	eng, store := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})

	job := &model.AuditJob{
		AuditID:   "aud_finalize_test",
		AgentID:   big.NewInt(1),
		ChainID:   8453,
		Status:    model.StatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), job))

	rep := &model.Report{
		Version: model.ReportVersion,
		Agent:   model.ReportAgent{AgentID: "1", Registry: "0xregistry"},
		Scores:  model.Scores{Overall: 90},
	}

	eng.finalize(context.Background(), job.AuditID, rep, "", rep.Scores)

	got, err := store.Get(context.Background(), job.AuditID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "1", got.Result.Agent.AgentID)

	out, err := eng.Report(context.Background(), job.AuditID)
	require.NoError(t, err)
	assert.Same(t, rep, out)
}

func TestStatusReturnsErrNotFoundForUnknownAuditID(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	_, err := eng.Status(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestReportFailsUntilAuditCompletes(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	auditID, err := eng.Submit(context.Background(), big.NewInt(1), 8453, "")
	require.NoError(t, err)

	_, err = eng.Report(context.Background(), auditID)
	assert.Error(t, err)
}

func TestListByAgentReflectsSubmittedJobs(t *testing.T) {
	eng, _ := newTestEngine(t, ratelimit.Config{MaxEvents: 10, Window: time.Hour})
	auditID, err := eng.Submit(context.Background(), big.NewInt(55), 8453, "")
	require.NoError(t, err)

	jobs, err := eng.ListByAgent(context.Background(), 8453, "55", jobstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, auditID, jobs[0].AuditID)
}
