package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builders-garden/watchy/internal/chainregistry"
	"github.com/builders-garden/watchy/internal/checks/onchain"
	"github.com/builders-garden/watchy/internal/engine"
	"github.com/builders-garden/watchy/internal/jobstore"
	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/ratelimit"
	"github.com/builders-garden/watchy/internal/scoring"
	"github.com/builders-garden/watchy/internal/submission"
)

// failingDial never reaches a real RPC endpoint; Submit's synchronous
// path only needs the chain lookup and rate limit to succeed, the dial
// itself happens in the background goroutine these tests don't wait on.
func failingDial(cfg chainregistry.ChainConfig) (*onchain.Verifier, *ethclient.Client, error) {
	return nil, nil, assert.AnError
}

func newTestServer(t *testing.T) (*httptest.Server, jobstore.Store) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	chains := chainregistry.New()
	eng := engine.New(engine.Dependencies{
		Chains:         chains,
		Store:          store,
		Limiter:        ratelimit.New(ratelimit.Config{MaxEvents: 100, Window: time.Hour}),
		GlobalPoolSize: 4,
		ProbePoolSize:  4,
		Uploader:       submission.NullUploader{},
		ScoringConfig:  scoring.Config{},
		AuditorName:    "watchy-test",
		DialOnchain:    failingDial,
		WebhookSecret:  "secret",
	})
	s := NewServer(Config{
		Engine:         eng,
		Version:        "test",
		Chains:         chains,
		DefaultChainID: 8453,
		StorageBackend: "memory",
		WalletMode:     "none",
	})
	return httptest.NewServer(s.Router()), store
}

func TestHandleHealthReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, uint64(8453), body.DefaultChain)
	assert.Equal(t, "memory", body.Storage)
	assert.Equal(t, "none", body.WalletMode)
	assert.NotEmpty(t, body.SupportedChains)
}

func TestHandleSubmitAcceptsValidRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	payload, _ := json.Marshal(map[string]interface{}{"agent_id": "42", "chain_id": 8453})
	resp, err := http.Post(srv.URL+"/audit", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.AuditID)
	assert.Equal(t, uint64(8453), body.ChainID)
	assert.Equal(t, "Base", body.ChainName)
	assert.Equal(t, "pending", body.Status)
	assert.False(t, body.CreatedAt.IsZero())
	assert.True(t, body.EstimatedCompletion.After(body.CreatedAt))
}

func TestHandleSubmitRejectsUnsupportedChain(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	payload, _ := json.Marshal(map[string]interface{}{"agent_id": "42", "chain_id": 999999})
	resp, err := http.Post(srv.URL+"/audit", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSubmitRejectsMalformedAgentID(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	payload, _ := json.Marshal(map[string]interface{}{"agent_id": "not-a-number", "chain_id": 8453})
	resp, err := http.Post(srv.URL+"/audit", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatusReturnsPendingJobJustAfterSubmit(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	payload, _ := json.Marshal(map[string]interface{}{"agent_id": "7", "chain_id": 8453})
	resp, err := http.Post(srv.URL+"/audit", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	var submitted submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()

	statusResp, err := http.Get(srv.URL + "/audit/" + submitted.AuditID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	var job model.AuditJob
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&job))
	assert.Equal(t, submitted.AuditID, job.AuditID)
}

func TestHandleStatusReturns404ForUnknownAuditID(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/audit/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleReportReturns409BeforeCompletion(t *testing.T) {
	srv, store := newTestServer(t)
	defer srv.Close()

	job := &model.AuditJob{AuditID: "aud_pending", AgentID: big.NewInt(1), ChainID: 8453, Status: model.StatusPending}
	require.NoError(t, store.Create(context.Background(), job))

	resp, err := http.Get(srv.URL + "/audit/aud_pending/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleReportReturns404ForUnknownAuditID(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/audit/does-not-exist/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListByAgentRequiresChainID(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents/0xregistry/7/audits")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleListByAgentReturnsEmptyListForUnknownAgent(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents/0xregistry/7/audits?chain_id=8453")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []model.AuditJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Empty(t, jobs)
}

func TestAPIKeyMiddlewareRejectsMissingKey(t *testing.T) {
	store := jobstore.NewMemoryStore()
	eng := engine.New(engine.Dependencies{
		Chains:      chainregistry.New(),
		Store:       store,
		Limiter:     ratelimit.New(ratelimit.Config{MaxEvents: 100, Window: time.Hour}),
		Uploader:    submission.NullUploader{},
		AuditorName: "watchy-test",
		DialOnchain: failingDial,
	})
	s := NewServer(Config{Engine: eng, Version: "test", APIKey: "secret-key", Chains: chainregistry.New()})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/audit/anything")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode, "health is exempt from the api key check")
}
