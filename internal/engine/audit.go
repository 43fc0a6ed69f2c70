// Package engine implements the Audit Engine (spec.md §4.1): the
// five-phase orchestrator that drives on-chain verification, metadata
// validation, endpoint probing, security checks, and finalization for
// one AuditJob, consuming the chain registry, job store, check
// subsystems, and signer the way a bounded-concurrency pipeline in the
// teacher's style drives its own task graph.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/builders-garden/watchy/internal/boundedpool"
	"github.com/builders-garden/watchy/internal/chainregistry"
	"github.com/builders-garden/watchy/internal/checks/metadata"
	"github.com/builders-garden/watchy/internal/checks/onchain"
	"github.com/builders-garden/watchy/internal/checks/probe"
	"github.com/builders-garden/watchy/internal/checks/security"
	"github.com/builders-garden/watchy/internal/jobstore"
	"github.com/builders-garden/watchy/internal/logging"
	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/obsmetrics"
	"github.com/builders-garden/watchy/internal/report"
	"github.com/builders-garden/watchy/internal/scoring"
	"github.com/builders-garden/watchy/internal/signer"
	"github.com/builders-garden/watchy/internal/submission"
	"github.com/builders-garden/watchy/internal/webhook"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const totalPhases = 5

// ErrInvalidAgent is returned by Submit when the chain is unsupported.
var ErrInvalidAgent = fmt.Errorf("engine: unsupported chain")

// ErrRateLimited is returned by Submit when the agent has an audit in
// flight or has exceeded its submission rate, per spec.md's per-agent
// rate limit rule.
var ErrRateLimited = fmt.Errorf("engine: rate limited")

// ErrNotCompleted is returned by Report when the audit exists but hasn't
// reached a completed state yet; the HTTP facade maps this to 409.
var ErrNotCompleted = fmt.Errorf("engine: audit is not completed")

// OnchainFactory dials the ethclient for a chain and wraps it in a
// Verifier, returning the dialed client too since the Submission
// Pipeline's reputation write reuses the same connection. Test doubles
// can return a verifier and client backed by a stub RPC transport.
type OnchainFactory func(cfg chainregistry.ChainConfig) (*onchain.Verifier, *ethclient.Client, error)

// Engine drives audits end to end.
type Engine struct {
	chains       *chainregistry.Registry
	store        jobstore.Store
	limiter      interface {
		Allow(chainID uint64, agentID string) (bool, time.Duration)
	}
	globalPool   *boundedpool.Pool
	probePool    *boundedpool.Pool
	prober       *probe.Prober
	metadataVal  *metadata.Validator
	securityChk  *security.Checker
	signer       *signer.Signer
	uploader     submission.Uploader
	scoringCfg   scoring.Config
	auditorName  string
	dialOnchain  OnchainFactory
	webhooks     *webhook.Dispatcher
	log          *logging.Logger
	metrics      *obsmetrics.Metrics
}

// Dependencies bundles everything New needs.
type Dependencies struct {
	Chains      *chainregistry.Registry
	Store       jobstore.Store
	Limiter     interface {
		Allow(chainID uint64, agentID string) (bool, time.Duration)
	}
	GlobalPoolSize int
	ProbePoolSize  int
	Signer         *signer.Signer
	Uploader       submission.Uploader
	ScoringConfig  scoring.Config
	AuditorName    string
	DialOnchain    OnchainFactory
	WebhookSecret  string
	Logger         *logging.Logger
	Metrics        *obsmetrics.Metrics
}

// New constructs an Engine.
func New(d Dependencies) *Engine {
	uploader := d.Uploader
	if uploader == nil {
		uploader = submission.NullUploader{}
	}
	prober := probe.New()
	return &Engine{
		chains:      d.Chains,
		store:       d.Store,
		limiter:     d.Limiter,
		globalPool:  boundedpool.New(d.GlobalPoolSize),
		probePool:   boundedpool.New(d.ProbePoolSize),
		prober:      prober,
		metadataVal: metadata.New(prober),
		securityChk: security.New(),
		signer:      d.Signer,
		uploader:    uploader,
		scoringCfg:  d.ScoringConfig,
		auditorName: d.AuditorName,
		dialOnchain: d.DialOnchain,
		webhooks:    webhook.New(d.WebhookSecret),
		log:         d.Logger,
		metrics:     d.Metrics,
	}
}

// Submit validates the request, enforces the per-agent rate limit,
// creates a pending job, and spawns its background execution bounded by
// the engine's global concurrency pool.
func (e *Engine) Submit(ctx context.Context, agentID *big.Int, chainID uint64, callbackURL string) (string, error) {
	if _, ok := e.chains.Lookup(chainID); !ok {
		return "", ErrInvalidAgent
	}
	if allowed, retryAfter := e.limiter.Allow(chainID, agentID.String()); !allowed {
		return "", fmt.Errorf("%w: retry after %s", ErrRateLimited, retryAfter)
	}

	auditID, err := newAuditID()
	if err != nil {
		return "", fmt.Errorf("engine: generate audit id: %w", err)
	}
	job := &model.AuditJob{
		AuditID:     auditID,
		AgentID:     agentID,
		ChainID:     chainID,
		Status:      model.StatusPending,
		CreatedAt:   time.Now().UTC(),
		CallbackURL: callbackURL,
	}
	if err := e.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("engine: create job: %w", err)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
		defer cancel()
		if err := e.globalPool.Acquire(runCtx); err != nil {
			e.fail(runCtx, auditID, "AUDIT_TIMEOUT", "could not acquire an execution slot in time")
			return
		}
		defer e.globalPool.Release()
		e.run(runCtx, auditID, agentID, chainID, callbackURL)
	}()

	return auditID, nil
}

// Status returns the current job view.
func (e *Engine) Status(ctx context.Context, auditID string) (*model.AuditJob, error) {
	return e.store.Get(ctx, auditID)
}

// Report returns the signed report for a completed job.
func (e *Engine) Report(ctx context.Context, auditID string) (*model.Report, error) {
	job, err := e.store.Get(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted || job.Result == nil {
		return nil, ErrNotCompleted
	}
	return job.Result, nil
}

// ListByAgent proxies to the job store's agent index.
func (e *Engine) ListByAgent(ctx context.Context, chainID uint64, agentID string, opts jobstore.ListOptions) ([]*model.AuditJob, error) {
	return e.store.ListByAgent(ctx, chainID, agentID, opts)
}

func (e *Engine) run(ctx context.Context, auditID string, agentID *big.Int, chainID uint64, callbackURL string) {
	if e.metrics != nil {
		e.metrics.AuditsInFlight.Inc()
		defer e.metrics.AuditsInFlight.Dec()
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.AuditDuration.WithLabelValues("watchy").Observe(time.Since(start).Seconds())
		}
	}()

	e.setPhase(ctx, auditID, "onchain", 0)
	_ = e.store.UpdateStatus(ctx, auditID, model.StatusInProgress, &model.Progress{Phase: "onchain", CompletedSteps: 0, TotalSteps: totalPhases})

	chainCfg, _ := e.chains.Lookup(chainID)

	verifier, client, err := e.dialOnchain(chainCfg)
	if err != nil {
		e.fail(ctx, auditID, "INTERNAL_ERROR", fmt.Sprintf("dial chain rpc: %v", err))
		return
	}

	onchainResult, err := verifier.Verify(ctx, agentID)
	if err != nil {
		e.fail(ctx, auditID, "AGENT_NOT_FOUND", err.Error())
		return
	}
	e.setPhase(ctx, auditID, "metadata", 1)

	doc, metaFetchIssue := fetchMetadata(ctx, e.prober, onchainResult.Check.MetadataURI)
	identity := metadata.Identity{ChainID: chainID, RegistryAddress: chainCfg.RegistryAddress, AgentID: agentID}

	var metaCheck model.MetadataCheck
	if doc == nil {
		metaCheck = model.MetadataCheck{Issues: []model.Issue{*metaFetchIssue}}
	} else {
		metaCheck = e.metadataVal.Validate(ctx, doc, identity)
		onchainResult.Check.RegistrationConsistent = registrationConsistent(metaCheck)
	}

	e.setPhase(ctx, auditID, "endpoints", 2)
	var endpoints []model.EndpointProbe
	if doc != nil {
		endpoints = e.probeAll(ctx, doc)
		backfillServiceValidation(endpoints, metaCheck.ServiceResults)
	}

	e.setPhase(ctx, auditID, "security", 3)
	var securityCheck model.SecurityCheck
	if doc != nil {
		securityCheck = e.securityChk.Check(ctx, doc)
	}

	e.setPhase(ctx, auditID, "finalize", 4)
	checks := model.Checks{Metadata: metaCheck, Onchain: onchainResult.Check, Endpoints: endpoints, Security: securityCheck}
	scores, breakdown := scoring.Score(e.scoringCfg, checks)

	r := report.Build(report.BuildParams{
		AuditorName:    e.auditorName,
		AuditorAddress: e.signer.Address().Hex(),
		AuditorVersion: model.ReportVersion,
		BlockNumber:    onchainResult.BlockNumber,
		AgentID:        agentID,
		Registry:       chainCfg.RegistryAddress,
		MetadataURI:    onchainResult.Check.MetadataURI,
		Owner:          onchainResult.Check.Owner,
		Checks:         checks,
		Scores:         scores,
		Now:            time.Now().UTC(),
	})

	if e.signer != nil {
		if err := report.Sign(r, e.signer); err != nil && e.log != nil {
			e.log.WithError(err).WithFields(map[string]interface{}{"audit_id": auditID}).Warn("report signing failed")
		}
	}

	cid := e.submitArtifacts(ctx, auditID, r, breakdown, chainCfg, client, agentID, scores.Overall)
	r.IPFSCID = cid

	e.finalize(ctx, auditID, r, callbackURL, scores)
}

// finalize persists the completed report, transitions the job to its
// terminal completed state, and (if requested) delivers the
// audit.completed webhook. Split out of run so the completion
// transition can be exercised directly without driving a full audit.
func (e *Engine) finalize(ctx context.Context, auditID string, r *model.Report, callbackURL string, scores model.Scores) {
	if err := e.store.SetResult(ctx, auditID, r); err != nil {
		e.fail(ctx, auditID, "INTERNAL_ERROR", err.Error())
		return
	}
	if err := e.store.UpdateStatus(ctx, auditID, model.StatusCompleted, nil); err != nil {
		e.fail(ctx, auditID, "INTERNAL_ERROR", err.Error())
		return
	}
	if e.metrics != nil {
		e.metrics.AuditsTotal.WithLabelValues("watchy", "completed").Inc()
	}

	if callbackURL == "" {
		return
	}
	issuesJSON, _ := report.MarshalIssuesJSON(allIssues(r.Checks))
	payload := webhook.Payload{
		Event:     "audit.completed",
		AuditID:   auditID,
		Timestamp: time.Now().UTC(),
		Result:    webhook.Result{Status: model.StatusCompleted, Scores: &scores, IPFSCID: r.IPFSCID, Issues: issuesJSON},
	}
	go func() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.webhooks.Deliver(deliverCtx, callbackURL, payload); err != nil && e.log != nil {
			e.log.WithError(err).WithFields(map[string]interface{}{"audit_id": auditID}).Warn("webhook delivery failed")
		}
	}()
}

// allIssues flattens every check category's issues into one slice for
// the webhook payload's compact issue summary.
func allIssues(c model.Checks) []model.Issue {
	issues := append([]model.Issue{}, c.Metadata.Issues...)
	issues = append(issues, c.Onchain.Issues...)
	for _, ep := range c.Endpoints {
		issues = append(issues, ep.Issues...)
	}
	issues = append(issues, c.Security.Issues...)
	return issues
}

// backfillServiceValidation copies the Metadata Validator's per-service
// schema/skill verdicts onto the matching EndpointProbe, since the
// prober itself never inspects response bodies for schema conformance.
func backfillServiceValidation(endpoints []model.EndpointProbe, results map[string]model.ServiceValidation) {
	for i := range endpoints {
		sv, ok := results[endpoints[i].ServiceName]
		if !ok {
			continue
		}
		validSchema, skillsMatch := sv.ValidSchema, sv.SkillsMatch
		endpoints[i].ValidSchema = &validSchema
		endpoints[i].SkillsMatch = &skillsMatch
	}
}

func (e *Engine) probeAll(ctx context.Context, doc *model.MetadataDocument) []model.EndpointProbe {
	results := make([]model.EndpointProbe, len(doc.Services))
	done := make(chan struct{}, len(doc.Services))
	for i, svc := range doc.Services {
		i, svc := i, svc
		if svc.Endpoint == "" {
			results[i] = model.EndpointProbe{ServiceName: svc.Name}
			done <- struct{}{}
			continue
		}
		err := e.probePool.Go(ctx, func() {
			defer func() { done <- struct{}{} }()
			result := e.prober.Probe(ctx, svc.Name, svc.Endpoint)
			if e.metrics != nil {
				reachable := "false"
				if result.Reachable {
					reachable = "true"
				}
				e.metrics.EndpointProbesTotal.WithLabelValues("watchy", reachable).Inc()
			}
			results[i] = result
		})
		if err != nil {
			results[i] = model.EndpointProbe{ServiceName: svc.Name, EndpointURL: svc.Endpoint,
				Issues: []model.Issue{{Severity: model.SeverityError, Code: "PROBE_POOL_UNAVAILABLE", Message: err.Error()}}}
			done <- struct{}{}
		}
	}
	for range doc.Services {
		<-done
	}
	return results
}

func (e *Engine) submitArtifacts(ctx context.Context, auditID string, r *model.Report, breakdown scoring.Breakdown, chainCfg chainregistry.ChainConfig, client *ethclient.Client, agentID *big.Int, score int) *string {
	jsonBytes, err := report.CanonicalJSON(r)
	if err != nil {
		return nil
	}
	md := report.Markdown(r, breakdown)

	jsonCID, jsonErr := e.uploader.Upload(ctx, auditID+".json", "application/json", jsonBytes)
	_, mdErr := e.uploader.Upload(ctx, auditID+".md", "text/markdown", []byte(md))
	if jsonErr != nil || mdErr != nil {
		r.Checks.Security.Issues = append(r.Checks.Security.Issues, model.Issue{
			Severity: model.SeverityInfo, Code: "UPLOAD_FAILED", Message: "one or more report artifacts failed to upload",
		})
		return nil
	}

	if e.signer != nil && chainCfg.ReputationAddress != "" {
		_, err := submission.WriteReputation(ctx, e.signer,
			signer.SendTransactionParams{Client: client, To: common.HexToAddress(chainCfg.ReputationAddress)},
			agentID, score, jsonCID)
		if err != nil {
			r.Checks.Security.Issues = append(r.Checks.Security.Issues, model.Issue{
				Severity: model.SeverityError, Code: "REPUTATION_WRITE_FAILED", Message: err.Error(),
			})
		}
	}
	return &jsonCID
}

func (e *Engine) setPhase(ctx context.Context, auditID, phase string, completed int) {
	_ = e.store.UpdateStatus(ctx, auditID, model.StatusInProgress, &model.Progress{
		Phase: phase, CompletedSteps: completed, TotalSteps: totalPhases,
	})
	if e.metrics != nil {
		e.metrics.AuditPhaseDuration.WithLabelValues("watchy", phase).Observe(0)
	}
}

func (e *Engine) fail(ctx context.Context, auditID, code, message string) {
	_ = e.store.SetError(ctx, auditID, &model.JobError{Code: code, Message: message})
	_ = e.store.UpdateStatus(ctx, auditID, model.StatusFailed, nil)
	if e.metrics != nil {
		e.metrics.AuditsTotal.WithLabelValues("watchy", "failed").Inc()
	}
}

func registrationConsistent(check model.MetadataCheck) bool {
	for _, issue := range check.Issues {
		if issue.Code == "REGISTRATION_MISMATCH" {
			return false
		}
	}
	return true
}

func fetchMetadata(ctx context.Context, fetcher *probe.Prober, metadataURI string) (*model.MetadataDocument, *model.Issue) {
	if metadataURI == "" {
		return nil, &model.Issue{Severity: model.SeverityCritical, Code: "METADATA_UNREACHABLE", Message: "no metadata uri on chain"}
	}
	raw, err := fetcher.FetchRaw(ctx, metadataURI)
	if err != nil {
		return nil, &model.Issue{Severity: model.SeverityCritical, Code: "METADATA_UNREACHABLE", Message: err.Error()}
	}
	doc, err := metadata.Decode(raw)
	if err != nil {
		return nil, &model.Issue{Severity: model.SeverityCritical, Code: "INVALID_METADATA_JSON", Message: err.Error()}
	}
	return doc, nil
}

func newAuditID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "aud_" + hex.EncodeToString(buf), nil
}
