// Package model holds the data types shared across Watchy's core:
// AuditJob, AgentIdentity, the metadata document shape, endpoint probe
// results, issues, and the final signed Report (spec.md §3).
package model

import (
	"encoding/json"
	"math/big"
	"time"
)

// Status is an AuditJob's lifecycle state. Transitions are monotone:
// pending -> in_progress -> (completed|failed).
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is a machine-readable finding accumulated by a check category.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

// JobError is the terminal error recorded on a failed AuditJob.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Progress describes an in-progress job's phase.
type Progress struct {
	Phase          string `json:"phase"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
}

// AuditJob is the unit of work tracked by the Job Store.
type AuditJob struct {
	AuditID     string     `json:"audit_id"`
	AgentID     *big.Int   `json:"agent_id"`
	ChainID     uint64     `json:"chain_id"`
	Registry    string     `json:"registry,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CallbackURL string     `json:"callback_url,omitempty"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      *Report    `json:"result,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
}

// AgentIdentity names the tuple a registration must resolve to.
type AgentIdentity struct {
	ChainID         uint64
	RegistryAddress string
	AgentID         *big.Int
}

// Registration is one entry of metadata's registrations[] array.
type Registration struct {
	AgentID       string `json:"agentId"`
	AgentRegistry string `json:"agentRegistry"`
}

// Service is the tagged-union per-service-type block published under
// metadata.services[] (spec.md §4.2, design note §9).
type Service struct {
	Name         string   `json:"name"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Version      string   `json:"version,omitempty"`
	A2ASkills    []string `json:"a2aSkills,omitempty"`
	MCPTools     []string `json:"mcpTools,omitempty"`
	MCPPrompts   []string `json:"mcpPrompts,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Domains      []string `json:"domains,omitempty"`
}

// MetadataDocument is the parsed JSON pointed to by tokenURI/agentURI.
type MetadataDocument struct {
	Type            string                     `json:"type"`
	Name            string                     `json:"name"`
	Description     string                     `json:"description"`
	Image           string                     `json:"image"`
	Registrations   []Registration             `json:"registrations"`
	Active          *bool                      `json:"active,omitempty"`
	Services        []Service                  `json:"services,omitempty"`
	SupportedTrust  []string                   `json:"supportedTrust,omitempty"`
	UpdatedAt       *int64                     `json:"updatedAt,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// LatencyStats holds the three-sample percentile summary spec.md §4.4
// defines (p50=median, p95=max, p99=max of three samples).
type LatencyStats struct {
	P50Ms int64 `json:"p50_ms"`
	P95Ms int64 `json:"p95_ms"`
	P99Ms int64 `json:"p99_ms"`
}

// EndpointProbe is the result of probing one declared service endpoint.
type EndpointProbe struct {
	ServiceName string        `json:"service_name"`
	EndpointURL string        `json:"endpoint_url"`
	Reachable   bool          `json:"reachable"`
	ValidSchema *bool         `json:"valid_schema,omitempty"`
	SkillsMatch *bool         `json:"skills_match,omitempty"`
	Latency     *LatencyStats `json:"latency,omitempty"`
	Issues      []Issue       `json:"issues"`
}

// Scores holds the five (six, with security) 0..100 category scores.
type Scores struct {
	Overall               int `json:"overall"`
	Metadata              int `json:"metadata"`
	Onchain               int `json:"onchain"`
	EndpointAvailability  int `json:"endpoint_availability"`
	EndpointPerformance   int `json:"endpoint_performance"`
	Security              int `json:"security"`
}

// ServiceValidation is the Metadata Validator's per-service schema/skill
// conformance verdict for one A2A or MCP service block, back-filled by
// the engine onto the matching EndpointProbe.
type ServiceValidation struct {
	ValidSchema bool
	SkillsMatch bool
}

// MetadataCheck summarizes the Metadata Validator's findings.
type MetadataCheck struct {
	RequiredOK     bool    `json:"required_ok"`
	TypeOK         bool    `json:"type_ok"`
	URLsScore      float64 `json:"urls_score"`
	RecommendedOK  float64 `json:"recommended_score"`
	FormatScore    float64 `json:"format_score"`
	Issues         []Issue `json:"issues"`

	// ServiceResults maps service name to its per-service schema/skill
	// validation outcome (A2A/MCP only); not part of the report's JSON
	// shape, consumed internally by the engine to back-fill EndpointProbe.
	ServiceResults map[string]ServiceValidation `json:"-"`
}

// OnchainCheck summarizes the On-chain Verifier's findings.
type OnchainCheck struct {
	Exists                  bool    `json:"exists"`
	Owner                   string  `json:"owner,omitempty"`
	MetadataURI             string  `json:"metadata_uri,omitempty"`
	URIMatch                bool    `json:"uri_match"`
	Wallet                  string  `json:"wallet,omitempty"`
	WalletSet               bool    `json:"wallet_set"`
	RegistrationConsistent  bool    `json:"registration_consistent"`
	Issues                  []Issue `json:"issues"`
}

// SecurityCheck summarizes the security/content heuristics.
type SecurityCheck struct {
	TLSOnAllEndpoints bool    `json:"tls_on_all_endpoints"`
	ImageMIMEValid    bool    `json:"image_mime_valid"`
	UpdatedAtFresh    bool    `json:"updated_at_fresh"`
	NoBadPatterns     bool    `json:"no_bad_patterns"`
	Issues            []Issue `json:"issues"`
}

// Checks bundles all four check-category results into the report.
type Checks struct {
	Metadata  MetadataCheck   `json:"metadata"`
	Onchain   OnchainCheck    `json:"onchain"`
	Endpoints []EndpointProbe `json:"endpoints"`
	Security  SecurityCheck   `json:"security"`
}

// Auditor identifies who produced and signed the report.
type Auditor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Version string `json:"version"`
}

// ReportAgent identifies the audited agent within the report.
type ReportAgent struct {
	AgentID     string `json:"agent_id"`
	Registry    string `json:"registry"`
	MetadataURI string `json:"metadata_uri"`
	Owner       string `json:"owner"`
}

// Report is the immutable, signed output of a completed audit.
type Report struct {
	Version     string      `json:"version"`
	Auditor     Auditor     `json:"auditor"`
	Timestamp   time.Time   `json:"timestamp"`
	BlockNumber uint64      `json:"block_number"`
	Agent       ReportAgent `json:"agent"`
	Scores      Scores      `json:"scores"`
	Checks      Checks      `json:"checks"`
	IPFSCID     *string     `json:"ipfs_cid"`
	Signature   string      `json:"signature"`
}

// ReportVersion is the fixed version string spec.md §6 specifies.
const ReportVersion = "1.0.0"
