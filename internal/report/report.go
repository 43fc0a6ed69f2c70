// Package report assembles, signs, and renders the audit Report
// (spec.md §4.7): canonical JSON for hashing/storage, keccak256+ECDSA
// signing via the Signer capability, and a deterministic markdown
// rendering derived from the same data.
package report

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builders-garden/watchy/internal/canonjson"
	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/scoring"
)

// BuildParams bundles everything needed to assemble a Report.
type BuildParams struct {
	AuditorName    string
	AuditorAddress string
	AuditorVersion string
	BlockNumber    uint64
	AgentID        *big.Int
	Registry       string
	MetadataURI    string
	Owner          string
	Checks         model.Checks
	Scores         model.Scores
	Now            time.Time
}

// Build assembles an unsigned Report from the collected checks and
// pre-computed scores.
func Build(p BuildParams) *model.Report {
	return &model.Report{
		Version: model.ReportVersion,
		Auditor: model.Auditor{
			Name:    p.AuditorName,
			Address: p.AuditorAddress,
			Version: p.AuditorVersion,
		},
		Timestamp:   p.Now,
		BlockNumber: p.BlockNumber,
		Agent: model.ReportAgent{
			AgentID:     p.AgentID.String(),
			Registry:    p.Registry,
			MetadataURI: p.MetadataURI,
			Owner:       p.Owner,
		},
		Scores: p.Scores,
		Checks: p.Checks,
	}
}

// signingDigest returns keccak256 of the canonical JSON of report with
// its signature and ipfs_cid fields cleared, per spec.md §3: "Signature
// is over the canonical JSON of the report excluding the signature
// field itself."
func signingDigest(r *model.Report) ([]byte, error) {
	clone := *r
	clone.Signature = ""
	clone.IPFSCID = nil
	raw, err := canonjson.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("report: canonicalize: %w", err)
	}
	return crypto.Keccak256(raw), nil
}

// Sign computes the signing digest and fills in r.Signature.
func Sign(r *model.Report, signer interface {
	SignBytes(digest []byte) (string, error)
}) error {
	digest, err := signingDigest(r)
	if err != nil {
		return err
	}
	sig, err := signer.SignBytes(digest)
	if err != nil {
		return fmt.Errorf("report: sign: %w", err)
	}
	r.Signature = sig
	return nil
}

// CanonicalJSON returns the report's canonical JSON encoding, the exact
// bytes that get hashed for signing and uploaded as the primary
// artifact.
func CanonicalJSON(r *model.Report) ([]byte, error) {
	return canonjson.Marshal(r)
}

// Markdown deterministically renders the report as human-readable
// markdown, the second artifact spec.md §4.7 requires.
func Markdown(r *model.Report, breakdown scoring.Breakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Watchy Audit Report\n\n")
	fmt.Fprintf(&b, "- **Agent**: `%s` on registry `%s`\n", r.Agent.AgentID, r.Agent.Registry)
	fmt.Fprintf(&b, "- **Owner**: `%s`\n", r.Agent.Owner)
	fmt.Fprintf(&b, "- **Metadata URI**: %s\n", r.Agent.MetadataURI)
	fmt.Fprintf(&b, "- **Block**: %d\n", r.BlockNumber)
	fmt.Fprintf(&b, "- **Timestamp**: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Auditor**: %s (%s) v%s\n\n", r.Auditor.Name, r.Auditor.Address, r.Auditor.Version)

	fmt.Fprintf(&b, "## Scores\n\n")
	fmt.Fprintf(&b, "| Category | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Overall | %d |\n", r.Scores.Overall)
	fmt.Fprintf(&b, "| Metadata | %d |\n", r.Scores.Metadata)
	fmt.Fprintf(&b, "| Onchain | %d |\n", r.Scores.Onchain)
	fmt.Fprintf(&b, "| Endpoint Availability | %d |\n", r.Scores.EndpointAvailability)
	fmt.Fprintf(&b, "| Endpoint Performance | %d |\n", r.Scores.EndpointPerformance)
	fmt.Fprintf(&b, "| Security | %d |\n\n", r.Scores.Security)

	if breakdown.WorstP95Ms > 0 {
		fmt.Fprintf(&b, "Worst endpoint p95 latency: %dms\n\n", breakdown.WorstP95Ms)
	}

	renderIssues := func(title string, issues []model.Issue) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		for _, issue := range issues {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", issue.Severity, issue.Code, issue.Message)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Issues\n\n")
	renderIssues("Metadata", r.Checks.Metadata.Issues)
	renderIssues("Onchain", r.Checks.Onchain.Issues)
	for _, ep := range r.Checks.Endpoints {
		renderIssues(fmt.Sprintf("Endpoint: %s (%s)", ep.ServiceName, ep.EndpointURL), ep.Issues)
	}
	renderIssues("Security", r.Checks.Security.Issues)

	if r.Signature != "" {
		fmt.Fprintf(&b, "## Signature\n\n`%s`\n", r.Signature)
	}
	return b.String()
}

// MarshalIssuesJSON is a small helper for callers (the webhook payload)
// that need a compact issue count summary without re-walking the
// report.
func MarshalIssuesJSON(issues []model.Issue) (string, error) {
	raw, err := json.Marshal(issues)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
