// Package metadata implements the Metadata Validator (spec.md §4.2):
// required/recommended field rules against a fetched MetadataDocument,
// plus per-service-type validation for A2A/MCP/OASF/web services. A2A
// and MCP validation reuse the Endpoint Prober's HTTP client so every
// outbound fetch in the audit shares the same timeout/retry/body-limit
// discipline.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/builders-garden/watchy/internal/model"
)

const registrationType = "https://eips.ethereum.org/EIPS/eip-8004#registration-v1"

var validTrust = map[string]bool{"reputation": true, "crypto-economic": true, "tee-attestation": true}

// Identity names what the metadata document must register.
type Identity struct {
	ChainID         uint64
	RegistryAddress string
	AgentID         *big.Int
}

// Fetcher retrieves and bounds-reads a metadata document over HTTP. It
// is satisfied by the Endpoint Prober's shared client.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, out interface{}) error
}

// Validator validates a MetadataDocument against spec.md §4.2's rules.
type Validator struct {
	fetcher Fetcher
}

// New constructs a Validator that uses fetcher for per-service card/
// manifest fetches (A2A agent-cards, MCP manifests).
func New(fetcher Fetcher) *Validator {
	return &Validator{fetcher: fetcher}
}

// Validate runs the required/recommended/per-service rules, returning
// the check result and whether the document matches identity (used by
// the engine to cross-check the on-chain registration).
func (v *Validator) Validate(ctx context.Context, doc *model.MetadataDocument, identity Identity) model.MetadataCheck {
	var issues []model.Issue
	critical := false

	criticalIssue := func(code, msg string) {
		issues = append(issues, model.Issue{Severity: model.SeverityCritical, Code: code, Message: msg})
		critical = true
	}

	requiredOK := true
	if doc.Type != registrationType {
		criticalIssue("INVALID_TYPE", fmt.Sprintf("type must be %q", registrationType))
		requiredOK = false
	}
	if doc.Name == "" || len(doc.Name) > 256 {
		criticalIssue("INVALID_NAME", "name must be non-empty and at most 256 characters")
		requiredOK = false
	}
	if doc.Description == "" || len(doc.Description) > 2048 {
		criticalIssue("INVALID_DESCRIPTION", "description must be non-empty and at most 2048 characters")
		requiredOK = false
	}
	if _, err := url.ParseRequestURI(doc.Image); err != nil || doc.Image == "" {
		criticalIssue("INVALID_IMAGE_URL", "image must be a syntactically valid URL")
		requiredOK = false
	}

	matched := false
	if len(doc.Registrations) == 0 {
		criticalIssue("NO_REGISTRATIONS", "registrations[] must be non-empty")
		requiredOK = false
	} else {
		for _, reg := range doc.Registrations {
			if registrationMatches(reg, identity) {
				matched = true
				break
			}
		}
		if !matched {
			criticalIssue("REGISTRATION_MISMATCH", "no registrations[] entry matches the requested agent identity")
			requiredOK = false
		}
	}

	typeOK := doc.Type == registrationType

	recommendedHits := 0
	const recommendedTotal = 4
	if doc.Active != nil {
		recommendedHits++
	} else {
		issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "MISSING_ACTIVE", Message: "active field is not set"})
	}
	if len(doc.Services) > 0 {
		recommendedHits++
	} else {
		issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "NO_SERVICES", Message: "services[] is empty"})
	}
	if len(doc.SupportedTrust) > 0 {
		allValid := true
		for _, t := range doc.SupportedTrust {
			if !validTrust[t] {
				allValid = false
				break
			}
		}
		if allValid {
			recommendedHits++
		} else {
			issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "INVALID_SUPPORTED_TRUST", Message: "supportedTrust contains unrecognized values"})
		}
	} else {
		issues = append(issues, model.Issue{Severity: model.SeverityInfo, Code: "NO_SUPPORTED_TRUST", Message: "supportedTrust[] is empty"})
	}
	if doc.UpdatedAt != nil && *doc.UpdatedAt > 0 && *doc.UpdatedAt <= time.Now().Unix() {
		recommendedHits++
	} else {
		issues = append(issues, model.Issue{Severity: model.SeverityInfo, Code: "MISSING_UPDATED_AT", Message: "updatedAt is missing or out of range"})
	}
	recommendedScore := float64(recommendedHits) / float64(recommendedTotal)

	checkInconsistentCasing(doc, &issues)

	requiredURLs, accessibleURLs, serviceResults := v.validateServices(ctx, doc, &issues)
	if doc.Image != "" {
		requiredURLs++
	}
	urlsScore := 1.0
	if requiredURLs > 0 {
		urlsScore = float64(accessibleURLs) / float64(requiredURLs)
	}

	formatScore := 1.0
	if hasMixedCasingOrWhitespace(doc) {
		formatScore = 0.5
		issues = append(issues, model.Issue{Severity: model.SeverityInfo, Code: "FORMAT_IRREGULAR", Message: "field naming is not uniformly camelCase"})
	}

	check := model.MetadataCheck{
		RequiredOK:     requiredOK,
		TypeOK:         typeOK,
		URLsScore:      urlsScore,
		RecommendedOK:  recommendedScore,
		FormatScore:    formatScore,
		Issues:         issues,
		ServiceResults: serviceResults,
	}
	if critical {
		check.RequiredOK = false
	}
	return check
}

func registrationMatches(reg model.Registration, identity Identity) bool {
	wantAgent := identity.AgentID.String()
	wantRegistry := strings.ToLower(fmt.Sprintf("eip155:%d:%s", identity.ChainID, identity.RegistryAddress))
	return reg.AgentID == wantAgent && strings.EqualFold(reg.AgentRegistry, wantRegistry)
}

// validateServices runs per-service-type checks, counting required URLs
// and how many were actually accessible for the urls_score formula
// (spec.md §9: fraction of required URLs that are reachable).
func (v *Validator) validateServices(ctx context.Context, doc *model.MetadataDocument, issues *[]model.Issue) (required, accessible int, results map[string]model.ServiceValidation) {
	results = make(map[string]model.ServiceValidation)
	for _, svc := range doc.Services {
		switch strings.ToUpper(svc.Name) {
		case "A2A":
			required++
			ok, skillsMatch := v.validateA2A(ctx, svc, issues)
			if ok {
				accessible++
			}
			results[svc.Name] = model.ServiceValidation{ValidSchema: ok, SkillsMatch: skillsMatch}
		case "MCP":
			required++
			ok, skillsMatch := v.validateMCP(ctx, svc, issues)
			if ok {
				accessible++
			}
			results[svc.Name] = model.ServiceValidation{ValidSchema: ok, SkillsMatch: skillsMatch}
		case "OASF":
			if svc.Endpoint != "" {
				required++
				accessible++ // structural only; no network fetch defined for OASF
			}
		case "WEB":
			required++
			if v.validateWeb(ctx, svc, issues) {
				accessible++
			}
		}
	}
	return required, accessible, results
}

type agentCard struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Skills       []string `json:"skills"`
	Capabilities []string `json:"capabilities"`
}

func (v *Validator) validateA2A(ctx context.Context, svc model.Service, issues *[]model.Issue) (validSchema, skillsMatch bool) {
	if svc.Endpoint == "" || svc.Version == "" {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "A2A_MISSING_FIELDS", Message: "A2A service requires endpoint and version", Path: svc.Name})
		return false, false
	}
	if v.fetcher == nil {
		return false, false
	}
	var card agentCard
	if err := v.fetcher.FetchJSON(ctx, svc.Endpoint, &card); err != nil {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "A2A_CARD_UNREACHABLE", Message: err.Error(), Path: svc.Name})
		return false, false
	}
	cardSkills := make(map[string]bool, len(card.Skills))
	for _, s := range card.Skills {
		cardSkills[s] = true
	}
	skillsMatch = true
	for _, s := range svc.A2ASkills {
		if !cardSkills[s] {
			*issues = append(*issues, model.Issue{Severity: model.SeverityWarning, Code: "A2A_SKILL_MISMATCH",
				Message: fmt.Sprintf("declared skill %q not present in agent card", s), Path: svc.Name})
			skillsMatch = false
		}
	}
	return true, skillsMatch
}

type mcpManifest struct {
	Tools   []string `json:"tools"`
	Prompts []string `json:"prompts"`
}

func (v *Validator) validateMCP(ctx context.Context, svc model.Service, issues *[]model.Issue) (validSchema, skillsMatch bool) {
	if svc.Endpoint == "" || svc.Version == "" {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "MCP_MISSING_FIELDS", Message: "MCP service requires endpoint and version", Path: svc.Name})
		return false, false
	}
	if v.fetcher == nil {
		return false, false
	}
	var manifest mcpManifest
	if err := v.fetcher.FetchJSON(ctx, svc.Endpoint, &manifest); err != nil {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "MCP_MANIFEST_UNREACHABLE", Message: err.Error(), Path: svc.Name})
		return false, false
	}
	tools := toSet(manifest.Tools)
	prompts := toSet(manifest.Prompts)
	skillsMatch = true
	for _, t := range svc.MCPTools {
		if !tools[t] {
			*issues = append(*issues, model.Issue{Severity: model.SeverityWarning, Code: "MCP_TOOL_MISMATCH",
				Message: fmt.Sprintf("declared tool %q not present in manifest", t), Path: svc.Name})
			skillsMatch = false
		}
	}
	for _, p := range svc.MCPPrompts {
		if !prompts[p] {
			*issues = append(*issues, model.Issue{Severity: model.SeverityWarning, Code: "MCP_PROMPT_MISMATCH",
				Message: fmt.Sprintf("declared prompt %q not present in manifest", p), Path: svc.Name})
			skillsMatch = false
		}
	}
	return true, skillsMatch
}

func (v *Validator) validateWeb(ctx context.Context, svc model.Service, issues *[]model.Issue) bool {
	if svc.Endpoint == "" {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "WEB_MISSING_ENDPOINT", Message: "web service requires endpoint", Path: svc.Name})
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.Endpoint, nil)
	if err != nil {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "WEB_INVALID_ENDPOINT", Message: err.Error(), Path: svc.Name})
		return false
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		*issues = append(*issues, model.Issue{Severity: model.SeverityCritical, Code: "ENDPOINT_UNREACHABLE", Message: err.Error(), Path: svc.Name})
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		*issues = append(*issues, model.Issue{Severity: model.SeverityError, Code: "WEB_NON_2XX",
			Message: fmt.Sprintf("endpoint returned status %d", resp.StatusCode), Path: svc.Name})
		return false
	}
	return true
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func checkInconsistentCasing(doc *model.MetadataDocument, issues *[]model.Issue) {
	seen := map[string]string{}
	for key := range doc.Extra {
		lower := strings.ToLower(key)
		if other, ok := seen[lower]; ok && other != key {
			*issues = append(*issues, model.Issue{Severity: model.SeverityInfo, Code: "INCONSISTENT_CASING",
				Message: fmt.Sprintf("both %q and %q present", other, key)})
		}
		seen[lower] = key
	}
}

func hasMixedCasingOrWhitespace(doc *model.MetadataDocument) bool {
	for key := range doc.Extra {
		if strings.Contains(key, " ") || strings.Contains(key, "_") && strings.ToLower(key) != key {
			return true
		}
	}
	return false
}

// Decode parses raw JSON into a MetadataDocument, routing unknown fields
// into Extra so the tagged-union Service shape stays forward-compatible.
func Decode(raw []byte) (*model.MetadataDocument, error) {
	var doc model.MetadataDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("metadata: invalid json: %w", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(raw, &extra); err == nil {
		known := map[string]bool{
			"type": true, "name": true, "description": true, "image": true,
			"registrations": true, "active": true, "services": true,
			"supportedTrust": true, "updatedAt": true,
		}
		doc.Extra = map[string]json.RawMessage{}
		for k, v := range extra {
			if !known[k] {
				doc.Extra[k] = v
			}
		}
	}
	return &doc, nil
}
