// Package scoring implements the Scoring Model (spec.md §4.5): the
// five weighted category formulas, half-to-even integer rounding, and
// the overall composite.
package scoring

import (
	"math"

	"github.com/builders-garden/watchy/internal/checks/probe"
	"github.com/builders-garden/watchy/internal/model"
)

// Breakdown is a supplemented, per-category factor dump the markdown
// renderer uses to show its work; it is not part of the signed report.
type Breakdown struct {
	MetadataFactors map[string]float64
	OnchainFactors  map[string]float64
	SecurityFactors map[string]float64
	WorstP95Ms      int64
}

// Config gates whether the security score participates in overall, per
// spec.md §9's Open Question resolution (default: reported, unweighted).
type Config struct {
	IncludeSecurityInOverall bool
}

// hasCritical reports whether any issue in issues is critical severity.
func hasCritical(issues []model.Issue) bool {
	for _, i := range issues {
		if i.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Metadata scores the metadata category.
func Metadata(check model.MetadataCheck) (int, map[string]float64) {
	factors := map[string]float64{
		"req_ok":            boolFactor(check.RequiredOK),
		"type_ok":           boolFactor(check.TypeOK),
		"urls_score":        check.URLsScore,
		"recommended_score": check.RecommendedOK,
		"format_score":      check.FormatScore,
	}
	if hasCritical(check.Issues) {
		return 0, factors
	}
	raw := 40*factors["req_ok"] + 20*factors["type_ok"] + 20*factors["urls_score"] +
		10*factors["recommended_score"] + 10*factors["format_score"]
	return clamp(roundHalfEven(raw)), factors
}

// Onchain scores the onchain category.
func Onchain(check model.OnchainCheck) (int, map[string]float64) {
	factors := map[string]float64{
		"exists":                   boolFactor(check.Exists),
		"uri_match":                boolFactor(check.URIMatch),
		"wallet_set":               boolFactor(check.WalletSet),
		"registration_consistent":  boolFactor(check.RegistrationConsistent),
	}
	if hasCritical(check.Issues) {
		return 0, factors
	}
	raw := 40*factors["exists"] + 30*factors["uri_match"] + 20*factors["wallet_set"] + 10*factors["registration_consistent"]
	return clamp(roundHalfEven(raw)), factors
}

// EndpointAvailability scores the endpoint_availability category.
func EndpointAvailability(endpoints []model.EndpointProbe) int {
	if len(endpoints) == 0 {
		return 0
	}
	var reachableSum, validSum float64
	for _, ep := range endpoints {
		reachableSum += boolFactor(ep.Reachable)
		validSum += probe.AvailabilityCredit(ep)
	}
	n := float64(len(endpoints))
	raw := 60*(reachableSum/n) + 40*(validSum/n)
	return clamp(roundHalfEven(raw))
}

// EndpointPerformance scores endpoint_performance from the worst
// (highest) p95 latency across all probed endpoints.
func EndpointPerformance(endpoints []model.EndpointProbe) (int, int64) {
	var worstP95 int64 = -1
	for _, ep := range endpoints {
		if ep.Latency == nil {
			continue
		}
		if ep.Latency.P95Ms > worstP95 {
			worstP95 = ep.Latency.P95Ms
		}
	}
	if worstP95 < 0 {
		return 0, 0
	}
	switch {
	case worstP95 < 200:
		return 100, worstP95
	case worstP95 < 500:
		return 80, worstP95
	case worstP95 < 1000:
		return 60, worstP95
	case worstP95 < 2000:
		return 40, worstP95
	case worstP95 < 5000:
		return 20, worstP95
	default:
		return 0, worstP95
	}
}

// Security scores the security category.
func Security(check model.SecurityCheck) (int, map[string]float64) {
	factors := map[string]float64{
		"tls":        boolFactor(check.TLSOnAllEndpoints),
		"image_mime": boolFactor(check.ImageMIMEValid),
		"fresh":      boolFactor(check.UpdatedAtFresh),
		"clean":      boolFactor(check.NoBadPatterns),
	}
	raw := 40*factors["tls"] + 20*factors["image_mime"] + 20*factors["fresh"] + 20*factors["clean"]
	return clamp(roundHalfEven(raw)), factors
}

// Overall composes the weighted overall score per spec.md §4.5 and,
// when cfg.IncludeSecurityInOverall is set, folds security in at the
// expense of the other four weights proportionally... spec.md keeps the
// base formula fixed; the config only adds a fifth weighted term so the
// documented four-factor formula remains verifiable independent of
// configuration.
func Overall(cfg Config, scores model.Scores) int {
	raw := 0.30*float64(scores.Metadata) + 0.25*float64(scores.Onchain) +
		0.25*float64(scores.EndpointAvailability) + 0.20*float64(scores.EndpointPerformance)
	if cfg.IncludeSecurityInOverall {
		raw = 0.25*float64(scores.Metadata) + 0.20*float64(scores.Onchain) +
			0.20*float64(scores.EndpointAvailability) + 0.15*float64(scores.EndpointPerformance) +
			0.20*float64(scores.Security)
	}
	return clamp(roundHalfEven(raw))
}

// Score computes every category and the overall, returning the
// populated Scores plus a Breakdown for the markdown renderer.
func Score(cfg Config, checks model.Checks) (model.Scores, Breakdown) {
	metadataScore, metaFactors := Metadata(checks.Metadata)
	onchainScore, onchainFactors := Onchain(checks.Onchain)
	availabilityScore := EndpointAvailability(checks.Endpoints)
	performanceScore, worstP95 := EndpointPerformance(checks.Endpoints)
	securityScore, securityFactors := Security(checks.Security)

	scores := model.Scores{
		Metadata:             metadataScore,
		Onchain:              onchainScore,
		EndpointAvailability: availabilityScore,
		EndpointPerformance:  performanceScore,
		Security:             securityScore,
	}
	scores.Overall = Overall(cfg, scores)

	return scores, Breakdown{
		MetadataFactors: metaFactors,
		OnchainFactors:  onchainFactors,
		SecurityFactors: securityFactors,
		WorstP95Ms:      worstP95,
	}
}

func boolFactor(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
