// Package probe implements the Endpoint Prober (spec.md §4.4): three
// sequential GETs per declared service endpoint, percentile latency
// computation, and failure classification. Probes across distinct
// services share a bounded worker pool (internal/boundedpool); probes
// against the same endpoint are never parallelized within one audit.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/builders-garden/watchy/internal/model"
)

const (
	samplesPerEndpoint = 3
	perRequestTimeout  = 10 * time.Second
	totalTimeout       = 45 * time.Second
	maxBodyBytes       = 1 << 20 // 1 MiB
)

// Prober issues bounded-size GETs against declared service endpoints and
// doubles as the metadata.Fetcher used for A2A agent-card and MCP
// manifest fetches, so every outbound HTTP call in an audit shares one
// client and one body-size limit.
type Prober struct {
	client *http.Client
}

// New constructs a Prober with a client that relies entirely on
// per-call context deadlines rather than a fixed client-level timeout,
// since per-request and total deadlines differ (spec.md §4.4).
func New() *Prober {
	return &Prober{client: &http.Client{}}
}

// FetchJSON satisfies metadata.Fetcher: a single bounded GET decoded as
// JSON, used for A2A agent-card and MCP manifest retrieval.
func (p *Prober) FetchJSON(ctx context.Context, url string, out interface{}) error {
	body, err := p.FetchRaw(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("probe: decode json: %w", err)
	}
	return nil
}

// FetchRaw performs a single bounded GET and returns the raw body,
// letting callers (the metadata document fetch) decode it themselves.
func (p *Prober) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, perRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("probe: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("probe: read body: %w", err)
	}
	return body, nil
}

// Probe issues samplesPerEndpoint sequential GETs against endpointURL
// and returns the resulting EndpointProbe. validSchema/skillsMatch are
// supplied by the caller after delegating to the metadata validator's
// per-service rules, since the prober itself knows nothing about
// service-type schemas.
func (p *Prober) Probe(ctx context.Context, serviceName, endpointURL string) model.EndpointProbe {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	result := model.EndpointProbe{ServiceName: serviceName, EndpointURL: endpointURL}
	var latencies []int64
	var lastStatus int
	reachableCount := 0

	for i := 0; i < samplesPerEndpoint; i++ {
		status, latencyMs, err := p.sample(ctx, endpointURL)
		if err != nil {
			result.Issues = append(result.Issues, model.Issue{
				Severity: model.SeverityCritical, Code: "ENDPOINT_UNREACHABLE",
				Message: err.Error(), Path: serviceName,
			})
			continue
		}
		reachableCount++
		lastStatus = status
		latencies = append(latencies, latencyMs)
	}

	result.Reachable = reachableCount > 0
	if !result.Reachable {
		return result
	}

	if lastStatus >= 500 {
		result.Issues = append(result.Issues, model.Issue{Severity: model.SeverityError, Code: "SERVER_ERROR",
			Message: fmt.Sprintf("endpoint returned status %d", lastStatus), Path: serviceName})
	} else if lastStatus >= 400 {
		result.Issues = append(result.Issues, model.Issue{Severity: model.SeverityError, Code: "CLIENT_ERROR",
			Message: fmt.Sprintf("endpoint returned status %d", lastStatus), Path: serviceName})
	}

	stats := percentiles(latencies)
	result.Latency = &stats
	if stats.P95Ms > 2000 {
		result.Issues = append(result.Issues, model.Issue{Severity: model.SeverityWarning, Code: "HIGH_LATENCY",
			Message: fmt.Sprintf("p95 latency %dms exceeds 2000ms", stats.P95Ms), Path: serviceName})
	}
	return result
}

func (p *Prober) sample(ctx context.Context, endpointURL string) (status int, latencyMs int64, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.StatusCode, time.Since(start).Milliseconds(), nil
}

// percentiles computes p50/p95/p99 from up to three samples per
// spec.md §4.4: p50 is the median, p95 and p99 are both the max.
func percentiles(samples []int64) model.LatencyStats {
	if len(samples) == 0 {
		return model.LatencyStats{}
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]
	max := sorted[len(sorted)-1]
	return model.LatencyStats{P50Ms: median, P95Ms: max, P99Ms: max}
}

// AvailabilityCredit maps an EndpointProbe to its contribution toward
// endpoint_availability per spec.md §4.4's failure classification: full
// credit when reachable with no error-level issue, half credit for a
// 4xx response, zero for unreachable or 5xx.
func AvailabilityCredit(p model.EndpointProbe) float64 {
	if !p.Reachable {
		return 0
	}
	for _, issue := range p.Issues {
		if issue.Code == "SERVER_ERROR" {
			return 0
		}
		if issue.Code == "CLIENT_ERROR" {
			return 0.5
		}
	}
	return 1
}
