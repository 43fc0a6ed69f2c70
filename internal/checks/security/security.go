// Package security implements the quick content/transport heuristics
// spec.md §4.1 step 4 describes: image MIME type, TLS presence on
// declared endpoints, updatedAt freshness, and field-name casing
// consistency.
package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/builders-garden/watchy/internal/model"
)

const maxFreshnessDays = 365

// Checker runs the security heuristics against a fetched metadata
// document.
type Checker struct {
	client *http.Client
}

// New constructs a Checker with a short, fixed timeout: these are
// best-effort heuristics, not core audit checks.
func New() *Checker {
	return &Checker{client: &http.Client{Timeout: 5 * time.Second}}
}

// Check inspects doc and the declared service endpoints, returning the
// SecurityCheck summary.
func (c *Checker) Check(ctx context.Context, doc *model.MetadataDocument) model.SecurityCheck {
	var issues []model.Issue

	tlsOK := strings.HasPrefix(doc.Image, "https://")
	for _, svc := range doc.Services {
		if svc.Endpoint != "" && !strings.HasPrefix(svc.Endpoint, "https://") {
			tlsOK = false
			issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "ENDPOINT_NOT_TLS",
				Message: fmt.Sprintf("endpoint %s is not served over https", svc.Endpoint), Path: svc.Name})
		}
	}

	imageMIMEValid := c.checkImageMIME(ctx, doc.Image, &issues)

	updatedAtFresh := true
	if doc.UpdatedAt != nil {
		now := time.Now().Unix()
		age := now - *doc.UpdatedAt
		switch {
		case *doc.UpdatedAt > now:
			updatedAtFresh = false
			issues = append(issues, model.Issue{Severity: model.SeverityWarning, Code: "UPDATED_AT_IN_FUTURE",
				Message: "updatedAt is set in the future"})
		case age > maxFreshnessDays*24*3600:
			updatedAtFresh = false
			issues = append(issues, model.Issue{Severity: model.SeverityInfo, Code: "UPDATED_AT_STALE",
				Message: fmt.Sprintf("updatedAt is older than %d days", maxFreshnessDays)})
		}
	}

	noBadPatterns := checkFieldCasing(doc, &issues)

	return model.SecurityCheck{
		TLSOnAllEndpoints: tlsOK,
		ImageMIMEValid:    imageMIMEValid,
		UpdatedAtFresh:    updatedAtFresh,
		NoBadPatterns:     noBadPatterns,
		Issues:            issues,
	}
}

func (c *Checker) checkImageMIME(ctx context.Context, imageURL string, issues *[]model.Issue) bool {
	if imageURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		*issues = append(*issues, model.Issue{Severity: model.SeverityInfo, Code: "IMAGE_UNREACHABLE",
			Message: "could not verify image content type"})
		return false
	}
	defer resp.Body.Close()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		*issues = append(*issues, model.Issue{Severity: model.SeverityWarning, Code: "IMAGE_MIME_INVALID",
			Message: fmt.Sprintf("image content-type %q is not an image/* type", contentType)})
		return false
	}
	return true
}

// checkFieldCasing flags field names mixing snake_case and camelCase
// within the same document.
func checkFieldCasing(doc *model.MetadataDocument, issues *[]model.Issue) bool {
	sawSnake, sawCamel := false, false
	for key := range doc.Extra {
		if strings.Contains(key, "_") {
			sawSnake = true
		} else if strings.ToLower(key) != key {
			sawCamel = true
		}
	}
	if sawSnake && sawCamel {
		*issues = append(*issues, model.Issue{Severity: model.SeverityInfo, Code: "MIXED_FIELD_CASING",
			Message: "metadata mixes snake_case and camelCase field names"})
		return false
	}
	return true
}
