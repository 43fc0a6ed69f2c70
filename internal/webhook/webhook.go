// Package webhook delivers the audit.completed callback spec.md §6
// describes: an HMAC-SHA256-signed POST to the job's callback_url,
// retried on the fixed delay/backoff schedule from
// resilience.WebhookRetryConfig.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/resilience"
)

// Result summarizes an audit for the webhook payload's result{} field.
type Result struct {
	Status  model.Status  `json:"status"`
	Scores  *model.Scores `json:"scores,omitempty"`
	IPFSCID *string       `json:"ipfs_cid,omitempty"`
	// Issues is the compact JSON-encoded summary of every issue collected
	// across the audit's checks (report.MarshalIssuesJSON).
	Issues string `json:"issues,omitempty"`
}

// Payload is the body posted to callback_url.
type Payload struct {
	Event     string    `json:"event"`
	AuditID   string    `json:"audit_id"`
	Timestamp time.Time `json:"timestamp"`
	Result    Result    `json:"result"`
}

// Dispatcher delivers webhook payloads with HMAC signing and retry.
type Dispatcher struct {
	client *http.Client
	secret string
}

// New constructs a Dispatcher signing with secret.
func New(secret string) *Dispatcher {
	return &Dispatcher{client: &http.Client{Timeout: 10 * time.Second}, secret: secret}
}

// Deliver POSTs payload to url, retrying per resilience.WebhookRetryConfig
// on transport errors or non-2xx responses.
func (d *Dispatcher) Deliver(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	signature := d.sign(body)

	return resilience.Retry(ctx, resilience.WebhookRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Watchy-Signature", "sha256="+signature)

		resp, err := d.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: deliver: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook: callback returned status %d", resp.StatusCode)
		}
		return nil
	})
}

func (d *Dispatcher) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
