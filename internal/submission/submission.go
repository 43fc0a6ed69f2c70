// Package submission implements the Submission Pipeline (spec.md §4.7):
// uploading the canonical JSON and markdown report artifacts to
// content-addressed storage, then writing the resulting content
// identifier into the reputation registry via the Signer capability.
// Upload and on-chain failures are both best-effort: neither marks the
// audit failed (spec.md §4.7), they only downgrade fields and emit
// info/error issues the caller attaches to the report.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/builders-garden/watchy/internal/resilience"
	"github.com/builders-garden/watchy/internal/signer"
)

// Uploader stores named content with a content-addressed backend and
// returns its content identifier.
type Uploader interface {
	Upload(ctx context.Context, filename, mediaType string, content []byte) (cid string, err error)
}

// NullUploader is a no-op Uploader used when no storage gateway is
// configured; it satisfies the capability pattern so the pipeline can
// treat an absent gateway the same as one that always fails.
type NullUploader struct{}

// Upload always reports failure so callers fall through to the
// UPLOAD_FAILED / null-field path spec.md §4.7 describes.
func (NullUploader) Upload(ctx context.Context, filename, mediaType string, content []byte) (string, error) {
	return "", fmt.Errorf("submission: no storage gateway configured")
}

// HTTPUploader uploads to an IPFS-compatible HTTP gateway using
// multipart/form-data, mirroring the corpus's go-ethereum-adjacent
// storage clients (POST with a bearer token, a single "file" part).
type HTTPUploader struct {
	GatewayURL string
	APIToken   string
	Client     *http.Client
}

// NewHTTPUploader constructs an HTTPUploader against gatewayURL,
// authenticating with apiToken when non-empty.
func NewHTTPUploader(gatewayURL, apiToken string) *HTTPUploader {
	return &HTTPUploader{GatewayURL: gatewayURL, APIToken: apiToken, Client: &http.Client{}}
}

type gatewayResponse struct {
	CID  string `json:"cid"`
	Hash string `json:"Hash"`
}

// Upload posts content as a multipart file part and parses either a
// {"cid": ...} or a Kubo-style {"Hash": ...} response body.
func (u *HTTPUploader) Upload(ctx context.Context, filename, mediaType string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("submission: build multipart: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("submission: write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("submission: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.GatewayURL, &body)
	if err != nil {
		return "", fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.APIToken)
	}

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submission: upload %s: %w", mediaType, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submission: gateway returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("submission: read response: %w", err)
	}
	var gr gatewayResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("submission: decode response: %w", err)
	}
	if gr.CID != "" {
		return gr.CID, nil
	}
	if gr.Hash != "" {
		return gr.Hash, nil
	}
	return "", fmt.Errorf("submission: gateway response had no cid")
}

const giveFeedbackABI = `[{"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"},{"internalType":"uint8","name":"score","type":"uint8"},{"internalType":"string","name":"reportCid","type":"string"}],"name":"giveFeedback","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// WriteReputation packs and broadcasts a giveFeedback(agentId, score,
// reportCid) call against the reputation registry, retrying once on
// failure per spec.md §4.7.
func WriteReputation(ctx context.Context, s *signer.Signer, p signer.SendTransactionParams, agentID *big.Int, score int, reportCID string) (common.Hash, error) {
	parsed, err := abi.JSON(strings.NewReader(giveFeedbackABI))
	if err != nil {
		return common.Hash{}, fmt.Errorf("submission: parse abi: %w", err)
	}
	data, err := parsed.Pack("giveFeedback", agentID, uint8(score), reportCID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submission: pack giveFeedback: %w", err)
	}
	p.Data = data

	cfg := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: resilience.OnchainRetryConfig().InitialDelay,
		MaxDelay: resilience.OnchainRetryConfig().MaxDelay, Multiplier: resilience.OnchainRetryConfig().Multiplier}

	var txHash common.Hash
	err = resilience.Retry(ctx, cfg, func() error {
		hash, err := s.SendTransaction(ctx, p)
		if err != nil {
			return err
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("submission: REPUTATION_WRITE_FAILED: %w", err)
	}
	return txHash, nil
}
