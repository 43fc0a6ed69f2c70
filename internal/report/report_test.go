package report

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/scoring"
)

type fakeSigner struct {
	sig string
	err error
}

func (f *fakeSigner) SignBytes(digest []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.sig, nil
}

func buildTestReport() *model.Report {
	return Build(BuildParams{
		AuditorName:    "watchy",
		AuditorAddress: "0xauditor",
		AuditorVersion: "1.0.0",
		BlockNumber:    100,
		AgentID:        big.NewInt(7),
		Registry:       "0xregistry",
		MetadataURI:    "https://example.com/metadata.json",
		Owner:          "0xowner",
		Checks:         model.Checks{},
		Scores:         model.Scores{Overall: 90},
		Now:            time.Unix(1700000000, 0).UTC(),
	})
}

func TestBuildPopulatesFields(t *testing.T) {
	r := buildTestReport()
	assert.Equal(t, model.ReportVersion, r.Version)
	assert.Equal(t, "7", r.Agent.AgentID)
	assert.Equal(t, 90, r.Scores.Overall)
	assert.Empty(t, r.Signature)
}

func TestSignSetsSignatureDeterministically(t *testing.T) {
	r := buildTestReport()
	signer := &fakeSigner{sig: "0xsignature"}
	require.NoError(t, Sign(r, signer))
	assert.Equal(t, "0xsignature", r.Signature)
}

func TestSigningDigestExcludesSignatureAndIPFSCID(t *testing.T) {
	r1 := buildTestReport()
	r2 := buildTestReport()
	cid := "bafy123"
	r2.IPFSCID = &cid
	r2.Signature = "ignored-before-signing"

	d1, err := signingDigest(r1)
	require.NoError(t, err)
	d2, err := signingDigest(r2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "signature/ipfs_cid must not affect the signing digest")
}

func TestSigningDigestChangesWithScores(t *testing.T) {
	r1 := buildTestReport()
	r2 := buildTestReport()
	r2.Scores.Overall = 50

	d1, err := signingDigest(r1)
	require.NoError(t, err)
	d2, err := signingDigest(r2)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestSignPropagatesSignerError(t *testing.T) {
	r := buildTestReport()
	signer := &fakeSigner{err: fmt.Errorf("boom")}
	err := Sign(r, signer)
	assert.Error(t, err)
}

func TestMarkdownIncludesScoresAndSignature(t *testing.T) {
	r := buildTestReport()
	r.Signature = "0xdeadbeef"
	r.Checks.Metadata.Issues = []model.Issue{
		{Severity: model.SeverityWarning, Code: "MISSING_ACTIVE", Message: "active not set"},
	}
	md := Markdown(r, scoring.Breakdown{WorstP95Ms: 150})
	assert.Contains(t, md, "Watchy Audit Report")
	assert.Contains(t, md, "| Overall | 90 |")
	assert.Contains(t, md, "Worst endpoint p95 latency: 150ms")
	assert.Contains(t, md, "MISSING_ACTIVE")
	assert.Contains(t, md, "0xdeadbeef")
}

func TestMarkdownOmitsSignatureSectionWhenUnsigned(t *testing.T) {
	r := buildTestReport()
	md := Markdown(r, scoring.Breakdown{})
	assert.NotContains(t, md, "## Signature")
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	r := buildTestReport()
	a, err := CanonicalJSON(r)
	require.NoError(t, err)
	b, err := CanonicalJSON(r)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
