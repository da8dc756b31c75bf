package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer, err := NewReportSigner("")
	require.NoError(t, err)

	report, err := signer.Sign(map[string]string{"run_id": "r1", "vault": "0xvault"})
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey(), report.PublicKey)
	assert.NotZero(t, report.SignedAt)

	ok, err := Verify(report)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	signer, err := NewReportSigner("")
	require.NoError(t, err)

	report, err := signer.Sign(map[string]string{"run_id": "r1"})
	require.NoError(t, err)

	report.Payload = []byte(`{"run_id":"r2"}`)
	ok, err := Verify(report)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewReportSigner_SeedIsDeterministic(t *testing.T) {
	seed := strings.Repeat("ab", 32)

	a, err := NewReportSigner(seed)
	require.NoError(t, err)
	b, err := NewReportSigner(seed)
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey(), b.PublicKey())
}

func TestNewReportSigner_RejectsBadSeed(t *testing.T) {
	_, err := NewReportSigner("zz")
	assert.Error(t, err)

	_, err = NewReportSigner("abcd")
	assert.Error(t, err)
}

func TestVerify_RejectsBadEncodings(t *testing.T) {
	signer, err := NewReportSigner("")
	require.NoError(t, err)
	report, err := signer.Sign(map[string]int{"n": 1})
	require.NoError(t, err)

	bad := *report
	bad.PublicKey = "nothex"
	_, err = Verify(&bad)
	assert.Error(t, err)

	bad = *report
	bad.Signature = "%%%"
	_, err = Verify(&bad)
	assert.Error(t, err)
}
