package policy

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTierFailsClosedToCommunity(t *testing.T) {
	assert.Equal(t, Community, ParseTier("bogus"))
	assert.Equal(t, Community, ParseTier(""))
	assert.Equal(t, Pro, ParseTier("pro"))
	assert.Equal(t, Enterprise, ParseTier("enterprise"))
}

func TestEvaluateStripsDisallowedFlags(t *testing.T) {
	g := DefaultGate()
	dec := g.Evaluate(Community, map[string]bool{"cross_file_scan": true}, nil)
	assert.False(t, dec.EffectiveFlags["cross_file_scan"], "community tier must not grant cross_file_scan")
	require.NotEmpty(t, dec.Diagnostics)
}

func TestEvaluateClampsNumericLimitsToTierCap(t *testing.T) {
	g := DefaultGate()
	dec := g.Evaluate(Community, nil, map[string]int{"max_taint_depth": 99})
	v, ok := dec.LimitApplied("max_taint_depth")
	require.True(t, ok)
	assert.Equal(t, 3, v, "community max_taint_depth cap is 3 per §4.8")
}

func TestEvaluateUnlimitedTierNeverClamps(t *testing.T) {
	g := DefaultGate()
	dec := g.Evaluate(Enterprise, nil, map[string]int{"max_modules": 100000})
	v, _ := dec.LimitApplied("max_modules")
	assert.Equal(t, 100000, v)
}

func TestEvaluateUnknownTierFallsBackToCommunity(t *testing.T) {
	g := DefaultGate()
	dec := g.Evaluate(Tier("nonsense"), nil, nil)
	assert.Equal(t, Community, dec.Tier)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	doc := DefaultDocuments()[Enterprise]
	doc.Signature = doc.Sign(priv)
	assert.True(t, doc.Verify(pub))

	doc.Capabilities.Limits["max_modules"] = 5 // tamper after signing
	assert.False(t, doc.Verify(pub), "tampered document must fail verification")
}

func TestRequireSignatureFailsClosedWithoutKey(t *testing.T) {
	docs := DefaultDocuments()
	enterprise := docs[Enterprise]
	enterprise.Capabilities.FeatureFlags["policy_signing_required"] = true
	docs[Enterprise] = enterprise

	g := NewGate(docs, nil)
	err := g.RequireSignature(Enterprise, Document{})
	assert.Error(t, err, "signing required but no key configured must fail closed")
}

func TestRequireSignatureAcceptsValidDocument(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	docs := DefaultDocuments()
	enterprise := docs[Enterprise]
	enterprise.Capabilities.FeatureFlags["policy_signing_required"] = true
	docs[Enterprise] = enterprise

	g := NewGate(docs, pub)
	signed := Document{TierName: "enterprise"}
	signed.Signature = signed.Sign(priv)
	assert.NoError(t, g.RequireSignature(Enterprise, signed))
}
