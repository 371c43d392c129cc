// Package policy implements the capability evaluator and tier gate
// described in §4.8: a policy document enumerating feature
// flags and numeric limits per tier, evaluated at dispatch time to strip
// disallowed features and clamp limits. Modeled on the original engine's
// ruleset/manifest.go (structured, checksum/signature-bearing document
// deserialized via gopkg.in/yaml.v3) for document shape, and
// ruleset/resolver.go for the "evaluate capability, clamp to allowed"
// control flow.
package policy

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier is a capability level, per §3/§4.8.
type Tier string

const (
	Community  Tier = "community"
	Pro        Tier = "pro"
	Enterprise Tier = "enterprise"
)

// ParseTier converts a configuration value to a Tier, fail-closed to
// Community for anything unrecognized (§4.8: "if tier cannot be
// determined, the request runs at Community").
func ParseTier(s string) Tier {
	switch Tier(s) {
	case Pro:
		return Pro
	case Enterprise:
		return Enterprise
	default:
		return Community
	}
}

// unlimited is the sentinel limit value meaning "no cap", per §4.8's
// table ("unlimited" for several Pro/Enterprise entries).
const unlimited = -1

// DefaultConfidenceDecay resolves O4: the inter-procedural confidence
// decay constant, the same value as taint.DefaultConfidenceDecay (the one
// the taint walk uses). No package reads this constant, and a policy
// document has no field that overrides it (Capabilities.Limits holds
// integers only).
const DefaultConfidenceDecay = 0.9

// limitNames and flagNames are the "Recognized tier options" of §4.8,
// used both to build the built-in documents and to validate a loaded one.
var limitNames = []string{"max_findings", "max_taint_depth", "max_modules"}
var flagNames = []string{
	"confidence_scoring", "sanitizer_recognition", "cross_file_scan",
	"audit_logging", "policy_signing_required", "unlimited_scale",
}

// Capabilities is one tier's feature flags and numeric limits.
type Capabilities struct {
	FeatureFlags map[string]bool `yaml:"feature_flags"`
	Limits       map[string]int  `yaml:"limits"`
}

// Document is the on-disk policy document shape from §6: `{ tier_name,
// capabilities: { feature_flags, limits }, signature?, signer_key_id? }`.
type Document struct {
	TierName     string       `yaml:"tier_name"`
	Capabilities Capabilities `yaml:"capabilities"`
	Signature    string       `yaml:"signature,omitempty"`     // base64
	SignerKeyID  string       `yaml:"signer_key_id,omitempty"`
}

// canonicalBlob reproduces the document's signed payload: its own
// serialization with signature/signer_key_id excluded, per §6 ("the
// signed blob is the canonical serialization of the document with
// signature/signer_key_id fields excluded").
func (d Document) canonicalBlob() []byte {
	stripped := d
	stripped.Signature = ""
	stripped.SignerKeyID = ""
	out, _ := yaml.Marshal(stripped)
	return out
}

// Verify checks d's signature against pub, failing closed (false) if no
// signature is present or it does not verify.
func (d Document) Verify(pub ed25519.PublicKey) bool {
	if d.Signature == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(d.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, d.canonicalBlob(), sig)
}

// Sign produces a base64 signature over d's canonical blob using priv,
// for tooling that issues signed Enterprise policy documents.
func (d Document) Sign(priv ed25519.PrivateKey) string {
	sig := ed25519.Sign(priv, d.canonicalBlob())
	return base64.StdEncoding.EncodeToString(sig)
}

// DefaultDocuments returns the built-in per-tier documents matching the
// table in §4.8 exactly.
func DefaultDocuments() map[Tier]Document {
	return map[Tier]Document{
		Community: {
			TierName: string(Community),
			Capabilities: Capabilities{
				FeatureFlags: map[string]bool{
					"confidence_scoring": false, "sanitizer_recognition": false,
					"cross_file_scan": false, "audit_logging": false,
					"policy_signing_required": false, "unlimited_scale": false,
				},
				Limits: map[string]int{"max_findings": 50, "max_taint_depth": 3, "max_modules": 10},
			},
		},
		Pro: {
			TierName: string(Pro),
			Capabilities: Capabilities{
				FeatureFlags: map[string]bool{
					"confidence_scoring": true, "sanitizer_recognition": true,
					"cross_file_scan": true, "audit_logging": true,
					"policy_signing_required": false, "unlimited_scale": false,
				},
				Limits: map[string]int{"max_findings": unlimited, "max_taint_depth": 10, "max_modules": 100},
			},
		},
		Enterprise: {
			TierName: string(Enterprise),
			Capabilities: Capabilities{
				FeatureFlags: map[string]bool{
					"confidence_scoring": true, "sanitizer_recognition": true,
					"cross_file_scan": true, "audit_logging": true,
					"policy_signing_required": true, "unlimited_scale": true,
				},
				Limits: map[string]int{"max_findings": unlimited, "max_taint_depth": unlimited, "max_modules": unlimited},
			},
		},
	}
}

// Gate evaluates requests against a frozen set of per-tier documents —
// "the policy gate reads a frozen policy document at startup" (§9);
// Reload below replaces the whole map at once.
type Gate struct {
	docs     map[Tier]Document
	signKey  ed25519.PublicKey // nil disables signature enforcement entirely
}

// NewGate builds a Gate from docs, which must have an entry per Tier; a
// missing entry falls back to the corresponding DefaultDocuments() entry.
func NewGate(docs map[Tier]Document, signingPublicKey ed25519.PublicKey) *Gate {
	defaults := DefaultDocuments()
	merged := map[Tier]Document{}
	for _, t := range []Tier{Community, Pro, Enterprise} {
		if d, ok := docs[t]; ok {
			merged[t] = d
		} else {
			merged[t] = defaults[t]
		}
	}
	return &Gate{docs: merged, signKey: signingPublicKey}
}

// DefaultGate returns a Gate over the built-in documents with signature
// enforcement disabled (no key configured).
func DefaultGate() *Gate { return NewGate(nil, nil) }

// Document returns the active policy document for tier.
func (g *Gate) Document(tier Tier) (Document, bool) {
	doc, ok := g.docs[tier]
	return doc, ok
}

// Reload replaces the Gate's effective documents with one assignment of
// the docs field. It takes no lock and uses no atomic operation, so a
// Reload is not synchronized with concurrent Evaluate, Document or
// RequireSignature calls.
func (g *Gate) Reload(docs map[Tier]Document) {
	replacement := NewGate(docs, g.signKey)
	g.docs = replacement.docs
}

// Diagnostic records one capability stripped or limit clamped during
// evaluation, surfaced to the caller per §4.8 ("boolean features absent
// at the current tier are stripped from the request (with a diagnostic)").
type Diagnostic struct {
	Field  string
	Reason string
}

// Decision is the outcome of evaluating a request's desired options
// against a tier: the effective (possibly stripped/clamped) options, plus
// what changed.
type Decision struct {
	Tier            Tier
	EffectiveFlags  map[string]bool
	EffectiveLimits map[string]int
	Diagnostics     []Diagnostic
}

// LimitApplied returns the clamped value for name, or ok=false if name is
// not a recognized limit.
func (d Decision) LimitApplied(name string) (int, bool) {
	v, ok := d.EffectiveLimits[name]
	return v, ok
}

// Evaluate clamps requestedFlags/requestedLimits to what tier allows:
// flags not granted at tier are stripped (forced false) with a
// diagnostic; numeric limits are min-clamped to the tier's cap (§4.8:
// "numeric limits are min-clamped to the tier's cap"), where unlimited
// (-1) in the tier cap never constrains the request and a requested
// unlimited (<=0 or absent) is replaced by the tier's cap when the tier
// itself is capped.
func (g *Gate) Evaluate(tier Tier, requestedFlags map[string]bool, requestedLimits map[string]int) Decision {
	doc, ok := g.docs[tier]
	if !ok {
		tier = Community
		doc = g.docs[Community]
	}

	dec := Decision{Tier: tier, EffectiveFlags: map[string]bool{}, EffectiveLimits: map[string]int{}}

	for _, name := range flagNames {
		allowed := doc.Capabilities.FeatureFlags[name]
		want, requested := requestedFlags[name]
		switch {
		case !requested:
			dec.EffectiveFlags[name] = allowed
		case want && !allowed:
			dec.EffectiveFlags[name] = false
			dec.Diagnostics = append(dec.Diagnostics, Diagnostic{Field: name, Reason: fmt.Sprintf("%q requires a higher tier than %q", name, tier)})
		default:
			dec.EffectiveFlags[name] = want
		}
	}

	for _, name := range limitNames {
		cap, hasCap := doc.Capabilities.Limits[name]
		want, requested := requestedLimits[name]
		effective := cap
		switch {
		case !hasCap || cap == unlimited:
			if requested {
				effective = want
			} else {
				effective = unlimited
			}
		case !requested:
			effective = cap
		case want <= 0 || want > cap:
			effective = cap
			dec.Diagnostics = append(dec.Diagnostics, Diagnostic{Field: name, Reason: fmt.Sprintf("%q clamped to tier %q cap %d", name, tier, cap)})
		default:
			effective = want
		}
		dec.EffectiveLimits[name] = effective
	}

	sort.Slice(dec.Diagnostics, func(i, j int) bool { return dec.Diagnostics[i].Field < dec.Diagnostics[j].Field })
	return dec
}

// RequireSignature reports whether doc passes signature verification when
// the active document for tier has policy_signing_required=on. When
// enforcement is off, or no signing key is configured, any document
// (signed or not) is accepted — callers needing Enterprise integrity
// checks must configure a signing key via NewGate.
func (g *Gate) RequireSignature(tier Tier, doc Document) error {
	active, ok := g.docs[tier]
	if !ok || !active.Capabilities.FeatureFlags["policy_signing_required"] {
		return nil
	}
	if g.signKey == nil {
		return fmt.Errorf("policy: signing required for tier %q but no verification key configured", tier)
	}
	if !doc.Verify(g.signKey) {
		return fmt.Errorf("policy: document for tier %q failed signature verification", tier)
	}
	return nil
}

// LoadDocument parses a YAML or JSON policy document. The format is
// detected structurally (JSON policy documents are valid YAML), so one
// parser suffices, per the original engine's own ruleset/manifest.go convention.
func LoadDocument(raw []byte) (Document, error) {
	var d Document
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Document{}, fmt.Errorf("policy: parse document: %w", err)
	}
	return d, nil
}
