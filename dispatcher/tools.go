package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/output"
	"github.com/codescalpel/scalpel/pdg"
	"github.com/codescalpel/scalpel/policy"
	"github.com/codescalpel/scalpel/refactor"
	"github.com/codescalpel/scalpel/symbolic"
	"github.com/codescalpel/scalpel/symbols"
	"github.com/codescalpel/scalpel/taint"
)

// Toolset bundles the analysis components every registered tool handler
// closes over — the dispatcher's Context carries request-scoped state
// (tier, cache, audit), while Toolset carries the process-lifetime
// analysis stack (frontends, taint registry, refactor simulator) built
// once at startup and shared across every request, per §4.9's "a static
// registry populated at startup."
type Toolset struct {
	Frontends *frontend.Registry
	Taint     *taint.Registry
	Refactor  *refactor.Simulator

	// VulnerabilityCatalogue backs scan_dependencies. Per §1 the real
	// catalogue content is an external collaborator this kernel only
	// consumes; DefaultVulnerabilityCatalogue is a tiny placeholder
	// demonstrating the interface shape, not a maintained advisory feed.
	VulnerabilityCatalogue []advisory
}

// NewToolset builds a Toolset from already-constructed components.
func NewToolset(frontends *frontend.Registry, taintReg *taint.Registry) *Toolset {
	return &Toolset{
		Frontends:               frontends,
		Taint:                   taintReg,
		Refactor:                refactor.NewSimulator(frontends, taintReg, refactor.DefaultLiteralPatterns()),
		VulnerabilityCatalogue:  DefaultVulnerabilityCatalogue(),
	}
}

// DefaultVulnerabilityCatalogue is the placeholder advisory table
// scan_dependencies consults when no operator-supplied catalogue is
// configured.
func DefaultVulnerabilityCatalogue() []advisory {
	return []advisory{
		{Name: "flask", MaxVersion: "0.12.2", CVE: "CVE-2018-1000656", Severity: "High"},
		{Name: "pyyaml", MaxVersion: "5.3.0", CVE: "CVE-2020-1747", Severity: "Critical"},
		{Name: "lodash", MaxVersion: "4.17.15", CVE: "CVE-2020-8203", Severity: "High"},
		{Name: "log4j-core", MaxVersion: "2.14.1", CVE: "CVE-2021-44228", Severity: "Critical"},
	}
}

// RegisterAll wires every tool family this Toolset backs into reg, per
// §4.9's registered-tool-family table.
func (ts *Toolset) RegisterAll(reg *Registry) {
	reg.Register(ts.securityScanSpec())
	reg.Register(ts.crossFileSecurityScanSpec())
	reg.Register(ts.simulateRefactorSpec())
	reg.Register(ts.symbolicExecuteSpec())
	reg.Register(ts.getSymbolReferencesSpec())
	reg.Register(ts.codePolicyCheckSpec())
	reg.Register(ts.verifyPolicyIntegritySpec())
	ts.registerProjectTools(reg)
}

func stringParam(params map[string]interface{}, name string) (string, bool) {
	v, ok := params[name].(string)
	return v, ok
}

func bytesParam(params map[string]interface{}, name string) []byte {
	if v, ok := params[name].(string); ok {
		return []byte(v)
	}
	return nil
}

// registryFor returns reg, or a sanitizer-stripped copy of it when the
// request's tier doesn't grant sanitizer_recognition (§4.8) — Community
// callers see every sink a sanitizer would otherwise have cleared.
func registryFor(reg *taint.Registry, limits policy.Decision) *taint.Registry {
	if limits.EffectiveFlags["sanitizer_recognition"] {
		return reg
	}
	return reg.WithoutSanitizers()
}

// applyTierShaping enforces the §4.8 tier options a tool's raw findings
// must respect before leaving the kernel: max_findings caps the result
// count, and confidence_scoring off zeroes the confidence field rather
// than leaving a populated-but-unearned number in the response (Finding
// carries no JSON tags to make it omittable).
func applyTierShaping(findings []taint.Finding, limits policy.Decision) []taint.Finding {
	if max, ok := limits.LimitApplied("max_findings"); ok && max >= 0 && len(findings) > max {
		findings = findings[:max]
	}
	if !limits.EffectiveFlags["confidence_scoring"] {
		for i := range findings {
			findings[i].Confidence = 0
		}
	}
	return findings
}

// sarifDocument renders findings as a SARIF 2.1.0 document for embedding
// under the envelope's "sarif" key, in addition to the native "findings"
// field — an agent that wants SARIF for CI annotation gets it without a
// second tool call.
func sarifDocument(findings []taint.Finding) (json.RawMessage, *ErrorObject) {
	raw, err := output.NewSARIFFormatter().Format(findings)
	if err != nil {
		return nil, NewError(ErrInternalError, "render sarif: "+err.Error())
	}
	return json.RawMessage(raw), nil
}

// limitOrUnbounded converts a policy.Decision's clamped limit into
// taint.Limits' zero-means-unbounded convention — policy.Gate uses -1 for
// "unlimited" (see policy.unlimited).
func limitOrUnbounded(limits policy.Decision, name string) int {
	v, ok := limits.LimitApplied(name)
	if !ok || v < 0 {
		return 0
	}
	return v
}

// --- security_scan -----------------------------------------------------

func (ts *Toolset) securityScanSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "security_scan",
		Description:    "Runs the per-function taint scanner over one file and reports sink findings.",
		RequiredParams: []string{"file", "code"},
		Handler:        ts.securityScan,
	}
}

func (ts *Toolset) securityScan(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	code := bytesParam(params, "code")
	fe, ok := ts.Frontends.Lookup(file)
	if !ok {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("no frontend registered for %q", file))
	}
	mod := fe.Lower(file, code)
	reg := registryFor(ts.Taint, ctx.Limits)
	var findings []taint.Finding
	root := mod.Arena.Root()
	if root != ir.InvalidNodeID {
		ir.Walk(mod.Arena, root, func(a *ir.Arena, id ir.NodeID) {
			n := a.Node(id)
			if n.Kind != ir.KindFunctionDef {
				return
			}
			uid := ir.NewUniversalID(mod.Language, file, n.Span.StartLine, n.Span.StartCol, n.Name)
			summary := taint.AnalyzeFunction(a, mod.Language, uid, id, reg, nil)
			findings = append(findings, summary.Findings...)
		})
	}
	findings = applyTierShaping(findings, ctx.Limits)
	sarifDoc, serr := sarifDocument(findings)
	if serr != nil {
		return nil, serr
	}
	return map[string]interface{}{"findings": findings, "diagnostics": mod.Diagnostics, "sarif": sarifDoc}, nil
}

// --- cross_file_security_scan ------------------------------------------

func (ts *Toolset) crossFileSecurityScanSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "cross_file_security_scan",
		Description:    "Runs the bounded inter-procedural taint walk across an entire project.",
		RequiredParams: []string{"project_root"},
		RequiredFlag:   "cross_file_scan",
		Handler:        ts.crossFileSecurityScan,
	}
}

func (ts *Toolset) crossFileSecurityScan(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	root := ctx.ProjectRoot
	files, err := crawlProjectFiles(root, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)
	cg := proj.BuildCallGraph()

	limits := taint.Limits{
		MaxDepth:   limitOrUnbounded(ctx.Limits, "max_taint_depth"),
		MaxModules: limitOrUnbounded(ctx.Limits, "max_modules"),
	}
	reg := registryFor(ts.Taint, ctx.Limits)

	engine := taint.NewEngine(proj, cg, reg, limits)
	result := engine.AnalyzeProject()
	result.Findings = applyTierShaping(result.Findings, ctx.Limits)
	sarifDoc, serr := sarifDocument(result.Findings)
	if serr != nil {
		return nil, serr
	}
	return map[string]interface{}{
		"findings":          result.Findings,
		"truncated":         result.Truncated,
		"truncation_reason": result.TruncationReason,
		"sarif":             sarifDoc,
	}, nil
}

// --- simulate_refactor ---------------------------------------------------

func (ts *Toolset) simulateRefactorSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "simulate_refactor",
		Description:    "Simulates a proposed edit to one file: structural diff, reference impact, new findings, and behavioral equivalence.",
		RequiredParams: []string{"file", "original_code", "proposed_code"},
		Mutating:       false,
		Handler:        ts.simulateRefactor,
	}
}

func (ts *Toolset) simulateRefactor(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	in := refactor.Input{
		FilePath:     file,
		OriginalCode: bytesParam(params, "original_code"),
		ProposedCode: bytesParam(params, "proposed_code"),
	}

	var pctx *refactor.ProjectContext
	if ctx.ProjectRoot != "" {
		files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
		if err != nil {
			return nil, NewError(ErrInternalError, err.Error())
		}
		pctx = &refactor.ProjectContext{Project: buildProjectIndex(files, ts.Frontends), Files: files}
	} else {
		pctx = &refactor.ProjectContext{Project: symbols.NewProject(), Files: map[string][]byte{file: in.OriginalCode}}
	}

	result, err := ts.Refactor.Simulate(pctx, in, symbolic.DefaultOptions())
	if err != nil {
		return nil, NewError(ErrInvalidInput, err.Error())
	}
	return result, nil
}

// --- symbolic_execute ----------------------------------------------------

func (ts *Toolset) symbolicExecuteSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "symbolic_execute",
		Description:    "Explores every bounded path through one function and returns the resulting path conditions and synthesized test cases.",
		RequiredParams: []string{"file", "code", "function_name"},
		Handler:        ts.symbolicExecute,
	}
}

func (ts *Toolset) symbolicExecute(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	file, _ := stringParam(params, "file")
	functionName, _ := stringParam(params, "function_name")
	code := bytesParam(params, "code")

	fe, ok := ts.Frontends.Lookup(file)
	if !ok {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("no frontend registered for %q", file))
	}
	mod := fe.Lower(file, code)

	var fnNode ir.NodeID = ir.InvalidNodeID
	if root := mod.Arena.Root(); root != ir.InvalidNodeID {
		ir.Walk(mod.Arena, root, func(a *ir.Arena, id ir.NodeID) {
			n := a.Node(id)
			if n.Kind == ir.KindFunctionDef && n.Name == functionName {
				fnNode = id
			}
		})
	}
	if fnNode == ir.InvalidNodeID {
		return nil, NewError(ErrNotFound, fmt.Sprintf("function %q not found in %q", functionName, file))
	}

	cfg := pdg.BuildCFG(mod.Arena, fnNode)
	exec := symbolic.NewExecutor(mod.Arena, cfg, symbolic.DefaultOptions())
	paths, tests := exec.Explore()
	return map[string]interface{}{"paths": paths, "test_cases": tests}, nil
}

// --- get_symbol_references -----------------------------------------------

func (ts *Toolset) getSymbolReferencesSpec() ToolSpec {
	return ToolSpec{
		ToolID:         "get_symbol_references",
		Description:    "Enumerates every reference to a named symbol across the project, each flagged as resolved or unresolved.",
		RequiredParams: []string{"project_root", "name"},
		Handler:        ts.getSymbolReferences,
	}
}

func (ts *Toolset) getSymbolReferences(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	name, _ := stringParam(params, "name")
	files, err := crawlProjectFiles(ctx.ProjectRoot, ts.Frontends)
	if err != nil {
		return nil, NewError(ErrInternalError, err.Error())
	}
	proj := buildProjectIndex(files, ts.Frontends)

	type reference struct {
		File     string `json:"file"`
		Line     int    `json:"line"`
		Col      int    `json:"col"`
		Resolved bool   `json:"resolved"`
	}
	var refs []reference
	for modPath, table := range proj.Tables {
		for _, r := range table.References {
			if r.Name != name {
				continue
			}
			refs = append(refs, reference{File: modPath, Line: r.Span.StartLine, Col: r.Span.StartCol, Resolved: r.Resolved})
		}
	}
	if len(refs) == 0 {
		candidates := proj.ByName[name]
		if len(candidates) == 0 {
			return nil, NewError(ErrNotFound, fmt.Sprintf("no symbol named %q found in project", name))
		}
	}
	return map[string]interface{}{"references": refs}, nil
}

// --- code_policy_check / verify_policy_integrity --------------------------

func (ts *Toolset) codePolicyCheckSpec() ToolSpec {
	return ToolSpec{
		ToolID:      "code_policy_check",
		Description: "Reports the effective feature flags and limits the requesting tier resolved to for this request.",
		Handler:     ts.codePolicyCheck,
	}
}

func (ts *Toolset) codePolicyCheck(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	return map[string]interface{}{
		"tier":          string(ctx.Tier),
		"feature_flags": ctx.Limits.EffectiveFlags,
		"limits":        ctx.Limits.EffectiveLimits,
		"diagnostics":   ctx.Limits.Diagnostics,
	}, nil
}

func (ts *Toolset) verifyPolicyIntegritySpec() ToolSpec {
	return ToolSpec{
		ToolID:      "verify_policy_integrity",
		Description: "Verifies the active policy document's signature against the configured signing key.",
		Handler:     ts.verifyPolicyIntegrity,
	}
}

func (ts *Toolset) verifyPolicyIntegrity(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
	if ctx.Policy == nil {
		return nil, NewError(ErrInternalError, "no policy gate configured")
	}
	tier, _ := stringParam(params, "tier")
	target := ctx.Tier
	if tier != "" {
		target = policy.ParseTier(tier)
	}
	doc, ok := ctx.Policy.Document(target)
	if !ok {
		return nil, NewError(ErrNotFound, fmt.Sprintf("no policy document loaded for tier %q", target))
	}
	err := ctx.Policy.RequireSignature(target, doc)
	return map[string]interface{}{"tier": string(target), "valid": err == nil}, nil
}
