package taint

import "github.com/codescalpel/scalpel/ir"

// VarTaint is the per-variable entry in the taint map: `Var ->
// TaintInfo { level, sources, cleared_for_sinks }`. Chain additionally
// records every span taint passed through on its way to this variable, so
// a Finding's `chain` field can name the sanitizer call it passed through
// even when that call turned out not to be a recognized sanitizer (a
// "fake sanitizer" that claims a category it doesn't actually clear).
type VarTaint struct {
	Level           Level
	Sources         []ir.SourceSpan
	Chain           []ir.SourceSpan
	ClearedForSinks map[Category]bool
}

func (t *VarTaint) clearedCopy() map[Category]bool {
	if t == nil || t.ClearedForSinks == nil {
		return map[Category]bool{}
	}
	out := make(map[Category]bool, len(t.ClearedForSinks))
	for k := range t.ClearedForSinks {
		out[k] = true
	}
	return out
}

// combine implements propagation rule 2: "binary operations propagate the
// max level of operands; their sources unify." A value is only considered
// cleared for a sink category if both contributing operands were (an
// operand untainted for a category contributes no clearance either way,
// but an operand untainted outright contributes no taint at all, handled
// by the nil checks below).
func combine(a, b *VarTaint) *VarTaint {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	cleared := map[Category]bool{}
	for cat := range a.ClearedForSinks {
		if b.ClearedForSinks[cat] {
			cleared[cat] = true
		}
	}
	return &VarTaint{
		Level:           maxLevel(a.Level, b.Level),
		Sources:         append(append([]ir.SourceSpan{}, a.Sources...), b.Sources...),
		Chain:           append(append([]ir.SourceSpan{}, a.Chain...), b.Chain...),
		ClearedForSinks: cleared,
	}
}

// FunctionSummary is the result of analyzing one function: its final
// per-variable taint map plus every sink finding observed along the way.
// Analogous to the original engine's core.TaintSummary, generalized to carry the
// full Finding shape §4.5 specifies rather than the original engine's flatter
// TaintInfo detection record.
type FunctionSummary struct {
	FunctionID  string
	Vars        map[string]*VarTaint
	Findings    []Finding
	ReturnTaint *VarTaint // combined taint of every `return` statement's value, nil if none tainted
}

// Finding is one `{ source, sink, sink_category, chain, confidence,
// severity, taint_level, cwe? }` record, per §4.5.
type Finding struct {
	Source       ir.SourceSpan
	Sink         ir.SourceSpan
	SinkCategory Category
	Chain        []ir.SourceSpan
	Confidence   float64
	Severity     string
	TaintLevel   Level
	CWE          string
}

func severityFromLevel(l Level) string {
	switch l {
	case LevelCritical:
		return "Critical"
	case LevelHigh:
		return "High"
	case LevelMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func thresholdAtLeast(have Level, want string) bool {
	return have >= ParseLevel(want)
}

type analyzer struct {
	a           *ir.Arena
	language    string
	reg         *Registry
	state       map[string]*VarTaint
	findings    []Finding
	seed        map[ir.NodeID]*VarTaint // call-site NodeID -> inherited return taint, from a prior inter-procedural pass
	returnTaint *VarTaint
}

// AnalyzeFunction runs the forward, flat (document-order, not CFG-
// sensitive) intra-procedural taint pass described by propagation rules
// 1-3 and 5 of §4.5 over the function rooted at fn, skipping into any
// nested FunctionDef/ClassDef (those are separate analysis units, visited
// independently by the project-level walk in interprocedural.go). Grounded
// directly in the original engine's AnalyzeIntraProceduralTaint forward scan. seed
// lets a caller inject already-known call-site return taint discovered by
// a previous inter-procedural depth, so a re-analysis pass can observe a
// callee's taint without re-walking the callee's own body.
func AnalyzeFunction(a *ir.Arena, language string, functionID string, fn ir.NodeID, reg *Registry, seed map[ir.NodeID]*VarTaint) *FunctionSummary {
	an := &analyzer{a: a, language: language, reg: reg, state: map[string]*VarTaint{}, seed: seed}
	ir.Visit(a, fn, ir.VisitorFunc(func(a *ir.Arena, id ir.NodeID) bool {
		n := a.Node(id)
		if id != fn && (n.Kind == ir.KindFunctionDef || n.Kind == ir.KindClassDef) {
			return false
		}
		switch n.Kind {
		case ir.KindAssign:
			an.handleAssign(n)
		case ir.KindCall:
			an.checkSink(n)
		case ir.KindReturn:
			if len(n.Children) > 0 {
				an.returnTaint = combine(an.returnTaint, an.evalExpr(n.Children[0]))
			}
		}
		return true
	}))
	return &FunctionSummary{FunctionID: functionID, Vars: an.state, Findings: an.findings, ReturnTaint: an.returnTaint}
}

func (an *analyzer) handleAssign(n ir.Node) {
	if len(n.Children) != 2 {
		return
	}
	lhs := an.a.Node(n.Children[0])
	if lhs.Kind != ir.KindName || lhs.Name == "" {
		return
	}
	rhsTaint := an.evalExpr(n.Children[1])
	if rhsTaint == nil {
		delete(an.state, lhs.Name)
		return
	}
	an.state[lhs.Name] = &VarTaint{
		Level:           rhsTaint.Level,
		Sources:         rhsTaint.Sources,
		Chain:           append(append([]ir.SourceSpan{}, rhsTaint.Chain...), n.Span),
		ClearedForSinks: rhsTaint.clearedCopy(),
	}
}

// evalExpr computes the taint of an arbitrary expression node without
// mutating analysis state, recursing through binary/unary/attribute/
// subscript/call structure.
func (an *analyzer) evalExpr(id ir.NodeID) *VarTaint {
	if id == ir.InvalidNodeID {
		return nil
	}
	n := an.a.Node(id)
	switch n.Kind {
	case ir.KindName:
		return an.state[n.Name]
	case ir.KindLiteral:
		return nil
	case ir.KindBinaryOp:
		if len(n.Children) != 2 {
			return nil
		}
		return combine(an.evalExpr(n.Children[0]), an.evalExpr(n.Children[1]))
	case ir.KindUnaryOp:
		if len(n.Children) != 1 {
			return nil
		}
		return an.evalExpr(n.Children[0])
	case ir.KindAttribute, ir.KindSubscript:
		if len(n.Children) == 0 {
			return nil
		}
		return an.evalExpr(n.Children[0])
	case ir.KindCall:
		return an.evalCall(n)
	case ir.KindFunctionDef:
		// A lambda/arrow-function passed as a value: not itself a tainted
		// value (its body is analyzed, if at all, as its own unit).
		return nil
	default:
		return nil
	}
}

// evalCall implements propagation rules 1/3/4: a recognized source
// introduces fresh taint; a recognized sanitizer clears categories on its
// (still tainted) argument taint rather than erasing it outright, per
// §4.5's "cleared_for_sinks set gains those categories"; format/"format
// fragments" calls (f-strings, template literals — see §4.2) union the
// taint of every non-literal fragment, covering the "string concatenation
// propagates data deps from every contributing expression" requirement for
// taint specifically (rule 4's "query-string argument analyzed for
// concatenation of tainted values").
func (an *analyzer) evalCall(n ir.Node) *VarTaint {
	if an.seed != nil {
		if t, ok := an.seed[n.ID]; ok {
			return t
		}
	}
	target := calleeName(an.a, n)

	if n.CallIntrinsic == "format" && len(n.FormatFragments) > 0 {
		var acc *VarTaint
		for _, frag := range n.FormatFragments {
			if frag.IsLiteral {
				continue
			}
			acc = combine(acc, an.evalExpr(frag.Expr))
		}
		return acc
	}

	if src := an.reg.matchSource(target, an.language); src != nil {
		return &VarTaint{
			Level:           ParseLevel(src.Level),
			Sources:         []ir.SourceSpan{n.Span},
			Chain:           []ir.SourceSpan{n.Span},
			ClearedForSinks: map[Category]bool{},
		}
	}

	var argTaint *VarTaint
	for _, arg := range callArgs(n) {
		argTaint = combine(argTaint, an.evalExpr(arg))
	}
	if argTaint == nil {
		return nil
	}

	if san := an.reg.matchSanitizer(target, an.language); san != nil {
		cleared := argTaint.clearedCopy()
		for _, c := range san.Categories {
			cleared[c] = true
		}
		return &VarTaint{
			Level:           argTaint.Level,
			Sources:         argTaint.Sources,
			Chain:           append(append([]ir.SourceSpan{}, argTaint.Chain...), n.Span),
			ClearedForSinks: cleared,
		}
	}

	return &VarTaint{
		Level:           argTaint.Level,
		Sources:         argTaint.Sources,
		Chain:           append(append([]ir.SourceSpan{}, argTaint.Chain...), n.Span),
		ClearedForSinks: argTaint.clearedCopy(),
	}
}

// checkSink implements rule 5: a finding is emitted iff any incoming
// argument taint meets the sink's threshold and the sink's category is not
// already cleared for that taint.
func (an *analyzer) checkSink(n ir.Node) {
	target := calleeName(an.a, n)
	sinks := an.reg.matchSinks(target, an.language)
	if len(sinks) == 0 {
		return
	}
	for _, arg := range callArgs(n) {
		t := an.evalExpr(arg)
		if t == nil {
			continue
		}
		for _, sink := range sinks {
			if t.ClearedForSinks[sink.Category] {
				continue
			}
			if !thresholdAtLeast(t.Level, sink.Threshold) {
				continue
			}
			source := n.Span
			if len(t.Sources) > 0 {
				source = t.Sources[0]
			}
			an.findings = append(an.findings, Finding{
				Source:       source,
				Sink:         n.Span,
				SinkCategory: sink.Category,
				Chain:        append(append([]ir.SourceSpan{}, t.Chain...), n.Span),
				Confidence:   1.0,
				Severity:     severityFromLevel(t.Level),
				TaintLevel:   t.Level,
				CWE:          sink.CWE,
			})
		}
	}
}

// calleeName rebuilds a call's dotted target name (e.g. "os.path.join",
// "cursor.execute") from its callee expression, the shape matchesFunctionName
// expects.
func calleeName(a *ir.Arena, call ir.Node) string {
	if len(call.Children) == 0 {
		return ""
	}
	return exprName(a, call.Children[0])
}

func exprName(a *ir.Arena, id ir.NodeID) string {
	n := a.Node(id)
	switch n.Kind {
	case ir.KindName:
		return n.Name
	case ir.KindAttribute:
		if len(n.Children) == 0 {
			return n.Name
		}
		base := exprName(a, n.Children[0])
		if base == "" {
			return n.Name
		}
		return base + "." + n.Name
	default:
		return ""
	}
}

func callArgs(n ir.Node) []ir.NodeID {
	if len(n.Children) <= 1 {
		return nil
	}
	return n.Children[1:]
}
