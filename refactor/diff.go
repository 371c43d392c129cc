package refactor

import "github.com/codescalpel/scalpel/ir"

// decl is one top-level-or-nested declaration pulled from a module's
// arena, keyed by the identity it's matched on across versions.
type decl struct {
	Kind   ir.Kind
	Name   string
	Params []string
	Span   ir.SourceSpan
	Node   ir.NodeID
}

// collectDecls walks a's entire tree (not just its direct module-level
// children) so renamed/changed methods nested inside a ClassDef are
// caught along with top-level functions and variables.
func collectDecls(a *ir.Arena) []decl {
	root := a.Root()
	if root == ir.InvalidNodeID {
		return nil
	}
	var out []decl
	ir.Walk(a, root, func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		switch n.Kind {
		case ir.KindFunctionDef, ir.KindClassDef, ir.KindVariableDecl:
			out = append(out, decl{
				Kind:   n.Kind,
				Name:   n.Name,
				Params: append([]string{}, n.Params...),
				Span:   n.Span,
				Node:   id,
			})
		}
	})
	return out
}

func declIndex(decls []decl, kind ir.Kind) map[string]ir.NodeID {
	out := map[string]ir.NodeID{}
	for _, d := range decls {
		if d.Kind == kind {
			out[d.Name] = d.Node
		}
	}
	return out
}

func groupByKind(decls []decl) map[ir.Kind][]decl {
	out := map[ir.Kind][]decl{}
	for _, d := range decls {
		out[d.Kind] = append(out[d.Kind], d)
	}
	return out
}

func sameParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diffDecls matches declarations first by exact name (unchanged or
// signature-changed), then pairs up whatever's left over — grouped by
// Kind, in appearance order — as renames; anything still unpaired after
// that is a genuine addition or deletion. This positional-after-exact-
// match heuristic stands in for a full tree-edit-distance diff, which
// the corpus carries no library for; it's exact for the common single-
// rename case §4.10's worked example describes and degrades gracefully
// (more Added/Deleted pairs, fewer Renamed ones) as unrelated changes
// pile up in the same diff.
//
// The returned map tracks old-name -> new-name for every declaration
// that survived in some form (identity-mapped when unchanged), so
// callers can look up a rename target without re-walking changes.
func diffDecls(oldDecls, newDecls []decl) ([]ChangeRecord, map[string]string) {
	oldByName := map[string][]decl{}
	for _, d := range oldDecls {
		oldByName[d.Name] = append(oldByName[d.Name], d)
	}
	newByName := map[string][]decl{}
	for _, d := range newDecls {
		newByName[d.Name] = append(newByName[d.Name], d)
	}

	matchedOld := map[ir.NodeID]bool{}
	matchedNew := map[ir.NodeID]bool{}
	renames := map[string]string{}
	var changes []ChangeRecord

	for name, olds := range oldByName {
		news := newByName[name]
		n := min(len(olds), len(news))
		for i := 0; i < n; i++ {
			o, nw := olds[i], news[i]
			matchedOld[o.Node] = true
			matchedNew[nw.Node] = true
			renames[name] = name
			if o.Kind == ir.KindFunctionDef && !sameParams(o.Params, nw.Params) {
				changes = append(changes, ChangeRecord{
					Kind: ChangeSignatureChanged, Name: name, NewName: name,
					OldSignature: o.Params, NewSignature: nw.Params, Span: nw.Span,
				})
			}
		}
	}

	var remOld, remNew []decl
	for _, d := range oldDecls {
		if !matchedOld[d.Node] {
			remOld = append(remOld, d)
		}
	}
	for _, d := range newDecls {
		if !matchedNew[d.Node] {
			remNew = append(remNew, d)
		}
	}

	byKindOld := groupByKind(remOld)
	byKindNew := groupByKind(remNew)
	for kind, olds := range byKindOld {
		news := byKindNew[kind]
		n := min(len(olds), len(news))
		for i := 0; i < n; i++ {
			changes = append(changes, ChangeRecord{
				Kind: ChangeRenamed, Name: olds[i].Name, NewName: news[i].Name,
				OldSignature: olds[i].Params, NewSignature: news[i].Params, Span: news[i].Span,
			})
			renames[olds[i].Name] = news[i].Name
		}
		for _, d := range olds[n:] {
			changes = append(changes, ChangeRecord{Kind: ChangeDeleted, Name: d.Name, OldSignature: d.Params, Span: d.Span})
		}
		delete(byKindNew, kind)
		for _, d := range news[n:] {
			changes = append(changes, ChangeRecord{Kind: ChangeAdded, Name: d.Name, NewSignature: d.Params, Span: d.Span})
		}
	}
	// Kinds present only in the new tree (no old counterpart at all).
	for _, news := range byKindNew {
		for _, d := range news {
			changes = append(changes, ChangeRecord{Kind: ChangeAdded, Name: d.Name, NewSignature: d.Params, Span: d.Span})
		}
	}

	return changes, renames
}
