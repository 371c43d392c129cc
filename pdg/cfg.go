// Package pdg builds, per function, the control-flow graph and then the
// data-flow (reaching-definitions) graph described in §4.4.
// Grounded in the original engine's graph/callgraph/core statement-level def-use
// chains (core/statement.go), generalized here into a full basic-block CFG
// with a standard iterative reaching-definitions solve, since the
// specification explicitly asks for control-flow edges (including loop
// back-edges) rather than the original engine's flatter per-statement model.
package pdg

import "github.com/codescalpel/scalpel/ir"

// BlockID is a handle into a CFG's Blocks slice.
type BlockID int32

// EdgeKind labels a CFG edge, letting consumers distinguish an ordinary
// fallthrough from a taken branch or a loop back-edge.
type EdgeKind string

const (
	EdgeFallthrough EdgeKind = "fallthrough"
	EdgeTrue        EdgeKind = "true"
	EdgeFalse       EdgeKind = "false"
	EdgeLoopBack    EdgeKind = "loop_back"
	EdgeException   EdgeKind = "exception"
)

// Edge is one control-flow edge, per §4.4 ("Control edges including loop
// back-edges").
type Edge struct {
	To   BlockID
	Kind EdgeKind
}

// Block is one basic block: a straight-line sequence of statement/
// expression node handles with no internal branch. A branching
// statement's own node (the If/While/For header) is the last entry.
type Block struct {
	ID    BlockID
	Stmts []ir.NodeID
}

// CFG is one function's control-flow graph.
type CFG struct {
	Func   ir.NodeID
	Blocks []*Block
	Succ   map[BlockID][]Edge
	Pred   map[BlockID][]Edge
	Entry  BlockID
	Exit   BlockID
}

func (c *CFG) newBlock() *Block {
	b := &Block{ID: BlockID(len(c.Blocks))}
	c.Blocks = append(c.Blocks, b)
	return b
}

func (c *CFG) link(from, to BlockID, kind EdgeKind) {
	c.Succ[from] = append(c.Succ[from], Edge{To: to, Kind: kind})
	c.Pred[to] = append(c.Pred[to], Edge{To: from, Kind: kind})
}

type loopTargets struct {
	header, exit BlockID
}

type builder struct {
	a    *ir.Arena
	cfg  *CFG
	loop []loopTargets
}

// BuildCFG constructs the control-flow graph for the function rooted at
// fn (an ir.KindFunctionDef node). fn's body statements are its Children
// directly, per the frontends' normalize convention.
func BuildCFG(a *ir.Arena, fn ir.NodeID) *CFG {
	cfg := &CFG{Func: fn, Succ: map[BlockID][]Edge{}, Pred: map[BlockID][]Edge{}}
	entry := cfg.newBlock()
	cfg.Entry = entry.ID
	b := &builder{a: a, cfg: cfg}
	last := b.lowerStmts(a.Node(fn).Children, entry)
	exit := cfg.newBlock()
	cfg.Exit = exit.ID
	cfg.link(last.ID, exit.ID, EdgeFallthrough)
	return cfg
}

// lowerStmts appends stmts to blk, splitting into new blocks at branches,
// and returns the block execution falls through into afterward.
func (b *builder) lowerStmts(stmts []ir.NodeID, blk *Block) *Block {
	cur := blk
	for _, s := range stmts {
		cur = b.lowerStmt(s, cur)
	}
	return cur
}

func (b *builder) lowerStmt(id ir.NodeID, cur *Block) *Block {
	n := b.a.Node(id)
	switch n.Kind {
	case ir.KindIf:
		return b.lowerIf(n, cur)
	case ir.KindWhile:
		return b.lowerWhile(n, cur)
	case ir.KindFor:
		return b.lowerFor(n, cur)
	case ir.KindTry:
		return b.lowerTry(n, cur)
	case ir.KindBreak:
		cur.Stmts = append(cur.Stmts, id)
		if len(b.loop) > 0 {
			top := b.loop[len(b.loop)-1]
			b.cfg.link(cur.ID, top.exit, EdgeFallthrough)
		}
		return b.cfg.newBlock() // unreachable tail, kept so callers always get a block
	case ir.KindContinue:
		cur.Stmts = append(cur.Stmts, id)
		if len(b.loop) > 0 {
			top := b.loop[len(b.loop)-1]
			b.cfg.link(cur.ID, top.header, EdgeLoopBack)
		}
		return b.cfg.newBlock()
	case ir.KindReturn, ir.KindRaise:
		cur.Stmts = append(cur.Stmts, id)
		return b.cfg.newBlock()
	default:
		cur.Stmts = append(cur.Stmts, id)
		return cur
	}
}

// lowerIf splits cur on the If's condition, lowering the Opaque("then")
// and optional Opaque("else") wrapper each frontend produces (see the
// frontends' ifStatement normalizers) into their own blocks, then merges
// both back into one successor block.
func (b *builder) lowerIf(n ir.Node, cur *Block) *Block {
	cur.Stmts = append(cur.Stmts, n.ID)
	var thenID, elseID ir.NodeID = ir.InvalidNodeID, ir.InvalidNodeID
	for _, c := range n.Children[1:] {
		cn := b.a.Node(c)
		if cn.Kind != ir.KindOpaque {
			continue
		}
		switch cn.OpaqueKind {
		case "then":
			thenID = c
		case "else":
			elseID = c
		}
	}
	merge := b.cfg.newBlock()

	thenBlock := b.cfg.newBlock()
	b.cfg.link(cur.ID, thenBlock.ID, EdgeTrue)
	if thenID != ir.InvalidNodeID {
		thenEnd := b.lowerStmts(b.a.Node(thenID).Children, thenBlock)
		b.cfg.link(thenEnd.ID, merge.ID, EdgeFallthrough)
	} else {
		b.cfg.link(thenBlock.ID, merge.ID, EdgeFallthrough)
	}

	if elseID != ir.InvalidNodeID {
		elseBlock := b.cfg.newBlock()
		b.cfg.link(cur.ID, elseBlock.ID, EdgeFalse)
		elseEnd := b.lowerStmts(b.a.Node(elseID).Children, elseBlock)
		b.cfg.link(elseEnd.ID, merge.ID, EdgeFallthrough)
	} else {
		b.cfg.link(cur.ID, merge.ID, EdgeFalse)
	}
	return merge
}

func (b *builder) lowerWhile(n ir.Node, cur *Block) *Block {
	header := b.cfg.newBlock()
	b.cfg.link(cur.ID, header.ID, EdgeFallthrough)
	header.Stmts = append(header.Stmts, n.ID)

	exit := b.cfg.newBlock()
	body := b.cfg.newBlock()
	b.cfg.link(header.ID, body.ID, EdgeTrue)
	b.cfg.link(header.ID, exit.ID, EdgeFalse)

	b.loop = append(b.loop, loopTargets{header: header.ID, exit: exit.ID})
	bodyEnd := b.lowerStmts(n.Children[1:], body)
	b.loop = b.loop[:len(b.loop)-1]
	b.cfg.link(bodyEnd.ID, header.ID, EdgeLoopBack)
	return exit
}

// lowerFor handles the For(item, iter, body) node: the iterable
// expression is evaluated once, then the loop behaves like While.
func (b *builder) lowerFor(n ir.Node, cur *Block) *Block {
	cur.Stmts = append(cur.Stmts, n.ID)
	header := b.cfg.newBlock()
	b.cfg.link(cur.ID, header.ID, EdgeFallthrough)

	exit := b.cfg.newBlock()
	body := b.cfg.newBlock()
	b.cfg.link(header.ID, body.ID, EdgeTrue)
	b.cfg.link(header.ID, exit.ID, EdgeFalse)

	b.loop = append(b.loop, loopTargets{header: header.ID, exit: exit.ID})
	bodyStmts := n.Children
	if len(bodyStmts) > 2 {
		bodyStmts = bodyStmts[2:]
	} else {
		bodyStmts = nil
	}
	bodyEnd := b.lowerStmts(bodyStmts, body)
	b.loop = b.loop[:len(b.loop)-1]
	b.cfg.link(bodyEnd.ID, header.ID, EdgeLoopBack)
	return exit
}

// lowerTry lowers the try-body linearly, then fans an EdgeException from
// every try-body statement block boundary into each handler (a
// conservative over-approximation: any statement in the body may throw),
// and finally threads every path through the finalizer.
func (b *builder) lowerTry(n ir.Node, cur *Block) *Block {
	cur.Stmts = append(cur.Stmts, n.ID)
	handlerIDs := map[ir.NodeID]bool{}
	for _, h := range n.Handlers {
		for _, s := range h.Body {
			handlerIDs[s] = true
		}
	}
	for _, s := range n.Finalizer {
		handlerIDs[s] = true
	}
	var bodyStmts []ir.NodeID
	for _, c := range n.Children {
		if !handlerIDs[c] {
			bodyStmts = append(bodyStmts, c)
		}
	}

	tryBlock := b.cfg.newBlock()
	b.cfg.link(cur.ID, tryBlock.ID, EdgeFallthrough)
	tryEnd := b.lowerStmts(bodyStmts, tryBlock)

	bodyBlocksEnd := BlockID(len(b.cfg.Blocks))
	merge := b.cfg.newBlock()
	b.cfg.link(tryEnd.ID, merge.ID, EdgeFallthrough)

	for _, h := range n.Handlers {
		handlerBlock := b.cfg.newBlock()
		for id := tryBlock.ID; id < bodyBlocksEnd; id++ {
			b.cfg.link(id, handlerBlock.ID, EdgeException)
		}
		handlerEnd := b.lowerStmts(h.Body, handlerBlock)
		b.cfg.link(handlerEnd.ID, merge.ID, EdgeFallthrough)
	}

	if len(n.Finalizer) > 0 {
		finBlock := b.cfg.newBlock()
		b.cfg.link(merge.ID, finBlock.ID, EdgeFallthrough)
		return b.lowerStmts(n.Finalizer, finBlock)
	}
	return merge
}
