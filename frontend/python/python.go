// Package python lowers Python source into the shared IR, following the
// normalization rules in §4.2. Grounded in the original engine's
// graph/python and graph/callgraph/extraction Python-handling code,
// which already parses the same grammar for call-graph extraction; this
// package performs the full statement/expression lowering those files
// only partially needed.
package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tspython "github.com/smacker/go-tree-sitter/python"

	"github.com/codescalpel/scalpel/frontend/common"
	"github.com/codescalpel/scalpel/ir"
)

// Frontend implements frontend.Frontend for Python.
type Frontend struct{}

// New returns a Python frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Language() string { return "python" }

func (f *Frontend) Lower(relativePath string, fileBytes []byte) *ir.Module {
	pr := common.ParseBytes(tspython.GetLanguage(), fileBytes, relativePath)
	if pr.Tree == nil {
		return common.EmptyModule("python", relativePath, pr.Diagnostics)
	}
	defer pr.Tree.Close()

	b := common.NewBuilder("python", relativePath)
	root := pr.Tree.RootNode()
	modID := b.Opaque(common.Span(relativePath, root), "module", ir.InvalidNodeID)
	diags := append([]ir.Diagnostic{}, pr.Diagnostics...)
	n := &normalizer{b: b, src: pr.Source, diags: &diags}
	for i := 0; i < int(root.ChildCount()); i++ {
		n.statement(root.Child(i), modID)
	}
	b.Arena.Freeze()
	return &ir.Module{FilePath: relativePath, Language: "python", Arena: b.Arena, Diagnostics: diags}
}

type normalizer struct {
	b     *common.Builder
	src   []byte
	diags *[]ir.Diagnostic
}

func (n *normalizer) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return node.Content(n.src)
}

func (n *normalizer) unsupported(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Opaque(span, node.Type(), parent)
	for i := 0; i < int(node.ChildCount()); i++ {
		n.statement(node.Child(i), id)
	}
	return id
}

// statement lowers a single statement-or-declaration node.
func (n *normalizer) statement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	if node == nil {
		return ir.InvalidNodeID
	}
	span := common.Span(n.b.FilePath, node)
	switch node.Type() {
	case "function_definition", "decorated_definition":
		return n.functionDef(node, parent)
	case "class_definition":
		return n.classDef(node, parent)
	case "expression_statement":
		if node.ChildCount() == 1 {
			child := node.Child(0)
			if child.Type() == "assignment" || child.Type() == "augmented_assignment" {
				return n.statement(child, parent)
			}
			return n.expression(child, parent)
		}
		return n.unsupported(node, parent)
	case "assignment":
		return n.assignment(node, parent)
	case "augmented_assignment":
		return n.augmentedAssignment(node, parent)
	case "if_statement":
		return n.ifStatement(node, parent)
	case "while_statement":
		return n.whileStatement(node, parent)
	case "for_statement":
		return n.forStatement(node, parent)
	case "try_statement":
		return n.tryStatement(node, parent)
	case "return_statement":
		id := n.b.Add(ir.Node{Kind: ir.KindReturn, Span: span}, parent, "")
		if node.NamedChildCount() > 0 {
			n.expression(node.NamedChild(0), id)
		}
		return id
	case "raise_statement":
		id := n.b.Add(ir.Node{Kind: ir.KindRaise, Span: span}, parent, "")
		if node.NamedChildCount() > 0 {
			n.expression(node.NamedChild(0), id)
		}
		return id
	case "break_statement":
		return n.b.Add(ir.Node{Kind: ir.KindBreak, Span: span}, parent, "")
	case "continue_statement":
		return n.b.Add(ir.Node{Kind: ir.KindContinue, Span: span}, parent, "")
	case "pass_statement":
		return n.b.Add(ir.Node{Kind: ir.KindPass, Span: span}, parent, "")
	case "comment", "line_continuation":
		return ir.InvalidNodeID
	default:
		return n.unsupported(node, parent)
	}
}

func (n *normalizer) functionDef(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	decorators := []string{}
	def := node
	if node.Type() == "decorated_definition" {
		for i := 0; i < int(node.ChildCount()); i++ {
			c := node.Child(i)
			if c.Type() == "decorator" {
				decorators = append(decorators, strings.TrimPrefix(n.text(c), "@"))
			}
			if c.Type() == "function_definition" || c.Type() == "class_definition" {
				def = c
			}
		}
		if def.Type() == "class_definition" {
			return n.classDef(def, parent)
		}
	}
	name := n.text(def.ChildByFieldName("name"))
	span := common.Span(n.b.FilePath, node)
	isAsync := false
	for i := 0; i < int(def.ChildCount()); i++ {
		if def.Child(i).Type() == "async" {
			isAsync = true
		}
	}
	params := n.paramNames(def.ChildByFieldName("parameters"))
	id := n.b.Add(ir.Node{
		Kind: ir.KindFunctionDef, Span: span, Name: name,
		Params: params, IsAsyncFn: isAsync, IsAsync: isAsync,
	}, parent, name)
	_ = decorators
	body := def.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			n.statement(body.Child(i), id)
		}
	}
	return id
}

func (n *normalizer) paramNames(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, n.text(p))
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			if id := p.ChildByFieldName("name"); id != nil {
				out = append(out, n.text(id))
			} else if p.NamedChildCount() > 0 {
				out = append(out, n.text(p.NamedChild(0)))
			}
		}
	}
	return out
}

func (n *normalizer) classDef(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	name := n.text(node.ChildByFieldName("name"))
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindClassDef, Span: span, Name: name}, parent, name)
	body := node.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			n.statement(body.Child(i), id)
		}
	}
	return id
}

// assignment normalizes "x = y" directly; augmented_assignment ("x += y")
// is desugared to Assign(x, BinaryOp(Add, x, y)) per §4.2.
func (n *normalizer) assignment(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindAssign, Span: span}, parent, "")
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	n.expression(left, id)
	if right != nil {
		n.expression(right, id)
	}
	return id
}

var augmentedOps = map[string]ir.Operator{
	"+=": ir.OpAdd, "-=": ir.OpSub, "*=": ir.OpMul, "/=": ir.OpDiv, "%=": ir.OpMod,
	"&=": ir.OpBitAnd, "|=": ir.OpBitOr, "^=": ir.OpBitXor, "<<=": ir.OpShl, ">>=": ir.OpShr,
}

func (n *normalizer) augmentedAssignment(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	opText := n.text(node.ChildByFieldName("operator"))
	op, ok := augmentedOps[opText]
	if !ok {
		op = ir.OpUnknown
	}
	assignID := n.b.Add(ir.Node{Kind: ir.KindAssign, Span: span}, parent, "")
	n.expression(left, assignID)
	binID := n.b.Add(ir.Node{Kind: ir.KindBinaryOp, Span: span, Operator: op}, assignID, "")
	n.expression(left, binID)
	if right != nil {
		n.expression(right, binID)
	}
	return assignID
}

// ifStatement wraps the consequence and (if present) alternative in their
// own Opaque("then")/Opaque("else") container so CFG construction (pdg
// package) can tell the two branches apart — the IR's flat Children list
// otherwise gives no marker for where one branch ends and the next begins.
func (n *normalizer) ifStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindIf, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("condition"), id)
	if cons := node.ChildByFieldName("consequence"); cons != nil {
		thenID := n.b.Opaque(span, "then", id)
		for i := 0; i < int(cons.ChildCount()); i++ {
			n.statement(cons.Child(i), thenID)
		}
	}
	alt := node.ChildByFieldName("alternative")
	if alt != nil {
		switch alt.Type() {
		case "elif_clause":
			elseID := n.b.Opaque(span, "else", id)
			n.ifStatement(alt, elseID) // nested elif chain
		case "else_clause":
			if body := alt.ChildByFieldName("body"); body != nil {
				elseID := n.b.Opaque(span, "else", id)
				for i := 0; i < int(body.ChildCount()); i++ {
					n.statement(body.Child(i), elseID)
				}
			}
		}
	}
	return id
}

func (n *normalizer) whileStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindWhile, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("condition"), id)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			n.statement(body.Child(i), id)
		}
	}
	return id
}

// forStatement normalizes "for item in iter:" to For(item, iter, body)
// per §4.2 — iter is preserved as an expression, never desugared to while.
func (n *normalizer) forStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindFor, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("left"), id)
	n.expression(node.ChildByFieldName("right"), id)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			n.statement(body.Child(i), id)
		}
	}
	return id
}

func (n *normalizer) tryStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindTry, Span: span}, parent, "")
	tryNode := n.b.Arena.NodePtr(id)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			n.statement(body.Child(i), id)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "except_clause":
			h := ir.ExceptionHandler{}
			if v := c.ChildByFieldName("value"); v != nil {
				h.ExceptionType = n.text(v)
			}
			for j := 0; j < int(c.ChildCount()); j++ {
				cc := c.Child(j)
				if cc.Type() == "as_pattern_target" {
					h.Var = n.text(cc)
				}
				if cc.Type() == "block" {
					for k := 0; k < int(cc.ChildCount()); k++ {
						stmtID := n.statement(cc.Child(k), id)
						if stmtID != ir.InvalidNodeID {
							h.Body = append(h.Body, stmtID)
						}
					}
				}
			}
			tryNode.Handlers = append(tryNode.Handlers, h)
		case "finally_clause":
			if body := c.ChildByFieldName("body"); body != nil {
				for j := 0; j < int(body.ChildCount()); j++ {
					stmtID := n.statement(body.Child(j), id)
					if stmtID != ir.InvalidNodeID {
						tryNode.Finalizer = append(tryNode.Finalizer, stmtID)
					}
				}
			}
		}
	}
	return id
}

var binaryOps = map[string]ir.Operator{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpDiv, "%": ir.OpMod,
	"==": ir.OpEq, "!=": ir.OpNe, "<": ir.OpLt, "<=": ir.OpLe, ">": ir.OpGt, ">=": ir.OpGe,
	"&": ir.OpBitAnd, "|": ir.OpBitOr, "^": ir.OpBitXor, "<<": ir.OpShl, ">>": ir.OpShr,
	"and": ir.OpAnd, "or": ir.OpOr, "in": ir.OpIn, "not in": ir.OpIn, "is": ir.OpIs, "is not": ir.OpIs,
}

var comprehensionKinds = map[string]bool{
	"list_comprehension": true, "set_comprehension": true,
	"dictionary_comprehension": true, "generator_expression": true,
}

// expression lowers a single expression node, returning InvalidNodeID for
// nil input.
func (n *normalizer) expression(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	if node == nil {
		return ir.InvalidNodeID
	}
	span := common.Span(n.b.FilePath, node)
	switch node.Type() {
	case "binary_operator", "boolean_operator", "comparison_operator":
		opText := n.text(node.ChildByFieldName("operator"))
		op, ok := binaryOps[opText]
		if !ok {
			op = ir.OpUnknown
		}
		id := n.b.Add(ir.Node{Kind: ir.KindBinaryOp, Span: span, Operator: op}, parent, "")
		n.expression(node.ChildByFieldName("left"), id)
		n.expression(node.ChildByFieldName("right"), id)
		return id
	case "not_operator":
		id := n.b.Add(ir.Node{Kind: ir.KindUnaryOp, Span: span, Operator: ir.OpNot}, parent, "")
		n.expression(node.ChildByFieldName("argument"), id)
		return id
	case "unary_operator":
		opText := n.text(node.ChildByFieldName("operator"))
		op, ok := binaryOps[opText]
		if !ok {
			op = ir.OpSub
		}
		id := n.b.Add(ir.Node{Kind: ir.KindUnaryOp, Span: span, Operator: op}, parent, "")
		n.expression(node.ChildByFieldName("argument"), id)
		return id
	case "call":
		return n.call(node, parent)
	case "attribute":
		attrName := n.text(node.ChildByFieldName("attribute"))
		id := n.b.Add(ir.Node{Kind: ir.KindAttribute, Span: span, Name: attrName}, parent, "")
		n.expression(node.ChildByFieldName("object"), id)
		return id
	case "subscript":
		id := n.b.Add(ir.Node{Kind: ir.KindSubscript, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("value"), id)
		n.expression(node.ChildByFieldName("subscript"), id)
		return id
	case "identifier":
		return n.b.Add(ir.Node{Kind: ir.KindName, Span: span, Name: n.text(node)}, parent, n.text(node))
	case "integer":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "int", LiteralValue: n.text(node)}, parent, "")
	case "float":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "float", LiteralValue: n.text(node)}, parent, "")
	case "true", "false":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "bool", LiteralValue: n.text(node)}, parent, "")
	case "none":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "null", LiteralValue: "None"}, parent, "")
	case "string":
		return n.stringLiteral(node, parent)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		return n.comprehension(node, parent)
	case "list", "set", "tuple", "dictionary":
		id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, CallIntrinsic: node.Type()}, parent, "")
		for i := 0; i < int(node.NamedChildCount()); i++ {
			n.expression(node.NamedChild(i), id)
		}
		return id
	case "parenthesized_expression":
		if node.NamedChildCount() > 0 {
			return n.expression(node.NamedChild(0), parent)
		}
		return ir.InvalidNodeID
	case "conditional_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindIf, Span: span}, parent, "")
		for i := 0; i < int(node.NamedChildCount()); i++ {
			n.expression(node.NamedChild(i), id)
		}
		return id
	case "lambda":
		params := n.paramNames(node.ChildByFieldName("parameters"))
		id := n.b.Add(ir.Node{Kind: ir.KindFunctionDef, Span: span, Name: "<lambda>", Params: params}, parent, "")
		n.expression(node.ChildByFieldName("body"), id)
		return id
	default:
		return n.unsupported(node, parent)
	}
}

// call normalizes a call node, tagging comprehension-flavored higher-order
// calls and intrinsic-formatted calls the way §4.2 requires.
func (n *normalizer) call(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	fn := node.ChildByFieldName("function")
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span}, parent, "")
	n.expression(fn, id)
	args := node.ChildByFieldName("arguments")
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			n.expression(args.NamedChild(i), id)
		}
	}
	return id
}

// comprehension lowers Python comprehensions to Call with
// higher_order_kind="comprehension" and a nested FunctionDef sub-tree for
// the element expression, per §4.2.
func (n *normalizer) comprehension(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, HigherOrderKind: "comprehension", CallIntrinsic: node.Type()}, parent, "")
	bodyFn := n.b.Add(ir.Node{Kind: ir.KindFunctionDef, Span: span, Name: "<comprehension-body>"}, id, "")
	if body := node.NamedChild(0); body != nil {
		n.expression(body, bodyFn)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == "for_in_clause" {
			left := c.ChildByFieldName("left")
			right := c.ChildByFieldName("right")
			n.expression(left, bodyFn)
			n.expression(right, id)
		}
	}
	return id
}

// stringLiteral lowers an f-string to Call(intrinsic="format", ...) with
// literal and expression fragments preserved separately; a plain string
// lowers to an ordinary Literal. Grounded in §4.2's string-interpolation
// rule, critical for taint precision: concatenated expression fragments
// must remain analyzable as expressions, not be flattened into text.
func (n *normalizer) stringLiteral(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	hasInterpolation := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "interpolation" {
			hasInterpolation = true
			break
		}
	}
	if !hasInterpolation {
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "string", LiteralValue: n.text(node)}, parent, "")
	}
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, CallIntrinsic: "format"}, parent, "")
	node2 := n.b.Arena.NodePtr(id)
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "interpolation":
			if c.NamedChildCount() > 0 {
				exprID := n.expression(c.NamedChild(0), id)
				node2.FormatFragments = append(node2.FormatFragments, ir.FormatFragment{Expr: exprID})
			}
		case "string_start", "string_end":
			// delimiters, not content
		default:
			txt := n.text(c)
			if txt != "" {
				node2.FormatFragments = append(node2.FormatFragments, ir.FormatFragment{IsLiteral: true, Text: txt})
			}
		}
	}
	return id
}
