// Package javascript lowers JavaScript (and, via LowerWithLanguage, any
// grammar that shares its node-type vocabulary such as TypeScript) into the
// shared IR, per §4.2. Grounded in the original engine's per-language
// extraction packages (one file per construct family), generalized here to
// the JS/TS CST shape instead of Python/Java.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tsjavascript "github.com/smacker/go-tree-sitter/javascript"

	"github.com/codescalpel/scalpel/frontend/common"
	"github.com/codescalpel/scalpel/ir"
)

// Frontend implements frontend.Frontend for JavaScript.
type Frontend struct{}

// New returns a JavaScript frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Language() string { return "javascript" }

func (f *Frontend) Lower(relativePath string, fileBytes []byte) *ir.Module {
	return LowerWithLanguage(tsjavascript.GetLanguage(), "javascript", relativePath, fileBytes)
}

// LowerWithLanguage lowers fileBytes with an explicit tree-sitter grammar
// and language tag, letting the typescript frontend reuse this package's
// normalizer over its own (superset) grammar.
func LowerWithLanguage(lang *sitter.Language, langTag, relativePath string, fileBytes []byte) *ir.Module {
	pr := common.ParseBytes(lang, fileBytes, relativePath)
	if pr.Tree == nil {
		return common.EmptyModule(langTag, relativePath, pr.Diagnostics)
	}
	defer pr.Tree.Close()

	b := common.NewBuilder(langTag, relativePath)
	root := pr.Tree.RootNode()
	modID := b.Opaque(common.Span(relativePath, root), "program", ir.InvalidNodeID)
	diags := append([]ir.Diagnostic{}, pr.Diagnostics...)
	n := &normalizer{b: b, src: pr.Source, diags: &diags}
	for i := 0; i < int(root.ChildCount()); i++ {
		n.statement(root.Child(i), modID)
	}
	b.Arena.Freeze()
	return &ir.Module{FilePath: relativePath, Language: langTag, Arena: b.Arena, Diagnostics: diags}
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
	id := n.b.Opaque(common.Span(n.b.FilePath, node), node.Type(), parent)
	for i := 0; i < int(node.ChildCount()); i++ {
		n.statement(node.Child(i), id)
	}
	return id
}

func (n *normalizer) statement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	if node == nil {
		return ir.InvalidNodeID
	}
	span := common.Span(n.b.FilePath, node)
	switch node.Type() {
	case "function_declaration", "generator_function_declaration", "method_definition":
		return n.functionDef(node, parent)
	case "class_declaration":
		return n.classDef(node, parent)
	case "lexical_declaration", "variable_declaration":
		return n.variableDecl(node, parent)
	case "expression_statement":
		if node.NamedChildCount() == 1 {
			return n.expression(node.NamedChild(0), parent)
		}
		return n.unsupported(node, parent)
	case "if_statement":
		return n.ifStatement(node, parent)
	case "while_statement":
		return n.whileStatement(node, parent)
	case "for_statement", "for_in_statement":
		return n.forStatement(node, parent)
	case "try_statement":
		return n.tryStatement(node, parent)
	case "return_statement":
		id := n.b.Add(ir.Node{Kind: ir.KindReturn, Span: span}, parent, "")
		if node.NamedChildCount() > 0 {
			n.expression(node.NamedChild(0), id)
		}
		return id
	case "throw_statement":
		id := n.b.Add(ir.Node{Kind: ir.KindRaise, Span: span}, parent, "")
		if node.NamedChildCount() > 0 {
			n.expression(node.NamedChild(0), id)
		}
		return id
	case "break_statement":
		return n.b.Add(ir.Node{Kind: ir.KindBreak, Span: span}, parent, "")
	case "continue_statement":
		return n.b.Add(ir.Node{Kind: ir.KindContinue, Span: span}, parent, "")
	case "empty_statement", "comment", ";":
		return ir.InvalidNodeID
	case "statement_block":
		var last ir.NodeID = ir.InvalidNodeID
		for i := 0; i < int(node.NamedChildCount()); i++ {
			last = n.statement(node.NamedChild(i), parent)
		}
		return last
	case "interface_declaration", "type_alias_declaration", "enum_declaration":
		// TypeScript-only declarations carry no runtime taint/control-flow
		// semantics; kept as Opaque so tooling can still see them listed.
		return n.unsupported(node, parent)
	default:
		return n.unsupported(node, parent)
	}
}

func (n *normalizer) functionDef(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	name := n.text(node.ChildByFieldName("name"))
	isAsync := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "async" {
			isAsync = true
		}
	}
	params := n.paramNames(node.ChildByFieldName("parameters"))
	id := n.b.Add(ir.Node{
		Kind: ir.KindFunctionDef, Span: span, Name: name,
		Params: params, IsAsyncFn: isAsync, IsAsync: isAsync,
	}, parent, name)
	body := node.ChildByFieldName("body")
	n.lowerBody(body, id)
	return id
}

func (n *normalizer) lowerBody(body *sitter.Node, id ir.NodeID) {
	if body == nil {
		return
	}
	if body.Type() == "statement_block" {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			n.statement(body.NamedChild(i), id)
		}
		return
	}
	// arrow function with expression body: implicit return
	retID := n.b.Add(ir.Node{Kind: ir.KindReturn, Span: common.Span(n.b.FilePath, body)}, id, "")
	n.expression(body, retID)
}

func (n *normalizer) paramNames(params *sitter.Node) []string {
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier", "required_parameter", "optional_parameter":
			if pat := p.ChildByFieldName("pattern"); pat != nil {
				out = append(out, n.text(pat))
			} else {
				out = append(out, n.text(p))
			}
		case "assignment_pattern":
			if left := p.ChildByFieldName("left"); left != nil {
				out = append(out, n.text(left))
			}
		case "rest_pattern":
			out = append(out, n.text(p))
		}
	}
	return out
}

func (n *normalizer) classDef(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	name := n.text(node.ChildByFieldName("name"))
	id := n.b.Add(ir.Node{Kind: ir.KindClassDef, Span: span, Name: name}, parent, name)
	body := node.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			n.statement(body.NamedChild(i), id)
		}
	}
	return id
}

// variableDecl lowers "let/const/var x = y, a = b" into one Assign node
// per declarator, each parented directly under parent (no VariableDecl
// wrapper is needed — §4.2 only distinguishes assignment shape, not the
// declaration keyword).
func (n *normalizer) variableDecl(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	var last ir.NodeID = ir.InvalidNodeID
	for i := 0; i < int(node.NamedChildCount()); i++ {
		d := node.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		span := common.Span(n.b.FilePath, d)
		nameNode := d.ChildByFieldName("name")
		valueNode := d.ChildByFieldName("value")
		if valueNode == nil {
			last = n.b.Add(ir.Node{Kind: ir.KindVariableDecl, Span: span, Name: n.text(nameNode)}, parent, n.text(nameNode))
			continue
		}
		id := n.b.Add(ir.Node{Kind: ir.KindAssign, Span: span}, parent, "")
		n.expression(nameNode, id)
		n.expression(valueNode, id)
		last = id
	}
	return last
}

// ifStatement wraps the consequence/alternative in their own
// Opaque("then")/Opaque("else") container so CFG construction can find
// the branch boundary the IR's flat Children list otherwise loses.
func (n *normalizer) ifStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindIf, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("condition"), id)
	thenID := n.b.Opaque(span, "then", id)
	n.statement(node.ChildByFieldName("consequence"), thenID)
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		elseID := n.b.Opaque(span, "else", id)
		if alt.Type() == "else_clause" {
			if body := alt.ChildByFieldName("body"); body != nil {
				n.statement(body, elseID)
			}
		} else {
			n.statement(alt, elseID)
		}
	}
	return id
}

func (n *normalizer) whileStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindWhile, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("condition"), id)
	n.statement(node.ChildByFieldName("body"), id)
	return id
}

// forStatement normalizes both classic "for(;;)" and "for...in/of" loops.
// for-in/of preserves the iterable as an expression; classic C-style for
// is kept as Opaque-wrapped init/update plus a nested While, since the
// shared For node models "for item in iter" specifically.
func (n *normalizer) forStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	if node.Type() == "for_in_statement" {
		id := n.b.Add(ir.Node{Kind: ir.KindFor, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("left"), id)
		n.expression(node.ChildByFieldName("right"), id)
		n.statement(node.ChildByFieldName("body"), id)
		return id
	}
	// classic for: Opaque(init) + While(condition){ body; update }
	id := n.b.Opaque(span, "for_statement", parent)
	if init := node.ChildByFieldName("initializer"); init != nil {
		n.statement(init, id)
	}
	whileID := n.b.Add(ir.Node{Kind: ir.KindWhile, Span: span}, id, "")
	if cond := node.ChildByFieldName("condition"); cond != nil {
		n.expression(cond, whileID)
	} else {
		n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "bool", LiteralValue: "true"}, whileID, "")
	}
	n.statement(node.ChildByFieldName("body"), whileID)
	if upd := node.ChildByFieldName("increment"); upd != nil {
		n.expression(upd, whileID)
	}
	return id
}

func (n *normalizer) tryStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindTry, Span: span}, parent, "")
	tryNode := n.b.Arena.NodePtr(id)
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			n.statement(body.NamedChild(i), id)
		}
	}
	if handler := node.ChildByFieldName("handler"); handler != nil {
		h := ir.ExceptionHandler{}
		if param := handler.ChildByFieldName("parameter"); param != nil {
			h.Var = n.text(param)
		}
		if hbody := handler.ChildByFieldName("body"); hbody != nil {
			for i := 0; i < int(hbody.NamedChildCount()); i++ {
				stmtID := n.statement(hbody.NamedChild(i), id)
				if stmtID != ir.InvalidNodeID {
					h.Body = append(h.Body, stmtID)
				}
			}
		}
		tryNode.Handlers = append(tryNode.Handlers, h)
	}
	if fin := node.ChildByFieldName("finalizer"); fin != nil {
		for i := 0; i < int(fin.NamedChildCount()); i++ {
			stmtID := n.statement(fin.NamedChild(i), id)
			if stmtID != ir.InvalidNodeID {
				tryNode.Finalizer = append(tryNode.Finalizer, stmtID)
			}
		}
	}
	return id
}

var binaryOps = map[string]ir.Operator{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpDiv, "%": ir.OpMod,
	"==": ir.OpEq, "===": ir.OpEq, "!=": ir.OpNe, "!==": ir.OpNe,
	"<": ir.OpLt, "<=": ir.OpLe, ">": ir.OpGt, ">=": ir.OpGe,
	"&": ir.OpBitAnd, "|": ir.OpBitOr, "^": ir.OpBitXor, "<<": ir.OpShl, ">>": ir.OpShr,
	"&&": ir.OpAnd, "||": ir.OpOr, "in": ir.OpIn, "instanceof": ir.OpIs,
}

var higherOrderMethods = map[string]string{
	"map": "map", "filter": "filter", "reduce": "reduce", "forEach": "forEach",
	"some": "some", "every": "every", "find": "find", "flatMap": "flatMap",
}

func (n *normalizer) expression(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	if node == nil {
		return ir.InvalidNodeID
	}
	span := common.Span(n.b.FilePath, node)
	switch node.Type() {
	case "binary_expression", "logical_expression":
		opText := n.text(node.ChildByFieldName("operator"))
		op, ok := binaryOps[opText]
		if !ok {
			op = ir.OpUnknown
		}
		id := n.b.Add(ir.Node{Kind: ir.KindBinaryOp, Span: span, Operator: op}, parent, "")
		n.expression(node.ChildByFieldName("left"), id)
		n.expression(node.ChildByFieldName("right"), id)
		return id
	case "unary_expression":
		opText := n.text(node.ChildByFieldName("operator"))
		op := ir.OpSub
		if opText == "!" {
			op = ir.OpNot
		} else if mapped, ok := binaryOps[opText]; ok {
			op = mapped
		}
		id := n.b.Add(ir.Node{Kind: ir.KindUnaryOp, Span: span, Operator: op}, parent, "")
		n.expression(node.ChildByFieldName("argument"), id)
		return id
	case "assignment_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindAssign, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("left"), id)
		n.expression(node.ChildByFieldName("right"), id)
		return id
	case "call_expression":
		return n.callExpression(node, parent)
	case "new_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, CallIntrinsic: "new"}, parent, "")
		n.expression(node.ChildByFieldName("constructor"), id)
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				n.expression(args.NamedChild(i), id)
			}
		}
		return id
	case "member_expression":
		propNode := node.ChildByFieldName("property")
		id := n.b.Add(ir.Node{Kind: ir.KindAttribute, Span: span, Name: n.text(propNode)}, parent, "")
		n.expression(node.ChildByFieldName("object"), id)
		return id
	case "subscript_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindSubscript, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("object"), id)
		n.expression(node.ChildByFieldName("index"), id)
		return id
	case "identifier", "this", "super":
		return n.b.Add(ir.Node{Kind: ir.KindName, Span: span, Name: n.text(node)}, parent, n.text(node))
	case "number":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "float", LiteralValue: n.text(node)}, parent, "")
	case "true", "false":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "bool", LiteralValue: n.text(node)}, parent, "")
	case "null", "undefined":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "null", LiteralValue: n.text(node)}, parent, "")
	case "string", "template_string":
		return n.stringLiteral(node, parent)
	case "arrow_function", "function_expression":
		return n.functionDef(node, parent)
	case "array", "object":
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
	case "ternary_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindIf, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("condition"), id)
		n.expression(node.ChildByFieldName("consequence"), id)
		n.expression(node.ChildByFieldName("alternative"), id)
		return id
	case "await_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindUnaryOp, Span: span, Operator: ir.OpUnknown, IsAsync: true}, parent, "")
		if node.NamedChildCount() > 0 {
			n.expression(node.NamedChild(0), id)
		}
		return id
	default:
		return n.unsupported(node, parent)
	}
}

// callExpression tags array-method higher-order calls (.map/.filter/...)
// with HigherOrderKind, per §4.2's treatment of higher-order iteration as
// Call with higher_order_kind plus a nested FunctionDef for the callback.
func (n *normalizer) callExpression(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	fn := node.ChildByFieldName("function")
	hok := ""
	if fn != nil && fn.Type() == "member_expression" {
		prop := n.text(fn.ChildByFieldName("property"))
		if kind, ok := higherOrderMethods[prop]; ok {
			hok = kind
		}
	}
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, HigherOrderKind: hok}, parent, "")
	n.expression(fn, id)
	args := node.ChildByFieldName("arguments")
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			n.expression(args.NamedChild(i), id)
		}
	}
	return id
}

// stringLiteral lowers template literals with substitutions to
// Call(intrinsic="format", ...) fragments; plain strings stay Literal.
func (n *normalizer) stringLiteral(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	if node.Type() != "template_string" {
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "string", LiteralValue: n.text(node)}, parent, "")
	}
	hasSub := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "template_substitution" {
			hasSub = true
			break
		}
	}
	if !hasSub {
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "string", LiteralValue: n.text(node)}, parent, "")
	}
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, CallIntrinsic: "format"}, parent, "")
	np := n.b.Arena.NodePtr(id)
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "template_substitution":
			if c.NamedChildCount() > 0 {
				exprID := n.expression(c.NamedChild(0), id)
				np.FormatFragments = append(np.FormatFragments, ir.FormatFragment{Expr: exprID})
			}
		case "`":
			// delimiter
		default:
			txt := n.text(c)
			if txt != "" && !strings.HasPrefix(txt, "${") {
				np.FormatFragments = append(np.FormatFragments, ir.FormatFragment{IsLiteral: true, Text: txt})
			}
		}
	}
	return id
}
