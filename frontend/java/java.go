// Package java lowers Java source into the shared IR per 
// §4.2. Grounded in the original engine's graph/java and
// graph/callgraph/extraction Java call-resolution code.
package java

import (
	sitter "github.com/smacker/go-tree-sitter"
	tsjava "github.com/smacker/go-tree-sitter/java"

	"github.com/codescalpel/scalpel/frontend/common"
	"github.com/codescalpel/scalpel/ir"
)

// Frontend implements frontend.Frontend for Java.
type Frontend struct{}

// New returns a Java frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Language() string { return "java" }

func (f *Frontend) Lower(relativePath string, fileBytes []byte) *ir.Module {
	pr := common.ParseBytes(tsjava.GetLanguage(), fileBytes, relativePath)
	if pr.Tree == nil {
		return common.EmptyModule("java", relativePath, pr.Diagnostics)
	}
	defer pr.Tree.Close()

	b := common.NewBuilder("java", relativePath)
	root := pr.Tree.RootNode()
	modID := b.Opaque(common.Span(relativePath, root), "program", ir.InvalidNodeID)
	diags := append([]ir.Diagnostic{}, pr.Diagnostics...)
	n := &normalizer{b: b, src: pr.Source, diags: &diags}
	for i := 0; i < int(root.ChildCount()); i++ {
		n.statement(root.Child(i), modID)
	}
	b.Arena.Freeze()
	return &ir.Module{FilePath: relativePath, Language: "java", Arena: b.Arena, Diagnostics: diags}
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
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		return n.classDef(node, parent)
	case "method_declaration", "constructor_declaration":
		return n.functionDef(node, parent)
	case "local_variable_declaration", "field_declaration":
		return n.variableDecl(node, parent)
	case "expression_statement":
		if node.NamedChildCount() > 0 {
			return n.expression(node.NamedChild(0), parent)
		}
		return ir.InvalidNodeID
	case "if_statement":
		return n.ifStatement(node, parent)
	case "while_statement":
		return n.whileStatement(node, parent)
	case "for_statement":
		return n.classicForStatement(node, parent)
	case "enhanced_for_statement":
		return n.enhancedForStatement(node, parent)
	case "try_statement", "try_with_resources_statement":
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
	case "block":
		var last ir.NodeID = ir.InvalidNodeID
		for i := 0; i < int(node.NamedChildCount()); i++ {
			last = n.statement(node.NamedChild(i), parent)
		}
		return last
	case "line_comment", "block_comment", ";":
		return ir.InvalidNodeID
	default:
		return n.unsupported(node, parent)
	}
}

func (n *normalizer) functionDef(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	name := n.text(node.ChildByFieldName("name"))
	params := n.paramNames(node.ChildByFieldName("parameters"))
	id := n.b.Add(ir.Node{Kind: ir.KindFunctionDef, Span: span, Name: name, Params: params}, parent, name)
	body := node.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			n.statement(body.NamedChild(i), id)
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
		if p.Type() == "formal_parameter" || p.Type() == "spread_parameter" {
			if nameNode := p.ChildByFieldName("name"); nameNode != nil {
				out = append(out, n.text(nameNode))
			}
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

// variableDecl lowers "Type x = y, a = b;" to one Assign (or bare
// VariableDecl for uninitialized locals) per declarator.
func (n *normalizer) variableDecl(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	declNode := node
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "variable_declarator_list" {
			declNode = node.Child(i)
		}
	}
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
	_ = declNode
	return last
}

func (n *normalizer) ifStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindIf, Span: span}, parent, "")
	n.expression(node.ChildByFieldName("condition"), id)
	thenID := n.b.Opaque(span, "then", id)
	n.statement(node.ChildByFieldName("consequence"), thenID)
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		elseID := n.b.Opaque(span, "else", id)
		n.statement(alt, elseID)
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

// enhancedForStatement normalizes "for (T item : iter)" directly to the
// spec's For(item, iter, body) node.
func (n *normalizer) enhancedForStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Add(ir.Node{Kind: ir.KindFor, Span: span}, parent, "")
	nameNode := node.ChildByFieldName("name")
	n.b.Add(ir.Node{Kind: ir.KindName, Span: common.Span(n.b.FilePath, nameNode), Name: n.text(nameNode)}, id, n.text(nameNode))
	n.expression(node.ChildByFieldName("value"), id)
	n.statement(node.ChildByFieldName("body"), id)
	return id
}

// classicForStatement has no single iterable expression, so it keeps its
// C-style shape: Opaque(init) wrapping a While(condition){ body; update },
// the same pattern used for JS's classic for loop.
func (n *normalizer) classicForStatement(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	id := n.b.Opaque(span, "for_statement", parent)
	if init := node.ChildByFieldName("init"); init != nil {
		n.statement(init, id)
	}
	whileID := n.b.Add(ir.Node{Kind: ir.KindWhile, Span: span}, id, "")
	if cond := node.ChildByFieldName("condition"); cond != nil {
		n.expression(cond, whileID)
	} else {
		n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "bool", LiteralValue: "true"}, whileID, "")
	}
	n.statement(node.ChildByFieldName("body"), whileID)
	if upd := node.ChildByFieldName("update"); upd != nil {
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
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		switch c.Type() {
		case "catch_clause":
			h := ir.ExceptionHandler{}
			if param := c.ChildByFieldName("parameter"); param != nil {
				h.Var = n.text(param)
				if typeNode := param.ChildByFieldName("type"); typeNode != nil {
					h.ExceptionType = n.text(typeNode)
				}
			}
			if body := c.ChildByFieldName("body"); body != nil {
				for j := 0; j < int(body.NamedChildCount()); j++ {
					stmtID := n.statement(body.NamedChild(j), id)
					if stmtID != ir.InvalidNodeID {
						h.Body = append(h.Body, stmtID)
					}
				}
			}
			tryNode.Handlers = append(tryNode.Handlers, h)
		case "finally_clause":
			if body := c.ChildByFieldName("body"); body != nil {
				for j := 0; j < int(body.NamedChildCount()); j++ {
					stmtID := n.statement(body.NamedChild(j), id)
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
	"&": ir.OpBitAnd, "|": ir.OpBitOr, "^": ir.OpBitXor, "<<": ir.OpShl, ">>": ir.OpShr, ">>>": ir.OpShr,
	"&&": ir.OpAnd, "||": ir.OpOr, "instanceof": ir.OpIs,
}

var streamMethods = map[string]string{
	"map": "map", "filter": "filter", "reduce": "reduce", "forEach": "forEach",
	"collect": "reduce", "anyMatch": "some", "allMatch": "every", "flatMap": "flatMap",
}

func (n *normalizer) expression(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	if node == nil {
		return ir.InvalidNodeID
	}
	span := common.Span(n.b.FilePath, node)
	switch node.Type() {
	case "binary_expression":
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
		}
		id := n.b.Add(ir.Node{Kind: ir.KindUnaryOp, Span: span, Operator: op}, parent, "")
		n.expression(node.ChildByFieldName("operand"), id)
		return id
	case "assignment_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindAssign, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("left"), id)
		n.expression(node.ChildByFieldName("right"), id)
		return id
	case "method_invocation":
		return n.methodInvocation(node, parent)
	case "object_creation_expression":
		id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, CallIntrinsic: "new"}, parent, "")
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			n.b.Add(ir.Node{Kind: ir.KindName, Span: common.Span(n.b.FilePath, typeNode), Name: n.text(typeNode)}, id, n.text(typeNode))
		}
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				n.expression(args.NamedChild(i), id)
			}
		}
		return id
	case "field_access":
		fieldNode := node.ChildByFieldName("field")
		id := n.b.Add(ir.Node{Kind: ir.KindAttribute, Span: span, Name: n.text(fieldNode)}, parent, "")
		n.expression(node.ChildByFieldName("object"), id)
		return id
	case "array_access":
		id := n.b.Add(ir.Node{Kind: ir.KindSubscript, Span: span}, parent, "")
		n.expression(node.ChildByFieldName("array"), id)
		n.expression(node.ChildByFieldName("index"), id)
		return id
	case "identifier", "this":
		return n.b.Add(ir.Node{Kind: ir.KindName, Span: span, Name: n.text(node)}, parent, n.text(node))
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "int", LiteralValue: n.text(node)}, parent, "")
	case "decimal_floating_point_literal":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "float", LiteralValue: n.text(node)}, parent, "")
	case "true", "false":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "bool", LiteralValue: n.text(node)}, parent, "")
	case "null_literal":
		return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "null", LiteralValue: "null"}, parent, "")
	case "string_literal":
		return n.stringLiteral(node, parent)
	case "lambda_expression":
		return n.lambda(node, parent)
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
	case "cast_expression":
		if val := node.ChildByFieldName("value"); val != nil {
			return n.expression(val, parent)
		}
		return n.unsupported(node, parent)
	default:
		return n.unsupported(node, parent)
	}
}

// methodInvocation tags Java stream chain calls (.map/.filter/.collect/...)
// with HigherOrderKind, mirroring the JS array-method treatment per §4.2.
func (n *normalizer) methodInvocation(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	nameNode := node.ChildByFieldName("name")
	methodName := n.text(nameNode)
	hok := streamMethods[methodName]
	id := n.b.Add(ir.Node{Kind: ir.KindCall, Span: span, Name: methodName, HigherOrderKind: hok}, parent, "")
	if obj := node.ChildByFieldName("object"); obj != nil {
		n.expression(obj, id)
	}
	args := node.ChildByFieldName("arguments")
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			n.expression(args.NamedChild(i), id)
		}
	}
	return id
}

func (n *normalizer) lambda(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	var params []string
	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode != nil {
		if paramsNode.Type() == "identifier" {
			params = []string{n.text(paramsNode)}
		} else {
			for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
				p := paramsNode.NamedChild(i)
				if nameNode := p.ChildByFieldName("name"); nameNode != nil {
					params = append(params, n.text(nameNode))
				} else {
					params = append(params, n.text(p))
				}
			}
		}
	}
	id := n.b.Add(ir.Node{Kind: ir.KindFunctionDef, Span: span, Name: "<lambda>", Params: params}, parent, "")
	body := node.ChildByFieldName("body")
	if body != nil && body.Type() == "block" {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			n.statement(body.NamedChild(i), id)
		}
	} else if body != nil {
		retID := n.b.Add(ir.Node{Kind: ir.KindReturn, Span: common.Span(n.b.FilePath, body)}, id, "")
		n.expression(body, retID)
	}
	return id
}

// stringLiteral lowers Java text blocks/concatenation of string literal
// with `+` is left as ordinary BinaryOp(Add, ...) — Java has no dedicated
// interpolation syntax, so a bare string literal is always a Literal.
func (n *normalizer) stringLiteral(node *sitter.Node, parent ir.NodeID) ir.NodeID {
	span := common.Span(n.b.FilePath, node)
	return n.b.Add(ir.Node{Kind: ir.KindLiteral, Span: span, LiteralKind: "string", LiteralValue: n.text(node)}, parent, "")
}
