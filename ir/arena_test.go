package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) (*Arena, NodeID) {
	t.Helper()
	a := NewArena()
	root := a.Add(Node{Kind: KindFunctionDef, Name: "f"}, InvalidNodeID)
	a1 := a.Add(Node{Kind: KindAssign}, root)
	a.Add(Node{Kind: KindName, Name: "x"}, a1)
	a.Add(Node{Kind: KindLiteral, LiteralKind: "int", LiteralValue: "1"}, a1)
	a2 := a.Add(Node{Kind: KindReturn}, root)
	a.Add(Node{Kind: KindName, Name: "x"}, a2)
	a.Freeze()
	return a, root
}

func TestVisitDocumentOrder(t *testing.T) {
	a, root := buildSample(t)
	var order []Kind
	Walk(a, root, func(a *Arena, id NodeID) {
		order = append(order, a.Node(id).Kind)
	})
	assert.Equal(t, []Kind{
		KindFunctionDef, KindAssign, KindName, KindLiteral, KindReturn, KindName,
	}, order)
}

func TestVisitPruning(t *testing.T) {
	a, root := buildSample(t)
	var order []Kind
	Visit(a, root, VisitorFunc(func(a *Arena, id NodeID) bool {
		order = append(order, a.Node(id).Kind)
		return a.Node(id).Kind != KindAssign // don't descend into Assign
	}))
	assert.Equal(t, []Kind{KindFunctionDef, KindAssign, KindReturn, KindName}, order)
}

func TestParentLookup(t *testing.T) {
	a, root := buildSample(t)
	assign := a.Node(root).Children[0]
	name := a.Node(assign).Children[0]
	assert.Equal(t, assign, a.Parent(name))
	assert.Equal(t, root, a.Parent(assign))
	assert.Equal(t, InvalidNodeID, a.Parent(root))
}

func TestEnclosing(t *testing.T) {
	a, root := buildSample(t)
	assign := a.Node(root).Children[0]
	name := a.Node(assign).Children[0]
	fn, ok := a.Enclosing(name, KindFunctionDef)
	require.True(t, ok)
	assert.Equal(t, root, fn)
}

func TestFreezePanicsOnAdd(t *testing.T) {
	a, _ := buildSample(t)
	assert.Panics(t, func() {
		a.Add(Node{Kind: KindPass}, InvalidNodeID)
	})
}

func TestUniversalIDDeterminism(t *testing.T) {
	id1 := NewUniversalID("python", "a.py", 4, 1, "h")
	id2 := NewUniversalID("python", "a.py", 4, 1, "h")
	assert.Equal(t, id1, id2)
	assert.Equal(t, "python:a.py:4:1:h", id1)
}

func TestSpanEquality(t *testing.T) {
	s1 := SourceSpan{FilePath: "a.py", ByteStart: 10, ByteEnd: 20}
	s2 := SourceSpan{FilePath: "a.py", ByteStart: 10, ByteEnd: 20, StartLine: 99}
	assert.True(t, s1.Equal(s2))
	s3 := SourceSpan{FilePath: "a.py", ByteStart: 11, ByteEnd: 20}
	assert.False(t, s1.Equal(s3))
}
