package graph

import (
	"testing"

	"github.com/drewp/commentserve/statement"
)

var (
	post    = statement.IRI("http://example.com/post/1")
	c1      = statement.IRI("http://example.com/comment/1")
	c2      = statement.IRI("http://example.com/comment/2")
	alice   = statement.IRI("http://example.com/alice")
	reply   = statement.HasReply.Term()
	creator = statement.HasCreator.Term()
	name    = statement.Name.Term()
)

func testGraph() *Graph {
	return New(
		statement.New(post, reply, c1),
		statement.New(post, reply, c2),
		statement.New(c1, creator, alice),
		statement.New(c2, creator, alice),
		statement.New(alice, name, statement.String("Alice")),
		statement.New(post, reply, c1),
	)
}

func TestGraphDeduplicates(t *testing.T) {
	g := testGraph()
	if g.Len() != 5 {
		t.Errorf("Len() = %d, want 5", g.Len())
	}
}

func TestGraphMatch(t *testing.T) {
	g := testGraph()
	tests := []struct {
		name    string
		s, p, o statement.Term
		want    int
	}{
		{"all", statement.Any, statement.Any, statement.Any, 5},
		{"by subject", post, statement.Any, statement.Any, 2},
		{"by predicate", statement.Any, creator, statement.Any, 2},
		{"by object", statement.Any, statement.Any, alice, 2},
		{"fully bound", post, reply, c2, 1},
		{"no match", alice, reply, statement.Any, 0},
		{"unknown term", statement.IRI("http://nowhere"), statement.Any, statement.Any, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Match(tt.s, tt.p, tt.o); len(got) != tt.want {
				t.Errorf("Match() returned %d statements, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGraphValue(t *testing.T) {
	g := testGraph()
	v, ok := g.Value(alice, name)
	if !ok || v.Value != "Alice" {
		t.Errorf("Value() = %v, %v", v, ok)
	}
	if _, ok := g.Value(c1, name); ok {
		t.Error("expected no value")
	}
}

func TestGraphObjectsSubjects(t *testing.T) {
	g := testGraph()
	if got := g.Objects(post, reply); len(got) != 2 || got[0] != c1 || got[1] != c2 {
		t.Errorf("Objects() = %v", got)
	}
	if got := g.Subjects(creator, alice); len(got) != 2 {
		t.Errorf("Subjects() = %v", got)
	}
}

func TestGraphSkipsInvalidAndCountsUnknown(t *testing.T) {
	g := New(
		statement.New(statement.String("literal subject"), name, statement.String("x")),
		statement.New(alice, statement.IRI("http://example.com/custom"), statement.String("x")),
	)
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
	if g.Unknown() != 1 {
		t.Errorf("Unknown() = %d, want 1", g.Unknown())
	}
}
