// Package graph is the in-memory, indexed union of every known statement.
//
// A Graph is filled once with Add and then only read; callers publish it to
// concurrent readers after it is complete, so it carries no locking.
package graph

import (
	"github.com/drewp/commentserve/statement"
)

type Graph struct {
	stmts       []statement.Statement
	seen        map[statement.Statement]struct{}
	bySubject   map[statement.Term][]int
	byPredicate map[statement.Term][]int
	byObject    map[statement.Term][]int
	unknown     int
}

func New(stmts ...statement.Statement) *Graph {
	g := &Graph{
		seen:        make(map[statement.Statement]struct{}, len(stmts)),
		bySubject:   make(map[statement.Term][]int),
		byPredicate: make(map[statement.Term][]int),
		byObject:    make(map[statement.Term][]int),
	}
	g.Add(stmts...)
	return g
}

// Add inserts statements, ignoring duplicates and anything that is not a
// valid statement.
func (g *Graph) Add(stmts ...statement.Statement) {
	for _, s := range stmts {
		if !s.Valid() {
			continue
		}
		if _, dup := g.seen[s]; dup {
			continue
		}
		g.seen[s] = struct{}{}
		i := len(g.stmts)
		g.stmts = append(g.stmts, s)
		g.bySubject[s.Subject] = append(g.bySubject[s.Subject], i)
		g.byPredicate[s.Predicate] = append(g.byPredicate[s.Predicate], i)
		g.byObject[s.Object] = append(g.byObject[s.Object], i)
		if !statement.LookupPredicate(s.Predicate.Value).Known() {
			g.unknown++
		}
	}
}

// Len is the number of distinct statements.
func (g *Graph) Len() int {
	return len(g.stmts)
}

// Unknown is the number of statements whose predicate is outside the
// known vocabulary.
func (g *Graph) Unknown() int {
	return g.unknown
}

func (g *Graph) Contains(s statement.Statement) bool {
	_, ok := g.seen[s]
	return ok
}

// Match returns the statements matching the pattern, in insertion order.
// statement.Any in any position matches every term.
func (g *Graph) Match(s, p, o statement.Term) []statement.Statement {
	var out []statement.Statement
	g.each(s, p, o, func(st statement.Statement) bool {
		out = append(out, st)
		return true
	})
	return out
}

// Value returns the object of the first statement matching (s, p, ?).
func (g *Graph) Value(s, p statement.Term) (statement.Term, bool) {
	var found statement.Term
	ok := false
	g.each(s, p, statement.Any, func(st statement.Statement) bool {
		found, ok = st.Object, true
		return false
	})
	return found, ok
}

// Objects returns the distinct objects of (s, p, ?).
func (g *Graph) Objects(s, p statement.Term) []statement.Term {
	return g.distinct(s, p, statement.Any, func(st statement.Statement) statement.Term { return st.Object })
}

// Subjects returns the distinct subjects of (?, p, o).
func (g *Graph) Subjects(p, o statement.Term) []statement.Term {
	return g.distinct(statement.Any, p, o, func(st statement.Statement) statement.Term { return st.Subject })
}

func (g *Graph) distinct(s, p, o statement.Term, pick func(statement.Statement) statement.Term) []statement.Term {
	var out []statement.Term
	seen := make(map[statement.Term]struct{})
	g.each(s, p, o, func(st statement.Statement) bool {
		t := pick(st)
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
		return true
	})
	return out
}

func (g *Graph) each(s, p, o statement.Term, fn func(statement.Statement) bool) {
	candidates, all := g.smallestIndex(s, p, o)
	if all {
		for _, st := range g.stmts {
			if !fn(st) {
				return
			}
		}
		return
	}
	for _, i := range candidates {
		st := g.stmts[i]
		if !matches(s, st.Subject) || !matches(p, st.Predicate) || !matches(o, st.Object) {
			continue
		}
		if !fn(st) {
			return
		}
	}
}

// smallestIndex picks the shortest posting list among the bound positions.
// all is true when nothing is bound.
func (g *Graph) smallestIndex(s, p, o statement.Term) (idx []int, all bool) {
	all = true
	pick := func(m map[statement.Term][]int, t statement.Term) {
		if t.IsAny() {
			return
		}
		list := m[t]
		if all || len(list) < len(idx) {
			idx = list
		}
		all = false
	}
	pick(g.bySubject, s)
	pick(g.byObject, o)
	pick(g.byPredicate, p)
	return idx, all
}

func matches(pattern, t statement.Term) bool {
	return pattern.IsAny() || pattern == t
}
