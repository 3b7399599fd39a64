// Package relation answers kinship questions over a persons and unions
// snapshot. Every query is pure and deterministic for a given snapshot; the
// store stays the single source of truth and nothing here caches across
// snapshots.
package relation

import (
	"github.com/google/uuid"

	"giapha/internal/model"
)

// Graph indexes one snapshot for repeated queries. Build one per request;
// it never refreshes itself.
type Graph struct {
	persons  map[uuid.UUID]model.Person
	order    []uuid.UUID
	children map[uuid.UUID][]uuid.UUID
	unions   []model.Union
}

func NewGraph(persons []model.Person, unions []model.Union) *Graph {
	g := &Graph{
		persons:  make(map[uuid.UUID]model.Person, len(persons)),
		order:    make([]uuid.UUID, 0, len(persons)),
		children: make(map[uuid.UUID][]uuid.UUID),
		unions:   unions,
	}
	for _, p := range persons {
		g.persons[p.ID] = p
		g.order = append(g.order, p.ID)
	}
	for _, p := range persons {
		if p.FatherID.IsSet && p.FatherID.Val != p.ID {
			g.children[p.FatherID.Val] = append(g.children[p.FatherID.Val], p.ID)
		}
		if p.MotherID.IsSet && p.MotherID.Val != p.ID && p.MotherID.Val != p.FatherID.Val {
			g.children[p.MotherID.Val] = append(g.children[p.MotherID.Val], p.ID)
		}
	}
	return g
}

// Ancestors walks both parent lines upward until the links run out. The
// visited set doubles as the result and as the cycle guard; the start id is
// always included.
func (g *Graph) Ancestors(id uuid.UUID) map[uuid.UUID]bool {
	visited := make(map[uuid.UUID]bool)
	var climb func(id uuid.UUID)
	climb = func(id uuid.UUID) {
		if visited[id] {
			return
		}
		visited[id] = true
		p, ok := g.persons[id]
		if !ok {
			return
		}
		if p.FatherID.IsSet {
			climb(p.FatherID.Val)
		}
		if p.MotherID.IsSet {
			climb(p.MotherID.Val)
		}
	}
	climb(id)
	return visited
}

// Descendants walks the child links downward, including the start id.
func (g *Graph) Descendants(id uuid.UUID) map[uuid.UUID]bool {
	visited := make(map[uuid.UUID]bool)
	var descend func(id uuid.UUID)
	descend = func(id uuid.UUID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, childID := range g.children[id] {
			descend(childID)
		}
	}
	descend(id)
	return visited
}

// Siblings returns every person sharing a father or a mother with id,
// excluding id itself. A full sibling appears once.
func (g *Graph) Siblings(id uuid.UUID) []model.Person {
	p, ok := g.persons[id]
	if !ok {
		return nil
	}
	seen := make(map[uuid.UUID]bool)
	var out []model.Person
	for _, otherID := range g.order {
		if otherID == id || seen[otherID] {
			continue
		}
		other := g.persons[otherID]
		if sharesParent(p, other) {
			seen[otherID] = true
			out = append(out, other)
		}
	}
	return out
}

// Spouses returns the other side of every union id takes part in.
func (g *Graph) Spouses(id uuid.UUID) []model.Person {
	var out []model.Person
	for _, u := range g.unions {
		partnerID, ok := u.Partner(id)
		if !ok {
			continue
		}
		if partner, ok := g.persons[partnerID]; ok {
			out = append(out, partner)
		}
	}
	return out
}

// IsDirectLine reports whether candidate sits on id's bloodline, either as
// an ancestor or as a descendant.
func (g *Graph) IsDirectLine(id, candidateID uuid.UUID) bool {
	if g.Ancestors(id)[candidateID] {
		return true
	}
	return g.Descendants(id)[candidateID]
}

func sharesParent(a, b model.Person) bool {
	if a.FatherID.IsSet && b.FatherID.IsSet && a.FatherID.Val == b.FatherID.Val {
		return true
	}
	if a.MotherID.IsSet && b.MotherID.IsSet && a.MotherID.Val == b.MotherID.Val {
		return true
	}
	return false
}
