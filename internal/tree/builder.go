// Package tree derives the display forest from the persons and unions
// snapshot. Build is pure: it performs no I/O, never mutates its inputs, and
// recomputes every generation number from the current parent links so stale
// stored values cannot drift into the output.
package tree

import (
	"github.com/google/uuid"

	"giapha/internal/apperr"
	"giapha/internal/model"
)

// VirtualRootName labels the synthetic wrapper node used when the dataset
// holds more than one traceable bloodline.
const VirtualRootName = "Gia Phả"

// GenerationUnknown marks persons that are not reachable from any root:
// orphans with dangling parent ids and spouses pruned out of the root set.
const GenerationUnknown = 0

// Node is one person's position in the forest. Spouses are shallow copies
// carrying display attributes only, never the spouse's own children, so a
// couple cannot recurse into each other.
type Node struct {
	Person     model.Person   `json:"person"`
	Generation int            `json:"generation"`
	Spouses    []model.Person `json:"spouses,omitempty"`
	Children   []*Node        `json:"children,omitempty"`
}

// FlatPerson is one row of the table/search projection.
type FlatPerson struct {
	Person     model.Person `json:"person"`
	Generation int          `json:"generation"`
}

// Result is the built forest. Root is the single root when there is exactly
// one, a synthetic generation-0 wrapper when there are several, and nil when
// the dataset has no traceable root at all. Flat lists every input person
// exactly once: reachable persons in traversal order with their computed
// generation, unreachable ones appended at GenerationUnknown.
type Result struct {
	Root  *Node        `json:"root"`
	Roots []*Node      `json:"roots"`
	Flat  []FlatPerson `json:"flat"`
}

// Build assembles the forest from a point-in-time snapshot. Dangling parent
// ids, self-references and unions with a missing partner degrade gracefully;
// only malformed shape data (a person without an id) is an error.
func Build(persons []model.Person, unions []model.Union) (Result, error) {
	for _, p := range persons {
		if p.ID == uuid.Nil {
			return Result{}, apperr.New(apperr.KindInvalidArgument, "person record %q has no id", p.Name)
		}
	}

	nodes := make(map[uuid.UUID]*Node, len(persons))
	for _, p := range persons {
		nodes[p.ID] = &Node{Person: p}
	}

	// Attach each person under exactly one parent. Father wins when both
	// resolve; a parent id that is dangling or self-referential counts as
	// absent.
	placed := make(map[uuid.UUID]bool)
	for _, p := range persons {
		parent, ok := resolveParent(nodes, p)
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, nodes[p.ID])
		placed[p.ID] = true
	}

	rootSet := make(map[uuid.UUID]bool)
	for _, p := range persons {
		if !placed[p.ID] {
			rootSet[p.ID] = true
		}
	}

	// Spouse attachment plus root pruning. A union partner with no resolvable
	// parent of their own is not the head of a bloodline; they stay in the
	// forest only as a spouse of the retained partner. When neither partner
	// is parent-traceable the husband keeps the root slot.
	for _, u := range unions {
		husband, wife := nodes[u.HusbandID], nodes[u.WifeID]
		if husband == nil || wife == nil {
			continue
		}
		husband.Spouses = append(husband.Spouses, wife.Person)
		wife.Spouses = append(wife.Spouses, husband.Person)

		switch {
		case placed[wife.Person.ID] && !placed[husband.Person.ID]:
			delete(rootSet, husband.Person.ID)
		case !placed[wife.Person.ID]:
			delete(rootSet, wife.Person.ID)
		}
	}

	var roots []*Node
	for _, p := range persons {
		if rootSet[p.ID] {
			roots = append(roots, nodes[p.ID])
		}
	}

	// Generations and the flat projection come from one preorder walk. The
	// visited set both deduplicates persons reachable twice and guards
	// against parent cycles surviving in the children links.
	visited := make(map[uuid.UUID]bool)
	var flat []FlatPerson
	var walk func(n *Node, generation int)
	walk = func(n *Node, generation int) {
		if visited[n.Person.ID] {
			return
		}
		visited[n.Person.ID] = true
		n.Generation = generation
		flat = append(flat, FlatPerson{Person: n.Person, Generation: generation})
		for _, child := range n.Children {
			walk(child, generation+1)
		}
	}
	for _, root := range roots {
		walk(root, 1)
	}

	// Unreachable persons (orphans behind dangling ids, pruned spouses,
	// mutual-parent knots) still surface in the flat list.
	for _, p := range persons {
		if !visited[p.ID] {
			flat = append(flat, FlatPerson{Person: p, Generation: GenerationUnknown})
		}
	}

	result := Result{Roots: roots, Flat: flat}
	switch len(roots) {
	case 0:
	case 1:
		result.Root = roots[0]
	default:
		result.Root = &Node{
			Person:     model.Person{Name: VirtualRootName},
			Generation: GenerationUnknown,
			Children:   roots,
		}
	}
	return result, nil
}

func resolveParent(nodes map[uuid.UUID]*Node, p model.Person) (*Node, bool) {
	if p.FatherID.IsSet && p.FatherID.Val != p.ID {
		if parent, ok := nodes[p.FatherID.Val]; ok {
			return parent, true
		}
	}
	if p.MotherID.IsSet && p.MotherID.Val != p.ID {
		if parent, ok := nodes[p.MotherID.Val]; ok {
			return parent, true
		}
	}
	return nil, false
}
