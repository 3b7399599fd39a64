package relation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giapha/internal/model"
	"giapha/internal/relation"
	"giapha/internal/util"
)

// family builds three generations: grandfather > father+mother > me, brother,
// plus an unrelated stranger and a wife married to me.
type family struct {
	grandfather model.Person
	father      model.Person
	mother      model.Person
	me          model.Person
	brother     model.Person
	wife        model.Person
	stranger    model.Person

	persons []model.Person
	unions  []model.Union
}

func newFamily() family {
	f := family{
		grandfather: model.Person{ID: uuid.New(), Name: "grandfather", Gender: model.GenderMale},
		mother:      model.Person{ID: uuid.New(), Name: "mother", Gender: model.GenderFemale},
		wife:        model.Person{ID: uuid.New(), Name: "wife", Gender: model.GenderFemale},
		stranger:    model.Person{ID: uuid.New(), Name: "stranger", Gender: model.GenderMale},
	}
	f.father = model.Person{
		ID: uuid.New(), Name: "father", Gender: model.GenderMale,
		FatherID: util.Some(f.grandfather.ID),
	}
	f.me = model.Person{
		ID: uuid.New(), Name: "me", Gender: model.GenderMale,
		FatherID: util.Some(f.father.ID),
		MotherID: util.Some(f.mother.ID),
	}
	f.brother = model.Person{
		ID: uuid.New(), Name: "brother", Gender: model.GenderMale,
		FatherID: util.Some(f.father.ID),
		MotherID: util.Some(f.mother.ID),
	}
	f.persons = []model.Person{f.grandfather, f.father, f.mother, f.me, f.brother, f.wife, f.stranger}
	f.unions = []model.Union{
		{ID: uuid.New(), HusbandID: f.me.ID, WifeID: f.wife.ID},
	}
	return f
}

func TestGraph_Ancestors(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)

	ancestors := g.Ancestors(f.me.ID)
	assert.True(t, ancestors[f.me.ID], "start id is included")
	assert.True(t, ancestors[f.father.ID])
	assert.True(t, ancestors[f.mother.ID])
	assert.True(t, ancestors[f.grandfather.ID])
	assert.False(t, ancestors[f.brother.ID])
	assert.False(t, ancestors[f.stranger.ID])
}

func TestGraph_AncestorsTerminatesOnCycle(t *testing.T) {
	a := model.Person{ID: uuid.New(), Name: "a"}
	b := model.Person{ID: uuid.New(), Name: "b"}
	a.FatherID = util.Some(b.ID)
	b.FatherID = util.Some(a.ID)

	g := relation.NewGraph([]model.Person{a, b}, nil)
	ancestors := g.Ancestors(a.ID)
	assert.True(t, ancestors[a.ID])
	assert.True(t, ancestors[b.ID])
}

func TestGraph_Descendants(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)

	descendants := g.Descendants(f.grandfather.ID)
	assert.True(t, descendants[f.father.ID])
	assert.True(t, descendants[f.me.ID])
	assert.True(t, descendants[f.brother.ID])
	assert.False(t, descendants[f.mother.ID])
	assert.False(t, descendants[f.wife.ID])
}

func TestGraph_SiblingsAreSymmetricAndDeduplicated(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)

	mySiblings := g.Siblings(f.me.ID)
	require.Len(t, mySiblings, 1, "full sibling appears once despite sharing both parents")
	assert.Equal(t, f.brother.ID, mySiblings[0].ID)

	brotherSiblings := g.Siblings(f.brother.ID)
	require.Len(t, brotherSiblings, 1)
	assert.Equal(t, f.me.ID, brotherSiblings[0].ID)
}

func TestGraph_SiblingsOfUnknownPerson(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)
	assert.Nil(t, g.Siblings(uuid.New()))
}

func TestGraph_Spouses(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)

	spouses := g.Spouses(f.me.ID)
	require.Len(t, spouses, 1)
	assert.Equal(t, f.wife.ID, spouses[0].ID)

	spouses = g.Spouses(f.wife.ID)
	require.Len(t, spouses, 1)
	assert.Equal(t, f.me.ID, spouses[0].ID)

	assert.Empty(t, g.Spouses(f.stranger.ID))
}

func TestGraph_SpousesHandlesRemarriage(t *testing.T) {
	p := model.Person{ID: uuid.New(), Gender: model.GenderMale}
	first := model.Person{ID: uuid.New(), Gender: model.GenderFemale}
	second := model.Person{ID: uuid.New(), Gender: model.GenderFemale}

	g := relation.NewGraph([]model.Person{p, first, second}, []model.Union{
		{ID: uuid.New(), HusbandID: p.ID, WifeID: first.ID},
		{ID: uuid.New(), HusbandID: p.ID, WifeID: second.ID},
	})
	assert.Len(t, g.Spouses(p.ID), 2)
}

func TestGraph_IsDirectLine(t *testing.T) {
	f := newFamily()
	g := relation.NewGraph(f.persons, f.unions)

	assert.True(t, g.IsDirectLine(f.me.ID, f.grandfather.ID), "ancestor")
	assert.True(t, g.IsDirectLine(f.grandfather.ID, f.me.ID), "descendant")
	assert.False(t, g.IsDirectLine(f.me.ID, f.brother.ID), "sibling is not direct line")
	assert.False(t, g.IsDirectLine(f.me.ID, f.wife.ID), "spouse is not direct line")
}
