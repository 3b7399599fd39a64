package relation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"giapha/internal/model"
	"giapha/internal/relation"
	"giapha/internal/util"
)

func TestCanDirectlyEdit(t *testing.T) {
	f := newFamily()
	member := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	admin := model.Account{ID: uuid.New(), Role: model.RoleAdmin, Status: model.AccountStatusActive}

	byID := map[uuid.UUID]model.Person{}
	for _, p := range f.persons {
		byID[p.ID] = p
	}

	tests := []struct {
		name    string
		account model.Account
		actor   model.Person
		target  model.Person
		allowed bool
	}{
		{"admin_edits_anyone", admin, f.stranger, f.grandfather, true},
		{"self", member, f.me, f.me, true},
		{"child_edits_parent", member, f.me, f.father, true},
		{"parent_edits_child", member, f.father, f.me, true},
		{"spouse_edits_spouse", member, f.me, f.wife, true},
		{"spouse_edits_spouse_reverse", member, f.wife, f.me, true},
		{"sibling_edits_sibling", member, f.me, f.brother, true},
		{"grandchild_denied", member, f.me, f.grandfather, false},
		{"stranger_denied", member, f.stranger, f.me, false},
		{"in_law_denied", member, f.wife, f.father, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relation.CanDirectlyEdit(tt.account, tt.actor, tt.target, f.unions)
			assert.Equal(t, tt.allowed, got)
		})
	}
}

func TestCanDirectlyEdit_HalfSiblings(t *testing.T) {
	father := model.Person{ID: uuid.New(), Gender: model.GenderMale}
	a := model.Person{ID: uuid.New(), FatherID: util.Some(father.ID), MotherID: util.Some(uuid.New())}
	b := model.Person{ID: uuid.New(), FatherID: util.Some(father.ID), MotherID: util.Some(uuid.New())}

	member := model.Account{ID: uuid.New(), Role: model.RoleMember, Status: model.AccountStatusActive}
	assert.True(t, relation.CanDirectlyEdit(member, a, b, nil), "shared father is enough")
}
