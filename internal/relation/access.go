package relation

import (
	"github.com/google/uuid"

	"giapha/internal/model"
	"giapha/internal/util"
)

// CanDirectlyEdit decides whether the actor may mutate the target person
// without going through a proposal: admins always, otherwise self, a parent,
// a child, a spouse via a union, or a sibling sharing a parent. The predicate
// is advisory for UI gating; the person service re-checks it server-side
// before any write.
func CanDirectlyEdit(account model.Account, actor, target model.Person, unions []model.Union) bool {
	if account.Role.IsAdmin() {
		return true
	}
	if actor.ID == target.ID {
		return true
	}
	// Parent of the target, or child of the target.
	if refersTo(target.FatherID, actor) || refersTo(target.MotherID, actor) {
		return true
	}
	if refersTo(actor.FatherID, target) || refersTo(actor.MotherID, target) {
		return true
	}
	for _, u := range unions {
		if partnerID, ok := u.Partner(actor.ID); ok && partnerID == target.ID {
			return true
		}
	}
	return sharesParent(actor, target)
}

func refersTo(parent util.Optional[uuid.UUID], p model.Person) bool {
	return parent.IsSet && parent.Val == p.ID
}
