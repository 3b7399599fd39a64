package model

import (
	"time"

	"github.com/google/uuid"
)

// Union is a recognized marriage/partnership record. The field names encode
// the gender role; a person may appear in any number of unions (remarriage),
// so spouse lookups must handle zero, one or many.
type Union struct {
	ID        uuid.UUID `json:"id"`
	HusbandID uuid.UUID `json:"husbandId"`
	WifeID    uuid.UUID `json:"wifeId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Partner returns the other side of the union, if personID is part of it.
func (u Union) Partner(personID uuid.UUID) (uuid.UUID, bool) {
	switch personID {
	case u.HusbandID:
		return u.WifeID, true
	case u.WifeID:
		return u.HusbandID, true
	default:
		return uuid.Nil, false
	}
}
