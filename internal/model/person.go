package model

import (
	"time"

	"github.com/google/uuid"

	"giapha/internal/util"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

func (g Gender) String() string {
	return string(g)
}

// Person is one node of the genealogy graph. Parent links form a forest;
// they are not guaranteed acyclic by construction, so every walk over them
// carries a cycle guard.
type Person struct {
	ID                uuid.UUID                `json:"id"`
	Name              string                   `json:"name"`
	Nickname          string                   `json:"nickname,omitempty"`
	Gender            Gender                   `json:"gender"`
	BirthDate         string                   `json:"birthDate,omitempty"`
	DeathDate         string                   `json:"deathDate,omitempty"`
	LunarBirthDate    string                   `json:"lunarBirthDate,omitempty"`
	LunarDeathDate    string                   `json:"lunarDeathDate,omitempty"`
	IsDeceased        bool                     `json:"isDeceased"`
	FatherID          util.Optional[uuid.UUID] `json:"fatherId"`
	MotherID          util.Optional[uuid.UUID] `json:"motherId"`
	Biography         string                   `json:"biography,omitempty"`
	Achievements      string                   `json:"achievements,omitempty"`
	CurrentAddress    string                   `json:"currentAddress,omitempty"`
	BurialPlace       string                   `json:"burialPlace,omitempty"`
	ProfilePictureURL string                   `json:"profilePictureUrl,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// Deceased reports whether the person should be rendered as deceased.
// A recorded death date implies it even when the flag was never set.
func (p Person) Deceased() bool {
	return p.IsDeceased || p.DeathDate != "" || p.LunarDeathDate != ""
}

// Contact holds the restricted contact fields. They live in a privileged
// collection keyed by person id, never on the public Person record.
type Contact struct {
	PersonalEmail string `json:"personalEmail,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Facebook      string `json:"facebook,omitempty"`
}

type PrivateContact struct {
	PersonID  uuid.UUID `json:"personId"`
	Contact   Contact   `json:"contact"`
	UpdatedAt time.Time `json:"updatedAt"`
}
