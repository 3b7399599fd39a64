package model

import (
	"time"

	"github.com/google/uuid"
)

// Story is a member-visible news/chronicle entry published by an admin or a
// member with publishing rights.
type Story struct {
	ID            uuid.UUID `json:"id"`
	AuthorID      uuid.UUID `json:"authorId"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
