// Command seed loads a development dataset: a root admin account and a small
// three-generation family, so the tree renders something immediately.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"giapha/internal/config"
	"giapha/internal/model"
	"giapha/internal/store"
	"giapha/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Database.Enabled {
		log.Fatal("Seeding requires DB_ENABLED=true; the in-memory store does not persist")
	}

	ctx := context.Background()
	st, err := store.NewPostgres(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed(ctx, st); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	log.Println("Seed data created")
}

func seed(ctx context.Context, st store.Store) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("Admin!Passw0rd"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now()
	patriarch := model.Person{
		ID: uuid.New(), Name: "Nguyễn Văn Tổ", Gender: model.GenderMale,
		BirthDate: "1920", DeathDate: "1998", IsDeceased: true,
		CreatedAt: now, UpdatedAt: now,
	}
	matriarch := model.Person{
		ID: uuid.New(), Name: "Trần Thị Hiền", Gender: model.GenderFemale,
		BirthDate: "1925", IsDeceased: true,
		CreatedAt: now, UpdatedAt: now,
	}
	son := model.Person{
		ID: uuid.New(), Name: "Nguyễn Văn Hai", Gender: model.GenderMale,
		BirthDate: "1950",
		FatherID:  util.Some(patriarch.ID), MotherID: util.Some(matriarch.ID),
		CreatedAt: now, UpdatedAt: now,
	}
	daughter := model.Person{
		ID: uuid.New(), Name: "Nguyễn Thị Ba", Gender: model.GenderFemale,
		BirthDate: "1953",
		FatherID:  util.Some(patriarch.ID), MotherID: util.Some(matriarch.ID),
		CreatedAt: now, UpdatedAt: now,
	}
	grandchild := model.Person{
		ID: uuid.New(), Name: "Nguyễn Văn Tư", Gender: model.GenderMale,
		BirthDate: "1980",
		FatherID:  util.Some(son.ID),
		CreatedAt: now, UpdatedAt: now,
	}

	admin := model.Account{
		ID:           uuid.New(),
		Email:        "admin@giapha.local",
		DisplayName:  "Root Admin",
		PasswordHash: string(passwordHash),
		Role:         model.RoleRootAdmin,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	return st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, p := range []model.Person{patriarch, matriarch, son, daughter, grandchild} {
			if err := tx.CreatePerson(ctx, p); err != nil {
				return err
			}
		}
		if err := tx.CreateUnion(ctx, model.Union{
			ID: uuid.New(), HusbandID: patriarch.ID, WifeID: matriarch.ID, CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.CreateAccount(ctx, admin)
	})
}
