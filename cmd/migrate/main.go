package main

import (
	"context"
	"flag"
	"log"

	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/auth"
	"academics/internal/config"
	"academics/internal/ledger"
	"academics/internal/principal"
	"academics/internal/store"
)

var defaultSubjects = []string{"Mathematics", "Physics", "Chemistry", "English", "Computer Science"}

func main() {
	down := flag.Bool("down", false, "revert every migration instead of applying them")
	seed := flag.Bool("seed", false, "ensure the super admin and default subjects exist")
	flag.Parse()

	cfg := config.Load()
	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if *down {
		if err := store.MigrateDown(db); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("all migrations reverted")
		return
	}
	if err := store.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations applied")

	if *seed {
		if err := seedData(context.Background(), cfg, db); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}
}

func seedData(ctx context.Context, cfg config.App, db *store.DB) error {
	clock := abtime.NewRealTime()
	principals := principal.NewService(db, auth.NewHasher(cfg.BcryptCost), clock, cfg.Location())
	created, err := principals.EnsureSuperAdmin(ctx, principal.SuperAdminSeed{
		ID:    cfg.SeedSuperAdminID,
		Name:  cfg.SeedSuperAdminName,
		Email: cfg.SeedSuperAdminEmail,
		DOB:   cfg.SeedSuperAdminDOB,
	})
	if err != nil {
		return err
	}
	log.Printf("super admin %s (created=%t)", cfg.SeedSuperAdminID, created)

	records := ledger.NewService(db, clock, cfg.Location(), nil)
	for _, name := range defaultSubjects {
		_, err := records.CreateSubject(ctx, principal.System, name)
		switch {
		case err == nil:
			log.Printf("subject %q created", name)
		case apperr.Is(err, apperr.AlreadyExists):
		default:
			return err
		}
	}
	return nil
}
