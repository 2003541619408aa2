package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-attendance-api/migrations"
	"github.com/noah-isme/campus-attendance-api/pkg/config"
	"github.com/noah-isme/campus-attendance-api/pkg/logger"
	"github.com/noah-isme/campus-attendance-api/pkg/migrate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	var source fs.FS = migrations.FS
	if cfg.Migrations.Dir != "" {
		source = os.DirFS(cfg.Migrations.Dir)
	}
	steps, err := migrate.Load(source)
	if err != nil {
		logr.Fatal("failed to load migrations", zap.Error(err))
	}

	ctx := context.Background()
	migrator, err := migrate.New(ctx, cfg.Database.DSN(), steps, logr)
	if err != nil {
		logr.Fatal("failed to create migrator", zap.Error(err))
	}
	defer migrator.Close(ctx) //nolint:errcheck

	switch command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied")
	case "down":
		if err := migrator.Down(ctx); err != nil {
			logr.Fatal("failed to roll back migration", zap.Error(err))
		}
		logr.Info("migration rolled back")
	case "version", "status":
		version, err := migrator.Version(ctx)
		if err != nil {
			logr.Fatal("failed to read version", zap.Error(err))
		}
		fmt.Printf("current version: %d of %d\n", version, len(steps))
	case "seed":
		seedAdmin(ctx, migrator, cfg.Admin, logr)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func seedAdmin(ctx context.Context, migrator *migrate.Migrator, admin config.AdminSeedConfig, logr *zap.Logger) {
	if admin.Password == "" {
		logr.Fatal("ADMIN_PASSWORD must be set to seed the admin account")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		logr.Fatal("failed to hash admin password", zap.Error(err))
	}
	created, err := migrator.SeedAdmin(ctx, uuid.NewString(), admin.Name, admin.Email, string(hash))
	if err != nil {
		logr.Fatal("failed to seed admin", zap.Error(err))
	}
	if !created {
		logr.Info("admin account already present, nothing seeded")
		return
	}
	logr.Info("admin account seeded", zap.String("email", admin.Email))
}

func printUsage() {
	fmt.Println(`Usage: migrate <command>

Commands:
  up        apply all pending migrations
  down      roll back the latest migration
  version   print the applied schema version
  seed      create the bootstrap admin when no admin exists
  help      show this message`)
}
