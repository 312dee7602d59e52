package main

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"

	"github.com/shakil5281/HrHub-sub001/internal/app"
	"github.com/shakil5281/HrHub-sub001/internal/platform/db"
	"github.com/shakil5281/HrHub-sub001/internal/rbac"
)

//go:embed roles.yaml
var defaultManifest []byte

// seedEnv holds the seeder's own settings on top of app.Config.
type seedEnv struct {
	ManifestPath string `envconfig:"SEED_MANIFEST"`
}

// loadManifest returns the manifest at SEED_MANIFEST, or the embedded one when unset.
func loadManifest() (Manifest, error) {
	var env seedEnv
	if err := envconfig.Process("", &env); err != nil {
		return Manifest{}, err
	}
	if env.ManifestPath == "" {
		return ParseManifest(defaultManifest)
	}
	data, err := os.ReadFile(env.ManifestPath)
	if err != nil {
		return Manifest{}, err
	}
	return ParseManifest(data)
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	manifest, err := loadManifest()
	if err != nil {
		logger.Error("load manifest", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := rbac.NewRepository(pool, cfg.StoreTimeout)
	rbacCfg := rbac.Config{StoreTimeout: cfg.StoreTimeout, Logger: logger}
	if _, err := SeedCatalog(ctx, rbac.NewCatalogService(repo, rbacCfg), logger); err != nil {
		logger.Error("seed catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if err := SeedRoles(ctx, rbac.NewRoleStore(repo, rbacCfg), manifest, logger); err != nil {
		logger.Error("seed roles", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seedUsers(ctx, pool, manifest.Users); err != nil {
		logger.Error("seed users", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete", slog.String("at", time.Now().Format(time.RFC3339)))
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, users []UserSeed) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, u := range users {
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, email, name, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, TRUE, NOW(), NOW())
				ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()`,
				u.ID, u.Email, u.Name)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, u.ID); err != nil {
				return err
			}
			for _, role := range u.Roles {
				if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, upper($2))`, u.ID, role); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
