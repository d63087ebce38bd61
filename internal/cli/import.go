package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"quiz-window-service/internal/app"
	"quiz-window-service/internal/config"
	"quiz-window-service/internal/infra/postgres"
)

// NewImportCmd copies quizzes from the Postgres catalog into the live store.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import [quiz-id...]",
		Short: "Import quizzes from the Postgres catalog (all when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cfg, args)
		},
	}
}

func runImport(ctx context.Context, cfg config.Config, ids []string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr not configured; an in-memory import would not outlive this command")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := cfg.Logger()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service := app.NewQuizService(store).WithLogger(logger)
	imported, err := service.ImportQuizzes(ctx, postgres.NewCatalog(pool), ids)
	if err != nil {
		return err
	}
	logger.WithField("quizzes", imported).Infof("imported %d quizzes", len(imported))
	return nil
}
