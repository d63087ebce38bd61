package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"quiz-window-service/internal/app"
	"quiz-window-service/internal/config"
	"quiz-window-service/internal/domain"
	"quiz-window-service/internal/infra/memory"
	redisstore "quiz-window-service/internal/infra/redis"
	transport "quiz-window-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "load a sample quiz at startup")
	return cmd
}

// openStore picks Redis when an address is configured, otherwise an in-process store.
func openStore(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (app.Store, error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis not configured; using in-memory store")
		return memory.NewStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return redisstore.NewStore(client), nil
}

func runServer(ctx context.Context, configPath, portFlag string, seed bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	logger := cfg.Logger()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service := app.NewQuizService(store).WithLogger(logger)
	if seed {
		imported, err := service.ImportQuizzes(ctx, memory.NewStaticCatalog(sampleQuizzes()), nil)
		if err != nil {
			return err
		}
		logger.WithField("quizzes", imported).Info("seeded sample quizzes")
	}

	runCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	var purgeDone <-chan struct{}
	if cfg.PurgeEnabled() {
		job := app.NewPurgeJob(store,
			config.Duration(cfg.Purge.Interval, app.DefaultPurgeInterval),
			config.Duration(cfg.Purge.Retention, app.DefaultPurgeRetention)).WithLogger(logger)
		purgeDone = job.Start(runCtx)
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Infof("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	stopJobs()
	if purgeDone != nil {
		<-purgeDone
	}
	return err
}

// sampleQuizzes is the quiz loaded by --seed.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			ID: "demo",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", CorrectAnswer: "4", Options: []string{"3", "4", "5"}},
				{ID: "q2", Text: "Capital of France?", CorrectAnswer: "Paris", Options: []string{"Lyon", "Paris", "Nice"}},
			},
		},
	}
}
