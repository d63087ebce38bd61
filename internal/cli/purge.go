package cli

import (
	"github.com/spf13/cobra"
	"quiz-window-service/internal/app"
	"quiz-window-service/internal/config"
)

// NewPurgeCmd runs a single retention pass and exits.
func NewPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete responses older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			if cfg.Redis.Addr == "" {
				logger.Warn("no redis configured; nothing to purge")
				return nil
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			job := app.NewPurgeJob(store,
				config.Duration(cfg.Purge.Interval, app.DefaultPurgeInterval),
				config.Duration(cfg.Purge.Retention, app.DefaultPurgeRetention)).WithLogger(logger)
			deleted, err := job.PurgeOnce(cmd.Context())
			logger.WithField("deleted", deleted).Info("purge finished")
			return err
		},
	}
}
