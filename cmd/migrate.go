package cmd

import (
	"context"
	"fmt"

	"cityfix-be/config"
	"cityfix-be/repository"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the MongoDB indexes and backfill derived fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg)
			if cfg.MongoURI == "" {
				return fmt.Errorf("please define MONGODB_URI or DB_USER, DB_PASS and DB_HOST")
			}

			ctx := cmd.Context()
			client, db, err := config.ConnectDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Disconnect(context.Background()) }()

			if err := repository.EnsureIndexes(ctx, db); err != nil {
				return err
			}
			logger.Info("indexes are up to date", "database", cfg.DBName)

			backfilled, err := repository.BackfillPriorityRank(ctx, db)
			if err != nil {
				return err
			}
			logger.Info("issue priority ranks are up to date", "backfilled", backfilled)
			return nil
		},
	}
}
