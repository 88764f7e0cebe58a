package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mosaic/config"
	"github.com/mohammad-safakhou/mosaic/internal/store"
)

// backfillCMD marks a batch of concepts mastered, for importing
// progress from before the graph existed. Replaying the same list is
// a no-op: mastered nodes keep their original timestamp.
func backfillCMD() *cobra.Command {
	var cfgPath, at string
	var backfill = &cobra.Command{
		Use:   "backfill [concept ...]",
		Short: "Mark concepts mastered in bulk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			masteredAt := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				masteredAt = parsed
			}

			ctx := context.Background()
			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer st.DB.Close()

			n, err := st.BulkBackfill(ctx, args, masteredAt)
			if err != nil {
				return err
			}
			fmt.Printf("backfilled %d of %d concepts\n", n, len(args))
			return nil
		},
	}
	backfill.Flags().StringVar(&at, "at", "", "mastered_at timestamp (RFC3339, default now)")
	backfill.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return backfill
}
