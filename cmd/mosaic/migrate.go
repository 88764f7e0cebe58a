package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mosaic/config"
	srv "github.com/mohammad-safakhou/mosaic/internal/server"
)

func migrateCMD() *cobra.Command {
	var cfgPath, dir, direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			return srv.Migrate(dir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVar(&dir, "dir", "file://migrations", "migration source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
