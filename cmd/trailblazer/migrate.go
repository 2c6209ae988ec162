package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"trailblazer_ai/internal/storage"
	"trailblazer_ai/internal/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate")
		}
		utils.NewLogger("migrate").Info("Schema up to date", "driver", cfg.Database.Driver)
		return nil
	},
}

func openDB() (*storage.DB, error) {
	if cfg.Database.URL == "" {
		return nil, eris.New("DATABASE_URL is not set")
	}
	db, err := storage.NewDB(storage.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, eris.Wrap(err, "connect database")
	}
	return db, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
