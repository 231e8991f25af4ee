package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"usage-projection/internal/store"
)

var importDB string

var importCmd = &cobra.Command{
	Use:   "import <rows.jsonl>...",
	Short: "Upsert JSONL feature rows into the SQLite feature store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := importDB
		if path == "" {
			path = cfg.DatabasePath
		}
		if path == "" {
			return errors.New("no database: pass --db or set DATABASE_PATH")
		}

		staged := store.NewPopulationStore()
		for _, file := range args {
			if _, err := os.Stat(file); err != nil {
				return err
			}
			if err := staged.Load(file); err != nil {
				return err
			}
		}
		rows, err := staged.Population(ctx)
		if err != nil {
			return err
		}

		db, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Import(ctx, rows)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows into %s\n", n, path)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDB, "db", "", "SQLite database path (defaults to DATABASE_PATH)")
}
