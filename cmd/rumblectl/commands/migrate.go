package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/rumble/internal/db"
)

// migrate works on the SQLite file directly rather than through the
// API, so schema repairs are possible while the daemon is down. Do not
// run up or down while rumbled has the database open.
func migrateCmd() *cobra.Command {
	var dbFile string
	var migrationsDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema directly",
	}
	cmd.PersistentFlags().StringVar(&dbFile, "db", "rumble.db", "path to the SQLite database file")
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "migrations", "directory holding the schema migration files")

	withDB := func(fn func(*db.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbFile)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()
			return fn(database)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(database *db.DB) error {
			if err := database.MigrateUp(migrationsDir); err != nil {
				return err
			}
			version, dirty, err := database.MigrateVersion(migrationsDir)
			if err != nil {
				return err
			}
			fmt.Printf("migrated to version %d (dirty: %v)\n", version, dirty)
			return nil
		}),
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withDB(func(database *db.DB) error {
			if err := database.MigrateDown(migrationsDir); err != nil {
				return err
			}
			version, dirty, err := database.MigrateVersion(migrationsDir)
			if err != nil {
				return err
			}
			fmt.Printf("rolled back to version %d (dirty: %v)\n", version, dirty)
			return nil
		}),
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withDB(func(database *db.DB) error {
			version, dirty, err := database.MigrateVersion(migrationsDir)
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %v)\n", version, dirty)
			return nil
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show schema version against the available migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(database *db.DB) error {
			st, err := database.GetMigrationStatus(migrationsDir)
			if err != nil {
				return err
			}
			latest, err := db.GetLatestMigrationVersion(migrationsDir)
			if err != nil {
				return err
			}
			fmt.Printf("current version: %v\n", st["current_version"])
			fmt.Printf("latest version:  %d\n", latest)
			fmt.Printf("dirty:           %v\n", st["dirty"])
			fmt.Printf("version table:   %v\n", st["schema_migrations_exists"])
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Stamp the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad version %q: %v", args[0], err)
			}
			return withDB(func(database *db.DB) error {
				if err := database.MigrateForce(migrationsDir, v); err != nil {
					return err
				}
				fmt.Printf("forced version %d\n", v)
				return nil
			})(cmd, args)
		},
	}

	to := &cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("bad version %q: %v", args[0], err)
			}
			return withDB(func(database *db.DB) error {
				if err := database.MigrateTo(migrationsDir, uint(v)); err != nil {
					return err
				}
				fmt.Printf("migrated to version %d\n", v)
				return nil
			})(cmd, args)
		},
	}

	cmd.AddCommand(up, down, version, status, force, to)
	return cmd
}
