package cmd

import (
	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-integrations/migrations"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("up", migrations.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Run: func(_ *cobra.Command, _ []string) {
		runMigration("down", func(m *migrate.Migrate) error {
			return migrations.Down(m, migrateSteps)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
}

func runMigration(direction string, fn func(m *migrate.Migrate) error) {
	cfg := mustLoadConfig()
	db := mustOpenDB(cfg)

	m, err := migrations.New(db)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logrus.WithField("source_error", srcErr).WithField("db_error", dbErr).Warn("Failed to close migrator")
		}
	}()

	if err := fn(m); err != nil {
		logrus.WithError(err).WithField("direction", direction).Fatal("Migration failed")
	}

	version, dirty, err := m.Version()
	entry := logrus.WithField("direction", direction).WithField("dirty", dirty)
	if err == nil {
		entry = entry.WithField("version", version)
	}
	entry.Info("migration_completed")
}
