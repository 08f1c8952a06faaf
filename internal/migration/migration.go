package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/events"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns, for dialects migrated by gorm.
func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&orgdomain.OrgUser{},
		&plandomain.Plan{},
		&usagedomain.UsageRecord{},
		&assetdomain.Company{},
		&assetdomain.Device{},
		&assetdomain.Part{},
		&assetdomain.AMC{},
		&assetdomain.AMCContract{},
		&assetdomain.AMCDeviceAssignment{},
		&assetdomain.ServiceHistory{},
		&events.DomainEvent{},
	}
}

// Run applies the embedded SQL on postgres. Other dialects are local or test
// setups and get gorm AutoMigrate instead.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunPostgres(sqlDB)
}

func RunPostgres(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.
	return nil
}
