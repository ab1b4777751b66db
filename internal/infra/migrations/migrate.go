package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/incident-outbox/internal/repository"
	"gorm.io/gorm"
)

// Migrate creates the pending submission table. The statements are portable
// between SQLite and PostgreSQL.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_pending_submissions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.SubmissionModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SubmissionModel{})
			},
		},
		{
			ID: "000002_index_pending_submissions_form_type",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_pending_submissions_form_type ON pending_submissions (form_type)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_pending_submissions_form_type`).Error
			},
		},
	})

	return m.Migrate()
}
