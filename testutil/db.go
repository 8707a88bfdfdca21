// Package testutil provides database and fixture helpers for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"childcare-enrollment/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated SQLite database in a temp dir. One open
// connection, like the sqlite setup in main.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "enrollment.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Institution{},
		&models.Class{},
		&models.Application{},
		&models.ApplicationParticipant{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// IntPtr returns &n.
func IntPtr(n int) *int { return &n }

// StrPtr returns &s.
func StrPtr(s string) *string { return &s }

// Institution inserts an institution.
func Institution(t testing.TB, db *gorm.DB, name string) *models.Institution {
	t.Helper()
	inst := &models.Institution{Name: name, Capacity: 40}
	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("create institution: %v", err)
	}
	return inst
}

// Class inserts a class into an institution.
func Class(t testing.TB, db *gorm.DB, institutionID, name string) *models.Class {
	t.Helper()
	c := &models.Class{InstitutionID: institutionID, Name: name, AgeGroup: "2-3", Capacity: 15}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create class: %v", err)
	}
	return c
}

// Child builds a child row.
func Child(nationalID, status string, order *int) models.ApplicationParticipant {
	return models.ApplicationParticipant{
		NationalID:   nationalID,
		Name:         "Child " + nationalID,
		Status:       status,
		CurrentOrder: order,
	}
}

// Parent builds a parent row.
func Parent(nationalID string) models.ApplicationParticipant {
	return models.ApplicationParticipant{
		NationalID: nationalID,
		Name:       "Parent " + nationalID,
		IsParent:   true,
		Status:     models.StatusUnderReview,
	}
}

// Application inserts an application with the given participants.
func Application(t testing.TB, db *gorm.DB, institutionID string, participants ...models.ApplicationParticipant) *models.Application {
	t.Helper()
	app := &models.Application{
		InstitutionID:  institutionID,
		CaseNumber:     "CC" + time.Now().Format("20060102") + "-" + uuid.NewString()[:8],
		ApplicantName:  "Applicant",
		ApplicantEmail: "applicant@example.org",
		Participants:   participants,
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

// Participant reloads a participant row.
func Participant(t testing.TB, db *gorm.DB, applicationID, nationalID string) models.ApplicationParticipant {
	t.Helper()
	var p models.ApplicationParticipant
	if err := db.Where("application_id = ? AND national_id = ?", applicationID, nationalID).Take(&p).Error; err != nil {
		t.Fatalf("load participant %s/%s: %v", applicationID, nationalID, err)
	}
	return p
}
