package repositories

import (
	"context"

	"childcare-enrollment/models"

	"gorm.io/gorm"
)

// ApplicationRepository reads and writes applications.
type ApplicationRepository struct {
	DB *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{DB: db}
}

func (r *ApplicationRepository) WithTx(tx *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{DB: tx}
}

// CaseFilter narrows ListCases. Zero values mean "any".
type CaseFilter struct {
	InstitutionID string
	Status        string
	NationalID    string
	Limit         int
	Offset        int
}

// GetInstitutionID resolves the institution that scopes an application's waitlist.
func (r *ApplicationRepository) GetInstitutionID(ctx context.Context, applicationID string) (string, error) {
	var app models.Application
	err := r.DB.WithContext(ctx).Select("id", "institution_id").
		Where("id = ?", applicationID).
		Take(&app).Error
	if err != nil {
		return "", notFound(err)
	}
	return app.InstitutionID, nil
}

// Get loads an application with its institution and participants.
func (r *ApplicationRepository) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := r.DB.WithContext(ctx).
		Preload("Institution").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_parent DESC").Order("created_at ASC")
		}).
		Where("id = ?", applicationID).
		Take(&app).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// Create inserts the application and its participants.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	return r.DB.WithContext(ctx).Create(app).Error
}

func (r *ApplicationRepository) List(ctx context.Context, f CaseFilter) ([]models.Application, error) {
	q := r.DB.WithContext(ctx).Model(&models.Application{})
	if f.InstitutionID != "" {
		q = q.Where("institution_id = ?", f.InstitutionID)
	}
	if f.Status != "" {
		q = q.Where("EXISTS (SELECT 1 FROM application_participants p WHERE p.application_id = applications.id AND p.status = ?)", f.Status)
	}
	if f.NationalID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM application_participants p WHERE p.application_id = applications.id AND p.national_id = ?)", f.NationalID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var apps []models.Application
	err := q.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("is_parent DESC").Order("created_at ASC")
	}).
		Order("created_at DESC").
		Limit(limit).Offset(f.Offset).
		Find(&apps).Error
	return apps, err
}

// SoftDelete marks the application deleted. Participants are removed separately.
func (r *ApplicationRepository) SoftDelete(ctx context.Context, applicationID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("id = ?", applicationID).Delete(&models.Application{})
	return res.RowsAffected, res.Error
}

// InstitutionExists reports whether the institution row is present.
func (r *ApplicationRepository) InstitutionExists(ctx context.Context, institutionID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Institution{}).Where("id = ?", institutionID).Count(&n).Error
	return n > 0, err
}

// ClassBelongsTo reports whether classID is a class of institutionID.
func (r *ApplicationRepository) ClassBelongsTo(ctx context.Context, classID, institutionID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Class{}).
		Where("id = ? AND institution_id = ?", classID, institutionID).
		Count(&n).Error
	return n > 0, err
}
