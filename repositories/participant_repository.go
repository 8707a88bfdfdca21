package repositories

import (
	"context"
	"time"

	"childcare-enrollment/models"

	"gorm.io/gorm"
)

// ParticipantRepository reads and writes application_participants rows.
type ParticipantRepository struct {
	DB *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: db}
}

// WithTx returns a copy bound to tx.
func (r *ParticipantRepository) WithTx(tx *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: tx}
}

// StatusUpdate carries the columns written by a status transition. When
// SetOrder is false current_order is left out of the UPDATE entirely.
type StatusUpdate struct {
	Status       string
	Reason       *string
	ReviewDate   *time.Time
	CurrentOrder *int
	SetOrder     bool
}

// FindByNationalID returns the row keyed by (applicationID, nationalID).
func (r *ParticipantRepository) FindByNationalID(ctx context.Context, applicationID, nationalID string) (*models.ApplicationParticipant, error) {
	var p models.ApplicationParticipant
	err := r.DB.WithContext(ctx).
		Where("application_id = ? AND national_id = ?", applicationID, nationalID).
		Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindByApplication lists parents first, then children, in filing order.
func (r *ParticipantRepository) FindByApplication(ctx context.Context, applicationID string) ([]models.ApplicationParticipant, error) {
	var out []models.ApplicationParticipant
	err := r.DB.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("is_parent DESC").Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *ParticipantRepository) Create(ctx context.Context, p *models.ApplicationParticipant) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

// UpdateDetails rewrites the descriptive columns of a participant.
func (r *ParticipantRepository) UpdateDetails(ctx context.Context, id, name string, birthDate *time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.ApplicationParticipant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "birth_date": birthDate})
	return res.RowsAffected, res.Error
}

// UpdateStatus writes status, reason, review date and optionally current_order
// in one statement.
func (r *ParticipantRepository) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (int64, error) {
	cols := map[string]interface{}{
		"status":      u.Status,
		"reason":      u.Reason,
		"review_date": u.ReviewDate,
	}
	if u.SetOrder {
		cols["current_order"] = u.CurrentOrder
	}
	res := r.DB.WithContext(ctx).Model(&models.ApplicationParticipant{}).
		Where("id = ?", id).
		Updates(cols)
	return res.RowsAffected, res.Error
}

func (r *ParticipantRepository) UpdateClass(ctx context.Context, id string, classID *string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.ApplicationParticipant{}).
		Where("id = ?", id).
		Update("class_id", classID)
	return res.RowsAffected, res.Error
}

func (r *ParticipantRepository) DeleteByApplication(ctx context.Context, applicationID string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Delete(&models.ApplicationParticipant{})
	return res.RowsAffected, res.Error
}
