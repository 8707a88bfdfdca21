package repositories

import (
	"context"
	"database/sql"
	"time"

	"childcare-enrollment/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WaitlistRepository holds the queries over the waitlisted child rows of one
// institution. Callers mutating positions must hold LockInstitution inside the
// same transaction.
type WaitlistRepository struct {
	DB *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) *WaitlistRepository {
	return &WaitlistRepository{DB: db}
}

func (r *WaitlistRepository) WithTx(tx *gorm.DB) *WaitlistRepository {
	return &WaitlistRepository{DB: tx}
}

// WaitlistEntry is one row of an institution's queue.
type WaitlistEntry struct {
	ParticipantID string    `json:"participant_id"`
	ApplicationID string    `json:"application_id"`
	CaseNumber    string    `json:"case_number"`
	NationalID    string    `json:"national_id"`
	Name          string    `json:"name"`
	CurrentOrder  *int      `json:"current_order"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// waitlisted scopes a participant query to the waitlisted children of one institution.
func (r *WaitlistRepository) waitlisted(institutionID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		apps := r.DB.Session(&gorm.Session{NewDB: true}).
			Model(&models.Application{}).
			Select("id").
			Where("institution_id = ?", institutionID)
		return db.
			Where("application_participants.status = ? AND application_participants.is_parent = ?", models.StatusWaitlisted, false).
			Where("application_participants.application_id IN (?)", apps)
	}
}

// LockInstitution takes a row lock on the institution, serializing every
// writer of its queue until the surrounding transaction ends. Drivers without
// row locks (SQLite) drop the FOR UPDATE clause.
func (r *WaitlistRepository) LockInstitution(ctx context.Context, institutionID string) error {
	var inst models.Institution
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", institutionID).
		Take(&inst).Error
	return notFound(err)
}

// MaxCurrentOrder returns the highest assigned position, or nil for an empty queue.
func (r *WaitlistRepository) MaxCurrentOrder(ctx context.Context, institutionID string) (*int, error) {
	var highest sql.NullInt64
	err := r.DB.WithContext(ctx).
		Model(&models.ApplicationParticipant{}).
		Scopes(r.waitlisted(institutionID)).
		Select("MAX(application_participants.current_order)").
		Row().Scan(&highest)
	if err != nil {
		return nil, err
	}
	if !highest.Valid {
		return nil, nil
	}
	n := int(highest.Int64)
	return &n, nil
}

// DecrementOrdersAbove closes the gap left by threshold.
func (r *WaitlistRepository) DecrementOrdersAbove(ctx context.Context, institutionID string, threshold int) (int64, error) {
	res := r.DB.WithContext(ctx).
		Model(&models.ApplicationParticipant{}).
		Scopes(r.waitlisted(institutionID)).
		Where("application_participants.current_order > ?", threshold).
		Update("current_order", gorm.Expr("current_order - 1"))
	return res.RowsAffected, res.Error
}

// Entries lists the queue in position order. Rows with no position sort last.
func (r *WaitlistRepository) Entries(ctx context.Context, institutionID string) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	err := r.DB.WithContext(ctx).
		Model(&models.ApplicationParticipant{}).
		Scopes(r.waitlisted(institutionID)).
		Joins("JOIN applications ON applications.id = application_participants.application_id").
		Select(`application_participants.id AS participant_id,
			application_participants.application_id,
			applications.case_number,
			application_participants.national_id,
			application_participants.name,
			application_participants.current_order,
			application_participants.updated_at`).
		Order("CASE WHEN application_participants.current_order IS NULL THEN 1 ELSE 0 END").
		Order("application_participants.current_order ASC").
		Order("application_participants.updated_at ASC").
		Scan(&out).Error
	return out, err
}

// SetOrder writes a position directly. Only used by reconciliation.
func (r *WaitlistRepository) SetOrder(ctx context.Context, participantID string, order *int) error {
	return r.DB.WithContext(ctx).
		Model(&models.ApplicationParticipant{}).
		Where("id = ?", participantID).
		Update("current_order", order).Error
}

// ClearStrayOrders nulls positions on rows of the institution that are not
// waitlisted children.
func (r *WaitlistRepository) ClearStrayOrders(ctx context.Context, institutionID string) (int64, error) {
	apps := r.DB.Session(&gorm.Session{NewDB: true}).
		Model(&models.Application{}).
		Select("id").
		Where("institution_id = ?", institutionID)
	res := r.DB.WithContext(ctx).
		Model(&models.ApplicationParticipant{}).
		Where("application_id IN (?)", apps).
		Where("current_order IS NOT NULL").
		Where("(status <> ? OR is_parent = ?)", models.StatusWaitlisted, true).
		Update("current_order", nil)
	return res.RowsAffected, res.Error
}

// InstitutionIDs lists every institution, for the periodic reconcile job.
func (r *WaitlistRepository) InstitutionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&models.Institution{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}
