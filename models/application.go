package models

import (
	"time"

	"gorm.io/gorm"
)

// Application is one citizen submission for childcare placement at a single
// institution. It owns the parent and child rows filed with it.
type Application struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InstitutionID  string `gorm:"not null;index;type:varchar(36)" json:"institution_id"`
	CaseNumber     string `gorm:"uniqueIndex;not null;type:varchar(32)" json:"case_number"`
	ApplicantName  string `gorm:"not null" json:"applicant_name"`
	ApplicantEmail string `gorm:"not null" json:"applicant_email"`
	ApplicantPhone string `json:"applicant_phone,omitempty"`
	Address        string `json:"address,omitempty"`

	Institution  *Institution             `gorm:"foreignKey:InstitutionID" json:"institution,omitempty"`
	Participants []ApplicationParticipant `gorm:"foreignKey:ApplicationID" json:"participants,omitempty"`

	// Calculated fields (not stored in DB)
	Attachments []string `gorm:"-" json:"attachments,omitempty"`

	Timestamps
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// ApplicationParticipant is a parent or child row attached to an application.
// CurrentOrder is the 1-based waitlist position and is only ever set on child
// rows in StatusWaitlisted.
type ApplicationParticipant struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ApplicationID string     `gorm:"not null;type:varchar(36);uniqueIndex:idx_participant_application_national" json:"application_id"`
	NationalID    string     `gorm:"not null;type:varchar(32);uniqueIndex:idx_participant_application_national" json:"national_id"`
	Name          string     `gorm:"not null" json:"name"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	IsParent      bool       `gorm:"not null;default:false" json:"is_parent"`

	// Workflow
	Status     string     `gorm:"not null;index;type:varchar(64)" json:"status"`
	Reason     *string    `json:"reason,omitempty"`
	ReviewDate *time.Time `json:"review_date,omitempty"`
	ClassID    *string    `gorm:"type:varchar(36)" json:"class_id,omitempty"`

	CurrentOrder *int `gorm:"index" json:"current_order,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *ApplicationParticipant) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsChild reports whether the row may hold a waitlist position.
func (p *ApplicationParticipant) IsChild() bool {
	return !p.IsParent
}
