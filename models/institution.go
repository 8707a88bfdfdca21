package models

import (
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Institution is a childcare provider. Each institution owns exactly one
// admission waitlist.
type Institution struct {
	ID         string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalID *string `gorm:"uniqueIndex;type:varchar(64)" json:"external_id,omitempty"` // municipal registry id
	Name       string  `gorm:"not null" json:"name"`
	Slug       string  `gorm:"index" json:"slug"`
	Address    string  `json:"address,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
	Capacity   int     `gorm:"default:0" json:"capacity"`

	Classes []Class `gorm:"foreignKey:InstitutionID" json:"classes,omitempty"`

	Timestamps
}

func (i *Institution) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	if i.Slug == "" {
		i.Slug = slug.Make(i.Name)
	}
	return nil
}

// Class is a section inside an institution that admitted children are placed in.
type Class struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InstitutionID string `gorm:"not null;index;type:varchar(36)" json:"institution_id"`
	Name          string `gorm:"not null" json:"name"`
	AgeGroup      string `json:"age_group,omitempty"` // e.g. "2-3"
	Capacity      int    `gorm:"default:0" json:"capacity"`

	Timestamps
}

func (c *Class) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
