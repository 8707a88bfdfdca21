package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"waitlisted", StatusWaitlisted},
		{"Waitlisted ", StatusWaitlisted},
		{"  WAITLISTED", StatusWaitlisted},
		{"Under   Review", StatusUnderReview},
		{"revocation under review", StatusRevocationUnderReview},
		{"", ""},
		{" \t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.in))
		})
	}
}

func TestParticipantIsChild(t *testing.T) {
	assert.True(t, (&ApplicationParticipant{}).IsChild())
	assert.False(t, (&ApplicationParticipant{IsParent: true}).IsChild())
}

func TestInstitutionBeforeCreate(t *testing.T) {
	inst := &Institution{Name: "Детска градинка Sunflower"}
	assert.NoError(t, inst.BeforeCreate(nil))
	assert.Len(t, inst.ID, 36)
	assert.NotEmpty(t, inst.Slug)

	kept := &Institution{ID: "fixed", Name: "Maple", Slug: "custom"}
	assert.NoError(t, kept.BeforeCreate(nil))
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, "custom", kept.Slug)
}
