package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// Participant statuses. Status is stored as free text; these are the values
// the review workflow recognizes.
const (
	StatusUnderReview           = "under review"
	StatusNeedsDocuments        = "needs documents"
	StatusWaitlisted            = "waitlisted"
	StatusAdmitted              = "admitted"
	StatusRejected              = "rejected"
	StatusWithdrawn             = "withdrawn"
	StatusRevocationUnderReview = "revocation under review"
	StatusRevoked               = "revoked"
)

// NormalizeStatus trims and case-folds a status so "Waitlisted " and
// "waitlisted" land on the same queue.
func NormalizeStatus(status string) string {
	return cases.Fold().String(strings.Join(strings.Fields(status), " "))
}
