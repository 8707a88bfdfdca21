package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"childcare-enrollment/models"
	"childcare-enrollment/repositories"
	"childcare-enrollment/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

// ApplicationService runs submission, review and case queries. All queue
// changes go through WaitlistService.
type ApplicationService struct {
	DB           *gorm.DB
	Waitlist     *WaitlistService
	Applications *repositories.ApplicationRepository
	Participants *repositories.ParticipantRepository
	Files        utils.FileStore
	Notifier     Notifier
	Clock        utils.Clock

	validate *validator.Validate
}

func NewApplicationService(db *gorm.DB, waitlist *WaitlistService, files utils.FileStore, notifier Notifier) *ApplicationService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ApplicationService{
		DB:           db,
		Waitlist:     waitlist,
		Applications: repositories.NewApplicationRepository(db),
		Participants: repositories.NewParticipantRepository(db),
		Files:        files,
		Notifier:     notifier,
		Clock:        utils.SystemClock{},
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// --- Submission ---

type ParticipantInput struct {
	NationalID string     `json:"national_id" validate:"required,max=32"`
	Name       string     `json:"name" validate:"required,max=128"`
	IsParent   bool       `json:"is_parent"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
}

type AttachmentInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type SubmitApplicationInput struct {
	InstitutionID  string             `json:"institution_id" validate:"required,uuid"`
	ApplicantName  string             `json:"applicant_name" validate:"required,max=128"`
	ApplicantEmail string             `json:"applicant_email" validate:"required,email"`
	ApplicantPhone string             `json:"applicant_phone,omitempty" validate:"omitempty,max=32"`
	Address        string             `json:"address,omitempty"`
	Participants   []ParticipantInput `json:"participants" validate:"required,min=1,dive"`
	Attachments    []AttachmentInput  `json:"-" validate:"-"`
}

// SubmitApplication files a new application. Every participant starts in
// "under review" without a waitlist position.
func (s *ApplicationService) SubmitApplication(ctx context.Context, in SubmitApplicationInput) (*models.Application, error) {
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidApplication, err)
	}

	seen := make(map[string]bool, len(in.Participants))
	children := 0
	for _, p := range in.Participants {
		id := strings.TrimSpace(p.NationalID)
		if seen[id] {
			return nil, fmt.Errorf("%w: national_id %s listed twice", ErrInvalidApplication, id)
		}
		seen[id] = true
		if !p.IsParent {
			children++
		}
	}
	if children == 0 {
		return nil, fmt.Errorf("%w: at least one child is required", ErrInvalidApplication)
	}

	ok, err := s.Applications.InstitutionExists(ctx, in.InstitutionID)
	if err != nil {
		return nil, persistence("check institution", err)
	}
	if !ok {
		return nil, ErrInstitutionNotFound
	}

	now := s.Clock.Now()
	app := &models.Application{
		ID:             uuid.NewString(),
		InstitutionID:  in.InstitutionID,
		CaseNumber:     newCaseNumber(now),
		ApplicantName:  strings.TrimSpace(in.ApplicantName),
		ApplicantEmail: strings.TrimSpace(in.ApplicantEmail),
		ApplicantPhone: strings.TrimSpace(in.ApplicantPhone),
		Address:        strings.TrimSpace(in.Address),
	}
	for _, p := range in.Participants {
		app.Participants = append(app.Participants, models.ApplicationParticipant{
			NationalID: strings.TrimSpace(p.NationalID),
			Name:       strings.TrimSpace(p.Name),
			IsParent:   p.IsParent,
			BirthDate:  p.BirthDate,
			Status:     models.StatusUnderReview,
		})
	}

	// Files first: a failed upload leaves no application behind.
	for _, a := range in.Attachments {
		name, err := s.Files.Save(ctx, app.ID, a.Filename, a.ContentType, a.Body)
		if err != nil {
			s.discardFiles(ctx, app.ID)
			return nil, fmt.Errorf("failed to store attachment %q: %w", a.Filename, err)
		}
		app.Attachments = append(app.Attachments, name)
	}

	if err := s.Applications.Create(ctx, app); err != nil {
		s.discardFiles(ctx, app.ID)
		return nil, persistence("create application", err)
	}

	log.Printf("[APPLICATION] ✅ Submitted case %s (%s) for institution %s with %d participant(s), %d attachment(s)",
		app.CaseNumber, app.ID, app.InstitutionID, len(app.Participants), len(app.Attachments))
	return app, nil
}

func newCaseNumber(now time.Time) string {
	return fmt.Sprintf("CC%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

func (s *ApplicationService) discardFiles(ctx context.Context, applicationID string) {
	if err := s.Files.DeleteAll(ctx, applicationID); err != nil {
		log.Printf("[APPLICATION] ⚠️ Failed to clean up attachments of %s: %v", applicationID, err)
	}
}

// --- Status updates ---

type UpdateStatusInput struct {
	TransitionInput
	Notify bool
}

// UpdateParticipantStatus changes one participant's status and, when asked,
// mails the applicant. Mail failures are logged and never returned.
func (s *ApplicationService) UpdateParticipantStatus(ctx context.Context, in UpdateStatusInput) (*TransitionResult, error) {
	res, err := s.Waitlist.TransitionStatus(ctx, in.TransitionInput)
	if err != nil {
		return nil, err
	}
	if in.Notify {
		s.notifyStatusChange(ctx, in.ApplicationID, &res.Participant)
	}
	return res, nil
}

func (s *ApplicationService) notifyStatusChange(ctx context.Context, applicationID string, p *models.ApplicationParticipant) {
	app, err := s.Applications.Get(ctx, applicationID)
	if err != nil {
		log.Printf("[MAIL] ❌ Cannot load application %s for status mail: %v", applicationID, err)
		return
	}

	mail := StatusChangeEmail{
		To:              app.ApplicantEmail,
		ApplicantName:   app.ApplicantName,
		CaseNumber:      app.CaseNumber,
		ApplicationDate: app.CreatedAt,
		Status:          p.Status,
		CurrentOrder:    p.CurrentOrder,
	}
	if app.Institution != nil {
		mail.InstitutionName = app.Institution.Name
	}
	if p.IsChild() {
		mail.ChildName = p.Name
	}
	if p.Reason != nil {
		mail.Reason = *p.Reason
	}

	if err := s.Notifier.SendStatusChange(ctx, mail); err != nil {
		log.Printf("[MAIL] ❌ Status mail for case %s to %s failed: %v", app.CaseNumber, app.ApplicantEmail, err)
		return
	}
	log.Printf("[MAIL] ✅ Status mail queued for case %s (%q)", app.CaseNumber, p.Status)
}

// --- Batch case update ---

// CaseParticipantInput is one row of a full case update. Dates and ids arrive
// as raw strings; malformed ones are skipped and reported, not fatal.
type CaseParticipantInput struct {
	NationalID string  `json:"national_id"`
	Name       string  `json:"name"`
	IsParent   bool    `json:"is_parent"`
	Status     string  `json:"status"`
	Reason     *string `json:"reason,omitempty"`
	ReviewDate string  `json:"review_date,omitempty"` // RFC3339 or 2006-01-02
	BirthDate  string  `json:"birth_date,omitempty"`  // 2006-01-02
	ClassID    *string `json:"class_id,omitempty"`    // "" clears
}

type CaseUpdateInput struct {
	ApplicantName  *string                `json:"applicant_name,omitempty"`
	ApplicantEmail *string                `json:"applicant_email,omitempty"`
	ApplicantPhone *string                `json:"applicant_phone,omitempty"`
	Address        *string                `json:"address,omitempty"`
	Participants   []CaseParticipantInput `json:"participants"`
}

type CaseUpdateResult struct {
	Created      int                             `json:"created"`
	Updated      int                             `json:"updated"`
	Participants []models.ApplicationParticipant `json:"participants"`
	Skipped      error                           `json:"-"`
}

// SkippedFields lists the rejected fields as messages.
func (r *CaseUpdateResult) SkippedFields() []string {
	var merr *multierror.Error
	if !errors.As(r.Skipped, &merr) {
		return nil
	}
	out := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, e.Error())
	}
	return out
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// UpdateApplicationCase upserts the participant list of an application in one
// transaction. New national ids are added; listed ones are updated; rows not
// listed are left alone. Status changes go through the same transition as
// TransitionStatus, so a child leaving the waitlist here backfills the queue.
func (s *ApplicationService) UpdateApplicationCase(ctx context.Context, applicationID string, in CaseUpdateInput) (*CaseUpdateResult, error) {
	institutionID, err := s.Applications.GetInstitutionID(ctx, applicationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, persistence("resolve institution", err)
	}

	var skipped *multierror.Error
	var res *CaseUpdateResult
	err = s.Waitlist.withInstitution(ctx, institutionID, func(tx *gorm.DB) error {
		// Reset on retry.
		skipped = nil
		res = &CaseUpdateResult{}
		participants := s.Participants.WithTx(tx)
		apps := s.Applications.WithTx(tx)

		if err := s.updateApplicant(ctx, tx, applicationID, in); err != nil {
			return err
		}

		for i, cp := range in.Participants {
			nationalID := strings.TrimSpace(cp.NationalID)
			if nationalID == "" {
				skipped = multierror.Append(skipped, fmt.Errorf("participants[%d]: national_id is required, row skipped", i))
				continue
			}

			var reviewDate *time.Time
			if cp.ReviewDate != "" {
				if t, err := parseDate(cp.ReviewDate); err != nil {
					skipped = multierror.Append(skipped, fmt.Errorf("participants[%d].review_date: %q is not a date", i, cp.ReviewDate))
				} else {
					reviewDate = &t
				}
			}
			var birthDate *time.Time
			if cp.BirthDate != "" {
				if t, err := parseDate(cp.BirthDate); err != nil {
					skipped = multierror.Append(skipped, fmt.Errorf("participants[%d].birth_date: %q is not a date", i, cp.BirthDate))
				} else {
					birthDate = &t
				}
			}
			classID := cp.ClassID
			if classID != nil && *classID != "" {
				if _, err := uuid.Parse(*classID); err != nil {
					skipped = multierror.Append(skipped, fmt.Errorf("participants[%d].class_id: %q is not a UUID", i, *classID))
					classID = nil
				} else if ok, err := apps.ClassBelongsTo(ctx, *classID, institutionID); err != nil {
					return persistence("check class", err)
				} else if !ok {
					skipped = multierror.Append(skipped, fmt.Errorf("participants[%d].class_id: %s is not a class of this institution", i, *classID))
					classID = nil
				}
			}

			p, err := participants.FindByNationalID(ctx, applicationID, nationalID)
			switch {
			case errors.Is(err, repositories.ErrNotFound):
				name := strings.TrimSpace(cp.Name)
				if name == "" {
					skipped = multierror.Append(skipped, fmt.Errorf("participants[%d]: name is required for a new participant, row skipped", i))
					continue
				}
				p = &models.ApplicationParticipant{
					ApplicationID: applicationID,
					NationalID:    nationalID,
					Name:          name,
					IsParent:      cp.IsParent,
					BirthDate:     birthDate,
					Status:        models.StatusUnderReview,
				}
				if err := participants.Create(ctx, p); err != nil {
					return persistence("create participant", err)
				}
				res.Created++
			case err != nil:
				return persistence("find participant", err)
			default:
				name := strings.TrimSpace(cp.Name)
				if name == "" {
					name = p.Name
				}
				if birthDate == nil {
					birthDate = p.BirthDate
				}
				if _, err := participants.UpdateDetails(ctx, p.ID, name, birthDate); err != nil {
					return persistence("update participant", err)
				}
				res.Updated++
			}

			status := cp.Status
			if models.NormalizeStatus(status) == "" {
				status = p.Status
			}
			reason := cp.Reason
			if reason == nil {
				reason = p.Reason
			}
			if reviewDate == nil {
				reviewDate = p.ReviewDate
			}
			if _, err := s.Waitlist.transition(ctx, tx, institutionID, p, TransitionInput{
				ApplicationID: applicationID,
				NationalID:    nationalID,
				Status:        status,
				Reason:        reason,
				ReviewDate:    reviewDate,
				ClassID:       classID,
			}); err != nil {
				return err
			}
		}

		list, err := participants.FindByApplication(ctx, applicationID)
		if err != nil {
			return persistence("reload participants", err)
		}
		res.Participants = list
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Skipped = skipped.ErrorOrNil()
	if res.Skipped != nil {
		log.Printf("[APPLICATION] ⚠️ Case update of %s skipped fields: %v", applicationID, res.Skipped)
	}
	log.Printf("[APPLICATION] ✅ Case %s updated (%d created, %d updated)", applicationID, res.Created, res.Updated)
	return res, nil
}

func (s *ApplicationService) updateApplicant(ctx context.Context, tx *gorm.DB, applicationID string, in CaseUpdateInput) error {
	cols := map[string]interface{}{}
	if in.ApplicantName != nil && strings.TrimSpace(*in.ApplicantName) != "" {
		cols["applicant_name"] = strings.TrimSpace(*in.ApplicantName)
	}
	if in.ApplicantEmail != nil && strings.TrimSpace(*in.ApplicantEmail) != "" {
		cols["applicant_email"] = strings.TrimSpace(*in.ApplicantEmail)
	}
	if in.ApplicantPhone != nil {
		cols["applicant_phone"] = strings.TrimSpace(*in.ApplicantPhone)
	}
	if in.Address != nil {
		cols["address"] = strings.TrimSpace(*in.Address)
	}
	if len(cols) == 0 {
		return nil
	}
	err := tx.WithContext(ctx).Model(&models.Application{}).Where("id = ?", applicationID).Updates(cols).Error
	return persistence("update applicant", err)
}

// --- Queries ---

// GetCase loads one application with its participants and attachment names.
func (s *ApplicationService) GetCase(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := s.Applications.Get(ctx, applicationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, persistence("load application", err)
	}
	names, err := s.Files.List(ctx, applicationID)
	if err != nil {
		log.Printf("[APPLICATION] ⚠️ Failed to list attachments of %s: %v", applicationID, err)
	} else {
		app.Attachments = names
	}
	return app, nil
}

func (s *ApplicationService) ListCases(ctx context.Context, f repositories.CaseFilter) ([]models.Application, error) {
	if f.Status != "" {
		f.Status = models.NormalizeStatus(f.Status)
	}
	apps, err := s.Applications.List(ctx, f)
	if err != nil {
		return nil, persistence("list applications", err)
	}
	return apps, nil
}

func (s *ApplicationService) ListAttachments(ctx context.Context, applicationID string) ([]string, error) {
	if _, err := s.Applications.GetInstitutionID(ctx, applicationID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, persistence("load application", err)
	}
	return s.Files.List(ctx, applicationID)
}

// DeleteApplication withdraws the application's children from the queue,
// removes its participants and soft-deletes it. Attachments go last.
func (s *ApplicationService) DeleteApplication(ctx context.Context, applicationID string) error {
	institutionID, err := s.Applications.GetInstitutionID(ctx, applicationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrApplicationNotFound
	}
	if err != nil {
		return persistence("resolve institution", err)
	}

	err = s.Waitlist.withInstitution(ctx, institutionID, func(tx *gorm.DB) error {
		participants := s.Participants.WithTx(tx)
		list, err := participants.FindByApplication(ctx, applicationID)
		if err != nil {
			return persistence("load participants", err)
		}
		if err := s.Waitlist.leaveQueue(ctx, tx, institutionID, list); err != nil {
			return err
		}
		if _, err := participants.DeleteByApplication(ctx, applicationID); err != nil {
			return persistence("delete participants", err)
		}
		if _, err := s.Applications.WithTx(tx).SoftDelete(ctx, applicationID); err != nil {
			return persistence("delete application", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.discardFiles(ctx, applicationID)
	log.Printf("[APPLICATION] 🗑️ Deleted application %s", applicationID)
	return nil
}
