package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"childcare-enrollment/models"
	"childcare-enrollment/repositories"
	"childcare-enrollment/utils"

	"gorm.io/gorm"
)

const defaultMaxAttempts = 3

// WaitlistService keeps each institution's queue of waitlisted children
// numbered 1..k with no gaps. Every read-modify-write of a queue runs inside
// one transaction holding the institution's row lock, and within this process
// behind a per-institution mutex.
type WaitlistService struct {
	DB           *gorm.DB
	Participants *repositories.ParticipantRepository
	Applications *repositories.ApplicationRepository
	Waitlist     *repositories.WaitlistRepository
	Clock        utils.Clock
	MaxAttempts  int

	locks institutionLocks
}

func NewWaitlistService(db *gorm.DB) *WaitlistService {
	return &WaitlistService{
		DB:           db,
		Participants: repositories.NewParticipantRepository(db),
		Applications: repositories.NewApplicationRepository(db),
		Waitlist:     repositories.NewWaitlistRepository(db),
		Clock:        utils.SystemClock{},
		MaxAttempts:  defaultMaxAttempts,
	}
}

// TransitionInput is a status change for the participant keyed by
// (ApplicationID, NationalID).
type TransitionInput struct {
	ApplicationID string
	NationalID    string
	Status        string
	Reason        *string
	ReviewDate    *time.Time // defaults to now
	ClassID       *string    // nil leaves the class alone, "" clears it
}

// TransitionResult describes what a transition changed.
type TransitionResult struct {
	Participant    models.ApplicationParticipant `json:"participant"`
	InstitutionID  string                        `json:"institution_id"`
	PreviousStatus string                        `json:"previous_status"`
	PreviousOrder  *int                          `json:"previous_order,omitempty"`
	Shifted        int64                         `json:"shifted"` // queue rows moved up by the backfill
}

// ReconcileResult reports the repairs made to one queue.
type ReconcileResult struct {
	InstitutionID string `json:"institution_id"`
	Waitlisted    int    `json:"waitlisted"`
	Renumbered    int    `json:"renumbered"`
	Cleared       int64  `json:"cleared"`
}

type institutionLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *institutionLocks) lock(institutionID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[institutionID]
	if !ok {
		m = &sync.Mutex{}
		l.m[institutionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *WaitlistService) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

// withInstitution runs fn in a transaction that holds the institution's queue.
// Lock and serialization failures are retried from the top; when attempts run
// out the caller gets ErrOrderingConflict.
func (s *WaitlistService) withInstitution(ctx context.Context, institutionID string, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.lock(institutionID)
	defer unlock()

	var err error
	for attempt := 1; attempt <= s.maxAttempts(); attempt++ {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.Waitlist.WithTx(tx).LockInstitution(ctx, institutionID); err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return ErrInstitutionNotFound
				}
				return persistence("lock institution queue", err)
			}
			return fn(tx)
		})
		if err == nil || !repositories.IsRetryable(err) {
			return err
		}

		log.Printf("[WAITLIST] ⚠️ Conflict on institution %s (attempt %d/%d): %v", institutionID, attempt, s.maxAttempts(), err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 20 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %w", ErrOrderingConflict, err)
}

// TransitionStatus changes a participant's status and keeps the institution's
// queue dense:
//   - a child entering "waitlisted" gets MAX(position)+1, or 1 for an empty queue;
//   - a child leaving "waitlisted" gives up its position and every later
//     position moves up by one;
//   - a child already holding a position that is waitlisted again keeps it;
//   - parent rows never get a position.
//
// An unknown (ApplicationID, NationalID) pair changes nothing and returns
// ErrApplicationNotFound or ErrParticipantNotFound.
func (s *WaitlistService) TransitionStatus(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	if models.NormalizeStatus(in.Status) == "" {
		return nil, ErrInvalidStatus
	}
	if in.ReviewDate == nil {
		now := s.Clock.Now()
		in.ReviewDate = &now
	}

	institutionID, err := s.Applications.GetInstitutionID(ctx, in.ApplicationID)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Printf("[WAITLIST] Application %s not found, status update for %s ignored", in.ApplicationID, in.NationalID)
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, persistence("resolve institution", err)
	}

	var res *TransitionResult
	err = s.withInstitution(ctx, institutionID, func(tx *gorm.DB) error {
		p, err := s.Participants.WithTx(tx).FindByNationalID(ctx, in.ApplicationID, in.NationalID)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrParticipantNotFound
		}
		if err != nil {
			return persistence("find participant", err)
		}
		res, err = s.transition(ctx, tx, institutionID, p, in)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			log.Printf("[WAITLIST] Participant %s/%s not found, status update ignored", in.ApplicationID, in.NationalID)
		}
		return nil, err
	}

	log.Printf("[WAITLIST] ✅ %s/%s: %q → %q (order %s → %s, shifted %d)",
		in.ApplicationID, in.NationalID, res.PreviousStatus, res.Participant.Status,
		fmtOrder(res.PreviousOrder), fmtOrder(res.Participant.CurrentOrder), res.Shifted)
	return res, nil
}

// transition applies one status change to p. The caller must be inside
// withInstitution for institutionID.
func (s *WaitlistService) transition(ctx context.Context, tx *gorm.DB, institutionID string, p *models.ApplicationParticipant, in TransitionInput) (*TransitionResult, error) {
	participants := s.Participants.WithTx(tx)
	queue := s.Waitlist.WithTx(tx)

	status := models.NormalizeStatus(in.Status)
	res := &TransitionResult{
		InstitutionID:  institutionID,
		PreviousStatus: p.Status,
		PreviousOrder:  p.CurrentOrder,
	}
	update := repositories.StatusUpdate{
		Status:     status,
		Reason:     in.Reason,
		ReviewDate: in.ReviewDate,
	}

	if p.IsChild() {
		update.SetOrder = true
		wasWaitlisted := models.NormalizeStatus(p.Status) == models.StatusWaitlisted

		switch {
		case status == models.StatusWaitlisted && wasWaitlisted && p.CurrentOrder != nil:
			update.CurrentOrder = p.CurrentOrder

		case status == models.StatusWaitlisted:
			highest, err := queue.MaxCurrentOrder(ctx, institutionID)
			if err != nil {
				return nil, persistence("read max waitlist order", err)
			}
			next := 1
			if highest != nil {
				next = *highest + 1
			}
			update.CurrentOrder = &next

		case wasWaitlisted && p.CurrentOrder != nil:
			shifted, err := queue.DecrementOrdersAbove(ctx, institutionID, *p.CurrentOrder)
			if err != nil {
				return nil, persistence("backfill waitlist", err)
			}
			res.Shifted = shifted
			update.CurrentOrder = nil

		default:
			update.CurrentOrder = nil
		}
	}

	if _, err := participants.UpdateStatus(ctx, p.ID, update); err != nil {
		return nil, persistence("update participant status", err)
	}

	if in.ClassID != nil {
		classID := in.ClassID
		if *classID == "" {
			classID = nil
		} else {
			ok, err := s.Applications.WithTx(tx).ClassBelongsTo(ctx, *classID, institutionID)
			if err != nil {
				return nil, persistence("check class", err)
			}
			if !ok {
				return nil, ErrClassNotFound
			}
		}
		if _, err := participants.UpdateClass(ctx, p.ID, classID); err != nil {
			return nil, persistence("update participant class", err)
		}
	}

	updated, err := participants.FindByNationalID(ctx, p.ApplicationID, p.NationalID)
	if err != nil {
		return nil, persistence("reload participant", err)
	}
	res.Participant = *updated
	return res, nil
}

// leaveQueue withdraws every positioned child in ps, highest position first so
// each backfill threshold is still accurate when it runs.
func (s *WaitlistService) leaveQueue(ctx context.Context, tx *gorm.DB, institutionID string, ps []models.ApplicationParticipant) error {
	var queued []models.ApplicationParticipant
	for _, p := range ps {
		if p.IsChild() && p.CurrentOrder != nil && models.NormalizeStatus(p.Status) == models.StatusWaitlisted {
			queued = append(queued, p)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return *queued[i].CurrentOrder > *queued[j].CurrentOrder })

	now := s.Clock.Now()
	for i := range queued {
		_, err := s.transition(ctx, tx, institutionID, &queued[i], TransitionInput{
			ApplicationID: queued[i].ApplicationID,
			NationalID:    queued[i].NationalID,
			Status:        models.StatusWithdrawn,
			Reason:        queued[i].Reason,
			ReviewDate:    &now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Entries returns an institution's queue in position order.
func (s *WaitlistService) Entries(ctx context.Context, institutionID string) ([]repositories.WaitlistEntry, error) {
	ok, err := s.Applications.InstitutionExists(ctx, institutionID)
	if err != nil {
		return nil, persistence("check institution", err)
	}
	if !ok {
		return nil, ErrInstitutionNotFound
	}
	entries, err := s.Waitlist.Entries(ctx, institutionID)
	if err != nil {
		return nil, persistence("list waitlist", err)
	}
	return entries, nil
}

// Reconcile renumbers an institution's queue to 1..k, keeping the existing
// relative order (ties and missing positions go by last update), and clears
// positions on rows that are not waitlisted children.
func (s *WaitlistService) Reconcile(ctx context.Context, institutionID string) (*ReconcileResult, error) {
	res := &ReconcileResult{InstitutionID: institutionID}
	err := s.withInstitution(ctx, institutionID, func(tx *gorm.DB) error {
		queue := s.Waitlist.WithTx(tx)

		entries, err := queue.Entries(ctx, institutionID)
		if err != nil {
			return persistence("list waitlist", err)
		}
		res.Waitlisted = len(entries)
		res.Renumbered = 0

		for i, e := range entries {
			want := i + 1
			if e.CurrentOrder != nil && *e.CurrentOrder == want {
				continue
			}
			if err := queue.SetOrder(ctx, e.ParticipantID, &want); err != nil {
				return persistence("renumber waitlist", err)
			}
			res.Renumbered++
		}

		res.Cleared, err = queue.ClearStrayOrders(ctx, institutionID)
		if err != nil {
			return persistence("clear stray orders", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Renumbered > 0 || res.Cleared > 0 {
		log.Printf("[WAITLIST] 🔧 Reconciled institution %s: %d waitlisted, %d renumbered, %d cleared",
			institutionID, res.Waitlisted, res.Renumbered, res.Cleared)
	}
	return res, nil
}

// ReconcileAll runs Reconcile for every institution. One failing institution
// does not stop the others.
func (s *WaitlistService) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	ids, err := s.Waitlist.InstitutionIDs(ctx)
	if err != nil {
		return nil, persistence("list institutions", err)
	}
	out := make([]ReconcileResult, 0, len(ids))
	var failed int
	for _, id := range ids {
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			failed++
			log.Printf("[WAITLIST] ❌ Reconcile failed for institution %s: %v", id, err)
			continue
		}
		out = append(out, *res)
	}
	if failed > 0 {
		return out, fmt.Errorf("reconcile failed for %d of %d institutions", failed, len(ids))
	}
	return out, nil
}

func fmtOrder(o *int) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprint(*o)
}
