package repositories

import (
	"context"
	"testing"

	"childcare-enrollment/models"
	"childcare-enrollment/testutil"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type WaitlistRepositoryTestSuite struct {
	suite.Suite
	db    *gorm.DB
	repo  *WaitlistRepository
	ctx   context.Context
	inst  *models.Institution
	other *models.Institution
}

func TestWaitlistRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(WaitlistRepositoryTestSuite))
}

func (s *WaitlistRepositoryTestSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.repo = NewWaitlistRepository(s.db)
	s.ctx = context.Background()
	s.inst = testutil.Institution(s.T(), s.db, "Sunflower")
	s.other = testutil.Institution(s.T(), s.db, "Maple")
}

func (s *WaitlistRepositoryTestSuite) TestMaxCurrentOrder() {
	got, err := s.repo.MaxCurrentOrder(s.ctx, s.inst.ID)
	s.Require().NoError(err)
	s.Nil(got)

	testutil.Application(s.T(), s.db, s.inst.ID,
		testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)),
		testutil.Child("C2", models.StatusWaitlisted, testutil.IntPtr(4)),
		testutil.Child("C3", models.StatusAdmitted, testutil.IntPtr(9)),
	)
	testutil.Application(s.T(), s.db, s.other.ID, testutil.Child("B1", models.StatusWaitlisted, testutil.IntPtr(7)))

	got, err = s.repo.MaxCurrentOrder(s.ctx, s.inst.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(4, *got)
}

func (s *WaitlistRepositoryTestSuite) TestDecrementOrdersAboveStaysInInstitution() {
	mine := testutil.Application(s.T(), s.db, s.inst.ID,
		testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)),
		testutil.Child("C2", models.StatusWaitlisted, testutil.IntPtr(2)),
		testutil.Child("C3", models.StatusWaitlisted, testutil.IntPtr(3)),
	)
	theirs := testutil.Application(s.T(), s.db, s.other.ID,
		testutil.Child("B3", models.StatusWaitlisted, testutil.IntPtr(3)),
	)

	n, err := s.repo.DecrementOrdersAbove(s.ctx, s.inst.ID, 1)
	s.Require().NoError(err)
	s.EqualValues(2, n)

	s.Equal(1, *testutil.Participant(s.T(), s.db, mine.ID, "C1").CurrentOrder)
	s.Equal(1, *testutil.Participant(s.T(), s.db, mine.ID, "C2").CurrentOrder)
	s.Equal(2, *testutil.Participant(s.T(), s.db, mine.ID, "C3").CurrentOrder)
	s.Equal(3, *testutil.Participant(s.T(), s.db, theirs.ID, "B3").CurrentOrder)
}

func (s *WaitlistRepositoryTestSuite) TestEntriesSkipsParentsAndDeleted() {
	app := testutil.Application(s.T(), s.db, s.inst.ID,
		testutil.Parent("P1"),
		testutil.Child("C2", models.StatusWaitlisted, testutil.IntPtr(2)),
		testutil.Child("CX", models.StatusWaitlisted, nil),
		testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)),
	)
	deleted := testutil.Application(s.T(), s.db, s.inst.ID, testutil.Child("D1", models.StatusWaitlisted, testutil.IntPtr(3)))
	s.Require().NoError(s.db.Delete(&models.Application{}, "id = ?", deleted.ID).Error)

	entries, err := s.repo.Entries(s.ctx, s.inst.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("C1", entries[0].NationalID)
	s.Equal("C2", entries[1].NationalID)
	s.Equal("CX", entries[2].NationalID)
	s.Nil(entries[2].CurrentOrder)
	s.Equal(app.CaseNumber, entries[0].CaseNumber)
}

func (s *WaitlistRepositoryTestSuite) TestLockInstitution() {
	s.NoError(s.repo.LockInstitution(s.ctx, s.inst.ID))
	s.ErrorIs(s.repo.LockInstitution(s.ctx, "missing"), ErrNotFound)
}

func (s *WaitlistRepositoryTestSuite) TestClearStrayOrders() {
	app := testutil.Application(s.T(), s.db, s.inst.ID,
		testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)),
		testutil.Child("C2", models.StatusRejected, testutil.IntPtr(2)),
	)
	parent := testutil.Parent("P1")
	parent.Status = models.StatusWaitlisted
	parent.CurrentOrder = testutil.IntPtr(3)
	parent.ApplicationID = app.ID
	s.Require().NoError(s.db.Create(&parent).Error)

	n, err := s.repo.ClearStrayOrders(s.ctx, s.inst.ID)
	s.Require().NoError(err)
	s.EqualValues(2, n)
	s.Equal(1, *testutil.Participant(s.T(), s.db, app.ID, "C1").CurrentOrder)
	s.Nil(testutil.Participant(s.T(), s.db, app.ID, "C2").CurrentOrder)
	s.Nil(testutil.Participant(s.T(), s.db, app.ID, "P1").CurrentOrder)
}

func (s *WaitlistRepositoryTestSuite) TestInstitutionIDs() {
	ids, err := s.repo.InstitutionIDs(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.inst.ID, s.other.ID}, ids)
}
