package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"childcare-enrollment/middleware"
	"childcare-enrollment/models"
	"childcare-enrollment/services"
	"childcare-enrollment/testutil"
	"childcare-enrollment/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const testGatewayToken = "gw-secret"

type ApplicationHandlerTestSuite struct {
	suite.Suite
	db   *gorm.DB
	app  *fiber.App
	inst *models.Institution
}

func TestApplicationHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(ApplicationHandlerTestSuite))
}

func (s *ApplicationHandlerTestSuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	files := utils.NewLocalFileStore(filepath.Join(s.T().TempDir(), "uploads"))
	waitlist := services.NewWaitlistService(s.db)
	applications := services.NewApplicationService(s.db, waitlist, files, services.LogNotifier{})

	s.app = fiber.New()
	s.app.Use(middleware.GatewayAuthMiddleware(testGatewayToken))
	SetupApplicationRoutes(s.app, applications, waitlist)

	s.inst = testutil.Institution(s.T(), s.db, "Sunflower Daycare")
}

func (s *ApplicationHandlerTestSuite) do(method, path, roles string, body any) (*http.Response, map[string]any) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+testGatewayToken)
	if roles != "" {
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func (s *ApplicationHandlerTestSuite) TestGatewayTokenRequired() {
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func (s *ApplicationHandlerTestSuite) TestRoles() {
	resp, _ := s.do(http.MethodGet, "/applications", "", nil)
	s.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/applications", "citizen", nil)
	s.Equal(fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/applications", "Reviewer", nil)
	s.Equal(fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/admin/institutions/"+s.inst.ID+"/waitlist/reconcile", "reviewer", nil)
	s.Equal(fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/admin/institutions/"+s.inst.ID+"/waitlist/reconcile", "admin", nil)
	s.Equal(fiber.StatusOK, resp.StatusCode)
}

func (s *ApplicationHandlerTestSuite) TestSubmitJSON() {
	resp, body := s.do(http.MethodPost, "/applications", "", map[string]any{
		"institution_id":  s.inst.ID,
		"applicant_name":  "Ana Petrova",
		"applicant_email": "ana@example.org",
		"participants": []map[string]any{
			{"national_id": "P-1", "name": "Ana Petrova", "is_parent": true},
			{"national_id": "C-1", "name": "Mila Petrova"},
		},
	})
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	s.NotEmpty(body["case_number"])

	resp, body = s.do(http.MethodPost, "/applications", "", map[string]any{
		"institution_id": s.inst.ID,
		"participants":   []map[string]any{},
	})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Contains(body["error"], "invalid application")
}

func (s *ApplicationHandlerTestSuite) TestSubmitMultipart() {
	payload, err := json.Marshal(map[string]any{
		"institution_id":  s.inst.ID,
		"applicant_name":  "Ana Petrova",
		"applicant_email": "ana@example.org",
		"participants":    []map[string]any{{"national_id": "C-1", "name": "Mila"}},
	})
	s.Require().NoError(err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	s.Require().NoError(mw.WriteField("payload", string(payload)))
	fw, err := mw.CreateFormFile("attachments[0]", "birth certificate.pdf")
	s.Require().NoError(err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/applications", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", testGatewayToken)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)

	var created models.Application
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&created))
	s.Require().Len(created.Attachments, 1)
	s.Contains(created.Attachments[0], "birth-certificate.pdf")

	_, body := s.do(http.MethodGet, "/applications/"+created.ID+"/attachments", "reviewer", nil)
	s.Len(body["attachments"], 1)
}

func (s *ApplicationHandlerTestSuite) TestUpdateStatusAndWaitlist() {
	app := testutil.Application(s.T(), s.db, s.inst.ID,
		testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)),
		testutil.Child("C2", models.StatusWaitlisted, testutil.IntPtr(2)),
		testutil.Child("C3", models.StatusWaitlisted, testutil.IntPtr(3)),
	)

	resp, body := s.do(http.MethodPatch, "/applications/"+app.ID+"/participants/C2/status", "reviewer",
		map[string]any{"status": "Admitted", "reason": "place available"})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.EqualValues(1, body["shifted"])

	resp, body = s.do(http.MethodGet, "/institutions/"+s.inst.ID+"/waitlist", "reviewer", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	entries, ok := body["waitlist"].([]any)
	s.Require().True(ok)
	s.Require().Len(entries, 2)
	first := entries[0].(map[string]any)
	second := entries[1].(map[string]any)
	s.Equal("C1", first["national_id"])
	s.EqualValues(1, first["current_order"])
	s.Equal("C3", second["national_id"])
	s.EqualValues(2, second["current_order"])
}

func (s *ApplicationHandlerTestSuite) TestUpdateStatusErrors() {
	app := testutil.Application(s.T(), s.db, s.inst.ID, testutil.Child("C1", models.StatusUnderReview, nil))

	resp, _ := s.do(http.MethodPatch, "/applications/"+app.ID+"/participants/NOPE/status", "reviewer",
		map[string]any{"status": "admitted"})
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodPatch, "/applications/"+app.ID+"/participants/C1/status", "reviewer",
		map[string]any{"status": ""})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodPatch, "/applications/"+app.ID+"/participants/C1/status", "reviewer",
		map[string]any{"status": "admitted", "class_id": "not-a-uuid"})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/institutions/missing/waitlist", "reviewer", nil)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *ApplicationHandlerTestSuite) TestUpdateCaseReportsSkippedFields() {
	app := testutil.Application(s.T(), s.db, s.inst.ID, testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)))

	resp, body := s.do(http.MethodPut, "/applications/"+app.ID+"/case", "reviewer", map[string]any{
		"participants": []map[string]any{
			{"national_id": "C1", "status": "withdrawn", "review_date": "not a date"},
		},
	})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.EqualValues(1, body["updated"])
	s.Len(body["skipped_fields"], 1)
	s.Nil(testutil.Participant(s.T(), s.db, app.ID, "C1").CurrentOrder)
}

func (s *ApplicationHandlerTestSuite) TestDeleteIsAdminOnly() {
	app := testutil.Application(s.T(), s.db, s.inst.ID, testutil.Child("C1", models.StatusWaitlisted, testutil.IntPtr(1)))

	resp, _ := s.do(http.MethodDelete, "/applications/"+app.ID, "reviewer", nil)
	s.Equal(fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(http.MethodDelete, "/applications/"+app.ID, "admin", nil)
	s.Equal(fiber.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/applications/"+app.ID, "admin", nil)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}
