package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"childcare-enrollment/middleware"
	"childcare-enrollment/repositories"
	"childcare-enrollment/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const maxAttachments = 10

var validate = validator.New(validator.WithRequiredStructEnabled())

type ApplicationHandler struct {
	Applications *services.ApplicationService
	Waitlist     *services.WaitlistService
}

// StatusUpdateRequest is the body of PATCH .../participants/:national_id/status.
type StatusUpdateRequest struct {
	Status     string     `json:"status" validate:"required,max=64"`
	Reason     *string    `json:"reason,omitempty" validate:"omitempty,max=1000"`
	ReviewDate *time.Time `json:"review_date,omitempty"`
	ClassID    *string    `json:"class_id,omitempty" validate:"omitempty,uuid"`
	Notify     bool       `json:"notify"`
}

func SetupApplicationRoutes(app *fiber.App, applications *services.ApplicationService, waitlist *services.WaitlistService) {
	h := &ApplicationHandler{Applications: applications, Waitlist: waitlist}

	// 🔓 Citizen submission: gateway auth only
	app.Post("/applications", h.Submit)

	// 🔐 Review routes: reviewer or admin
	secured := app.Group("/", middleware.UserContextMiddleware(), middleware.RequireRole(middleware.RoleReviewer, middleware.RoleAdmin))
	secured.Get("/applications", h.List)
	secured.Get("/applications/:id", h.Get)
	secured.Get("/applications/:id/attachments", h.Attachments)
	secured.Patch("/applications/:id/participants/:national_id/status", h.UpdateStatus)
	secured.Put("/applications/:id/case", h.UpdateCase)
	secured.Delete("/applications/:id", middleware.RequireRole(middleware.RoleAdmin), h.Delete)
	secured.Get("/institutions/:id/waitlist", h.GetWaitlist)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.Post("/institutions/:id/waitlist/reconcile", h.Reconcile)
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case services.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidApplication), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrOrderingConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": services.ErrOrderingConflict.Error()})
	default:
		log.Printf("ERROR %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// Submit accepts either a JSON body, or multipart with a "payload" JSON field
// and files under "attachments[0]", "attachments[1]", ...
func (h *ApplicationHandler) Submit(c *fiber.Ctx) error {
	var in services.SubmitApplicationInput

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if err := json.Unmarshal([]byte(c.FormValue("payload")), &in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload JSON", "details": err.Error()})
		}
		for i := 0; i < maxAttachments; i++ {
			fh, err := c.FormFile(fmt.Sprintf("attachments[%d]", i))
			if err != nil || fh.Size == 0 {
				break // stop on first missing
			}
			f, err := fh.Open()
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("cannot read attachment %d", i)})
			}
			defer f.Close()
			in.Attachments = append(in.Attachments, services.AttachmentInput{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			})
		}
	} else if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	app, err := h.Applications.SubmitApplication(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(app)
}

func (h *ApplicationHandler) List(c *fiber.Ctx) error {
	f := repositories.CaseFilter{
		InstitutionID: c.Query("institution_id"),
		Status:        c.Query("status"),
		NationalID:    c.Query("national_id"),
		Limit:         c.QueryInt("limit", 50),
		Offset:        c.QueryInt("offset", 0),
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	apps, err := h.Applications.ListCases(c.UserContext(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(apps)
}

func (h *ApplicationHandler) Get(c *fiber.Ctx) error {
	app, err := h.Applications.GetCase(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(app)
}

func (h *ApplicationHandler) Attachments(c *fiber.Ctx) error {
	names, err := h.Applications.ListAttachments(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"application_id": c.Params("id"), "attachments": names})
}

func (h *ApplicationHandler) UpdateStatus(c *fiber.Ctx) error {
	var req StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "details": err.Error()})
	}

	res, err := h.Applications.UpdateParticipantStatus(c.UserContext(), services.UpdateStatusInput{
		TransitionInput: services.TransitionInput{
			ApplicationID: c.Params("id"),
			NationalID:    c.Params("national_id"),
			Status:        req.Status,
			Reason:        req.Reason,
			ReviewDate:    req.ReviewDate,
			ClassID:       req.ClassID,
		},
		Notify: req.Notify,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *ApplicationHandler) UpdateCase(c *fiber.Ctx) error {
	var in services.CaseUpdateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	res, err := h.Applications.UpdateApplicationCase(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"created":        res.Created,
		"updated":        res.Updated,
		"participants":   res.Participants,
		"skipped_fields": res.SkippedFields(),
	})
}

func (h *ApplicationHandler) Delete(c *fiber.Ctx) error {
	if err := h.Applications.DeleteApplication(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ApplicationHandler) GetWaitlist(c *fiber.Ctx) error {
	entries, err := h.Waitlist.Entries(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"institution_id": c.Params("id"), "waitlist": entries})
}

func (h *ApplicationHandler) Reconcile(c *fiber.Ctx) error {
	res, err := h.Waitlist.Reconcile(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}
