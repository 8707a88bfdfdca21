package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"childcare-enrollment/utils"
)

// StatusChangeEmail is the template data of the "your application status
// changed" mail.
type StatusChangeEmail struct {
	To              string    `json:"to"`
	ApplicantName   string    `json:"applicant_name"`
	ChildName       string    `json:"child_name"`
	InstitutionName string    `json:"institution_name"`
	CaseNumber      string    `json:"case_number"`
	ApplicationDate time.Time `json:"application_date"`
	Status          string    `json:"status"`
	CurrentOrder    *int      `json:"current_order,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

//go:generate mockgen -package=mocks -destination=mocks/mock_notifier.go childcare-enrollment/services Notifier
type Notifier interface {
	SendStatusChange(ctx context.Context, mail StatusChangeEmail) error
}

// LogNotifier is used when no mail relay is configured. It only logs.
type LogNotifier struct{}

func (LogNotifier) SendStatusChange(ctx context.Context, mail StatusChangeEmail) error {
	log.Printf("[MAIL] ✉️  Mail relay not configured, skipping status mail to %s (case %s → %q)", mail.To, mail.CaseNumber, mail.Status)
	return nil
}

// HTTPMailer hands status mails to the municipal mail relay, which owns the
// templates and SMTP delivery.
type HTTPMailer struct {
	BaseURL      string // e.g. "http://mail-relay:8600"
	EndpointPath string // e.g. "/api/v1/mail/status-change"
	ServiceToken string
	HTTPClient   *http.Client
}

func NewHTTPMailer(baseURL, serviceToken string) *HTTPMailer {
	return &HTTPMailer{
		BaseURL:      baseURL,
		EndpointPath: "/api/v1/mail/status-change",
		ServiceToken: serviceToken,
		HTTPClient:   utils.NewServiceClient(15 * time.Second),
	}
}

func (m *HTTPMailer) SendStatusChange(ctx context.Context, mail StatusChangeEmail) error {
	base, err := url.Parse(m.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid mail relay URL '%s': %w", m.BaseURL, err)
	}
	endpoint := base.JoinPath(m.EndpointPath).String()

	body, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("failed to encode status mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", m.ServiceToken)

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
