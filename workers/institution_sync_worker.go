// workers/institution_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"childcare-enrollment/models"
	"childcare-enrollment/utils"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegistryInstitution matches one institution in the municipal registry response.
type RegistryInstitution struct {
	ExternalID string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Capacity   int       `json:"capacity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetInstitutionChangesResponse is the top-level structure of the registry response.
type GetInstitutionChangesResponse struct {
	Institutions []RegistryInstitution `json:"institutions"`
}

// InstitutionSyncWorker mirrors the municipal institution registry into the
// local institutions table.
type InstitutionSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://registry:8500"
	endpointPath string // e.g., "/api/v1/public/institutions"
	serviceToken string
	httpClient   *http.Client
}

func NewInstitutionSyncWorker(db *gorm.DB, registryBaseURL, endpointPath, serviceToken string, interval time.Duration) *InstitutionSyncWorker {
	return &InstitutionSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      registryBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.NewServiceClient(30 * time.Second),
	}
}

func (w *InstitutionSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Institution Sync Worker (registry → institutions)…")
	go w.run(ctx)
}

func (w *InstitutionSyncWorker) run(ctx context.Context) {
	if _, err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial institution sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Institution sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Institution Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt among registry-sourced institutions.
func (w *InstitutionSyncWorker) getLastSyncTime() time.Time {
	var inst models.Institution
	err := w.db.Select("updated_at").
		Where("external_id IS NOT NULL").
		Order("updated_at DESC").
		Take(&inst).Error
	if err != nil || inst.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return inst.UpdatedAt
}

// syncBatch pulls institution changes since the given time and upserts them.
// It returns the number of rows written.
func (w *InstitutionSyncWorker) syncBatch(ctx context.Context, since time.Time) (int, error) {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid registry URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request to registry failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("registry non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetInstitutionChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode registry response: %w", err)
	}

	if len(response.Institutions) == 0 {
		log.Printf("[SYNC] ✅ No institution changes since %s", sinceStr)
		return 0, nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Institutions {
		if remote.ExternalID == "" || remote.Name == "" {
			errorCount++
			log.Printf("[SYNC] ⚠️ Skipping registry institution without id or name: %+v", remote)
			continue
		}
		externalID := remote.ExternalID
		local := models.Institution{
			ExternalID: &externalID,
			Name:       remote.Name,
			Slug:       slug.Make(remote.Name),
			Address:    remote.Address,
			Phone:      remote.Phone,
			Email:      remote.Email,
			Capacity:   remote.Capacity,
		}
		local.UpdatedAt = remote.UpdatedAt

		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "slug", "address", "phone", "email", "capacity", "updated_at",
			}),
		}).Create(&local).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert institution (external_id=%q, name=%q): %v", remote.ExternalID, remote.Name, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d institution(s) (%d upserted, %d errors)", len(response.Institutions), upsertCount, errorCount)
	return upsertCount, nil
}
