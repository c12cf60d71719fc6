// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"powerup-economy/models"
	"powerup-economy/services"
	"powerup-economy/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile is one entry of the sync service's profile changes feed.
type RemoteProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Active reports whether the account may take part in the economy.
// Suspended and deactivated players cannot be targeted.
func (p RemoteProfile) Active() bool {
	switch p.AccountStatus {
	case "suspended", "deactivated", "banned":
		return false
	}
	return true
}

type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors usernames and account status from the sync
// service onto players.
type ProfileSyncWorker struct {
	store        *services.Store
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
	clock        clockwork.Clock
	log          *zap.Logger

	cursor time.Time // newest remote updated_at applied
}

func NewProfileSyncWorker(store *services.Store, syncServiceBaseURL, endpointPath, serviceToken string,
	interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		store:        store,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
		clock:        clock,
		log:          logger.Named("profile_sync"),
	}
}

// Start runs a full backfill and then polls every interval until ctx is done.
// The returned channel closes when the loop has exited.
func (w *ProfileSyncWorker) Start(ctx context.Context) <-chan struct{} {
	w.log.Info("🔁 starting profile sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx)
	}()
	return done
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("⚠️ initial profile sync failed", zap.Error(err))
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("❌ profile sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("⏹️ profile sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the cursor and upserts them. It returns the
// number of players written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	profiles, err := w.fetch(ctx, w.cursor)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 {
		w.log.Debug("✅ no profile changes", zap.Time("since", w.cursor))
		return 0, nil
	}

	var upserted, failed int
	latest := w.cursor
	for _, p := range profiles {
		if p.ExternalID == "" {
			failed++
			continue
		}
		if err := w.upsert(ctx, p); err != nil {
			failed++
			w.log.Warn("⚠️ failed to upsert player profile",
				zap.String("external_id", p.ExternalID), zap.String("username", p.Username), zap.Error(err))
			continue
		}
		upserted++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}
	// Hold the cursor back on partial failure so the batch is fetched again.
	if failed == 0 {
		w.cursor = latest
	}

	w.log.Info("✅ profiles synced",
		zap.Int("received", len(profiles)), zap.Int("upserted", upserted), zap.Int("errors", failed),
		zap.Time("cursor", w.cursor))
	return upserted, nil
}

func (w *ProfileSyncWorker) upsert(ctx context.Context, p RemoteProfile) error {
	player := models.Player{
		ID:             uuid.NewString(),
		ExternalUserID: p.ExternalID,
		Username:       p.Username,
		IsActive:       p.Active(),
		Title:          services.TitleFor(0),
	}
	return w.store.Atomically(ctx, "sync.profile", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "is_active", "updated_at"}),
		}).Create(&player).Error
	})
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, body)
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Users, nil
}
