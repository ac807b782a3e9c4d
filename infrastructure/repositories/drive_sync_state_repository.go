package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spsync/database"
	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/logging"
)

// DriveSyncStateRepository persists per-drive subscription and cursor
// state.
type DriveSyncStateRepository struct {
	db     *database.Database
	logger *logging.Logger
}

// NewDriveSyncStateRepository creates a drive sync-state repository.
func NewDriveSyncStateRepository(db *database.Database, logger *logging.Logger) *DriveSyncStateRepository {
	return &DriveSyncStateRepository{db: db, logger: logger.WithComponent("drive_sync_state_repository")}
}

var _ contracts.DriveSyncStateRepository = (*DriveSyncStateRepository)(nil)

const driveSyncStateColumns = `
	org_id, drive_id, site_id, subscription_id, subscription_expires_at,
	subscription_client_state, delta_token, updated_at
`

// Upsert inserts or replaces the (org, drive) sync-state row.
func (r *DriveSyncStateRepository) Upsert(ctx context.Context, state *syncdomain.DriveSyncState) error {
	query := `
		INSERT INTO drive_sync_state (
			org_id, drive_id, site_id, subscription_id, subscription_expires_at,
			subscription_client_state, delta_token
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, drive_id) DO UPDATE SET
			site_id = excluded.site_id,
			subscription_id = excluded.subscription_id,
			subscription_expires_at = excluded.subscription_expires_at,
			subscription_client_state = excluded.subscription_client_state,
			delta_token = excluded.delta_token,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.WriteDB().ExecContext(ctx, query,
		state.OrgID, state.DriveID, state.SiteID,
		nullString(state.SubscriptionID), nullTime(state.SubscriptionExpiresAt),
		nullString(state.SubscriptionClientState), nullString(state.DeltaToken))
	if err != nil {
		return fmt.Errorf("failed to upsert sync state for drive %s: %w", state.DriveID, err)
	}
	return nil
}

// Get returns the row for (org, drive), or (nil, nil) when absent.
func (r *DriveSyncStateRepository) Get(ctx context.Context, orgID, driveID string) (*syncdomain.DriveSyncState, error) {
	query := "SELECT " + driveSyncStateColumns + " FROM drive_sync_state WHERE org_id = ? AND drive_id = ?"
	return r.queryOne(ctx, query, orgID, driveID)
}

// GetBySubscription returns the row matching the full incremental-sync
// key, or (nil, nil) when the subscription is stale or unknown.
func (r *DriveSyncStateRepository) GetBySubscription(ctx context.Context, orgID, siteID, driveID, subscriptionID string) (*syncdomain.DriveSyncState, error) {
	query := "SELECT " + driveSyncStateColumns + ` FROM drive_sync_state
		WHERE org_id = ? AND site_id = ? AND drive_id = ? AND subscription_id = ?`
	return r.queryOne(ctx, query, orgID, siteID, driveID, subscriptionID)
}

// FindBySubscriptionID resolves a subscription id to its sync-state row,
// or (nil, nil) when unknown. Used by lifecycle notifications, which
// carry no drive coordinates.
func (r *DriveSyncStateRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*syncdomain.DriveSyncState, error) {
	query := "SELECT " + driveSyncStateColumns + " FROM drive_sync_state WHERE subscription_id = ?"
	return r.queryOne(ctx, query, subscriptionID)
}

// ListForOrg returns all sync-state rows of an organisation.
func (r *DriveSyncStateRepository) ListForOrg(ctx context.Context, orgID string) ([]*syncdomain.DriveSyncState, error) {
	query := "SELECT " + driveSyncStateColumns + " FROM drive_sync_state WHERE org_id = ? ORDER BY drive_id"
	return r.queryMany(ctx, query, orgID)
}

// ListExpiringBefore returns rows whose subscription expires before the
// cutoff, across all organisations. Feeds the renewal sweep.
func (r *DriveSyncStateRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*syncdomain.DriveSyncState, error) {
	query := "SELECT " + driveSyncStateColumns + ` FROM drive_sync_state
		WHERE subscription_expires_at IS NOT NULL AND subscription_expires_at < ?
		ORDER BY subscription_expires_at`
	return r.queryMany(ctx, query, cutoff)
}

// UpdateDeltaToken persists a new cursor after a completed delta pull.
func (r *DriveSyncStateRepository) UpdateDeltaToken(ctx context.Context, orgID, driveID, deltaToken string) error {
	query := `
		UPDATE drive_sync_state
		SET delta_token = ?, updated_at = CURRENT_TIMESTAMP
		WHERE org_id = ? AND drive_id = ?
	`
	if _, err := r.db.WriteDB().ExecContext(ctx, query, deltaToken, orgID, driveID); err != nil {
		return fmt.Errorf("failed to update delta token for drive %s: %w", driveID, err)
	}
	return nil
}

// UpdateSubscription persists renewed or recreated subscription identity.
func (r *DriveSyncStateRepository) UpdateSubscription(ctx context.Context, orgID, driveID, subscriptionID string, expiresAt time.Time, clientState string) error {
	query := `
		UPDATE drive_sync_state
		SET subscription_id = ?, subscription_expires_at = ?,
			subscription_client_state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE org_id = ? AND drive_id = ?
	`
	if _, err := r.db.WriteDB().ExecContext(ctx, query,
		subscriptionID, expiresAt, clientState, orgID, driveID); err != nil {
		return fmt.Errorf("failed to update subscription for drive %s: %w", driveID, err)
	}
	return nil
}

// Delete removes the (org, drive) row.
func (r *DriveSyncStateRepository) Delete(ctx context.Context, orgID, driveID string) error {
	query := "DELETE FROM drive_sync_state WHERE org_id = ? AND drive_id = ?"
	if _, err := r.db.WriteDB().ExecContext(ctx, query, orgID, driveID); err != nil {
		return fmt.Errorf("failed to delete sync state for drive %s: %w", driveID, err)
	}
	return nil
}

func (r *DriveSyncStateRepository) queryOne(ctx context.Context, query string, args ...any) (*syncdomain.DriveSyncState, error) {
	state, err := scanDriveSyncState(r.db.ReadDB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query drive sync state: %w", err)
	}
	return state, nil
}

func (r *DriveSyncStateRepository) queryMany(ctx context.Context, query string, args ...any) ([]*syncdomain.DriveSyncState, error) {
	rows, err := r.db.ReadDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drive sync state: %w", err)
	}
	defer rows.Close()

	var states []*syncdomain.DriveSyncState
	for rows.Next() {
		state, err := scanDriveSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drive sync state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriveSyncState(row rowScanner) (*syncdomain.DriveSyncState, error) {
	state := &syncdomain.DriveSyncState{}
	var subID, clientState, deltaToken sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&state.OrgID, &state.DriveID, &state.SiteID,
		&subID, &expiresAt, &clientState, &deltaToken, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}

	state.SubscriptionID = subID.String
	state.SubscriptionClientState = clientState.String
	state.DeltaToken = deltaToken.String
	if expiresAt.Valid {
		state.SubscriptionExpiresAt = expiresAt.Time
	}
	return state, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
