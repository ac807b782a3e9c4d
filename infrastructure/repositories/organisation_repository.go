// Package repositories implements the persistence contracts over the
// sqlite read/write connection split.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spsync/database"
	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/logging"
)

// OrganisationRepository persists installed organisations.
type OrganisationRepository struct {
	db     *database.Database
	logger *logging.Logger
}

// NewOrganisationRepository creates an organisation repository.
func NewOrganisationRepository(db *database.Database, logger *logging.Logger) *OrganisationRepository {
	return &OrganisationRepository{db: db, logger: logger.WithComponent("organisation_repository")}
}

var _ contracts.OrganisationRepository = (*OrganisationRepository)(nil)

// Upsert inserts or replaces an organisation row.
func (r *OrganisationRepository) Upsert(ctx context.Context, org *syncdomain.Organisation) error {
	query := `
		INSERT INTO organisations (org_id, tenant_id, region, token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (org_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			region = excluded.region,
			token = excluded.token,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.WriteDB().ExecContext(ctx, query, org.ID, org.TenantID, org.Region, org.Token); err != nil {
		return fmt.Errorf("failed to upsert organisation %s: %w", org.ID, err)
	}
	return nil
}

// GetByID returns the organisation, or (nil, nil) when not installed.
func (r *OrganisationRepository) GetByID(ctx context.Context, orgID string) (*syncdomain.Organisation, error) {
	query := `
		SELECT org_id, tenant_id, region, token, created_at, updated_at
		FROM organisations WHERE org_id = ?
	`
	org := &syncdomain.Organisation{}
	err := r.db.ReadDB().QueryRowContext(ctx, query, orgID).Scan(
		&org.ID, &org.TenantID, &org.Region, &org.Token, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organisation %s: %w", orgID, err)
	}
	return org, nil
}

// List returns all installed organisations.
func (r *OrganisationRepository) List(ctx context.Context) ([]*syncdomain.Organisation, error) {
	query := `
		SELECT org_id, tenant_id, region, token, created_at, updated_at
		FROM organisations ORDER BY org_id
	`
	rows, err := r.db.ReadDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*syncdomain.Organisation
	for rows.Next() {
		org := &syncdomain.Organisation{}
		if err := rows.Scan(&org.ID, &org.TenantID, &org.Region, &org.Token, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// Delete removes an organisation; drive sync state cascades.
func (r *OrganisationRepository) Delete(ctx context.Context, orgID string) error {
	if _, err := r.db.WriteDB().ExecContext(ctx, "DELETE FROM organisations WHERE org_id = ?", orgID); err != nil {
		return fmt.Errorf("failed to delete organisation %s: %w", orgID, err)
	}
	r.logger.Database("organisation deleted", "organisation_id", orgID)
	return nil
}
