package registrations

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Replace(ctx context.Context, did string, regs []models.Registration) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE did = ?`, did); err != nil {
		return fmt.Errorf("failed to reset registrations: %w", err)
	}

	query := `INSERT INTO registrations
		(did, id, position, subdomain, domain, previous_username, created_at, is_primary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, reg := range regs {
		_, err := r.db.ExecContext(ctx, query,
			did, reg.ID, i, reg.Subdomain, reg.Domain, reg.PreviousUsername, reg.CreatedAt.UnixMilli(), reg.Primary)
		if err != nil {
			return fmt.Errorf("failed to insert registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, did string) ([]models.Registration, error) {
	query := `SELECT id, subdomain, domain, previous_username, created_at, is_primary
		FROM registrations WHERE did = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, did)
	if err != nil {
		return nil, fmt.Errorf("failed to select registrations: %w", err)
	}
	defer rows.Close()

	result := []models.Registration{}
	for rows.Next() {
		var (
			reg       models.Registration
			createdAt int64
		)
		if err := rows.Scan(&reg.ID, &reg.Subdomain, &reg.Domain, &reg.PreviousUsername, &createdAt, &reg.Primary); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		reg.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, did, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE did = ? AND id = ?`, did, id); err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registrations`); err != nil {
		return fmt.Errorf("failed to clear registrations: %w", err)
	}
	return nil
}
