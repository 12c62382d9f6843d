package cookies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/dbx"
)

type SQLiteRepository struct {
	db     dbx.DBTX
	sealer Sealer
	now    func() time.Time
}

// NewSQLiteRepository returns a repository over db. A nil sealer stores
// values as-is.
func NewSQLiteRepository(db dbx.DBTX, sealer Sealer) *SQLiteRepository {
	return &SQLiteRepository{db: db, sealer: sealer, now: time.Now}
}

func (r *SQLiteRepository) Get(ctx context.Context, name string) (*models.Cookie, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cookies WHERE name = ?`, name).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie[%s]: %w", name, err)
	}

	c := &models.Cookie{Name: name, ExpiresAt: time.Unix(expiresAt, 0)}
	if c.Expired(r.now()) {
		return nil, nil
	}

	if r.sealer != nil {
		value, err = r.sealer.Open(name, value)
		if err != nil {
			return nil, fmt.Errorf("failed to open cookie[%s]: %w", name, err)
		}
	}
	c.Value = string(value)
	return c, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, cookie *models.Cookie) error {
	value := []byte(cookie.Value)
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(cookie.Name, value)
		if err != nil {
			return fmt.Errorf("failed to seal cookie[%s]: %w", cookie.Name, err)
		}
		value = sealed
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cookies (name, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, cookie.Name, value, cookie.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to set cookie[%s]: %w", cookie.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cookies WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete cookie[%s]: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cookies`); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}
