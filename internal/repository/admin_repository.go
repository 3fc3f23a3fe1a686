package repository

import (
	"context"
	"database/sql"
	"time"

	"orienta/internal/models"
)

const adminColumns = `id, email, password_hash, name, is_active, last_login_at, created_at, updated_at`

// AdminRepository handles administrator database operations
type AdminRepository struct {
	db DBTX
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) getOne(ctx context.Context, query string, args ...any) (*models.Admin, error) {
	admin := &models.Admin{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Name,
		&admin.IsActive,
		&admin.LastLoginAt,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// Create inserts a new administrator
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (email, password_hash, name, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, admin.Email, admin.PasswordHash, admin.Name, admin.IsActive).
		Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
}

// GetByEmail retrieves an administrator by email (case-insensitive)
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE LOWER(email) = LOWER($1)`, email)
}

// GetByID retrieves an administrator by ID
func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
}

// UpdateLastLogin stamps the last successful login
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE admins SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	return err
}
