package repository

import (
	"context"
	"database/sql"

	"orienta/internal/models"
)

// UserRepository handles student database operations
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// Ensure returns the user with the given student code, creating it when absent
func (r *UserRepository) Ensure(ctx context.Context, code string) (*models.User, error) {
	query := `
		INSERT INTO users (codigo_estudiante)
		VALUES ($1)
		ON CONFLICT (codigo_estudiante) DO UPDATE SET codigo_estudiante = EXCLUDED.codigo_estudiante
		RETURNING id_usuario, codigo_estudiante, created_at
	`

	user := &models.User{}
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&user.ID, &user.Code, &user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByCode retrieves a user by student code
func (r *UserRepository) GetByCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT id_usuario, codigo_estudiante, created_at FROM users WHERE codigo_estudiante = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(&user.ID, &user.Code, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
