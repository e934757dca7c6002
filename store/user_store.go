package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"

	"guidepost/api/models"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrOperatorExists   = errors.New("operator already exists")
)

// UserStore holds the operator accounts behind the protected stats surface.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS operators (
			id              SERIAL PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			hashed_password BYTEA NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure operators schema: %w", err)
	}
	return nil
}

func (s *UserStore) CreateOperator(ctx context.Context, email string, hashedPassword []byte) (*models.Operator, error) {
	op := &models.Operator{}
	query := `
		INSERT INTO operators (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, email, hashedPassword).Scan(
		&op.ID,
		&op.Email,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return nil, fmt.Errorf("%w: %s", ErrOperatorExists, email)
		}
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	log.Printf("Operator created in DB: ID=%d, Email=%s", op.ID, op.Email)
	return op, nil
}

func (s *UserStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	op := &models.Operator{}
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM operators
		WHERE email = $1;
	`
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&op.ID,
		&op.Email,
		&op.HashedPassword,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, email)
		}
		return nil, fmt.Errorf("failed to get operator by email: %w", err)
	}

	return op, nil
}
