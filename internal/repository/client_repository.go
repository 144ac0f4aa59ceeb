package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLClientRepository struct {
	db *sql.DB
}

func NewSQLClientRepository(db *sql.DB) *SQLClientRepository {
	return &SQLClientRepository{db: db}
}

func (r *SQLClientRepository) GetByEmail(ctx context.Context, organizationID int, email string) (*models.Client, error) {
	query := `
		SELECT id, organization_id, name, email, created_at
		FROM clients
		WHERE organization_id = $1 AND LOWER(email) = LOWER($2)`
	client := &models.Client{}
	err := r.db.QueryRowContext(ctx, query, organizationID, email).Scan(
		&client.ID,
		&client.OrganizationID,
		&client.Name,
		&client.Email,
		&client.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client by email: %w", err)
	}
	return client, nil
}

func (r *SQLClientRepository) Create(ctx context.Context, client *models.Client) (int, error) {
	query := `
		INSERT INTO clients (organization_id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	now := time.Now()
	var id int
	err := r.db.QueryRowContext(ctx, query,
		client.OrganizationID,
		client.Name,
		strings.ToLower(strings.TrimSpace(client.Email)),
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create client: %w", err)
	}
	client.ID = id
	client.CreatedAt = now
	return id, nil
}
