package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLAttachmentRepository struct {
	db *sql.DB
}

func NewSQLAttachmentRepository(db *sql.DB) *SQLAttachmentRepository {
	return &SQLAttachmentRepository{db: db}
}

func (r *SQLAttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) (int, error) {
	query := `
		INSERT INTO attachments (ticket_id, filename, stored_ref, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	now := time.Now()
	var id int
	err := r.db.QueryRowContext(ctx, query,
		attachment.TicketID,
		attachment.Filename,
		attachment.StoredRef,
		attachment.ContentType,
		attachment.Size,
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create attachment: %w", err)
	}
	attachment.ID = id
	attachment.CreatedAt = now
	return id, nil
}

func (r *SQLAttachmentRepository) ListByTicket(ctx context.Context, ticketID int) ([]models.Attachment, error) {
	query := `
		SELECT id, ticket_id, filename, stored_ref, content_type, size, created_at
		FROM attachments
		WHERE ticket_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var attachment models.Attachment
		err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.Filename,
			&attachment.StoredRef,
			&attachment.ContentType,
			&attachment.Size,
			&attachment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return attachments, nil
}
