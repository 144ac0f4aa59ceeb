package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLSendLogRepository struct {
	db *sql.DB
}

func NewSQLSendLogRepository(db *sql.DB) *SQLSendLogRepository {
	return &SQLSendLogRepository{db: db}
}

func (r *SQLSendLogRepository) Record(ctx context.Context, entry *models.SendLog) error {
	query := `
		INSERT INTO send_log (ticket_id, mailbox_id, recipient, subject, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	err := r.db.QueryRowContext(ctx, query,
		entry.TicketID,
		entry.MailboxID,
		entry.Recipient,
		entry.Subject,
		entry.Success,
		entry.Error,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to record send log entry: %w", err)
	}
	return nil
}

func (r *SQLSendLogRepository) ListByTicket(ctx context.Context, ticketID int) ([]models.SendLog, error) {
	query := `
		SELECT id, ticket_id, mailbox_id, recipient, subject, success, error, created_at
		FROM send_log
		WHERE ticket_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list send log: %w", err)
	}
	defer rows.Close()

	var entries []models.SendLog
	for rows.Next() {
		var entry models.SendLog
		err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.MailboxID,
			&entry.Recipient,
			&entry.Subject,
			&entry.Success,
			&entry.Error,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan send log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate send log: %w", err)
	}
	return entries, nil
}
