package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLIngestLogRepository struct {
	db *sql.DB
}

func NewSQLIngestLogRepository(db *sql.DB) *SQLIngestLogRepository {
	return &SQLIngestLogRepository{db: db}
}

func (r *SQLIngestLogRepository) Exists(ctx context.Context, mailboxID int, messageID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM ingest_log
		WHERE mailbox_id = $1 AND message_id = $2 AND outcome = $3`
	var count int
	err := r.db.QueryRowContext(ctx, query, mailboxID, messageID, models.IngestProcessed).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check ingest log: %w", err)
	}
	return count > 0, nil
}

func (r *SQLIngestLogRepository) RecordProcessed(ctx context.Context, mailboxID int, messageID string, ticketID int) error {
	query := `
		INSERT INTO ingest_log (mailbox_id, message_id, outcome, ticket_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, mailboxID, messageID, models.IngestProcessed, ticketID, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	return nil
}

func (r *SQLIngestLogRepository) RecordError(ctx context.Context, mailboxID int, messageID string, cause string) error {
	query := `
		INSERT INTO ingest_log (mailbox_id, message_id, outcome, error, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, mailboxID, messageID, models.IngestError, cause, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record ingest error: %w", err)
	}
	return nil
}

func (r *SQLIngestLogRepository) ListByMailbox(ctx context.Context, mailboxID int, limit int) ([]models.IngestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, mailbox_id, message_id, outcome, ticket_id, error, created_at
		FROM ingest_log
		WHERE mailbox_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, mailboxID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest log: %w", err)
	}
	defer rows.Close()

	var entries []models.IngestLog
	for rows.Next() {
		var entry models.IngestLog
		err := rows.Scan(
			&entry.ID,
			&entry.MailboxID,
			&entry.MessageID,
			&entry.Outcome,
			&entry.TicketID,
			&entry.Error,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingest log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingest log: %w", err)
	}
	return entries, nil
}

// isUniqueViolation matches the constraint error text of both supported
// drivers. pq exposes code 23505, sqlite reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate key")
}
