package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLMailboxRepository struct {
	db *sql.DB
}

func NewSQLMailboxRepository(db *sql.DB) *SQLMailboxRepository {
	return &SQLMailboxRepository{db: db}
}

func (r *SQLMailboxRepository) Create(ctx context.Context, mailbox *models.Mailbox) (int, error) {
	query := `
		INSERT INTO mailboxes (
			organization_id, name, enabled,
			imap_host, imap_port, imap_security, imap_user, imap_password, folder,
			smtp_host, smtp_port, smtp_user, smtp_password, smtp_from,
			last_uid, default_area_id, default_category_id, allowed_category_ids,
			default_impact, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id`

	now := time.Now()
	var id int
	err := r.db.QueryRowContext(ctx, query,
		mailbox.OrganizationID,
		mailbox.Name,
		mailbox.Enabled,
		mailbox.IMAPHost,
		mailbox.IMAPPort,
		mailbox.IMAPSecurity,
		mailbox.IMAPUser,
		mailbox.IMAPPassword,
		mailbox.Folder,
		mailbox.SMTPHost,
		mailbox.SMTPPort,
		mailbox.SMTPUser,
		mailbox.SMTPPassword,
		mailbox.SMTPFrom,
		mailbox.LastUID,
		mailbox.DefaultAreaID,
		mailbox.DefaultCategoryID,
		joinCategoryIDs(mailbox.AllowedCategoryIDs),
		mailbox.DefaultImpact,
		models.MailboxIdle,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create mailbox: %w", err)
	}
	mailbox.ID = id
	return id, nil
}

func (r *SQLMailboxRepository) GetByID(ctx context.Context, id int) (*models.Mailbox, error) {
	query := mailboxSelect + ` WHERE id = $1`
	mailbox, err := scanMailbox(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}
	return mailbox, nil
}

func (r *SQLMailboxRepository) ListEnabled(ctx context.Context) ([]models.Mailbox, error) {
	query := mailboxSelect + ` WHERE enabled = true ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []models.Mailbox
	for rows.Next() {
		mailbox, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, *mailbox)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mailboxes: %w", err)
	}
	return mailboxes, nil
}

func (r *SQLMailboxRepository) UpdateCursor(ctx context.Context, id int, lastUID uint32) error {
	query := `UPDATE mailboxes SET last_uid = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, lastUID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update mailbox cursor: %w", err)
	}
	return requireRow(result)
}

func (r *SQLMailboxRepository) UpdateStatus(ctx context.Context, id int, status string, lastError *string, checkedAt time.Time) error {
	query := `
		UPDATE mailboxes
		SET status = $1, last_error = $2, last_checked_at = $3, updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, status, lastError, checkedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update mailbox status: %w", err)
	}
	return requireRow(result)
}

const mailboxSelect = `
	SELECT id, organization_id, name, enabled,
		imap_host, imap_port, imap_security, imap_user, imap_password, folder,
		smtp_host, smtp_port, smtp_user, smtp_password, smtp_from,
		last_uid, default_area_id, default_category_id, allowed_category_ids,
		default_impact, status, last_error, last_checked_at
	FROM mailboxes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMailbox(row rowScanner) (*models.Mailbox, error) {
	mailbox := &models.Mailbox{}
	var allowed string
	err := row.Scan(
		&mailbox.ID,
		&mailbox.OrganizationID,
		&mailbox.Name,
		&mailbox.Enabled,
		&mailbox.IMAPHost,
		&mailbox.IMAPPort,
		&mailbox.IMAPSecurity,
		&mailbox.IMAPUser,
		&mailbox.IMAPPassword,
		&mailbox.Folder,
		&mailbox.SMTPHost,
		&mailbox.SMTPPort,
		&mailbox.SMTPUser,
		&mailbox.SMTPPassword,
		&mailbox.SMTPFrom,
		&mailbox.LastUID,
		&mailbox.DefaultAreaID,
		&mailbox.DefaultCategoryID,
		&allowed,
		&mailbox.DefaultImpact,
		&mailbox.Status,
		&mailbox.LastError,
		&mailbox.LastCheckedAt,
	)
	if err != nil {
		return nil, err
	}
	mailbox.AllowedCategoryIDs = splitCategoryIDs(allowed)
	return mailbox, nil
}

// Allowed category ids are stored as a comma separated list so the same
// schema works on both postgres and sqlite.
func joinCategoryIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func splitCategoryIDs(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
