package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type SQLTicketRepository struct {
	db *sql.DB
}

func NewSQLTicketRepository(db *sql.DB) *SQLTicketRepository {
	return &SQLTicketRepository{db: db}
}

// CreateWithHistory inserts the ticket and its first history row (from_status
// NULL) in a single transaction.
func (r *SQLTicketRepository) CreateWithHistory(ctx context.Context, ticket *models.Ticket, actorID int, notes string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin ticket transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = models.StatusNovo
	}

	query := `
		INSERT INTO tickets (
			organization_id, client_id, area_id, category_id, subcategory_id,
			product_id, title, description, impact, status, sla_deadline,
			message_id, email_from, reply_to, references_ids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	var id int
	err = tx.QueryRowContext(ctx, query,
		ticket.OrganizationID,
		ticket.ClientID,
		ticket.AreaID,
		ticket.CategoryID,
		ticket.SubcategoryID,
		ticket.ProductID,
		ticket.Title,
		ticket.Description,
		ticket.Impact,
		ticket.Status,
		ticket.SLADeadline,
		ticket.MessageID,
		ticket.EmailFrom,
		ticket.ReplyTo,
		ticket.References,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticket: %w", err)
	}

	historyQuery := `
		INSERT INTO ticket_status_history (ticket_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1, NULL, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, historyQuery, id, ticket.Status, actorID, notes, now); err != nil {
		return 0, fmt.Errorf("failed to record ticket creation history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ticket transaction: %w", err)
	}
	ticket.ID = id
	return id, nil
}

func (r *SQLTicketRepository) GetByID(ctx context.Context, id int) (*models.Ticket, error) {
	query := ticketSelect + ` WHERE id = $1`
	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

func (r *SQLTicketRepository) ListByOrganization(ctx context.Context, organizationID int) ([]models.Ticket, error) {
	query := ticketSelect + ` WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// UpdateStatus moves the ticket to toStatus and appends the history row in one
// transaction. The update is guarded on fromStatus so concurrent transitions
// cannot clobber each other.
func (r *SQLTicketRepository) UpdateStatus(ctx context.Context, id int, fromStatus, toStatus string, actorID int, notes string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `UPDATE tickets SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := tx.ExecContext(ctx, query, toStatus, now, id, fromStatus)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	historyQuery := `
		INSERT INTO ticket_status_history (ticket_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, historyQuery, id, fromStatus, toStatus, actorID, notes, now); err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status transaction: %w", err)
	}
	return nil
}

func (r *SQLTicketRepository) History(ctx context.Context, ticketID int) ([]models.StatusHistory, error) {
	query := `
		SELECT id, ticket_id, from_status, to_status, actor_id, notes, created_at
		FROM ticket_status_history
		WHERE ticket_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	var entries []models.StatusHistory
	for rows.Next() {
		var entry models.StatusHistory
		err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.ActorID,
			&entry.Notes,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status history: %w", err)
	}
	return entries, nil
}

const ticketSelect = `
	SELECT id, organization_id, client_id, area_id, category_id, subcategory_id,
		product_id, title, description, impact, status, sla_deadline,
		message_id, email_from, reply_to, references_ids, created_at, updated_at
	FROM tickets`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	ticket := &models.Ticket{}
	err := row.Scan(
		&ticket.ID,
		&ticket.OrganizationID,
		&ticket.ClientID,
		&ticket.AreaID,
		&ticket.CategoryID,
		&ticket.SubcategoryID,
		&ticket.ProductID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Impact,
		&ticket.Status,
		&ticket.SLADeadline,
		&ticket.MessageID,
		&ticket.EmailFrom,
		&ticket.ReplyTo,
		&ticket.References,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
