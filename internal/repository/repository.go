package repository

import (
	"context"
	"errors"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateMessage is returned when an ingest log insert collides with
	// an already processed (mailbox, message id) pair.
	ErrDuplicateMessage = errors.New("message already processed")
)

// MailboxRepository manages inbound/outbound mailbox configuration and the
// per-mailbox poll cursor.
type MailboxRepository interface {
	Create(ctx context.Context, mailbox *models.Mailbox) (int, error)
	GetByID(ctx context.Context, id int) (*models.Mailbox, error)
	ListEnabled(ctx context.Context) ([]models.Mailbox, error)
	UpdateCursor(ctx context.Context, id int, lastUID uint32) error
	UpdateStatus(ctx context.Context, id int, status string, lastError *string, checkedAt time.Time) error
}

// IngestLogRepository is the append-only dedup ledger for inbound messages.
type IngestLogRepository interface {
	Exists(ctx context.Context, mailboxID int, messageID string) (bool, error)
	RecordProcessed(ctx context.Context, mailboxID int, messageID string, ticketID int) error
	RecordError(ctx context.Context, mailboxID int, messageID string, cause string) error
	ListByMailbox(ctx context.Context, mailboxID int, limit int) ([]models.IngestLog, error)
}

// TicketRepository persists tickets and their status history. Writes that
// touch both tables run in a single transaction.
type TicketRepository interface {
	CreateWithHistory(ctx context.Context, ticket *models.Ticket, actorID int, notes string) (int, error)
	GetByID(ctx context.Context, id int) (*models.Ticket, error)
	ListByOrganization(ctx context.Context, organizationID int) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id int, fromStatus, toStatus string, actorID int, notes string) error
	History(ctx context.Context, ticketID int) ([]models.StatusHistory, error)
}

// ClientRepository resolves and creates ticket requesters by email.
type ClientRepository interface {
	GetByEmail(ctx context.Context, organizationID int, email string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) (int, error)
}

// CatalogRepository serves the routing menu offered to the classifier.
type CatalogRepository interface {
	Menu(ctx context.Context, organizationID int) (*models.Menu, error)
}

// SendLogRepository records every outbound reply attempt.
type SendLogRepository interface {
	Record(ctx context.Context, entry *models.SendLog) error
	ListByTicket(ctx context.Context, ticketID int) ([]models.SendLog, error)
}

// AttachmentRepository persists stored attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) (int, error)
	ListByTicket(ctx context.Context, ticketID int) ([]models.Attachment, error)
}
