package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
	"github.com/deskgo-io/deskgo/internal/sla"
	"github.com/deskgo-io/deskgo/internal/workflow"
)

const minNoteRunes = 5

// ErrNoteTooShort rejects manual transitions without a meaningful
// justification note.
var ErrNoteTooShort = fmt.Errorf("justification note must have at least %d characters", minNoteRunes)

// ReplySender is the outbound dependency of the service.
type ReplySender interface {
	SendReply(ctx context.Context, ticket *models.Ticket, mailbox *models.Mailbox, subject, body string) error
}

// TicketService exposes the manual ticket operations: status changes with an
// audit trail, SLA-enriched reads and threaded replies.
type TicketService struct {
	tickets   repository.TicketRepository
	mailboxes repository.MailboxRepository
	sender    ReplySender
	logger    *log.Logger
}

// TicketServiceOption customizes a TicketService.
type TicketServiceOption func(*TicketService)

// WithServiceLogger overrides the logger.
func WithServiceLogger(logger *log.Logger) TicketServiceOption {
	return func(s *TicketService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReplySender wires the outbound reply path.
func WithReplySender(sender ReplySender) TicketServiceOption {
	return func(s *TicketService) {
		s.sender = sender
	}
}

// NewTicketService builds a TicketService.
func NewTicketService(tickets repository.TicketRepository, mailboxes repository.MailboxRepository, opts ...TicketServiceOption) *TicketService {
	s := &TicketService{
		tickets:   tickets,
		mailboxes: mailboxes,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ChangeStatus moves a ticket to toStatus. Every manual transition demands a
// justification note and respects the terminal-status rule.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID int, toStatus string, actorID int, note string) error {
	if utf8.RuneCountInString(strings.TrimSpace(note)) < minNoteRunes {
		return ErrNoteTooShort
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to load ticket: %w", err)
	}
	if err := workflow.ValidateTransition(ticket.Status, toStatus); err != nil {
		return err
	}

	if err := s.tickets.UpdateStatus(ctx, ticketID, ticket.Status, toStatus, actorID, strings.TrimSpace(note)); err != nil {
		return fmt.Errorf("failed to change ticket status: %w", err)
	}
	s.logf("[TICKET] ticket %d: %s -> %s by actor %d", ticketID, ticket.Status, toStatus, actorID)
	return nil
}

// Get returns the ticket with its live SLA projection.
func (s *TicketService) Get(ctx context.Context, ticketID int) (*models.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	sla.Enrich(ticket)
	return ticket, nil
}

// ListByOrganization returns the organization's tickets, each with its live
// SLA projection.
func (s *TicketService) ListByOrganization(ctx context.Context, organizationID int) ([]models.Ticket, error) {
	tickets, err := s.tickets.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		sla.Enrich(&tickets[i])
	}
	return tickets, nil
}

// History returns the ticket's transition audit trail.
func (s *TicketService) History(ctx context.Context, ticketID int) ([]models.StatusHistory, error) {
	return s.tickets.History(ctx, ticketID)
}

// Reply sends a threaded reply on the ticket through the given mailbox.
func (s *TicketService) Reply(ctx context.Context, ticketID, mailboxID int, subject, body string) error {
	if s.sender == nil {
		return errors.New("reply sender is not configured")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("failed to load ticket: %w", err)
	}
	mailbox, err := s.mailboxes.GetByID(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to load mailbox: %w", err)
	}
	return s.sender.SendReply(ctx, ticket, mailbox, subject, body)
}

func (s *TicketService) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
