package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/classify"
	"github.com/deskgo-io/deskgo/internal/models"
	"github.com/deskgo-io/deskgo/internal/repository"
	"github.com/deskgo-io/deskgo/internal/sla"
)

// ErrIncompleteClassification is returned when a routing decision is missing
// a required axis and the ticket cannot be synthesized.
var ErrIncompleteClassification = errors.New("classification decision is incomplete")

// Synthesizer turns a parsed message plus a routing decision into a persisted
// ticket: it resolves or creates the requesting client, stamps the SLA
// deadline and writes the ticket with its initial history row.
type Synthesizer struct {
	tickets repository.TicketRepository
	clients repository.ClientRepository
	logger  *log.Logger
	clock   func() time.Time
}

// SynthesizerOption customizes a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSynthesizerLogger overrides the logger.
func WithSynthesizerLogger(logger *log.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withSynthesizerClock(clock func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSynthesizer builds a Synthesizer over the given repositories.
func NewSynthesizer(tickets repository.TicketRepository, clients repository.ClientRepository, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		tickets: tickets,
		clients: clients,
		logger:  log.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TicketInput is everything Synthesize needs for one message.
type TicketInput struct {
	Mailbox  models.Mailbox
	Envelope Envelope
	Decision classify.Decision
	// DedupKey is the normalized message id or the synthetic mailbox/uid key.
	DedupKey string
}

// Synthesize persists the ticket for one inbound message.
func (s *Synthesizer) Synthesize(ctx context.Context, input TicketInput) (*models.Ticket, error) {
	decision := input.Decision
	if decision.AreaID <= 0 || decision.CategoryID <= 0 || decision.SubcategoryID <= 0 {
		return nil, fmt.Errorf("%w: area=%d category=%d subcategory=%d",
			ErrIncompleteClassification, decision.AreaID, decision.CategoryID, decision.SubcategoryID)
	}

	client, err := s.resolveClient(ctx, input.Mailbox.OrganizationID, input.Envelope)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	impact := decision.Impact
	if impact == "" {
		impact = models.ImpactMedio
	}

	title := strings.TrimSpace(decision.Summary)
	if title == "" {
		title = strings.TrimSpace(input.Envelope.Subject)
	}
	if title == "" {
		title = "(sem assunto)"
	}

	description := strings.TrimSpace(decision.Description)
	if description == "" {
		description = input.Envelope.Body
	}

	ticket := &models.Ticket{
		OrganizationID: input.Mailbox.OrganizationID,
		ClientID:       client.ID,
		AreaID:         decision.AreaID,
		CategoryID:     decision.CategoryID,
		SubcategoryID:  decision.SubcategoryID,
		Title:          title,
		Description:    description,
		Impact:         impact,
		Status:         models.StatusNovo,
		SLADeadline:    sla.CalculateDeadline(impact, now),
		CreatedAt:      now,
		MessageID:      input.DedupKey,
		EmailFrom:      input.Envelope.From,
		ReplyTo:        input.Envelope.ReplyTo,
		References:     strings.Join(input.Envelope.ReferenceIDs, " "),
	}

	if _, err := s.tickets.CreateWithHistory(ctx, ticket, 0, "criado a partir de email recebido"); err != nil {
		return nil, fmt.Errorf("failed to persist ticket: %w", err)
	}
	s.logf("[SYNTH] created ticket %d for %s (area=%d category=%d impact=%s)",
		ticket.ID, ticket.EmailFrom, ticket.AreaID, ticket.CategoryID, ticket.Impact)
	return ticket, nil
}

// resolveClient finds the requester by email inside the organization or
// creates it. First record wins; the name is never updated afterwards.
func (s *Synthesizer) resolveClient(ctx context.Context, organizationID int, env Envelope) (*models.Client, error) {
	email := strings.ToLower(strings.TrimSpace(env.From))
	if email == "" {
		return nil, fmt.Errorf("message has no sender address")
	}

	client, err := s.clients.GetByEmail(ctx, organizationID, email)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	name := strings.TrimSpace(env.FromName)
	if name == "" {
		name = localPart(email)
	}
	client = &models.Client{OrganizationID: organizationID, Name: name, Email: email}
	if _, err := s.clients.Create(ctx, client); err != nil {
		// Lost a race against a concurrent poll; read the winner back.
		if existing, lookupErr := s.clients.GetByEmail(ctx, organizationID, email); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	s.logf("[SYNTH] created client %d (%s)", client.ID, client.Email)
	return client, nil
}

func (s *Synthesizer) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
