package repository

import (
	"context"
	"sync"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

// MemoryTicketRepository is an in-memory TicketRepository.
type MemoryTicketRepository struct {
	mu            sync.Mutex
	nextID        int
	nextHistoryID int
	tickets       map[int]*models.Ticket
	history       []models.StatusHistory
}

func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{nextID: 1, nextHistoryID: 1, tickets: make(map[int]*models.Ticket)}
}

func (r *MemoryTicketRepository) CreateWithHistory(_ context.Context, ticket *models.Ticket, actorID int, notes string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	stored := *ticket
	stored.ID = r.nextID
	if stored.Status == "" {
		stored.Status = models.StatusNovo
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.tickets[stored.ID] = &stored
	r.history = append(r.history, models.StatusHistory{
		ID:        r.nextHistoryID,
		TicketID:  stored.ID,
		ToStatus:  stored.Status,
		ActorID:   actorID,
		Notes:     notes,
		CreatedAt: now,
	})
	r.nextID++
	r.nextHistoryID++
	ticket.ID = stored.ID
	ticket.Status = stored.Status
	ticket.CreatedAt = stored.CreatedAt
	ticket.UpdatedAt = stored.UpdatedAt
	return stored.ID, nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id int) (*models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (r *MemoryTicketRepository) ListByOrganization(_ context.Context, organizationID int) ([]models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tickets []models.Ticket
	for id := 1; id < r.nextID; id++ {
		ticket, ok := r.tickets[id]
		if !ok || ticket.OrganizationID != organizationID {
			continue
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

func (r *MemoryTicketRepository) UpdateStatus(_ context.Context, id int, fromStatus, toStatus string, actorID int, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.Status != fromStatus {
		return ErrNotFound
	}
	now := time.Now()
	from := fromStatus
	ticket.Status = toStatus
	ticket.UpdatedAt = now
	r.history = append(r.history, models.StatusHistory{
		ID:         r.nextHistoryID,
		TicketID:   id,
		FromStatus: &from,
		ToStatus:   toStatus,
		ActorID:    actorID,
		Notes:      notes,
		CreatedAt:  now,
	})
	r.nextHistoryID++
	return nil
}

func (r *MemoryTicketRepository) History(_ context.Context, ticketID int) ([]models.StatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []models.StatusHistory
	for _, entry := range r.history {
		if entry.TicketID == ticketID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
