package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

// MemoryClientRepository is an in-memory ClientRepository.
type MemoryClientRepository struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Client
}

func NewMemoryClientRepository() *MemoryClientRepository {
	return &MemoryClientRepository{nextID: 1, items: make(map[int]*models.Client)}
}

func (r *MemoryClientRepository) GetByEmail(_ context.Context, organizationID int, email string) (*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(email))
	for id := 1; id < r.nextID; id++ {
		client, ok := r.items[id]
		if !ok {
			continue
		}
		if client.OrganizationID == organizationID && strings.ToLower(client.Email) == needle {
			copied := *client
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryClientRepository) Create(_ context.Context, client *models.Client) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *client
	stored.ID = r.nextID
	stored.Email = strings.ToLower(strings.TrimSpace(stored.Email))
	stored.CreatedAt = time.Now()
	r.items[stored.ID] = &stored
	r.nextID++
	client.ID = stored.ID
	client.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

// MemoryCatalogRepository serves a fixed menu.
type MemoryCatalogRepository struct {
	mu   sync.RWMutex
	menu models.Menu
}

func NewMemoryCatalogRepository(menu models.Menu) *MemoryCatalogRepository {
	return &MemoryCatalogRepository{menu: menu}
}

func (r *MemoryCatalogRepository) Menu(_ context.Context, _ int) (*models.Menu, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := r.menu
	return &copied, nil
}

// MemorySendLogRepository is an in-memory SendLogRepository.
type MemorySendLogRepository struct {
	mu      sync.Mutex
	nextID  int
	entries []models.SendLog
}

func NewMemorySendLogRepository() *MemorySendLogRepository {
	return &MemorySendLogRepository{nextID: 1}
}

func (r *MemorySendLogRepository) Record(_ context.Context, entry *models.SendLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, *entry)
	r.nextID++
	return nil
}

func (r *MemorySendLogRepository) ListByTicket(_ context.Context, ticketID int) ([]models.SendLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []models.SendLog
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// MemoryAttachmentRepository is an in-memory AttachmentRepository.
type MemoryAttachmentRepository struct {
	mu     sync.Mutex
	nextID int
	items  []models.Attachment
}

func NewMemoryAttachmentRepository() *MemoryAttachmentRepository {
	return &MemoryAttachmentRepository{nextID: 1}
}

func (r *MemoryAttachmentRepository) Create(_ context.Context, attachment *models.Attachment) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attachment.ID = r.nextID
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now()
	}
	r.items = append(r.items, *attachment)
	r.nextID++
	return attachment.ID, nil
}

func (r *MemoryAttachmentRepository) ListByTicket(_ context.Context, ticketID int) ([]models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var attachments []models.Attachment
	for _, attachment := range r.items {
		if attachment.TicketID == ticketID {
			attachments = append(attachments, attachment)
		}
	}
	return attachments, nil
}
