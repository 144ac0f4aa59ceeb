package repository

import (
	"context"
	"sync"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

// MemoryMailboxRepository is an in-memory MailboxRepository used in tests and
// single-process setups.
type MemoryMailboxRepository struct {
	mu     sync.RWMutex
	nextID int
	items  map[int]*models.Mailbox
}

func NewMemoryMailboxRepository() *MemoryMailboxRepository {
	return &MemoryMailboxRepository{nextID: 1, items: make(map[int]*models.Mailbox)}
}

func (r *MemoryMailboxRepository) Create(_ context.Context, mailbox *models.Mailbox) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *mailbox
	stored.ID = r.nextID
	if stored.Status == "" {
		stored.Status = models.MailboxIdle
	}
	r.items[stored.ID] = &stored
	r.nextID++
	mailbox.ID = stored.ID
	return stored.ID, nil
}

func (r *MemoryMailboxRepository) GetByID(_ context.Context, id int) (*models.Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mailbox, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *mailbox
	return &copied, nil
}

func (r *MemoryMailboxRepository) ListEnabled(_ context.Context) ([]models.Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var mailboxes []models.Mailbox
	for id := 1; id < r.nextID; id++ {
		mailbox, ok := r.items[id]
		if !ok || !mailbox.Enabled {
			continue
		}
		mailboxes = append(mailboxes, *mailbox)
	}
	return mailboxes, nil
}

func (r *MemoryMailboxRepository) UpdateCursor(_ context.Context, id int, lastUID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mailbox, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	mailbox.LastUID = lastUID
	return nil
}

func (r *MemoryMailboxRepository) UpdateStatus(_ context.Context, id int, status string, lastError *string, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mailbox, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	mailbox.Status = status
	mailbox.LastError = lastError
	at := checkedAt
	mailbox.LastCheckedAt = &at
	return nil
}
