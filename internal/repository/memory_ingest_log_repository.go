package repository

import (
	"context"
	"sync"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

type ingestKey struct {
	mailboxID int
	messageID string
}

// MemoryIngestLogRepository is an in-memory IngestLogRepository enforcing the
// same (mailbox, message id) uniqueness as the database schema.
type MemoryIngestLogRepository struct {
	mu        sync.Mutex
	nextID    int
	entries   []models.IngestLog
	processed map[ingestKey]struct{}
}

func NewMemoryIngestLogRepository() *MemoryIngestLogRepository {
	return &MemoryIngestLogRepository{nextID: 1, processed: make(map[ingestKey]struct{})}
}

func (r *MemoryIngestLogRepository) Exists(_ context.Context, mailboxID int, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[ingestKey{mailboxID, messageID}]
	return ok, nil
}

func (r *MemoryIngestLogRepository) RecordProcessed(_ context.Context, mailboxID int, messageID string, ticketID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ingestKey{mailboxID, messageID}
	if _, ok := r.processed[key]; ok {
		return ErrDuplicateMessage
	}
	r.processed[key] = struct{}{}
	id := ticketID
	r.entries = append(r.entries, models.IngestLog{
		ID:        r.nextID,
		MailboxID: mailboxID,
		MessageID: messageID,
		Outcome:   models.IngestProcessed,
		TicketID:  &id,
		CreatedAt: time.Now(),
	})
	r.nextID++
	return nil
}

func (r *MemoryIngestLogRepository) RecordError(_ context.Context, mailboxID int, messageID string, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message := cause
	r.entries = append(r.entries, models.IngestLog{
		ID:        r.nextID,
		MailboxID: mailboxID,
		MessageID: messageID,
		Outcome:   models.IngestError,
		Error:     &message,
		CreatedAt: time.Now(),
	})
	r.nextID++
	return nil
}

func (r *MemoryIngestLogRepository) ListByMailbox(_ context.Context, mailboxID int, limit int) ([]models.IngestLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var entries []models.IngestLog
	for i := len(r.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.entries[i].MailboxID == mailboxID {
			entries = append(entries, r.entries[i])
		}
	}
	return entries, nil
}
