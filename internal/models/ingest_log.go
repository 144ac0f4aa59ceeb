package models

import "time"

// Ingest outcomes.
const (
	IngestProcessed = "processed"
	IngestError     = "error"
)

// IngestLog is the dedup ledger: one append-only row per inbound message
// attempt, unique on (mailbox_id, message_id) for non-error outcomes.
type IngestLog struct {
	ID        int       `json:"id"`
	MailboxID int       `json:"mailbox_id"`
	MessageID string    `json:"message_id"`
	Outcome   string    `json:"outcome"`
	TicketID  *int      `json:"ticket_id,omitempty"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SendLog records each outbound reply attempt, success or failure.
type SendLog struct {
	ID        int       `json:"id"`
	TicketID  int       `json:"ticket_id"`
	MailboxID int       `json:"mailbox_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Success   bool      `json:"success"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
