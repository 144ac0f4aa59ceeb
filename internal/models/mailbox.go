package models

import "time"

// Mailbox lifecycle statuses maintained by the poller.
const (
	MailboxIdle       = "idle"
	MailboxConnecting = "connecting"
	MailboxError      = "error"
)

// Mailbox is a configured inbound+outbound email connector owned by an
// organization. The poller is the only writer of LastUID, Status, LastError
// and LastCheckedAt.
type Mailbox struct {
	ID             int    `json:"id"`
	OrganizationID int    `json:"organization_id"`
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPSecurity string `json:"imap_security"` // imap, imaps, starttls
	IMAPUser     string `json:"imap_user"`
	IMAPPassword string `json:"-"`
	Folder       string `json:"folder"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"-"`
	SMTPFrom     string `json:"smtp_from"`

	// LastUID is the per-mailbox cursor: the highest message UID already
	// covered by a completed poll batch. Advances monotonically.
	LastUID uint32 `json:"last_uid"`

	// Default routing applied when classification fails or is restricted.
	DefaultAreaID      int    `json:"default_area_id"`
	DefaultCategoryID  int    `json:"default_category_id"`
	AllowedCategoryIDs []int  `json:"allowed_category_ids"`
	DefaultImpact      string `json:"default_impact"`

	Status        string     `json:"status"`
	LastError     *string    `json:"last_error,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}
