package connector

import (
	"context"
	"time"
)

// Account carries the fields needed to open one mailbox folder.
type Account struct {
	Host     string
	Port     int
	Security string // imap, imaps, starttls
	Username string
	Password string
	Folder   string
}

// FolderStatus is the state of a selected folder at session open.
type FolderStatus struct {
	// HighWaterMark is the highest UID currently assigned in the folder.
	// A first-ever poll advances the cursor here without fetching.
	HighWaterMark uint32
}

// RawMessage is one on-wire RFC822 payload plus its UID and receive time.
type RawMessage struct {
	UID        uint32
	ReceivedAt time.Time
	Raw        []byte
}

// Session is an open, folder-selected mailbox connection. It must be closed
// exactly once, including on error paths.
type Session interface {
	// Select opens the folder and reports its current status.
	Select(folder string) (FolderStatus, error)
	// FetchSince returns all messages with UID greater than cursor, in
	// ascending UID order. The result is finite per cycle.
	FetchSince(ctx context.Context, cursor uint32) ([]RawMessage, error)
	Close() error
}

// Dialer opens sessions against a mailbox server.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Session, error)
}
