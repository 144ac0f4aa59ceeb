package models

import "time"

// Client is an organization's counterparty, resolved or created by the ticket
// synthesizer. First-seen-wins; no merge logic.
type Client struct {
	ID             int       `json:"id"`
	OrganizationID int       `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
}

// Area is a responsible area tickets are routed to.
type Area struct {
	ID             int    `json:"id" db:"id"`
	OrganizationID int    `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
}

// Category groups tickets below an area.
type Category struct {
	ID             int           `json:"id" db:"id"`
	OrganizationID int           `json:"organization_id" db:"organization_id"`
	Name           string        `json:"name" db:"name"`
	Subcategories  []Subcategory `json:"subcategories" db:"-"`
}

// Subcategory belongs to exactly one category.
type Subcategory struct {
	ID         int    `json:"id" db:"id"`
	CategoryID int    `json:"category_id" db:"category_id"`
	Name       string `json:"name" db:"name"`
}

// Product is an optional classification axis offered to the classifier.
type Product struct {
	ID             int    `json:"id" db:"id"`
	OrganizationID int    `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
}

// Menu bundles an organization's current routing choices for classification.
type Menu struct {
	Areas      []Area
	Categories []Category
	Products   []Product
}

// Attachment is a stored inbound email attachment linked to a ticket.
type Attachment struct {
	ID          int       `json:"id"`
	TicketID    int       `json:"ticket_id"`
	Filename    string    `json:"filename"`
	StoredRef   string    `json:"stored_ref"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
