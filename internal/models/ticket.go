package models

import "time"

// Impact levels driving the SLA budget.
const (
	ImpactBaixo = "baixo"
	ImpactMedio = "medio"
	ImpactAlto  = "alto"
)

// Ticket statuses. StatusEncerrado is the only terminal status.
const (
	StatusNovo              = "novo"
	StatusEmAnalise         = "em_analise"
	StatusAguardandoCliente = "aguardando_cliente"
	StatusEmExecucao        = "em_execucao"
	StatusResolvido         = "resolvido"
	StatusEncerrado         = "encerrado"
)

// Ticket is the central entity of the helpdesk core.
type Ticket struct {
	ID             int        `json:"id"`
	OrganizationID int        `json:"organization_id"`
	ClientID       int        `json:"client_id"`
	AreaID         int        `json:"area_id"`
	CategoryID     int        `json:"category_id"`
	SubcategoryID  int        `json:"subcategory_id"`
	ProductID      *int       `json:"product_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Impact         string     `json:"impact"`
	Status         string     `json:"status"`
	SLADeadline    time.Time  `json:"sla_deadline"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Email threading metadata, populated when the ticket was created from an
	// inbound message.
	MessageID  string `json:"message_id,omitempty"`
	EmailFrom  string `json:"email_from,omitempty"`
	ReplyTo    string `json:"reply_to,omitempty"`
	References string `json:"references,omitempty"`

	// SLA is a live projection filled by sla.Enrich; never stored.
	SLA *SLAInfo `json:"sla,omitempty"`
}

// SLAInfo is the computed SLA projection for a ticket at read time.
type SLAInfo struct {
	Status           string  `json:"status"` // ok, risco, quebrado
	HoursRemaining   float64 `json:"hours_remaining"`
	PercentRemaining int     `json:"percent_remaining"`
}

// StatusHistory is one row of the append-only transition audit trail.
// FromStatus is nil for the entry written at ticket creation.
type StatusHistory struct {
	ID         int       `json:"id"`
	TicketID   int       `json:"ticket_id"`
	FromStatus *string   `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    int       `json:"actor_id"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}
