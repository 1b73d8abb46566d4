package domain

import "time"

// Client is a billable customer.
type Client struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Company   string    `json:"company,omitempty" yaml:"company,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// InvoiceStatus tracks invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
)

// LineItem is one billed line. Amounts are integer cents.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
}

// Cents returns the line total.
func (l LineItem) Cents() int64 {
	return l.Quantity * l.UnitCents
}

// Invoice bills a client.
type Invoice struct {
	ID       string        `json:"id"`
	Number   int64         `json:"number"`
	ClientID string        `json:"client_id"`
	Status   InvoiceStatus `json:"status"`
	Items    []LineItem    `json:"items"`
	Currency string        `json:"currency"`
	IssuedAt time.Time     `json:"issued_at"`
	DueAt    time.Time     `json:"due_at"`
	PaidAt   time.Time     `json:"paid_at,omitempty"`
}

// TotalCents sums all line items.
func (inv Invoice) TotalCents() int64 {
	var total int64
	for _, it := range inv.Items {
		total += it.Cents()
	}
	return total
}

// IsOverdue reports whether an unpaid invoice is past its due date.
func (inv Invoice) IsOverdue(now time.Time) bool {
	return inv.Status != InvoicePaid && !inv.DueAt.IsZero() && now.After(inv.DueAt)
}

// LeadStatus tracks a marketing lead through the funnel.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadWon       LeadStatus = "won"
	LeadLost      LeadStatus = "lost"
)

// CanAdvanceTo reports whether the funnel allows moving from s to next.
// Any open lead may be lost; otherwise leads move one step forward.
func (s LeadStatus) CanAdvanceTo(next LeadStatus) bool {
	if s == LeadWon || s == LeadLost {
		return false
	}
	if next == LeadLost {
		return true
	}
	switch s {
	case LeadNew:
		return next == LeadContacted
	case LeadContacted:
		return next == LeadQualified
	case LeadQualified:
		return next == LeadWon
	}
	return false
}

// Lead is a prospective client.
type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Source    string     `json:"source,omitempty"`
	Status    LeadStatus `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EmailTemplate is a named text/template for outreach mail.
type EmailTemplate struct {
	Name    string `json:"name" yaml:"name"`
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}
