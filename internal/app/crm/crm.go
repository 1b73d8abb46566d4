// Package crm implements the client, invoice, lead and email-template
// bookkeeping that ships alongside the power tools.
package crm

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
)

// DefaultCurrency is used when an invoice does not name one.
const DefaultCurrency = "USD"

// DefaultDueIn is the payment term applied to new invoices.
const DefaultDueIn = 30 * 24 * time.Hour

// Service manages CRM records.
type Service struct {
	db *sqlite.DB

	currency string
	dueIn    time.Duration

	now   func() time.Time
	newID func() string
}

// Options configures invoice defaults.
type Options struct {
	Currency string        `toml:"currency"`
	DueIn    time.Duration `toml:"-"`
}

// NewService creates a CRM service.
func NewService(db *sqlite.DB, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if opts.DueIn <= 0 {
		opts.DueIn = DefaultDueIn
	}
	return &Service{
		db:       db,
		currency: strings.ToUpper(opts.Currency),
		dueIn:    opts.DueIn,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ─── Clients ────────────────────────────────────────────────────────────────

// AddClient creates a client.
func (s *Service) AddClient(name, email, company string) (*domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	c := domain.Client{
		ID:        s.newID(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		Company:   strings.TrimSpace(company),
		CreatedAt: s.now(),
	}
	if err := s.db.InsertClient(c); err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	log.Printf("[crm] added client %s (%s)", c.Name, c.ID)
	return &c, nil
}

// Clients lists all clients.
func (s *Service) Clients() ([]domain.Client, error) {
	return s.db.ListClients()
}

// Client returns one client.
func (s *Service) Client(id string) (*domain.Client, error) {
	return s.db.GetClient(id)
}

// RemoveClient deletes a client that has no invoices.
func (s *Service) RemoveClient(id string) error {
	return s.db.DeleteClient(id)
}

// ─── Invoices ───────────────────────────────────────────────────────────────

// CreateInvoice drafts an invoice for a client. Amounts are integer cents.
func (s *Service) CreateInvoice(clientID string, items []domain.LineItem, currency string) (*domain.Invoice, error) {
	if len(items) == 0 {
		return nil, domain.ErrInvoiceEmpty
	}
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitCents < 0 || strings.TrimSpace(it.Description) == "" {
			return nil, fmt.Errorf("invalid line item %q (qty %d, unit %d)", it.Description, it.Quantity, it.UnitCents)
		}
	}
	if _, err := s.db.GetClient(clientID); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	inv := domain.Invoice{
		ID:       s.newID(),
		ClientID: clientID,
		Status:   domain.InvoiceDraft,
		Items:    items,
		Currency: strings.ToUpper(currency),
		IssuedAt: now,
		DueAt:    now.Add(s.dueIn),
	}
	num, err := s.db.InsertInvoice(inv)
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	inv.Number = num
	log.Printf("[crm] drafted invoice #%d for %s: %s", inv.Number, clientID, FormatCents(inv.TotalCents(), inv.Currency))
	return &inv, nil
}

// Invoices lists invoices, optionally filtered by client and status.
func (s *Service) Invoices(clientID string, status domain.InvoiceStatus) ([]domain.Invoice, error) {
	return s.db.ListInvoices(clientID, status)
}

// Invoice returns one invoice with its line items.
func (s *Service) Invoice(id string) (*domain.Invoice, error) {
	return s.db.GetInvoice(id)
}

// MarkSent moves a draft invoice to sent.
func (s *Service) MarkSent(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return err
	}
	if inv.Status == domain.InvoicePaid {
		return domain.ErrInvoiceAlreadyPaid
	}
	return s.db.UpdateInvoiceStatus(id, domain.InvoiceSent, time.Time{})
}

// MarkPaid records payment.
func (s *Service) MarkPaid(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return err
	}
	if inv.Status == domain.InvoicePaid {
		return domain.ErrInvoiceAlreadyPaid
	}
	if err := s.db.UpdateInvoiceStatus(id, domain.InvoicePaid, s.now()); err != nil {
		return err
	}
	log.Printf("[crm] invoice #%d paid", inv.Number)
	return nil
}

// Overdue returns unpaid invoices past their due date.
func (s *Service) Overdue() ([]domain.Invoice, error) {
	all, err := s.db.ListInvoices("", "")
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []domain.Invoice
	for _, inv := range all {
		if inv.IsOverdue(now) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// FormatCents renders an amount like "1,234.50 USD".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s.%02d %s", sign, b.String(), cents%100, currency)
}

// ─── Leads ──────────────────────────────────────────────────────────────────

// ParseLeadStatus validates a lead status name.
func ParseLeadStatus(s string) (domain.LeadStatus, error) {
	st := domain.LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case domain.LeadNew, domain.LeadContacted, domain.LeadQualified, domain.LeadWon, domain.LeadLost:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidLeadStatus, s)
}

// AddLead records a new lead.
func (s *Service) AddLead(name, email, source, notes string) (*domain.Lead, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("lead name is required")
	}
	now := s.now()
	l := domain.Lead{
		ID:        s.newID(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		Source:    source,
		Status:    domain.LeadNew,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.UpsertLead(l); err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return &l, nil
}

// Leads lists leads, optionally filtered by status.
func (s *Service) Leads(status domain.LeadStatus) ([]domain.Lead, error) {
	return s.db.ListLeads(status)
}

// AdvanceLead moves a lead through the pipeline. A note, when given, is
// appended to the lead's notes.
func (s *Service) AdvanceLead(id string, next domain.LeadStatus, note string) (*domain.Lead, error) {
	l, err := s.db.GetLead(id)
	if err != nil {
		return nil, err
	}
	if !l.Status.CanAdvanceTo(next) {
		return nil, fmt.Errorf("%w: %s → %s", domain.ErrInvalidLeadStatus, l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = s.now()
	if note = strings.TrimSpace(note); note != "" {
		if l.Notes != "" {
			l.Notes += "\n"
		}
		l.Notes += note
	}
	if err := s.db.UpsertLead(*l); err != nil {
		return nil, err
	}
	log.Printf("[crm] lead %s → %s", l.Name, l.Status)
	return l, nil
}
