package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/powerlens/powerlens/internal/domain"
)

// Bundle is the JSON interchange format for all CRM records.
type Bundle struct {
	Clients   []domain.Client        `json:"clients"`
	Invoices  []domain.Invoice       `json:"invoices"`
	Leads     []domain.Lead          `json:"leads"`
	Templates []domain.EmailTemplate `json:"templates"`
}

// ImportStats counts records written by Import.
type ImportStats struct {
	Clients   int `json:"clients"`
	Invoices  int `json:"invoices"`
	Leads     int `json:"leads"`
	Templates int `json:"templates"`
}

// Export writes every CRM record as one JSON document.
func (s *Service) Export(w io.Writer) error {
	var b Bundle
	var err error
	if b.Clients, err = s.db.ListClients(); err != nil {
		return err
	}
	if b.Invoices, err = s.db.ListInvoices("", ""); err != nil {
		return err
	}
	if b.Leads, err = s.db.ListLeads(""); err != nil {
		return err
	}
	if b.Templates, err = s.db.ListTemplates(); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Import merges a bundle. Clients, leads and templates are upserted by key;
// invoices that already exist are left untouched, and an invoice whose number
// is taken gets the next free one.
func (s *Service) Import(r io.Reader) (ImportStats, error) {
	var st ImportStats
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return st, fmt.Errorf("decode crm bundle: %w", err)
	}

	for _, c := range b.Clients {
		if c.ID == "" {
			c.ID = s.newID()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		if err := s.db.UpsertClient(c); err != nil {
			return st, fmt.Errorf("client %s: %w", c.Name, err)
		}
		st.Clients++
	}

	for _, inv := range b.Invoices {
		if inv.ID == "" {
			inv.ID = s.newID()
		} else if _, err := s.db.GetInvoice(inv.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrInvoiceNotFound) {
			return st, err
		}

		if _, err := s.db.InsertInvoice(inv); err != nil {
			if inv.Number == 0 {
				return st, fmt.Errorf("invoice %s: %w", inv.ID, err)
			}
			inv.Number = 0
			if _, err := s.db.InsertInvoice(inv); err != nil {
				return st, fmt.Errorf("invoice %s: %w", inv.ID, err)
			}
		}
		st.Invoices++
	}

	for _, l := range b.Leads {
		if l.ID == "" {
			l.ID = s.newID()
		}
		if l.Status == "" {
			l.Status = domain.LeadNew
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.now()
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = l.CreatedAt
		}
		if err := s.db.UpsertLead(l); err != nil {
			return st, fmt.Errorf("lead %s: %w", l.Name, err)
		}
		st.Leads++
	}

	for _, t := range b.Templates {
		if _, _, err := parseTemplate(t); err != nil {
			return st, err
		}
		if err := s.db.UpsertTemplate(t); err != nil {
			return st, fmt.Errorf("template %s: %w", t.Name, err)
		}
		st.Templates++
	}

	log.Printf("[crm] imported %d clients, %d invoices, %d leads, %d templates",
		st.Clients, st.Invoices, st.Leads, st.Templates)
	return st, nil
}
