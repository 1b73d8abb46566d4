package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
)

// ─── Clients ────────────────────────────────────────────────────────────────

// InsertClient creates a client record.
func (d *DB) InsertClient(c domain.Client) error {
	_, err := d.db.Exec(
		`INSERT INTO clients (id, name, email, company, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Company, c.CreatedAt.Unix(),
	)
	return err
}

// UpsertClient inserts or replaces a client, keyed by ID.
func (d *DB) UpsertClient(c domain.Client) error {
	_, err := d.db.Exec(
		`INSERT INTO clients (id, name, email, company, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			email=excluded.email,
			company=excluded.company`,
		c.ID, c.Name, c.Email, c.Company, c.CreatedAt.Unix(),
	)
	return err
}

// GetClient retrieves a client by ID.
func (d *DB) GetClient(id string) (*domain.Client, error) {
	row := d.db.QueryRow(`SELECT id, name, email, company, created_at FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrClientNotFound, id)
	}
	return c, err
}

// ListClients returns all clients ordered by name.
func (d *DB) ListClients() ([]domain.Client, error) {
	rows, err := d.db.Query(`SELECT id, name, email, company, created_at FROM clients ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteClient removes a client. Clients with invoices are kept.
func (d *DB) DeleteClient(id string) error {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM invoices WHERE client_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d invoice(s)", domain.ErrClientHasInvoices, n)
	}

	result, err := d.db.Exec(`DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrClientNotFound, id)
	}
	return nil
}

func scanClient(s scanner) (*domain.Client, error) {
	var c domain.Client
	var created int64
	if err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

// ─── Invoices ───────────────────────────────────────────────────────────────

// InsertInvoice stores an invoice and its line items. A zero Number is
// replaced by the next free invoice number, which is returned.
func (d *DB) InsertInvoice(inv domain.Invoice) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if inv.Number == 0 {
		if err := tx.QueryRow(`SELECT COALESCE(MAX(number), 0) + 1 FROM invoices`).Scan(&inv.Number); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO invoices (id, number, client_id, status, currency, issued_at, due_at, paid_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.ClientID, string(inv.Status), inv.Currency,
		inv.IssuedAt.Unix(), nullableUnix(inv.DueAt), nullableUnix(inv.PaidAt),
	); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return 0, fmt.Errorf("%w: %s", domain.ErrClientNotFound, inv.ClientID)
		}
		return 0, err
	}

	for i, it := range inv.Items {
		if _, err := tx.Exec(
			`INSERT INTO invoice_items (invoice_id, seq, description, quantity, unit_cents)
			 VALUES (?, ?, ?, ?, ?)`,
			inv.ID, i, it.Description, it.Quantity, it.UnitCents,
		); err != nil {
			return 0, err
		}
	}
	return inv.Number, tx.Commit()
}

// GetInvoice retrieves an invoice with its line items.
func (d *DB) GetInvoice(id string) (*domain.Invoice, error) {
	row := d.db.QueryRow(
		`SELECT id, number, client_id, status, currency, issued_at, due_at, paid_at
		 FROM invoices WHERE id = ?`, id,
	)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if inv.Items, err = d.invoiceItems(inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns invoices, optionally filtered by client and status.
func (d *DB) ListInvoices(clientID string, status domain.InvoiceStatus) ([]domain.Invoice, error) {
	rows, err := d.db.Query(
		`SELECT id, number, client_id, status, currency, issued_at, due_at, paid_at
		 FROM invoices
		 WHERE (? = '' OR client_id = ?) AND (? = '' OR status = ?)
		 ORDER BY number`,
		clientID, clientID, string(status), string(status),
	)
	if err != nil {
		return nil, err
	}

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Single connection: items are loaded after the outer cursor is released.
	for i := range out {
		if out[i].Items, err = d.invoiceItems(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateInvoiceStatus sets the status and paid timestamp.
func (d *DB) UpdateInvoiceStatus(id string, status domain.InvoiceStatus, paidAt time.Time) error {
	result, err := d.db.Exec(
		`UPDATE invoices SET status = ?, paid_at = ? WHERE id = ?`,
		string(status), nullableUnix(paidAt), id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, id)
	}
	return nil
}

func (d *DB) invoiceItems(invoiceID string) ([]domain.LineItem, error) {
	rows, err := d.db.Query(
		`SELECT description, quantity, unit_cents FROM invoice_items WHERE invoice_id = ? ORDER BY seq`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.Description, &it.Quantity, &it.UnitCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanInvoice(s scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string
	var issued int64
	var due, paid sql.NullInt64
	if err := s.Scan(&inv.ID, &inv.Number, &inv.ClientID, &status, &inv.Currency, &issued, &due, &paid); err != nil {
		return nil, err
	}
	inv.Status = domain.InvoiceStatus(status)
	inv.IssuedAt = time.Unix(issued, 0)
	inv.DueAt = fromNullableUnix(due)
	inv.PaidAt = fromNullableUnix(paid)
	return &inv, nil
}

// ─── Leads ──────────────────────────────────────────────────────────────────

// UpsertLead inserts or updates a lead, keyed by ID.
func (d *DB) UpsertLead(l domain.Lead) error {
	_, err := d.db.Exec(
		`INSERT INTO leads (id, name, email, source, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			email=excluded.email,
			source=excluded.source,
			status=excluded.status,
			notes=excluded.notes,
			updated_at=excluded.updated_at`,
		l.ID, l.Name, l.Email, l.Source, string(l.Status), l.Notes,
		l.CreatedAt.Unix(), l.UpdatedAt.Unix(),
	)
	return err
}

// GetLead retrieves a lead by ID.
func (d *DB) GetLead(id string) (*domain.Lead, error) {
	row := d.db.QueryRow(
		`SELECT id, name, email, source, status, notes, created_at, updated_at FROM leads WHERE id = ?`, id,
	)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrLeadNotFound, id)
	}
	return l, err
}

// ListLeads returns leads, optionally filtered by status, newest first.
func (d *DB) ListLeads(status domain.LeadStatus) ([]domain.Lead, error) {
	rows, err := d.db.Query(
		`SELECT id, name, email, source, status, notes, created_at, updated_at FROM leads
		 WHERE (? = '' OR status = ?) ORDER BY created_at DESC, rowid DESC`,
		string(status), string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLead(s scanner) (*domain.Lead, error) {
	var l domain.Lead
	var status string
	var created, updated int64
	if err := s.Scan(&l.ID, &l.Name, &l.Email, &l.Source, &status, &l.Notes, &created, &updated); err != nil {
		return nil, err
	}
	l.Status = domain.LeadStatus(status)
	l.CreatedAt = time.Unix(created, 0)
	l.UpdatedAt = time.Unix(updated, 0)
	return &l, nil
}

// ─── Email Templates ────────────────────────────────────────────────────────

// InsertTemplate stores a new template. Names are unique.
func (d *DB) InsertTemplate(t domain.EmailTemplate) error {
	_, err := d.db.Exec(
		`INSERT INTO email_templates (name, subject, body) VALUES (?, ?, ?)`,
		t.Name, t.Subject, t.Body,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %s", domain.ErrTemplateExists, t.Name)
	}
	return err
}

// UpsertTemplate inserts or replaces a template.
func (d *DB) UpsertTemplate(t domain.EmailTemplate) error {
	_, err := d.db.Exec(
		`INSERT INTO email_templates (name, subject, body) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET subject=excluded.subject, body=excluded.body`,
		t.Name, t.Subject, t.Body,
	)
	return err
}

// GetTemplate retrieves a template by name.
func (d *DB) GetTemplate(name string) (*domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	err := d.db.QueryRow(
		`SELECT name, subject, body FROM email_templates WHERE name = ?`, name,
	).Scan(&t.Name, &t.Subject, &t.Body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by name.
func (d *DB) ListTemplates() ([]domain.EmailTemplate, error) {
	rows, err := d.db.Query(`SELECT name, subject, body FROM email_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmailTemplate
	for rows.Next() {
		var t domain.EmailTemplate
		if err := rows.Scan(&t.Name, &t.Subject, &t.Body); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template.
func (d *DB) DeleteTemplate(name string) error {
	result, err := d.db.Exec(`DELETE FROM email_templates WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
	}
	return nil
}
