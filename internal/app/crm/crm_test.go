package crm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
)

func newTestService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Unix(1_700_000_000, 0)
	svc := NewService(db, Options{})
	svc.now = func() time.Time { return now }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	return svc, &now
}

// ─── Clients & Invoices ─────────────────────────────────────────────────────

func TestInvoiceLifecycle(t *testing.T) {
	svc, now := newTestService(t)

	c, err := svc.AddClient("Acme", "ap@acme.test", "Acme Corp")
	if err != nil {
		t.Fatalf("AddClient() error: %v", err)
	}

	inv, err := svc.CreateInvoice(c.ID, []domain.LineItem{
		{Description: "Power audit", Quantity: 3, UnitCents: 12_000},
		{Description: "Report", Quantity: 1, UnitCents: 4_550},
	}, "")
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if inv.Number != 1 || inv.Status != domain.InvoiceDraft || inv.Currency != "USD" {
		t.Errorf("invoice = %+v", inv)
	}
	if inv.TotalCents() != 40_550 {
		t.Errorf("TotalCents() = %d, want 40550", inv.TotalCents())
	}
	if !inv.DueAt.Equal(now.Add(DefaultDueIn)) {
		t.Errorf("DueAt = %v, want issue + 30 days", inv.DueAt)
	}

	if err := svc.MarkSent(inv.ID); err != nil {
		t.Fatalf("MarkSent() error: %v", err)
	}

	// Not overdue yet.
	if od, _ := svc.Overdue(); len(od) != 0 {
		t.Errorf("Overdue() = %d invoices before due date", len(od))
	}
	*now = now.Add(31 * 24 * time.Hour)
	od, err := svc.Overdue()
	if err != nil {
		t.Fatalf("Overdue() error: %v", err)
	}
	if len(od) != 1 || od[0].ID != inv.ID {
		t.Errorf("Overdue() = %+v", od)
	}

	if err := svc.MarkPaid(inv.ID); err != nil {
		t.Fatalf("MarkPaid() error: %v", err)
	}
	if err := svc.MarkPaid(inv.ID); !errors.Is(err, domain.ErrInvoiceAlreadyPaid) {
		t.Errorf("second MarkPaid() = %v, want ErrInvoiceAlreadyPaid", err)
	}
	if err := svc.MarkSent(inv.ID); !errors.Is(err, domain.ErrInvoiceAlreadyPaid) {
		t.Errorf("MarkSent() on paid = %v, want ErrInvoiceAlreadyPaid", err)
	}
	if od, _ := svc.Overdue(); len(od) != 0 {
		t.Error("paid invoice should not be overdue")
	}

	if err := svc.RemoveClient(c.ID); !errors.Is(err, domain.ErrClientHasInvoices) {
		t.Errorf("RemoveClient() = %v, want ErrClientHasInvoices", err)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	c, _ := svc.AddClient("Acme", "", "")

	tests := []struct {
		name     string
		clientID string
		items    []domain.LineItem
		want     error
	}{
		{"no items", c.ID, nil, domain.ErrInvoiceEmpty},
		{"unknown client", "ghost", []domain.LineItem{{Description: "x", Quantity: 1, UnitCents: 1}}, domain.ErrClientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateInvoice(tt.clientID, tt.items, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := svc.CreateInvoice(c.ID, []domain.LineItem{{Description: "x", Quantity: 0, UnitCents: 100}}, ""); err == nil {
		t.Error("zero quantity should be rejected")
	}
}

func TestAddClient_RequiresName(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.AddClient("  ", "a@b.test", ""); err == nil {
		t.Error("blank name should be rejected")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00 USD"},
		{5, "0.05 USD"},
		{123456, "1,234.56 USD"},
		{100000000, "1,000,000.00 USD"},
		{-250, "-2.50 USD"},
	}
	for _, tt := range tests {
		if got := FormatCents(tt.cents, "USD"); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

// ─── Leads ──────────────────────────────────────────────────────────────────

func TestLeadPipeline(t *testing.T) {
	svc, _ := newTestService(t)
	l, err := svc.AddLead("Jo", "jo@example.test", "conference", "")
	if err != nil {
		t.Fatalf("AddLead() error: %v", err)
	}
	if l.Status != domain.LeadNew {
		t.Errorf("Status = %s, want new", l.Status)
	}

	if _, err := svc.AdvanceLead(l.ID, domain.LeadQualified, ""); !errors.Is(err, domain.ErrInvalidLeadStatus) {
		t.Errorf("skipping a stage: err = %v, want ErrInvalidLeadStatus", err)
	}

	for _, next := range []domain.LeadStatus{domain.LeadContacted, domain.LeadQualified, domain.LeadWon} {
		if l, err = svc.AdvanceLead(l.ID, next, "moved to "+string(next)); err != nil {
			t.Fatalf("AdvanceLead(%s) error: %v", next, err)
		}
	}
	if l.Status != domain.LeadWon {
		t.Errorf("Status = %s, want won", l.Status)
	}
	if strings.Count(l.Notes, "\n") != 2 {
		t.Errorf("Notes = %q, want three lines", l.Notes)
	}

	if _, err := svc.AdvanceLead(l.ID, domain.LeadLost, ""); !errors.Is(err, domain.ErrInvalidLeadStatus) {
		t.Errorf("won lead moved again: err = %v", err)
	}

	won, _ := svc.Leads(domain.LeadWon)
	if len(won) != 1 {
		t.Errorf("Leads(won) returned %d, want 1", len(won))
	}
}

func TestParseLeadStatus(t *testing.T) {
	if st, err := ParseLeadStatus(" Qualified "); err != nil || st != domain.LeadQualified {
		t.Errorf("ParseLeadStatus() = %q, %v", st, err)
	}
	if _, err := ParseLeadStatus("maybe"); !errors.Is(err, domain.ErrInvalidLeadStatus) {
		t.Errorf("err = %v, want ErrInvalidLeadStatus", err)
	}
}

// ─── Templates ──────────────────────────────────────────────────────────────

const templatesYAML = `templates:
  - name: followup
    subject: "Following up, {{.Name}}"
    body: |
      Hi {{.Name}},
      Thanks for stopping by at {{.Source}}.
  - name: invoice-reminder
    subject: "Invoice reminder for {{.Company}}"
    body: "Dear {{.Name}}, a friendly reminder."
`

func TestImportAndRenderTemplates(t *testing.T) {
	svc, _ := newTestService(t)

	n, err := svc.ImportTemplates(strings.NewReader(templatesYAML))
	if err != nil {
		t.Fatalf("ImportTemplates() error: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d templates, want 2", n)
	}

	l, _ := svc.AddLead("Sam", "sam@example.test", "WWDC", "")
	out, err := svc.RenderForLead("followup", l.ID)
	if err != nil {
		t.Fatalf("RenderForLead() error: %v", err)
	}
	if out.Subject != "Following up, Sam" || out.To != "sam@example.test" {
		t.Errorf("rendered = %+v", out)
	}
	if !strings.Contains(out.Body, "stopping by at WWDC") {
		t.Errorf("body = %q", out.Body)
	}

	c, _ := svc.AddClient("Lee", "lee@corp.test", "Corp")
	out, err = svc.RenderForClient("invoice-reminder", c.ID)
	if err != nil {
		t.Fatalf("RenderForClient() error: %v", err)
	}
	if out.Subject != "Invoice reminder for Corp" {
		t.Errorf("subject = %q", out.Subject)
	}
}

func TestImportTemplates_TopLevelList(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.ImportTemplates(strings.NewReader("- name: hello\n  subject: Hi\n  body: Hello {{.Name}}\n"))
	if err != nil || n != 1 {
		t.Fatalf("ImportTemplates() = %d, %v", n, err)
	}
}

func TestImportTemplates_RejectsBadSyntax(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ImportTemplates(strings.NewReader("templates:\n  - name: broken\n    subject: \"{{.Name\"\n    body: x\n"))
	if err == nil {
		t.Fatal("unparseable template should be rejected")
	}
	if list, _ := svc.Templates(); len(list) != 0 {
		t.Error("nothing should be stored when any template fails")
	}
}

func TestAddTemplate_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)
	tpl := domain.EmailTemplate{Name: "hello", Subject: "Hi", Body: "Hello {{.Name}}"}
	if err := svc.AddTemplate(tpl); err != nil {
		t.Fatalf("AddTemplate() error: %v", err)
	}
	if err := svc.AddTemplate(tpl); !errors.Is(err, domain.ErrTemplateExists) {
		t.Errorf("err = %v, want ErrTemplateExists", err)
	}
}

func TestRender_MissingTemplate(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Render("nope", RenderData{}); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("err = %v, want ErrTemplateNotFound", err)
	}
}

// ─── Export / Import ────────────────────────────────────────────────────────

func TestExportImport(t *testing.T) {
	src, _ := newTestService(t)
	c, _ := src.AddClient("Acme", "ap@acme.test", "")
	src.CreateInvoice(c.ID, []domain.LineItem{{Description: "audit", Quantity: 1, UnitCents: 9900}}, "eur")
	src.AddLead("Jo", "jo@example.test", "web", "")
	src.AddTemplate(domain.EmailTemplate{Name: "hello", Subject: "Hi {{.Name}}", Body: "..."})

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	dst, _ := newTestService(t)
	st, err := dst.Import(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if st != (ImportStats{Clients: 1, Invoices: 1, Leads: 1, Templates: 1}) {
		t.Errorf("stats = %+v", st)
	}

	invs, _ := dst.Invoices("", "")
	if len(invs) != 1 || invs[0].Currency != "EUR" || invs[0].TotalCents() != 9900 {
		t.Errorf("imported invoices = %+v", invs)
	}

	// Importing again is idempotent for invoices.
	st, err = dst.Import(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("second Import() error: %v", err)
	}
	if st.Invoices != 0 {
		t.Errorf("re-import wrote %d invoices, want 0", st.Invoices)
	}
}
