package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.SetNodeInfo("version", "1"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Migrations must be idempotent.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()

	v, err := db.GetNodeInfo("version")
	if err != nil || v != "1" {
		t.Errorf("GetNodeInfo() = %q, %v", v, err)
	}
}

func TestNodeInfo_Missing(t *testing.T) {
	db := newTestDB(t)
	v, err := db.GetNodeInfo("nope")
	if err != nil || v != "" {
		t.Errorf("GetNodeInfo(missing) = %q, %v", v, err)
	}
}

// ─── Runs & Samples ─────────────────────────────────────────────────────────

func TestRun_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Unix(1_700_000_000, 0)

	run := domain.Run{ID: "r1", Kind: domain.RunSample, Label: "idle", StartedAt: start}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	samples := []domain.Sample{
		{Time: start.Add(1500 * time.Millisecond), IntervalMs: 1000, CPUmW: 100, GPUmW: 5},
		{Time: start.Add(2500 * time.Millisecond), IntervalMs: 1000, CPUmW: 900, GPUmW: 5,
			Processes: []domain.ProcessUsage{{PID: 7, Name: "mds", CPUMsPerSec: 40}}},
	}
	if err := db.AppendSamples("r1", samples[:1]); err != nil {
		t.Fatalf("AppendSamples() error: %v", err)
	}
	if err := db.AppendSamples("r1", samples[1:]); err != nil {
		t.Fatalf("AppendSamples() second batch error: %v", err)
	}
	if err := db.FinishRun("r1", start.Add(3*time.Second)); err != nil {
		t.Fatalf("FinishRun() error: %v", err)
	}

	got, err := db.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if got.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", got.SampleCount)
	}
	if got.EndedAt.IsZero() {
		t.Error("EndedAt should be set")
	}

	stored, err := db.RunSamples("r1")
	if err != nil {
		t.Fatalf("RunSamples() error: %v", err)
	}
	if len(stored) != 2 || stored[1].CPUmW != 900 {
		t.Fatalf("RunSamples() = %+v", stored)
	}
	if !stored[0].Time.Equal(samples[0].Time) {
		t.Errorf("sample time = %v, want %v (millisecond precision)", stored[0].Time, samples[0].Time)
	}
	if len(stored[1].Processes) != 1 || stored[1].Processes[0].Name != "mds" {
		t.Errorf("processes = %+v", stored[1].Processes)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetRun("missing"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
	if err := db.FinishRun("missing", time.Now()); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("FinishRun err = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	base := time.Unix(1_700_000_000, 0)
	for i, kind := range []domain.RunKind{domain.RunSample, domain.RunBaseline, domain.RunSample} {
		run := domain.Run{ID: string(rune('a' + i)), Kind: kind, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListRuns("", 10)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Errorf("ListRuns() = %+v, want newest first", all)
	}

	samples, _ := db.ListRuns(domain.RunSample, 10)
	if len(samples) != 2 {
		t.Errorf("ListRuns(sample) returned %d, want 2", len(samples))
	}
}

func TestDeleteRun_CascadesSamples(t *testing.T) {
	db := newTestDB(t)
	db.CreateRun(domain.Run{ID: "r", Kind: domain.RunSample, StartedAt: time.Now()})
	db.AppendSamples("r", []domain.Sample{{Time: time.Now(), CPUmW: 1}})

	if err := db.DeleteRun("r"); err != nil {
		t.Fatalf("DeleteRun() error: %v", err)
	}
	samples, err := db.RunSamples("r")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 0 {
		t.Errorf("got %d orphan samples, want 0", len(samples))
	}
	if err := db.DeleteRun("r"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("second DeleteRun() = %v, want ErrRunNotFound", err)
	}
}

// ─── Baselines ──────────────────────────────────────────────────────────────

func TestBaseline_Upsert(t *testing.T) {
	db := newTestDB(t)
	b := domain.Baseline{Label: "default", RunID: "r1", CPUmW: 80, TotalmW: 120, CreatedAt: time.Now()}
	if err := db.SaveBaseline(b); err != nil {
		t.Fatalf("SaveBaseline() error: %v", err)
	}
	b.CPUmW = 70
	if err := db.SaveBaseline(b); err != nil {
		t.Fatalf("SaveBaseline() update error: %v", err)
	}

	got, err := db.GetBaseline("default")
	if err != nil {
		t.Fatalf("GetBaseline() error: %v", err)
	}
	if got.CPUmW != 70 || got.TotalmW != 120 {
		t.Errorf("baseline = %+v", got)
	}

	list, _ := db.ListBaselines()
	if len(list) != 1 {
		t.Errorf("ListBaselines() returned %d, want 1", len(list))
	}

	if _, err := db.GetBaseline("other"); !errors.Is(err, domain.ErrBaselineNotFound) {
		t.Errorf("err = %v, want ErrBaselineNotFound", err)
	}
}

// ─── Feedback Runs ──────────────────────────────────────────────────────────

func TestFeedbackRun_SaveAndUpdate(t *testing.T) {
	db := newTestDB(t)
	r := domain.FeedbackRun{
		ID:        "fb1",
		Component: "process:mds_stores",
		PIDs:      []int{412, 413},
		State:     domain.FeedbackDetecting,
		Before:    domain.WindowStats{ComponentMean: 300, BurstFraction: 0.4, Samples: 10},
		StartedAt: time.Now(),
	}
	if err := db.SaveFeedbackRun(r); err != nil {
		t.Fatalf("SaveFeedbackRun() error: %v", err)
	}

	r.State = domain.FeedbackVerified
	r.After = &domain.WindowStats{ComponentMean: 50, Samples: 10}
	r.Verdict = "eliminated"
	r.Realization = 0.9
	r.FinishedAt = time.Now()
	if err := db.SaveFeedbackRun(r); err != nil {
		t.Fatalf("SaveFeedbackRun() update error: %v", err)
	}

	got, err := db.GetFeedbackRun("fb1")
	if err != nil {
		t.Fatalf("GetFeedbackRun() error: %v", err)
	}
	if got.State != domain.FeedbackVerified || got.Verdict != "eliminated" {
		t.Errorf("state = %v verdict = %q", got.State, got.Verdict)
	}
	if len(got.PIDs) != 2 || got.PIDs[1] != 413 {
		t.Errorf("PIDs = %v", got.PIDs)
	}
	if got.After == nil || got.After.ComponentMean != 50 {
		t.Errorf("After = %+v", got.After)
	}
	if got.Before.BurstFraction != 0.4 {
		t.Errorf("Before = %+v", got.Before)
	}

	list, _ := db.ListFeedbackRuns(10)
	if len(list) != 1 {
		t.Errorf("ListFeedbackRuns() returned %d, want 1", len(list))
	}
	if _, err := db.GetFeedbackRun("nope"); !errors.Is(err, domain.ErrFeedbackNotFound) {
		t.Errorf("err = %v, want ErrFeedbackNotFound", err)
	}
}

// ─── CRM ────────────────────────────────────────────────────────────────────

func TestClients(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	db.InsertClient(domain.Client{ID: "c2", Name: "zeta", CreatedAt: now})
	if err := db.InsertClient(domain.Client{ID: "c1", Name: "Acme", Email: "ap@acme.test", CreatedAt: now}); err != nil {
		t.Fatalf("InsertClient() error: %v", err)
	}

	list, err := db.ListClients()
	if err != nil {
		t.Fatalf("ListClients() error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Acme" {
		t.Errorf("ListClients() = %+v, want ordered by name", list)
	}

	if err := db.DeleteClient("c2"); err != nil {
		t.Fatalf("DeleteClient() error: %v", err)
	}
	if _, err := db.GetClient("c2"); !errors.Is(err, domain.ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestInvoices(t *testing.T) {
	db := newTestDB(t)
	now := time.Unix(1_700_000_000, 0)
	db.InsertClient(domain.Client{ID: "c1", Name: "Acme", CreatedAt: now})

	inv := domain.Invoice{
		ID: "i1", ClientID: "c1", Status: domain.InvoiceDraft, Currency: "USD",
		Items:    []domain.LineItem{{Description: "audit", Quantity: 2, UnitCents: 5000}, {Description: "report", Quantity: 1, UnitCents: 1500}},
		IssuedAt: now, DueAt: now.Add(30 * 24 * time.Hour),
	}
	num, err := db.InsertInvoice(inv)
	if err != nil {
		t.Fatalf("InsertInvoice() error: %v", err)
	}
	if num != 1 {
		t.Errorf("first invoice number = %d, want 1", num)
	}

	inv2 := inv
	inv2.ID = "i2"
	if num, _ := db.InsertInvoice(inv2); num != 2 {
		t.Errorf("second invoice number = %d, want 2", num)
	}

	got, err := db.GetInvoice("i1")
	if err != nil {
		t.Fatalf("GetInvoice() error: %v", err)
	}
	if got.TotalCents() != 11500 || len(got.Items) != 2 || got.Items[1].Description != "report" {
		t.Errorf("invoice = %+v", got)
	}

	if err := db.UpdateInvoiceStatus("i1", domain.InvoicePaid, now); err != nil {
		t.Fatalf("UpdateInvoiceStatus() error: %v", err)
	}
	paid, _ := db.ListInvoices("", domain.InvoicePaid)
	if len(paid) != 1 || paid[0].ID != "i1" || len(paid[0].Items) != 2 {
		t.Errorf("ListInvoices(paid) = %+v", paid)
	}
	all, _ := db.ListInvoices("c1", "")
	if len(all) != 2 {
		t.Errorf("ListInvoices(c1) returned %d, want 2", len(all))
	}

	if err := db.DeleteClient("c1"); !errors.Is(err, domain.ErrClientHasInvoices) {
		t.Errorf("DeleteClient() = %v, want ErrClientHasInvoices", err)
	}
}

func TestInsertInvoice_UnknownClient(t *testing.T) {
	db := newTestDB(t)
	_, err := db.InsertInvoice(domain.Invoice{ID: "i1", ClientID: "ghost", Status: domain.InvoiceDraft, IssuedAt: time.Now()})
	if !errors.Is(err, domain.ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestLeads(t *testing.T) {
	db := newTestDB(t)
	now := time.Unix(1_700_000_000, 0)
	l := domain.Lead{ID: "l1", Name: "Jo", Status: domain.LeadNew, CreatedAt: now, UpdatedAt: now}
	if err := db.UpsertLead(l); err != nil {
		t.Fatalf("UpsertLead() error: %v", err)
	}
	l.Status = domain.LeadContacted
	l.UpdatedAt = now.Add(time.Hour)
	if err := db.UpsertLead(l); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetLead("l1")
	if err != nil {
		t.Fatalf("GetLead() error: %v", err)
	}
	if got.Status != domain.LeadContacted || !got.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("lead = %+v", got)
	}

	open, _ := db.ListLeads(domain.LeadNew)
	if len(open) != 0 {
		t.Errorf("ListLeads(new) returned %d, want 0", len(open))
	}
	if _, err := db.GetLead("nope"); !errors.Is(err, domain.ErrLeadNotFound) {
		t.Errorf("err = %v, want ErrLeadNotFound", err)
	}
}

func TestTemplates(t *testing.T) {
	db := newTestDB(t)
	tpl := domain.EmailTemplate{Name: "followup", Subject: "Hi {{.Name}}", Body: "..."}
	if err := db.InsertTemplate(tpl); err != nil {
		t.Fatalf("InsertTemplate() error: %v", err)
	}
	if err := db.InsertTemplate(tpl); !errors.Is(err, domain.ErrTemplateExists) {
		t.Errorf("duplicate InsertTemplate() = %v, want ErrTemplateExists", err)
	}

	tpl.Subject = "Hello {{.Name}}"
	if err := db.UpsertTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetTemplate("followup")
	if err != nil || got.Subject != "Hello {{.Name}}" {
		t.Errorf("GetTemplate() = %+v, %v", got, err)
	}

	if err := db.DeleteTemplate("followup"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteTemplate("followup"); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("err = %v, want ErrTemplateNotFound", err)
	}
}
