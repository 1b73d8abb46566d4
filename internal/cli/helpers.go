package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/export"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// openDB opens the state database under the data directory.
func openDB() (*sqlite.DB, error) {
	db, err := sqlite.Open(daemon.Home())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openCRM opens the database and wraps it in a CRM service.
func openCRM() (*crm.Service, func(), error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return crm.NewService(db, cfg.CRMOptions()), func() { db.Close() }, nil
}

// loadSamples reads a sample file, or a recorded run when ref is not a file.
func loadSamples(ctx context.Context, ref string) ([]domain.Sample, error) {
	if _, err := os.Stat(ref); err == nil {
		return export.Load(ctx, ref)
	}
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.GetRun(ref); err != nil {
		return nil, fmt.Errorf("%s is neither a file nor a run: %w", ref, err)
	}
	return db.RunSamples(ref)
}

// loadBaseline returns the stored baseline named label, or nil when label is
// empty.
func loadBaseline(label string) (*domain.Baseline, error) {
	if label == "" {
		return nil, nil
	}
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.GetBaseline(label)
}

// readValues parses whitespace- or comma-separated numbers.
func readValues(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var out []float64
	for sc.Scan() {
		for _, field := range strings.Split(sc.Text(), ",") {
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", field)
			}
			out = append(out, v)
		}
	}
	return out, sc.Err()
}

// parseLineItem parses "description:quantity:unit price", e.g.
// "Consulting:3:150.00".
func parseLineItem(s string) (domain.LineItem, error) {
	i := strings.LastIndex(s, ":")
	j := -1
	if i > 0 {
		j = strings.LastIndex(s[:i], ":")
	}
	if j <= 0 {
		return domain.LineItem{}, fmt.Errorf("line item %q: want description:qty:price", s)
	}

	qty, err := strconv.ParseInt(strings.TrimSpace(s[j+1:i]), 10, 64)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("line item %q: quantity: %w", s, err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("line item %q: price: %w", s, err)
	}
	return domain.LineItem{
		Description: strings.TrimSpace(s[:j]),
		Quantity:    qty,
		UnitCents:   int64(math.Round(price * 100)),
	}, nil
}

// formatMW renders milliwatts, switching to watts above 1 W.
func formatMW(mw float64) string {
	if math.Abs(mw) >= 1000 {
		return fmt.Sprintf("%.2f W", mw/1000)
	}
	return fmt.Sprintf("%.0f mW", mw)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
