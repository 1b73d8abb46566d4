package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Shown while a fixed-size measurement window fills:
//   [============>.................]  40% | 4/10 samples | ETA 6s

const barWidth = 30 // Characters for the progress bar

type progressBar struct {
	out     io.Writer
	label   string
	total   int
	started time.Time
	now     func() time.Time
}

func newProgressBar(out io.Writer, label string, total int) *progressBar {
	return &progressBar{
		out:     out,
		label:   label,
		total:   total,
		started: time.Now(),
		now:     time.Now,
	}
}

// Update redraws the bar for done of total samples.
func (p *progressBar) Update(done int) {
	clearLine(p.out)
	fmt.Fprint(p.out, p.render(done))
}

// Done finishes the bar line.
func (p *progressBar) Done() {
	fmt.Fprintln(p.out)
}

func (p *progressBar) render(done int) string {
	pct := 0.0
	if p.total > 0 {
		pct = float64(done) / float64(p.total) * 100
	}
	pct = min(max(pct, 0), 100)

	// Build the bar: [=======>............]
	filled := min(int(pct/100*float64(barWidth)), barWidth)
	empty := barWidth - filled

	var bar string
	if filled == barWidth {
		bar = strings.Repeat("=", filled)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	} else {
		bar = strings.Repeat(".", barWidth)
	}

	return fmt.Sprintf("%s [%s] %3.0f%% | %d/%d samples | %s",
		p.label, bar, pct, done, p.total, p.calculateETA(pct))
}

func (p *progressBar) calculateETA(pct float64) string {
	if pct <= 0 || pct >= 100 {
		return "ETA --"
	}

	elapsed := p.now().Sub(p.started).Seconds()
	if elapsed < 1 {
		return "ETA --"
	}

	totalEstimated := elapsed / (pct / 100)
	remaining := max(totalEstimated-elapsed, 0)

	if remaining < 60 {
		return fmt.Sprintf("ETA %ds", int(remaining))
	}
	if remaining < 3600 {
		return fmt.Sprintf("ETA %dm%ds", int(remaining)/60, int(remaining)%60)
	}
	return fmt.Sprintf("ETA %dh%dm", int(remaining)/3600, (int(remaining)%3600)/60)
}

func clearLine(w io.Writer) {
	fmt.Fprint(w, "\r\033[K")
}
