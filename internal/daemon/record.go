package daemon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/powerlens/powerlens/internal/app/feedback"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/sqlite"
)

// recordingMeasurer stores every measured window as a feedback run.
// Recording failures are logged, never returned: the loop's own outcome
// does not depend on them.
type recordingMeasurer struct {
	m  feedback.Measurer
	db *sqlite.DB
	n  int
}

func (r *recordingMeasurer) Measure(ctx context.Context, n int) ([]domain.Sample, error) {
	started := time.Now()
	samples, err := r.m.Measure(ctx, n)
	if err != nil {
		return nil, err
	}

	r.n++
	run := domain.Run{
		ID:        uuid.NewString(),
		Kind:      domain.RunFeedback,
		Label:     fmt.Sprintf("window %d", r.n),
		StartedAt: started,
	}
	if err := r.record(run, samples); err != nil {
		log.Printf("[daemon] record feedback window: %v", err)
	}
	return samples, nil
}

func (r *recordingMeasurer) record(run domain.Run, samples []domain.Sample) error {
	if err := r.db.CreateRun(run); err != nil {
		return err
	}
	if err := r.db.AppendSamples(run.ID, samples); err != nil {
		return err
	}
	return r.db.FinishRun(run.ID, time.Now())
}
