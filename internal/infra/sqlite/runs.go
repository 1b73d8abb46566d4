package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/powerlens/powerlens/internal/domain"
)

// ─── Runs ───────────────────────────────────────────────────────────────────

// CreateRun inserts a new measurement run.
func (d *DB) CreateRun(run domain.Run) error {
	_, err := d.db.Exec(
		`INSERT INTO runs (id, kind, label, started_at, ended_at, sample_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Label, run.StartedAt.Unix(),
		nullableUnix(run.EndedAt), run.SampleCount,
	)
	return err
}

// FinishRun stamps the end time and recounts the stored samples.
func (d *DB) FinishRun(id string, endedAt time.Time) error {
	result, err := d.db.Exec(
		`UPDATE runs SET ended_at = ?,
			sample_count = (SELECT COUNT(*) FROM samples WHERE run_id = ?)
		 WHERE id = ?`,
		endedAt.Unix(), id, id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (d *DB) GetRun(id string) (*domain.Run, error) {
	row := d.db.QueryRow(
		`SELECT id, kind, label, started_at, ended_at, sample_count FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs, optionally filtered by kind.
func (d *DB) ListRuns(kind domain.RunKind, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, kind, label, started_at, ended_at, sample_count FROM runs
		 WHERE (? = '' OR kind = ?) ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its samples.
func (d *DB) DeleteRun(id string) error {
	result, err := d.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return nil
}

func scanRun(s scanner) (*domain.Run, error) {
	var r domain.Run
	var kind string
	var started int64
	var ended sql.NullInt64
	if err := s.Scan(&r.ID, &kind, &r.Label, &started, &ended, &r.SampleCount); err != nil {
		return nil, err
	}
	r.Kind = domain.RunKind(kind)
	r.StartedAt = time.Unix(started, 0)
	r.EndedAt = fromNullableUnix(ended)
	return &r, nil
}

// ─── Samples ────────────────────────────────────────────────────────────────

// AppendSamples stores samples after any already recorded for the run.
func (d *DB) AppendSamples(runID string, samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM samples WHERE run_id = ?`, runID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO samples (run_id, seq, time, interval_ms, cpu_mw, gpu_mw, ane_mw, dram_mw,
			combined_mw, e_active, p_active, gpu_active, processes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range samples {
		procs := ""
		if len(s.Processes) > 0 {
			b, err := json.Marshal(s.Processes)
			if err != nil {
				return fmt.Errorf("encode processes: %w", err)
			}
			procs = string(b)
		}
		if _, err := stmt.Exec(
			runID, next+i, s.Time.UnixMilli(), s.IntervalMs,
			s.CPUmW, s.GPUmW, s.ANEmW, s.DRAMmW, s.CombinedmW,
			s.EClusterActive, s.PClusterActive, s.GPUActive, procs,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RunSamples returns every sample of a run in recording order.
func (d *DB) RunSamples(runID string) ([]domain.Sample, error) {
	rows, err := d.db.Query(
		`SELECT time, interval_ms, cpu_mw, gpu_mw, ane_mw, dram_mw, combined_mw,
			e_active, p_active, gpu_active, processes
		 FROM samples WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.Sample
	for rows.Next() {
		var s domain.Sample
		var ms int64
		var procs string
		if err := rows.Scan(&ms, &s.IntervalMs, &s.CPUmW, &s.GPUmW, &s.ANEmW, &s.DRAMmW,
			&s.CombinedmW, &s.EClusterActive, &s.PClusterActive, &s.GPUActive, &procs); err != nil {
			return nil, err
		}
		s.Time = time.UnixMilli(ms)
		if procs != "" {
			if err := json.Unmarshal([]byte(procs), &s.Processes); err != nil {
				return nil, fmt.Errorf("decode processes: %w", err)
			}
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ─── Baselines ──────────────────────────────────────────────────────────────

// SaveBaseline inserts or replaces the baseline stored under b.Label.
func (d *DB) SaveBaseline(b domain.Baseline) error {
	_, err := d.db.Exec(
		`INSERT INTO baselines (label, run_id, cpu_mw, gpu_mw, ane_mw, dram_mw, total_mw, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET
			run_id=excluded.run_id,
			cpu_mw=excluded.cpu_mw,
			gpu_mw=excluded.gpu_mw,
			ane_mw=excluded.ane_mw,
			dram_mw=excluded.dram_mw,
			total_mw=excluded.total_mw,
			created_at=excluded.created_at`,
		b.Label, b.RunID, b.CPUmW, b.GPUmW, b.ANEmW, b.DRAMmW, b.TotalmW, b.CreatedAt.Unix(),
	)
	return err
}

// GetBaseline retrieves a baseline by label.
func (d *DB) GetBaseline(label string) (*domain.Baseline, error) {
	row := d.db.QueryRow(
		`SELECT label, run_id, cpu_mw, gpu_mw, ane_mw, dram_mw, total_mw, created_at
		 FROM baselines WHERE label = ?`, label,
	)
	b, err := scanBaseline(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrBaselineNotFound, label)
	}
	return b, err
}

// ListBaselines returns all baselines, newest first.
func (d *DB) ListBaselines() ([]domain.Baseline, error) {
	rows, err := d.db.Query(
		`SELECT label, run_id, cpu_mw, gpu_mw, ane_mw, dram_mw, total_mw, created_at
		 FROM baselines ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBaseline(s scanner) (*domain.Baseline, error) {
	var b domain.Baseline
	var created int64
	if err := s.Scan(&b.Label, &b.RunID, &b.CPUmW, &b.GPUmW, &b.ANEmW, &b.DRAMmW, &b.TotalmW, &created); err != nil {
		return nil, err
	}
	b.CreatedAt = time.Unix(created, 0)
	return &b, nil
}

// ─── Feedback Runs ──────────────────────────────────────────────────────────

// SaveFeedbackRun inserts or updates a feedback run. The loop calls it on
// every state transition.
func (d *DB) SaveFeedbackRun(r domain.FeedbackRun) error {
	pids, err := json.Marshal(r.PIDs)
	if err != nil {
		return err
	}
	before, err := json.Marshal(r.Before)
	if err != nil {
		return err
	}
	after := ""
	if r.After != nil {
		b, err := json.Marshal(r.After)
		if err != nil {
			return err
		}
		after = string(b)
	}

	_, err = d.db.Exec(
		`INSERT INTO feedback_runs (id, component, pids, state, before, after, verdict,
			realization, reverted, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			pids=excluded.pids,
			state=excluded.state,
			before=excluded.before,
			after=excluded.after,
			verdict=excluded.verdict,
			realization=excluded.realization,
			reverted=excluded.reverted,
			error=excluded.error,
			finished_at=excluded.finished_at`,
		r.ID, r.Component, string(pids), r.State.String(), string(before), after, r.Verdict,
		r.Realization, r.Reverted, r.Error, r.StartedAt.Unix(), nullableUnix(r.FinishedAt),
	)
	return err
}

// GetFeedbackRun retrieves a feedback run by ID.
func (d *DB) GetFeedbackRun(id string) (*domain.FeedbackRun, error) {
	row := d.db.QueryRow(
		`SELECT id, component, pids, state, before, after, verdict, realization, reverted,
			error, started_at, finished_at
		 FROM feedback_runs WHERE id = ?`, id,
	)
	r, err := scanFeedbackRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrFeedbackNotFound, id)
	}
	return r, err
}

// ListFeedbackRuns returns recent feedback runs, newest first.
func (d *DB) ListFeedbackRuns(limit int) ([]domain.FeedbackRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, component, pids, state, before, after, verdict, realization, reverted,
			error, started_at, finished_at
		 FROM feedback_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeedbackRun
	for rows.Next() {
		r, err := scanFeedbackRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanFeedbackRun(s scanner) (*domain.FeedbackRun, error) {
	var r domain.FeedbackRun
	var pids, state, before, after string
	var started int64
	var finished sql.NullInt64

	err := s.Scan(&r.ID, &r.Component, &pids, &state, &before, &after, &r.Verdict,
		&r.Realization, &r.Reverted, &r.Error, &started, &finished)
	if err != nil {
		return nil, err
	}

	r.State = domain.ParseFeedbackState(state)
	r.StartedAt = time.Unix(started, 0)
	r.FinishedAt = fromNullableUnix(finished)
	if err := json.Unmarshal([]byte(pids), &r.PIDs); err != nil {
		return nil, fmt.Errorf("decode pids: %w", err)
	}
	if err := json.Unmarshal([]byte(before), &r.Before); err != nil {
		return nil, fmt.Errorf("decode before window: %w", err)
	}
	if after != "" {
		var w domain.WindowStats
		if err := json.Unmarshal([]byte(after), &w); err != nil {
			return nil, fmt.Errorf("decode after window: %w", err)
		}
		r.After = &w
	}
	return &r, nil
}
