package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/mattn/go-sqlite3"
)

// Sink periodically snapshots a Prometheus registry's
// resourcefsm_transitions_total counters into sqlite as structured
// rows (other metric families are not written): an audit trail of
// counts, not a
// mechanism for restoring FSM state.
type Sink struct {
	db       *sql.DB
	gatherer prometheus.Gatherer
	interval time.Duration
}

// NewSink prepares the snapshot table on db and returns a Sink that
// samples gatherer's "resourcefsm_transitions_total" family every
// interval once Run is called.
func NewSink(db *sql.DB, gatherer prometheus.Gatherer, interval time.Duration) (*Sink, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	const schema = `CREATE TABLE IF NOT EXISTS resourcefsm_transition_snapshots (
		sampled_at INTEGER NOT NULL,
		label_from TEXT NOT NULL,
		label_to TEXT NOT NULL,
		label_event TEXT NOT NULL,
		count REAL NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("telemetry: create snapshot table: %w", err)
	}
	return &Sink{db: db, gatherer: gatherer, interval: interval}, nil
}

// Run samples the registry every s.interval until ctx is canceled.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.snapshot(); err != nil {
				return err
			}
		}
	}
}

// snapshot gathers the registry once and writes one row per label set
// of the resourcefsm_transitions_total counter vector.
func (s *Sink) snapshot() error {
	families, err := s.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("telemetry: gather metrics: %w", err)
	}

	now := time.Now().Unix()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("telemetry: begin snapshot tx: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO resourcefsm_transition_snapshots
		(sampled_at, label_from, label_to, label_event, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("telemetry: prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, family := range families {
		if family.GetName() != "resourcefsm_transitions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if _, err := stmt.Exec(now, labels["from"], labels["to"], labels["event"], metric.GetCounter().GetValue()); err != nil {
				tx.Rollback()
				return fmt.Errorf("telemetry: insert snapshot row: %w", err)
			}
		}
	}

	return tx.Commit()
}
