// Package history persists delivered findings in SQLite so a restart inside
// the dedup window keeps merging instead of double-reporting, and so past
// reports stay queryable.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/models"
)

// DefaultRetention is how long finding rows are kept before pruning.
const DefaultRetention = 30 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS findings (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	device_mac TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	category TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	remediation TEXT NOT NULL DEFAULT '',
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	source_event_ids TEXT NOT NULL DEFAULT '[]',
	report_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_findings_identity ON findings(event_type, device_mac, last_seen);
CREATE INDEX IF NOT EXISTS idx_findings_last_seen ON findings(last_seen);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	generated_at TIMESTAMP NOT NULL,
	period_start TIMESTAMP NOT NULL,
	period_end TIMESTAMP NOT NULL,
	site TEXT NOT NULL,
	finding_count INTEGER NOT NULL,
	severe_count INTEGER NOT NULL,
	event_count INTEGER NOT NULL,
	ips_event_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);
`

// Store is the SQLite-backed finding history. A single writer connection
// avoids SQLITE_BUSY under the daemon's sequential tick model.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeState, "open_history", "", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, scanerrors.New(scanerrors.ErrorTypeState, "migrate_history", "", err)
	}

	log.Debug().Str("path", path).Msg("Finding history opened")
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordReport stores the report header and upserts its findings. Called
// only after delivery succeeded, alongside the checkpoint write.
func (s *Store) RecordReport(ctx context.Context, report models.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "record_report", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports
		 (id, generated_at, period_start, period_end, site, finding_count, severe_count, event_count, ips_event_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.GeneratedAt.UTC(), report.PeriodStart.UTC(), report.PeriodEnd.UTC(),
		report.Site, len(report.Findings), report.SevereCount(), report.EventCount, report.IPSEventCount)
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "record_report", "", err)
	}

	for _, f := range report.Findings {
		ids, err := json.Marshal(f.SourceEventIDs)
		if err != nil {
			ids = []byte("[]")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings
			 (id, event_type, device_mac, severity, category, title, description, remediation,
			  occurrence_count, first_seen, last_seen, source_event_ids, report_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			  occurrence_count = excluded.occurrence_count,
			  last_seen = excluded.last_seen,
			  source_event_ids = excluded.source_event_ids,
			  report_id = excluded.report_id`,
			f.ID, f.EventType, f.DeviceMAC, string(f.Severity), string(f.Category),
			f.Title, f.Description, f.Remediation,
			f.OccurrenceCount, f.FirstSeen.UTC(), f.LastSeen.UTC(), string(ids), report.ID)
		if err != nil {
			return scanerrors.New(scanerrors.ErrorTypeState, "record_finding", "", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "record_report", "", err)
	}
	return nil
}

// RecentFindings returns the newest row per dedup identity seen after the
// cutoff, for seeding the in-memory store on startup.
func (s *Store) RecentFindings(ctx context.Context, cutoff time.Time) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, device_mac, severity, category, title, description, remediation,
		        occurrence_count, first_seen, last_seen, source_event_ids
		 FROM findings
		 WHERE last_seen > ?
		 ORDER BY last_seen DESC`,
		cutoff.UTC())
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeState, "load_history", "", err)
	}
	defer rows.Close()

	type identity struct{ eventType, mac string }
	seen := make(map[identity]bool)
	var out []models.Finding
	for rows.Next() {
		var f models.Finding
		var severity, category, ids string
		if err := rows.Scan(&f.ID, &f.EventType, &f.DeviceMAC, &severity, &category,
			&f.Title, &f.Description, &f.Remediation,
			&f.OccurrenceCount, &f.FirstSeen, &f.LastSeen, &ids); err != nil {
			return nil, scanerrors.New(scanerrors.ErrorTypeState, "load_history", "", err)
		}
		key := identity{f.EventType, f.DeviceMAC}
		if seen[key] {
			continue
		}
		seen[key] = true
		f.Severity = models.Severity(severity)
		f.Category = models.Category(category)
		if err := json.Unmarshal([]byte(ids), &f.SourceEventIDs); err != nil {
			f.SourceEventIDs = nil
		}
		f.FirstSeen = f.FirstSeen.UTC()
		f.LastSeen = f.LastSeen.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune deletes finding and report rows older than the retention period.
func (s *Store) Prune(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := s.db.ExecContext(ctx, `DELETE FROM findings WHERE last_seen < ?`, cutoff)
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "prune_history", "", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE generated_at < ?`, cutoff); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "prune_history", "", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Debug().Int64("findings", n).Time("cutoff", cutoff).Msg("Pruned finding history")
	}
	return nil
}
