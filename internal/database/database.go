// Package database provides SQLite persistence for behavioral events and the
// windowed rollup queries behind the admin API.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/pagepulse/pagepulse/internal/models"
)

// Database wraps the SQLite event store.
type Database struct {
	db *sql.DB
}

// New opens (or creates) the store and runs migrations.
// WAL + busy_timeout avoid "database is locked" under concurrent batches.
func New(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return d, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event      TEXT    NOT NULL,
		session_id TEXT    NOT NULL,
		timestamp  INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		data       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_event      ON events(event);
	CREATE INDEX IF NOT EXISTS idx_session    ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp  ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_created_at ON events(created_at);
	`
	_, err := d.db.Exec(schema)
	return err
}

// InsertEvents stores every valid event of the batch in a single transaction
// and returns the number actually ingested. Invalid events are skipped, not
// reported; a batch where everything is invalid ingests zero rows.
func (d *Database) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	valid := events[:0:0]
	for _, e := range events {
		if e.Valid() {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event, session_id, timestamp, data)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range valid {
		data, err := json.Marshal(e.Data)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("marshal event data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, string(e.Kind), e.SessionID, e.Timestamp, string(data)); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(valid), nil
}

// Purge deletes rows whose client timestamp is older than the cutoff and
// returns the number removed.
func (d *Database) Purge(ctx context.Context, cutoffMillis int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoffMillis)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge row count: %w", err)
	}
	return deleted, nil
}

// Overview is the top-level dashboard rollup.
type Overview struct {
	TotalSessions   int `json:"totalSessions"`
	TotalEvents     int `json:"totalEvents"`
	UniquePageViews int `json:"uniquePageViews"`
	CTAClicks       int `json:"ctaClicks"`
	Abandonments    int `json:"abandonments"`
}

// GetOverview computes session/event counts within the window.
func (d *Database) GetOverview(ctx context.Context, sinceMillis int64) (Overview, error) {
	var o Overview
	queries := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&o.TotalSessions, `SELECT COUNT(DISTINCT session_id) FROM events WHERE timestamp >= ?`, []any{sinceMillis}},
		{&o.TotalEvents, `SELECT COUNT(*) FROM events WHERE timestamp >= ?`, []any{sinceMillis}},
		{&o.UniquePageViews, `SELECT COUNT(*) FROM events WHERE event = ? AND timestamp >= ?`, []any{string(models.KindSectionExposed), sinceMillis}},
		{&o.CTAClicks, `SELECT COUNT(*) FROM events WHERE event = ? AND timestamp >= ?`, []any{string(models.KindCTAClick), sinceMillis}},
		{&o.Abandonments, `SELECT COUNT(*) FROM events WHERE event = ? AND timestamp >= ?`, []any{string(models.KindAbandonment), sinceMillis}},
	}
	for _, q := range queries {
		if err := d.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dst); err != nil {
			return Overview{}, fmt.Errorf("overview query: %w", err)
		}
	}
	return o, nil
}

// SectionStat is one row of the section exposure ranking.
type SectionStat struct {
	SectionID      string `json:"section_id"`
	Exposures      int    `json:"exposures"`
	UniqueSessions int    `json:"unique_sessions"`
}

// GetSectionExposures ranks sections by exposure count, descending.
func (d *Database) GetSectionExposures(ctx context.Context, sinceMillis int64) ([]SectionStat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			json_extract(data, '$.section_id') AS section_id,
			COUNT(*) AS exposures,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event = ? AND timestamp >= ?
		GROUP BY section_id
		ORDER BY exposures DESC`,
		string(models.KindSectionExposed), sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("sections query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []SectionStat{}
	for rows.Next() {
		var s SectionStat
		var sectionID sql.NullString
		if err := rows.Scan(&sectionID, &s.Exposures, &s.UniqueSessions); err != nil {
			return nil, err
		}
		s.SectionID = sectionID.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ScrollStat is one row of the scroll depth distribution.
type ScrollStat struct {
	Percentage     int `json:"percentage"`
	Count          int `json:"count"`
	UniqueSessions int `json:"unique_sessions"`
}

// GetScrollDepths groups scroll_depth events by milestone, ascending.
func (d *Database) GetScrollDepths(ctx context.Context, sinceMillis int64) ([]ScrollStat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			json_extract(data, '$.percentage') AS percentage,
			COUNT(*) AS count,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event = ? AND timestamp >= ?
		GROUP BY percentage
		ORDER BY percentage ASC`,
		string(models.KindScrollDepth), sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("scroll depth query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []ScrollStat{}
	for rows.Next() {
		var s ScrollStat
		var pct sql.NullInt64
		if err := rows.Scan(&pct, &s.Count, &s.UniqueSessions); err != nil {
			return nil, err
		}
		s.Percentage = int(pct.Int64)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SectionTimeStat is one row of the dwell threshold rollup.
type SectionTimeStat struct {
	SectionID      string `json:"section_id"`
	Threshold      int    `json:"threshold"`
	Count          int    `json:"count"`
	UniqueSessions int    `json:"unique_sessions"`
}

// GetSectionTimes groups section_time_threshold events by (section, threshold).
func (d *Database) GetSectionTimes(ctx context.Context, sinceMillis int64) ([]SectionTimeStat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			json_extract(data, '$.section_id') AS section_id,
			json_extract(data, '$.threshold') AS threshold,
			COUNT(*) AS count,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event = ? AND timestamp >= ?
		GROUP BY section_id, threshold
		ORDER BY section_id, threshold`,
		string(models.KindSectionTime), sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("section time query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []SectionTimeStat{}
	for rows.Next() {
		var s SectionTimeStat
		var sectionID sql.NullString
		var threshold sql.NullInt64
		if err := rows.Scan(&sectionID, &threshold, &s.Count, &s.UniqueSessions); err != nil {
			return nil, err
		}
		s.SectionID = sectionID.String
		s.Threshold = int(threshold.Int64)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// CTAStat is one row of the CTA click ranking.
type CTAStat struct {
	CTAType        string `json:"cta_type"`
	CTAID          string `json:"cta_id"`
	Clicks         int    `json:"clicks"`
	UniqueSessions int    `json:"unique_sessions"`
}

// GetCTAClicks ranks CTAs by click count, descending.
func (d *Database) GetCTAClicks(ctx context.Context, sinceMillis int64) ([]CTAStat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			json_extract(data, '$.cta_type') AS cta_type,
			json_extract(data, '$.cta_id') AS cta_id,
			COUNT(*) AS clicks,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event = ? AND timestamp >= ?
		GROUP BY cta_type, cta_id
		ORDER BY clicks DESC`,
		string(models.KindCTAClick), sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("cta clicks query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []CTAStat{}
	for rows.Next() {
		var s CTAStat
		var ctaType, ctaID sql.NullString
		if err := rows.Scan(&ctaType, &ctaID, &s.Clicks, &s.UniqueSessions); err != nil {
			return nil, err
		}
		s.CTAType = ctaType.String
		s.CTAID = ctaID.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// AbandonmentStat is one row of the abandonment ranking.
type AbandonmentStat struct {
	LastSection    string `json:"last_section"`
	Count          int    `json:"count"`
	UniqueSessions int    `json:"unique_sessions"`
}

// GetAbandonments ranks last-seen sections by abandonment count, descending.
func (d *Database) GetAbandonments(ctx context.Context, sinceMillis int64) ([]AbandonmentStat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			json_extract(data, '$.last_section_id') AS last_section,
			COUNT(*) AS count,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event = ? AND timestamp >= ?
		GROUP BY last_section
		ORDER BY count DESC`,
		string(models.KindAbandonment), sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("abandonments query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []AbandonmentStat{}
	for rows.Next() {
		var s AbandonmentStat
		var lastSection sql.NullString
		if err := rows.Scan(&lastSection, &s.Count, &s.UniqueSessions); err != nil {
			return nil, err
		}
		s.LastSection = lastSection.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// TimelineEntry is one raw event row as exposed to the dashboard.
type TimelineEntry struct {
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
	CreatedAt string         `json:"created_at"`
}

// GetTimeline returns the most recent events within the window, newest first.
func (d *Database) GetTimeline(ctx context.Context, sinceMillis int64, limit int) ([]TimelineEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT event, session_id, timestamp, data, created_at
		FROM events
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?`,
		sinceMillis, limit)
	if err != nil {
		return nil, fmt.Errorf("timeline query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []TimelineEntry{}
	for rows.Next() {
		var e TimelineEntry
		var data sql.NullString
		if err := rows.Scan(&e.Event, &e.SessionID, &e.Timestamp, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = map[string]any{}
		if data.Valid && data.String != "" {
			// Rows are written by InsertEvents, so this only fails on
			// hand-edited databases; fall back to an empty object.
			_ = json.Unmarshal([]byte(data.String), &e.Data)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountEvents reports the total number of stored rows. Used by tests and the
// health of data checks; not part of the admin API.
func (d *Database) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Window cutoff helpers.

// HoursForRange maps a range selector to its window size in hours.
// Unrecognized values fall back to 24h.
func HoursForRange(rangeParam string) int {
	switch rangeParam {
	case "7d":
		return 168
	case "30d":
		return 720
	default:
		return 24
	}
}

// SinceMillis returns the window cutoff for a range selector, relative to now.
func SinceMillis(rangeParam string, now time.Time) int64 {
	hours := HoursForRange(rangeParam)
	return now.Add(-time.Duration(hours) * time.Hour).UnixMilli()
}
