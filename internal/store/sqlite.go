package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"netsentinel/internal/model"

	_ "modernc.org/sqlite"
)

// Store persists measurements, route snapshots and alert history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single-writer
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// DBPath returns the database file path.
func (s *Store) DBPath() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS network_status (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			target_id TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			reachable INTEGER NOT NULL,
			latency_ms REAL,
			packet_loss REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_target_ts ON network_status (target_id, endpoint, timestamp)`,
		`CREATE TABLE IF NOT EXISTS route_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			endpoint TEXT NOT NULL,
			hops TEXT NOT NULL,
			as_path TEXT,
			origin_prefix TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_endpoint_ts ON route_snapshots (endpoint, timestamp)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			rule_name TEXT NOT NULL,
			target_id TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			value REAL,
			opened_at INTEGER NOT NULL,
			resolved_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_opened ON alerts (opened_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeasurements batch-inserts probe results from one cycle.
func (s *Store) SaveMeasurements(measurements []model.Measurement, kinds map[string]model.TargetKind) error {
	if len(measurements) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO network_status
		(timestamp, target_id, target_kind, endpoint, reachable, latency_ms, packet_loss)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, m := range measurements {
		reachable := 0
		if m.Reachable {
			reachable = 1
		}
		if _, err := stmt.Exec(m.Timestamp.Unix(), m.TargetID, string(kinds[m.TargetID]),
			m.Endpoint, reachable, m.LatencyMs, m.PacketLoss); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadHistory returns measurements for one endpoint within the window,
// newest first.
func (s *Store) LoadHistory(targetID, endpoint string, since time.Time, limit int) ([]model.Measurement, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(`
		SELECT timestamp, target_id, endpoint, reachable, latency_ms, packet_loss
		FROM network_status
		WHERE target_id = ? AND endpoint = ? AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT ?`,
		targetID, endpoint, since.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Measurement
	for rows.Next() {
		var m model.Measurement
		var ts int64
		var reachable int
		if err := rows.Scan(&ts, &m.TargetID, &m.Endpoint, &reachable, &m.LatencyMs, &m.PacketLoss); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		m.Reachable = reachable != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveRouteSnapshot records a traceroute result. Hops are stored as a
// comma separated address list, the AS path as comma separated numbers.
func (s *Store) SaveRouteSnapshot(snap model.RouteSnapshot) error {
	asPath := make([]string, len(snap.ASPath))
	for i, asn := range snap.ASPath {
		asPath[i] = fmt.Sprintf("%d", asn)
	}
	_, err := s.db.Exec(`INSERT INTO route_snapshots (timestamp, endpoint, hops, as_path, origin_prefix)
		VALUES (?, ?, ?, ?, ?)`,
		snap.Timestamp.Unix(), snap.Endpoint,
		strings.Join(snap.HopAddresses(), ","), strings.Join(asPath, ","), snap.OriginPrefix)
	return err
}

// SaveAlert upserts an alert row. Called on open with resolved_at NULL
// and again on resolve with the final state.
func (s *Store) SaveAlert(a model.Alert) error {
	var resolvedAt interface{}
	if a.ResolvedAt != nil {
		resolvedAt = a.ResolvedAt.Unix()
	}
	_, err := s.db.Exec(`INSERT INTO alerts
		(id, rule_name, target_id, target_kind, endpoint, severity, message, value, opened_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET message = excluded.message,
			value = excluded.value, resolved_at = excluded.resolved_at`,
		a.ID, a.RuleName, a.TargetID, string(a.TargetKind), a.Endpoint,
		string(a.Severity), a.Message, a.Value, a.OpenedAt.Unix(), resolvedAt)
	return err
}

// LoadOpenAlerts returns all alerts without a resolution time.
func (s *Store) LoadOpenAlerts() ([]model.Alert, error) {
	rows, err := s.db.Query(`
		SELECT id, rule_name, target_id, target_kind, endpoint, severity, message, value, opened_at
		FROM alerts WHERE resolved_at IS NULL ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind, severity string
		var openedAt int64
		if err := rows.Scan(&a.ID, &a.RuleName, &a.TargetID, &kind, &a.Endpoint,
			&severity, &a.Message, &a.Value, &openedAt); err != nil {
			return nil, err
		}
		a.TargetKind = model.TargetKind(kind)
		a.Severity = model.Severity(severity)
		a.OpenedAt = time.Unix(openedAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadAlerts returns alerts opened since the given time, newest first,
// optionally filtered by severity.
func (s *Store) LoadAlerts(since time.Time, severity string, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, rule_name, target_id, target_kind, endpoint, severity, message, value, opened_at, resolved_at
		FROM alerts WHERE opened_at >= ?`
	args := []interface{}{since.Unix()}
	if severity != "" {
		query += " AND severity = ?"
		args = append(args, severity)
	}
	query += " ORDER BY opened_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind, sev string
		var openedAt int64
		var resolvedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RuleName, &a.TargetID, &kind, &a.Endpoint,
			&sev, &a.Message, &a.Value, &openedAt, &resolvedAt); err != nil {
			return nil, err
		}
		a.TargetKind = model.TargetKind(kind)
		a.Severity = model.Severity(sev)
		a.OpenedAt = time.Unix(openedAt, 0).UTC()
		if resolvedAt.Valid {
			t := time.Unix(resolvedAt.Int64, 0).UTC()
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EndpointStatus summarizes one endpoint's recent persisted history.
type EndpointStatus struct {
	TargetID     string  `json:"target_id"`
	TargetKind   string  `json:"target_kind"`
	Endpoint     string  `json:"endpoint"`
	Samples      int     `json:"samples"`
	SuccessRatio float64 `json:"success_ratio"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	LastSeen     int64   `json:"last_seen"`
}

// StatusSummary aggregates persisted measurements per endpoint over the
// given lookback period.
func (s *Store) StatusSummary(since time.Time) ([]EndpointStatus, error) {
	rows, err := s.db.Query(`
		SELECT target_id, target_kind, endpoint, COUNT(*),
			AVG(reachable),
			AVG(CASE WHEN reachable = 1 THEN latency_ms END),
			MAX(timestamp)
		FROM network_status
		WHERE timestamp >= ?
		GROUP BY target_id, endpoint
		ORDER BY target_id, endpoint`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EndpointStatus
	for rows.Next() {
		var st EndpointStatus
		var avgLatency sql.NullFloat64
		if err := rows.Scan(&st.TargetID, &st.TargetKind, &st.Endpoint, &st.Samples,
			&st.SuccessRatio, &avgLatency, &st.LastSeen); err != nil {
			return nil, err
		}
		st.AvgLatencyMs = avgLatency.Float64
		out = append(out, st)
	}
	return out, rows.Err()
}

// AlertStats aggregates alert history counts.
type AlertStats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
}

// AlertStatistics counts alerts opened since the given time.
func (s *Store) AlertStatistics(since time.Time) (AlertStats, error) {
	stats := AlertStats{
		BySeverity: make(map[string]int),
		ByRule:     make(map[string]int),
	}

	rows, err := s.db.Query(`
		SELECT severity, rule_name, resolved_at IS NULL
		FROM alerts WHERE opened_at >= ?`, since.Unix())
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var severity, rule string
		var open bool
		if err := rows.Scan(&severity, &rule, &open); err != nil {
			return stats, err
		}
		stats.Total++
		if open {
			stats.Open++
		}
		stats.BySeverity[severity]++
		stats.ByRule[rule]++
	}
	return stats, rows.Err()
}

// Prune deletes measurement and route rows older than the cutoff.
// Resolved alerts are kept, they are the incident history.
func (s *Store) Prune(cutoff time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM network_status WHERE timestamp < ?`, cutoff.Unix()); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM route_snapshots WHERE timestamp < ?`, cutoff.Unix())
	return err
}
