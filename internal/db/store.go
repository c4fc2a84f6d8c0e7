package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionRecord is one assistant session.
type SessionRecord struct {
	ID        string     `json:"id"`
	Language  string     `json:"language"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// FrameRecord is the verdict recorded for one processed frame.
type FrameRecord struct {
	SessionID             string    `json:"session_id"`
	FrameIndex            int64     `json:"frame_index"`
	Timestamp             time.Time `json:"timestamp"`
	Status                string    `json:"status"`
	Rule                  int       `json:"rule"`
	Safe                  bool      `json:"safe"`
	VehicleCount          int       `json:"vehicle_count"`
	Moving                bool      `json:"moving"`
	VehicleOnCrosswalk    bool      `json:"vehicle_on_crosswalk"`
	PedestrianOnCrosswalk bool      `json:"pedestrian_on_crosswalk"`
	MaxDisplacement       float64   `json:"max_displacement"`
	Rejected              int       `json:"rejected"`
}

// AlertRecord is one emitted alert event.
type AlertRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	FrameIndex     int64     `json:"frame_index"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
	Language       string    `json:"language"`
	EmittedAt      time.Time `json:"emitted_at"`
	NarrationError string    `json:"narration_error,omitempty"`
}

// SessionSummary aggregates the frames and alerts of a session.
type SessionSummary struct {
	SessionID string         `json:"session_id"`
	Frames    int            `json:"frames"`
	Safe      int            `json:"safe"`
	Unsafe    int            `json:"unsafe"`
	Alerts    int            `json:"alerts"`
	ByStatus  map[string]int `json:"by_status"`
}

func unixNanos(t time.Time) int64 { return t.UnixNano() }

func fromUnixNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateSession inserts a new session. An existing row with the same ID is
// reopened: language and source are replaced, the close stamp is cleared and
// the original creation time and history are kept.
func (db *DB) CreateSession(ctx context.Context, s SessionRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, language, source, created_unix_nanos) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   language = excluded.language,
		   source = excluded.source,
		   closed_unix_nanos = NULL`,
		s.ID, s.Language, s.Source, unixNanos(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	return nil
}

// CloseSession stamps the session as closed.
func (db *DB) CloseSession(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET closed_unix_nanos = ? WHERE session_id = ?`, unixNanos(at), id)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (SessionRecord, error) {
	var (
		s       SessionRecord
		created int64
		closed  sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Language, &s.Source, &created, &closed); err != nil {
		return s, err
	}
	s.CreatedAt = fromUnixNanos(created)
	if closed.Valid {
		t := fromUnixNanos(closed.Int64)
		s.ClosedAt = &t
	}
	return s, nil
}

// GetSession returns one session or ErrNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT session_id, language, source, created_unix_nanos, closed_unix_nanos
		   FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// ListSessions returns the most recent sessions first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, language, source, created_unix_nanos, closed_unix_nanos
		   FROM sessions ORDER BY created_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordFrame stores the verdict for one frame.
func (db *DB) RecordFrame(ctx context.Context, f FrameRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO frame_verdicts (
			session_id, frame_index, frame_unix_nanos, status, rule, safe,
			vehicle_count, moving, vehicle_on_crosswalk, pedestrian_on_crosswalk,
			max_displacement, rejected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, f.FrameIndex, unixNanos(f.Timestamp), f.Status, f.Rule, boolInt(f.Safe),
		f.VehicleCount, boolInt(f.Moving), boolInt(f.VehicleOnCrosswalk), boolInt(f.PedestrianOnCrosswalk),
		f.MaxDisplacement, f.Rejected,
	)
	if err != nil {
		return fmt.Errorf("record frame %d of %s: %w", f.FrameIndex, f.SessionID, err)
	}
	return nil
}

// FrameVerdicts returns a session's frames in frame order. A positive limit
// keeps only the most recent frames.
func (db *DB) FrameVerdicts(ctx context.Context, sessionID string, limit int) ([]FrameRecord, error) {
	query := `SELECT session_id, frame_index, frame_unix_nanos, status, rule, safe,
			vehicle_count, moving, vehicle_on_crosswalk, pedestrian_on_crosswalk,
			max_displacement, rejected
		  FROM frame_verdicts WHERE session_id = ?`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (` + query + ` ORDER BY verdict_id DESC LIMIT ?) ORDER BY frame_index, frame_unix_nanos`
		args = append(args, limit)
	} else {
		query += ` ORDER BY frame_index, frame_unix_nanos`
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var (
			f                          FrameRecord
			ts                         int64
			safe, moving, onVeh, onPed int
		)
		if err := rows.Scan(&f.SessionID, &f.FrameIndex, &ts, &f.Status, &f.Rule, &safe,
			&f.VehicleCount, &moving, &onVeh, &onPed, &f.MaxDisplacement, &f.Rejected); err != nil {
			return nil, err
		}
		f.Timestamp = fromUnixNanos(ts)
		f.Safe = safe != 0
		f.Moving = moving != 0
		f.VehicleOnCrosswalk = onVeh != 0
		f.PedestrianOnCrosswalk = onPed != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordAlert stores an emitted alert.
func (db *DB) RecordAlert(ctx context.Context, a AlertRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, session_id, frame_index, status, message, language, emitted_unix_nanos, narration_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.FrameIndex, a.Status, a.Message, a.Language, unixNanos(a.EmittedAt), a.NarrationError,
	)
	if err != nil {
		return fmt.Errorf("record alert %s: %w", a.ID, err)
	}
	return nil
}

// MarkAlertFailed records why an alert could not be narrated.
func (db *DB) MarkAlertFailed(ctx context.Context, alertID string, narrationErr string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE alerts SET narration_error = ? WHERE alert_id = ?`, narrationErr, alertID)
	if err != nil {
		return fmt.Errorf("mark alert %s: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// Alerts returns a session's alerts in emission order.
func (db *DB) Alerts(ctx context.Context, sessionID string) ([]AlertRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT alert_id, session_id, frame_index, status, message, language, emitted_unix_nanos, narration_error
		   FROM alerts WHERE session_id = ? ORDER BY emitted_unix_nanos, frame_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var (
			a       AlertRecord
			emitted int64
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.FrameIndex, &a.Status, &a.Message, &a.Language, &emitted, &a.NarrationError); err != nil {
			return nil, err
		}
		a.EmittedAt = fromUnixNanos(emitted)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary aggregates a session's history.
func (db *DB) Summary(ctx context.Context, sessionID string) (SessionSummary, error) {
	sum := SessionSummary{SessionID: sessionID, ByStatus: map[string]int{}}

	rows, err := db.QueryContext(ctx,
		`SELECT status, safe, COUNT(*) FROM frame_verdicts WHERE session_id = ? GROUP BY status, safe`, sessionID)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			safe   int
			n      int
		)
		if err := rows.Scan(&status, &safe, &n); err != nil {
			return sum, err
		}
		sum.ByStatus[status] += n
		sum.Frames += n
		if safe != 0 {
			sum.Safe += n
		} else {
			sum.Unsafe += n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE session_id = ?`, sessionID).Scan(&sum.Alerts); err != nil {
		return sum, err
	}
	return sum, nil
}

// DeleteSession removes a session and its history.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}
