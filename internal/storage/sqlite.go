package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, ErrPathRequired
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadEvents(ctx context.Context) ([]lifecycle.EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM events ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.EventRecord
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var e lifecycle.EventRecord
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.log.Warn("skipping unreadable event row", logx.String("event", id), logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveEvents(ctx context.Context, events []lifecycle.EventRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events(id, position, name, venue, start_time, record) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET position=excluded.position, name=excluded.name,
		 venue=excluded.venue, start_time=excluded.start_time, record=excluded.record`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.ID, i, nullStr(e.Name), nullStr(e.Venue), nullTime(e.StartTime), string(raw)); err != nil {
			return fmt.Errorf("storage: save event %q: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendTransition(ctx context.Context, t Transition) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	t = t.prepare()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions(id, event_id, from_main, from_sub, to_main, to_sub, at) VALUES(?,?,?,?,?,?,?)`,
		t.ID, t.EventID,
		t.From.Main.String(), t.From.Sub.String(),
		t.To.Main.String(), t.To.Sub.String(),
		t.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Transitions(ctx context.Context, eventID string, limit int) ([]Transition, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT id, event_id, from_main, from_sub, to_main, to_sub, at FROM transitions`
	var args []any
	if eventID != "" {
		q += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	q += ` ORDER BY seq DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var fromMain, fromSub, toMain, toSub, at string
		if err := rows.Scan(&t.ID, &t.EventID, &fromMain, &fromSub, &toMain, &toSub, &at); err != nil {
			return nil, err
		}
		if err := decodeStatus(&t.From, fromMain, fromSub); err != nil {
			return nil, err
		}
		if err := decodeStatus(&t.To, toMain, toSub); err != nil {
			return nil, err
		}
		if t.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest first from the query; callers get oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func decodeStatus(dst *lifecycle.StatusResult, main, sub string) error {
	if err := dst.Main.UnmarshalText([]byte(main)); err != nil {
		return err
	}
	return dst.Sub.UnmarshalText([]byte(sub))
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
