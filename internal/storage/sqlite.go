package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "execd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendExecution(ctx context.Context, rec ExecutionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	var completed any
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(id, command_id, schedule_id, command, started_at, completed_at,
		                        duration_sec, success, exit_code, stdout, stderr, working_dir)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.CommandID, nullStr(rec.ScheduleID), rec.Command,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), completed,
		rec.DurationSec, boolInt(rec.Success), nullInt(rec.ExitCode),
		nullStr(rec.Stdout), nullStr(rec.Stderr), nullStr(rec.WorkingDirectory),
	)
	return err
}

func (s *sqliteStore) RecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command_id, schedule_id, command, started_at, completed_at,
		        duration_sec, success, exit_code, stdout, stderr, working_dir
		 FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec       ExecutionRecord
			schedID   sql.NullString
			started   string
			completed sql.NullString
			success   int
			exitCode  sql.NullInt64
			stdout    sql.NullString
			stderr    sql.NullString
			workDir   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CommandID, &schedID, &rec.Command, &started, &completed,
			&rec.DurationSec, &success, &exitCode, &stdout, &stderr, &workDir); err != nil {
			return nil, err
		}
		rec.ScheduleID = schedID.String
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			rec.StartedAt = t
		}
		if completed.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
				rec.CompletedAt = &t
			}
		}
		rec.Success = success != 0
		if exitCode.Valid {
			ec := int(exitCode.Int64)
			rec.ExitCode = &ec
		}
		rec.Stdout = stdout.String
		rec.Stderr = stderr.String
		rec.WorkingDirectory = workDir.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
