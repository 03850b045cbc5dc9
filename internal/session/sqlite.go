package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/teemow/calendar-mcp/internal/logging"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    state        TEXT NOT NULL,
    user_info    TEXT,
    access_token TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);`

// SQLiteBackend persists sessions in a SQLite database file so that logins
// survive a restart. Access tokens are stored in clear; protect the file.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite session storage requires a database path")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	logger = logging.WithComponent(logger, "session.sqlite")
	logger.Info("sqlite session storage initialized", slog.String("path", path))

	return &SQLiteBackend{db: db, logger: logger}, nil
}

// Get returns the record for id, or ErrNotFound.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (*Record, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, state, user_info, access_token, created_at, updated_at FROM sessions WHERE id = ?;`, id)

	var (
		rec                Record
		state              string
		userInfo           sql.NullString
		createdAt, updated int64
	)
	if err := row.Scan(&rec.ID, &state, &userInfo, &rec.AccessToken, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	rec.State = State(state)
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updated)

	if userInfo.Valid && userInfo.String != "" {
		if err := json.Unmarshal([]byte(userInfo.String), &rec.UserInfo); err != nil {
			return nil, fmt.Errorf("failed to decode stored user info: %w", err)
		}
	}

	return &rec, nil
}

// Insert stores rec unless its ID is already present.
func (b *SQLiteBackend) Insert(ctx context.Context, rec *Record) error {
	userInfo, err := encodeUserInfo(rec.UserInfo)
	if err != nil {
		return err
	}

	res, err := b.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, user_info, access_token, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING;`,
		rec.ID, string(rec.State), userInfo, rec.AccessToken, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Put inserts or replaces rec.
func (b *SQLiteBackend) Put(ctx context.Context, rec *Record) error {
	userInfo, err := encodeUserInfo(rec.UserInfo)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, user_info, access_token, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             state = excluded.state,
             user_info = excluded.user_info,
             access_token = excluded.access_token,
             updated_at = excluded.updated_at;`,
		rec.ID, string(rec.State), userInfo, rec.AccessToken, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Counts returns the number of sessions per state.
func (b *SQLiteBackend) Counts(ctx context.Context) (map[State]int, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM sessions GROUP BY state;`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to count sessions: %w", err)
		}
		counts[State(state)] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func encodeUserInfo(info UserInfo) (sql.NullString, error) {
	if info == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode user info: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
