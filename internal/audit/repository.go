// Package audit records the commands clients send through the gateway in the
// command_log table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command sources.
const (
	SourceWebSocket = "websocket"
	SourceMQTT      = "mqtt"
)

// ResultSent marks a command that was written to the upstream link.
const ResultSent = "sent"

// timeLayout keeps fixed-width timestamps so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CommandLog is a single recorded client command.
type CommandLog struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Source    string          `json:"source"`
	Command   string          `json:"command"`
	Device    string          `json:"device,omitempty"`
	Property  string          `json:"property,omitempty"`
	Keys      json.RawMessage `json:"keys,omitempty"`
	Result    string          `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter controls which command logs to return.
type Filter struct {
	Device  string // optional
	Command string // optional: switch, number, config
	Source  string // optional: websocket, mqtt
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult contains a page of command logs.
type ListResult struct {
	Logs   []CommandLog `json:"logs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// Repository defines the command log operations.
type Repository interface {
	Record(ctx context.Context, log *CommandLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores command logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a command log repository on an open database
// that has the command_log migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a command log entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, log *CommandLog) error {
	if log.ID == "" {
		log.ID = "cmd-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	keys := "[]"
	if len(log.Keys) > 0 {
		keys = string(log.Keys)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, session_id, source, command, device, property, keys, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.SessionID, log.Source, log.Command,
		log.Device, log.Property, keys, log.Result,
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// List returns command logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"device", filter.Device},
		{"command", filter.Command},
		{"source", filter.Source},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from fixed column names
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command logs: %w", err)
	}

	query := "SELECT id, session_id, source, command, device, property, keys, result, created_at FROM command_log " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	logs := make([]CommandLog, 0, filter.Limit)
	for rows.Next() {
		var l CommandLog
		var keys, createdAt string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Source, &l.Command,
			&l.Device, &l.Property, &keys, &l.Result, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		l.Keys = json.RawMessage(keys)
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			l.CreatedAt = t
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
