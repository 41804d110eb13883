// Package sqlite provides a SQLite-backed bus.Archive so the message
// history survives process restarts. The schema is append-only; rows are
// never updated or deleted by the archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/rolemesh/core"
)

// Archive persists accepted messages in a SQLite database.
type Archive struct {
	db *sql.DB
}

// Open creates an Archive on the SQLite database at path (":memory:" works
// for tests) and ensures the schema exists.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	a, err := NewArchive(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// NewArchive wraps an existing database handle and ensures the schema.
func NewArchive(db *sql.DB) (*Archive, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Append implements bus.Archive.
func (a *Archive) Append(ctx context.Context, msg core.Message) error {
	var sendTo string
	if len(msg.SendTo) > 0 {
		sendTo = strings.Join(msg.SendTo, ",")
	}
	var metadata []byte
	if len(msg.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO bus_messages (seq, msg_id, content, cause_by, sent_from, send_to, metadata_json, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.Seq,
		msg.ID,
		msg.Content,
		msg.CauseBy,
		msg.SentFrom,
		sendTo,
		string(metadata),
		msg.Timestamp.UTC(),
	)
	return err
}

// Since implements bus.Archive.
func (a *Archive) Since(ctx context.Context, seq uint64) ([]core.Message, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, msg_id, content, cause_by, sent_from, send_to, metadata_json, published_at
		FROM bus_messages
		WHERE seq > ?
		ORDER BY seq ASC
	`, seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			msg          core.Message
			sendTo       string
			metadataJSON string
			published    time.Time
		)
		if err := rows.Scan(
			&msg.Seq,
			&msg.ID,
			&msg.Content,
			&msg.CauseBy,
			&msg.SentFrom,
			&sendTo,
			&metadataJSON,
			&published,
		); err != nil {
			return nil, err
		}
		if sendTo != "" {
			msg.SendTo = strings.Split(sendTo, ",")
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &msg.Metadata); err != nil {
				return nil, err
			}
		}
		msg.Timestamp = published
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close implements bus.Archive.
func (a *Archive) Close() error { return a.db.Close() }

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bus_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL UNIQUE,
			msg_id TEXT NOT NULL,
			content TEXT,
			cause_by TEXT NOT NULL,
			sent_from TEXT,
			send_to TEXT,
			metadata_json TEXT,
			published_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_bus_messages_cause_by ON bus_messages(cause_by);
		CREATE INDEX IF NOT EXISTS idx_bus_messages_sent_from ON bus_messages(sent_from);
	`)
	return err
}
