// Package review keeps flagged tributes in a local SQLite queue for human
// moderators. Approved tributes are never stored.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/tributeguard/internal/analyzer"
)

// Item statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = errors.New("review item not found")

// Item is one flagged tribute awaiting or past moderation.
type Item struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	CreatedAt  time.Time `json:"created_at"`
	Text       string    `json:"text"`
	Spans      []string  `json:"flagged_content"`
	PolicyHash string    `json:"policy_hash"`
	Model      string    `json:"model"`
	Status     string    `json:"status"`
}

// ListOptions filters List. Zero Limit means 50.
type ListOptions struct {
	Status string
	Limit  int
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flagged (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	text        TEXT NOT NULL,
	spans       TEXT NOT NULL,
	policy_hash TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS flagged_status ON flagged(status, created_at);
`

// Store is a SQLite-backed review queue. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns ~/.tributeguard/review.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "review.db"
	}
	return filepath.Join(home, ".tributeguard", "review.db")
}

// Open opens or creates the queue database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("review: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("review: open database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("review: create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a pending item and returns its id.
func (s *Store) Add(ctx context.Context, item Item) (int64, error) {
	spans, err := json.Marshal(nonNil(item.Spans))
	if err != nil {
		return 0, fmt.Errorf("review: encode spans: %w", err)
	}
	created := item.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO flagged (request_id, created_at, text, spans, policy_hash, model, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.RequestID, created.UnixMilli(), item.Text, string(spans), item.PolicyHash, item.Model, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("review: insert: %w", err)
	}
	return res.LastInsertId()
}

// Observe queues flagged outcomes. It implements analyzer.Observer.
func (s *Store) Observe(ctx context.Context, o analyzer.Outcome) error {
	if o.Result.Approved() {
		return nil
	}
	_, err := s.Add(ctx, Item{
		RequestID:  o.RequestID,
		Text:       o.Text,
		Spans:      o.Result.FlaggedContent,
		PolicyHash: o.PolicyHash,
		Model:      o.Model,
	})
	return err
}

// List returns items newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Item, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, request_id, created_at, text, spans, policy_hash, model, status FROM flagged`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("review: list: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review: list: %w", err)
	}
	return items, nil
}

// Get returns one item.
func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, created_at, text, spans, policy_hash, model, status FROM flagged WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return item, err
}

// Resolve sets the moderator decision on an item.
func (s *Store) Resolve(ctx context.Context, id int64, status string) error {
	switch status {
	case StatusApproved, StatusRejected, StatusPending:
	default:
		return fmt.Errorf("review: invalid status %q (want approved, rejected, or pending)", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE flagged SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("review: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("review: update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (Item, error) {
	var (
		item    Item
		created int64
		spans   string
	)
	if err := sc.Scan(&item.ID, &item.RequestID, &created, &item.Text, &spans, &item.PolicyHash, &item.Model, &item.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("review: scan: %w", err)
	}
	item.CreatedAt = time.UnixMilli(created).UTC()
	if err := json.Unmarshal([]byte(spans), &item.Spans); err != nil {
		return Item{}, fmt.Errorf("review: decode spans: %w", err)
	}
	return item, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
