// Package posts is the demo content provider: a SQLite post store and the
// wpv/create-post ability that writes to it.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Post statuses accepted by the store
const (
	StatusDraft   = "draft"
	StatusPublish = "publish"
)

var ErrPostNotFound = errors.New("post not found")

// Post is a stored piece of site content
type Post struct {
	ID        int64     `json:"id"`
	GUID      string    `json:"guid"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists posts
type Store interface {
	Create(ctx context.Context, p Post) (Post, error)
	Get(ctx context.Context, id int64) (Post, error)
}

// SQLiteStore is a Store backed by a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guid TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('draft', 'publish')),
			author_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create inserts p and returns it with ID, GUID and CreatedAt set
func (s *SQLiteStore) Create(ctx context.Context, p Post) (Post, error) {
	if p.Status == "" {
		p.Status = StatusDraft
	}

	guid, err := gonanoid.New()
	if err != nil {
		return Post{}, fmt.Errorf("failed to generate post guid: %w", err)
	}
	p.GUID = guid
	p.CreatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (guid, title, content, status, author_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.GUID, p.Title, p.Content, p.Status, p.AuthorID, p.CreatedAt.Unix(),
	)
	if err != nil {
		return Post{}, fmt.Errorf("failed to insert post: %w", err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return Post{}, fmt.Errorf("failed to read post id: %w", err)
	}

	return p, nil
}

// Get returns the post with id
func (s *SQLiteStore) Get(ctx context.Context, id int64) (Post, error) {
	var (
		p       Post
		created int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, guid, title, content, status, author_id, created_at FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.GUID, &p.Title, &p.Content, &p.Status, &p.AuthorID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, fmt.Errorf("%w: %d", ErrPostNotFound, id)
	}
	if err != nil {
		return Post{}, fmt.Errorf("failed to load post: %w", err)
	}

	p.CreatedAt = time.Unix(created, 0).UTC()
	return p, nil
}

// Count returns the number of stored posts
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
