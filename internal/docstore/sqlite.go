package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// SQLiteStore keeps every collection in a single documents table with
// JSON bodies. Change notifications cover writes made through this process.
type SQLiteStore struct {
	db     *sql.DB
	bus    *eventBus
	logger *zerolog.Logger
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL with a busy timeout; _txlock=immediate makes read-modify-write
	// transactions take the write lock up front.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, bus: newEventBus(), logger: logger}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Document store initialized")
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, doc_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", trimSQL(q), err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (Document, error) {
	if err := validPath(collection, key); err != nil {
		return Document{}, err
	}
	data, err := getBody(ctx, s.db, collection, key)
	if err != nil {
		return Document{}, err
	}
	return Document{Key: key, Data: data}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, data Data) error {
	if err := validPath(collection, key); err != nil {
		return err
	}
	return s.Mutate(ctx, collection, key, func(Data, bool) (Data, bool, error) {
		if data == nil {
			return Data{}, false, nil
		}
		return data, false, nil
	})
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, collection, key string, fields Data) error {
	return s.Mutate(ctx, collection, key, func(current Data, _ bool) (Data, bool, error) {
		return merge(current, fields), false, nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	if err := validPath(collection, key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND doc_key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.bus.publish(Change{Collection: collection, Kind: ChangeRemoved, Doc: Document{Key: key}})
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]Document, error) {
	if collection == "" {
		return nil, ErrInvalidPath
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_key, body FROM documents WHERE collection = ? ORDER BY doc_key`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		data, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, key, err)
		}
		docs = append(docs, Document{Key: key, Data: data})
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, collection string, data Data) (string, error) {
	key := uuid.NewString()
	if err := s.Set(ctx, collection, key, data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *SQLiteStore) Mutate(ctx context.Context, collection, key string, fn MutateFunc) error {
	if err := validPath(collection, key); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getBody(ctx, tx, collection, key)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	next, remove, err := fn(current, exists)
	if err != nil {
		return err
	}

	var change Change
	switch {
	case remove:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND doc_key = ?`, collection, key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", collection, key, err)
		}
		change = Change{Collection: collection, Kind: ChangeRemoved, Doc: Document{Key: key}}
	case next == nil:
		return errNilMutateRes
	default:
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, doc_key, body) VALUES (?, ?, ?)
			ON CONFLICT(collection, doc_key) DO UPDATE SET
				body = excluded.body,
				updated_at = CURRENT_TIMESTAMP`,
			collection, key, string(body)); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
		}
		kind := ChangeModified
		if !exists {
			kind = ChangeAdded
		}
		change = Change{Collection: collection, Kind: kind, Doc: Document{Key: key, Data: clone(next)}}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", collection, key, err)
	}
	if !remove || exists {
		s.bus.publish(change)
	}
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, fn func(Change)) (func(), error) {
	if collection == "" {
		return nil, ErrInvalidPath
	}
	return s.bus.subscribe(ctx, collection, fn), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backup writes a consistent copy of the database to dest, which must not
// exist yet.
func (s *SQLiteStore) Backup(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup to %s: %w", dest, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.bus.closeAll()
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBody(ctx context.Context, q queryer, collection, key string) (Data, error) {
	var body string
	err := q.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	data, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, err)
	}
	return data, nil
}

func decodeBody(body string) (Data, error) {
	var data Data
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if data == nil {
		data = Data{}
	}
	return data, nil
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}
