package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"momentum/internal/core"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the database at dbPath up to the latest schema.
func RunMigrations(dbPath string) error {
	// Separate connection so the migrator can close it freely.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// SQLite stores documents as JSON bodies in a single table. The owner and
// timestamp are copied into indexed columns so the common per-owner,
// time-windowed queries are narrowed in SQL; every filter is still checked
// against the decoded body.
type SQLite struct {
	db  *sql.DB
	hub *Hub
	pub publisher
}

// NewSQLite opens (creating if needed) and migrates the database at dbPath.
func NewSQLite(dbPath string, opts Options) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLite{
		db:  db,
		pub: publisher{notifier: opts.Notifier, origin: opts.Origin},
	}
	s.hub = newHub(s.GetOnce)
	return s, nil
}

func (s *SQLite) Close() error {
	s.hub.close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) GetOnce(ctx context.Context, q Query) ([]Document, error) {
	var (
		where = []string{"collection = ?"}
		args  = []any{q.Collection}
	)
	for _, f := range q.Filters {
		switch {
		case f.Field == FieldOwner && f.Op == OpEq:
			if owner, ok := f.Value.(string); ok {
				where = append(where, "owner_id = ?")
				args = append(args, owner)
			}
		case f.Field == FieldTimestamp && f.Op != OpEq && f.Op != OpIn:
			if ts, ok := int64Of(f.Value); ok {
				where = append(where, "ts "+f.Op.String()+" ?")
				args = append(args, ts)
			}
		}
	}
	order := "id"
	if q.OrderBy == FieldTimestamp {
		switch q.Direction {
		case Asc:
			order = "ts ASC, id"
		case Desc:
			order = "ts DESC, id"
		}
	}
	query := "SELECT id, body FROM documents WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		fields, err := decodeBody(body)
		if err != nil {
			// One corrupt document must not hide the rest of the collection.
			slog.WarnContext(ctx, "Skipping undecodable document",
				"collection", q.Collection,
				"id", id,
				"error", err)
			continue
		}
		if q.Match(fields) {
			docs = append(docs, Document{ID: id, Fields: fields})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return q.apply(docs), nil
}

func (s *SQLite) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error) {
	return s.hub.subscribe(ctx, q, fn)
}

func (s *SQLite) Create(ctx context.Context, collection string, fields core.Fields) (string, error) {
	id := uuid.NewString()
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, owner_id, ts, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		collection, id, ownerOf(fields), tsOf(fields), string(body), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	s.committed(ctx, collection, id, fields, "create")
	return id, nil
}

func (s *SQLite) Update(ctx context.Context, collection, id string, partial core.Fields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	cur, err := decodeBody(body)
	if err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	merged := merge(cur, partial)
	next, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET owner_id = ?, ts = ?, body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		ownerOf(merged), tsOf(merged), string(next), time.Now().UnixMilli(), collection, id); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.committed(ctx, collection, id, merged, "update")
	return nil
}

func (s *SQLite) Set(ctx context.Context, collection, id string, fields core.Fields) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, owner_id, ts, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			owner_id = excluded.owner_id,
			ts = excluded.ts,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		collection, id, ownerOf(fields), tsOf(fields), string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.committed(ctx, collection, id, fields, "set")
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	owner := ""
	_ = s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&owner)
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.committed(ctx, collection, id, core.Fields{FieldOwner: owner}, "delete")
	}
	return nil
}

func (s *SQLite) GetSingle(ctx context.Context, collection, id string) (core.Fields, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeBody(body)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return fields, true, nil
}

// NotifyChanged wakes local subscriptions after a write made by another
// process sharing this database.
func (s *SQLite) NotifyChanged(collection string) {
	s.hub.NotifyChanged(collection)
}

func (s *SQLite) committed(ctx context.Context, collection, id string, fields core.Fields, op string) {
	s.hub.NotifyChanged(collection)
	s.pub.publish(ctx, collection, id, fields, op)
}

func decodeBody(body string) (core.Fields, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var f core.Fields
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f, nil
}

// tsOf picks the ordering timestamp of a document: its timestamp, or its
// creation time for documents (goals) that have no timestamp.
func tsOf(fields core.Fields) int64 {
	if ts, ok := int64Of(fields[FieldTimestamp]); ok {
		return ts
	}
	if ts, ok := int64Of(fields["createdAt"]); ok {
		return ts
	}
	return 0
}

func int64Of(v any) (int64, bool) {
	n, ok := number(v)
	if !ok {
		return 0, false
	}
	return n.IntPart(), true
}
