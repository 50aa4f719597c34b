package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edebt/syncengine/internal/schema"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const ddl = `
CREATE TABLE IF NOT EXISTS customers (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	sync_status TEXT,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS orders (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	customer_id TEXT,
	sync_status TEXT,
	created_at TEXT
);

CREATE TABLE IF NOT EXISTS menu (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	category TEXT,
	available TEXT
);

CREATE TABLE IF NOT EXISTS pending_sync (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	type TEXT,
	created_at TEXT,
	state TEXT
);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_sync_status ON customers(sync_status);
CREATE INDEX IF NOT EXISTS idx_customers_updated_at ON customers(updated_at);
CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id);
CREATE INDEX IF NOT EXISTS idx_orders_sync_status ON orders(sync_status);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_menu_category ON menu(category);
CREATE INDEX IF NOT EXISTS idx_menu_available ON menu(available);
CREATE INDEX IF NOT EXISTS idx_pending_sync_type ON pending_sync(type);
CREATE INDEX IF NOT EXISTS idx_pending_sync_created_at ON pending_sync(created_at);
CREATE INDEX IF NOT EXISTS idx_pending_sync_state ON pending_sync(state);
`

// sqliteBackend is the structured backend. Table and column names come from
// the indexes declaration, never from callers.
type sqliteBackend struct {
	conn *sql.DB
	path string
}

func openSQLite(ctx context.Context, path string) (*sqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Writers take the lock up front; every commit is fsynced.
	connStr := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One connection serializes transactions.
	conn.SetMaxOpenConns(1)

	b := &sqliteBackend{conn: conn, path: path}

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = b.close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		_ = b.close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return b, nil
}

func (b *sqliteBackend) name() string { return "sqlite" }

func (b *sqliteBackend) close() error {
	if b.conn == nil {
		return nil
	}
	if _, err := b.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	b.conn = nil
	return nil
}

func (b *sqliteBackend) view(ctx context.Context, fn func(Tx) error) error {
	tx, err := b.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqliteTx{ctx: ctx, tx: tx})
}

func (b *sqliteBackend) update(ctx context.Context, fn func(Tx) error) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func selectColumns(coll schema.Collection) string {
	cols := append([]string{"key", "body"}, indexes[coll]...)
	return strings.Join(cols, ", ")
}

func (t *sqliteTx) query(coll schema.Collection, where string, args ...any) ([]Doc, error) {
	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY key", selectColumns(coll), coll, where)
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	defer rows.Close()

	docs := []Doc{}
	for rows.Next() {
		doc, err := scanDoc(coll, rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", coll, err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(coll schema.Collection, row scanner) (Doc, error) {
	idx := indexes[coll]
	var (
		doc  Doc
		body string
	)
	values := make([]sql.NullString, len(idx))
	dest := []any{&doc.Key, &body}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := row.Scan(dest...); err != nil {
		return Doc{}, err
	}
	doc.Body = []byte(body)
	if len(idx) > 0 {
		doc.Indexes = make(map[string]string, len(idx))
		for i, name := range idx {
			if values[i].Valid {
				doc.Indexes[name] = values[i].String
			}
		}
	}
	return doc, nil
}

func (t *sqliteTx) Get(coll schema.Collection, key string) (Doc, error) {
	if err := checkCollection(coll); err != nil {
		return Doc{}, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE key = ?", selectColumns(coll), coll)
	doc, err := scanDoc(coll, t.tx.QueryRowContext(t.ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, fmt.Errorf("%s %s: %w", coll, key, ErrNotFound)
	}
	if err != nil {
		return Doc{}, fmt.Errorf("failed to get %s %s: %w", coll, key, err)
	}
	return doc, nil
}

func (t *sqliteTx) GetAll(coll schema.Collection) ([]Doc, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	return t.query(coll, "")
}

func (t *sqliteTx) GetByIndex(coll schema.Collection, index, value string) ([]Doc, error) {
	if err := checkIndex(coll, index); err != nil {
		return nil, err
	}
	return t.query(coll, fmt.Sprintf("WHERE %s = ?", index), value)
}

func (t *sqliteTx) Put(coll schema.Collection, doc Doc) error {
	if err := checkDoc(coll, doc); err != nil {
		return err
	}
	idx := indexes[coll]
	cols := append([]string{"key", "body"}, idx...)
	args := []any{doc.Key, string(doc.Body)}
	sets := []string{"body = excluded.body"}
	for _, name := range idx {
		if v, ok := doc.Indexes[name]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", name, name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(key) DO UPDATE SET %s",
		coll, strings.Join(cols, ", "), placeholders, strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return fmt.Errorf("failed to put %s %s: %w", coll, doc.Key, err)
	}
	return nil
}

func (t *sqliteTx) Delete(coll schema.Collection, key string) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", coll), key); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", coll, key, err)
	}
	return nil
}

func (t *sqliteTx) Clear(coll schema.Collection) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("DELETE FROM %s", coll)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", coll, err)
	}
	return nil
}
