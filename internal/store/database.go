package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DatabaseStore is a database-backed Store built on database/sql. It works
// with any driver exposing standard placeholders ("?"); sqlite and postgres
// (via lib/pq with rebinding) are the supported deployments.
type DatabaseStore struct {
	db        *sql.DB
	tableName string
	rebind    bool
}

// DatabaseConfig holds database store configuration.
type DatabaseConfig struct {
	// DB is the database connection
	DB *sql.DB

	// TableName is the name of the key-value table
	TableName string

	// PostgresPlaceholders rewrites "?" placeholders to "$1, $2, ..." for
	// drivers like lib/pq that do not accept "?".
	PostgresPlaceholders bool
}

// DefaultDatabaseConfig returns default database configuration.
func DefaultDatabaseConfig(db *sql.DB) *DatabaseConfig {
	return &DatabaseConfig{
		DB:        db,
		TableName: "formwork_kv",
	}
}

// NewDatabaseStore creates a new database store, creating the backing table
// if it does not exist.
func NewDatabaseStore(config *DatabaseConfig) (*DatabaseStore, error) {
	store := &DatabaseStore{
		db:        config.DB,
		tableName: config.TableName,
		rebind:    config.PostgresPlaceholders,
	}

	if err := store.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", config.TableName, err)
	}

	return store, nil
}

func (s *DatabaseStore) createTable() error {
	valueType := "BLOB"
	if s.rebind {
		valueType = "BYTEA"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(512) PRIMARY KEY,
			value %s NOT NULL
		)
	`, s.tableName, valueType)

	_, err := s.db.Exec(query)
	return err
}

// query rewrites placeholders when targeting postgres.
func (s *DatabaseStore) query(q string) string {
	if !s.rebind {
		return q
	}
	out := make([]byte, 0, len(q)+8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, q[i])
	}
	return string(out)
}

// Get retrieves a value from the database.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	q := s.query(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", s.tableName))

	var value []byte
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	return value, nil
}

// Put stores a value in the database, replacing any existing row atomically.
func (s *DatabaseStore) Put(ctx context.Context, key string, value []byte) error {
	// Delete-then-insert inside a transaction keeps the statement portable
	// across sqlite and postgres upsert dialects.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database begin error: %w", err)
	}

	del := s.query(fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName))
	if _, err := tx.ExecContext(ctx, del, key); err != nil {
		tx.Rollback()
		return fmt.Errorf("database delete error: %w", err)
	}

	ins := s.query(fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?)", s.tableName))
	if _, err := tx.ExecContext(ctx, ins, key, value); err != nil {
		tx.Rollback()
		return fmt.Errorf("database insert error: %w", err)
	}

	return tx.Commit()
}

// Delete removes a value from the database.
func (s *DatabaseStore) Delete(ctx context.Context, key string) error {
	q := s.query(fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName))
	_, err := s.db.ExecContext(ctx, q, key)
	return err
}

// Keys returns all keys beginning with prefix.
func (s *DatabaseStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	q := s.query(fmt.Sprintf("SELECT key FROM %s WHERE key LIKE ?", s.tableName))

	rows, err := s.db.QueryContext(ctx, q, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the database connection.
func (s *DatabaseStore) Close() error {
	return s.db.Close()
}
