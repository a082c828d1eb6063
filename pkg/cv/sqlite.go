// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cv

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps CVs in a SQLite database, standing in for the EEPROM.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the CV database at path. ":memory:" is allowed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CV database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to CV database: %w", err)
	}

	// One connection: a single writer, and ":memory:" stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReadCV implements Store
func (s *SQLiteStore) ReadCV(n uint16) (uint8, error) {
	var v int
	err := s.db.QueryRow("SELECT value FROM cvs WHERE number = ?", n).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return ErasedValue, nil
	}
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// WriteCV implements Store
func (s *SQLiteStore) WriteCV(n uint16, v uint8) error {
	_, err := s.db.Exec(`
		INSERT INTO cvs (number, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		n, v, time.Now().UnixMilli())
	return err
}

// Programmed returns every CV that has been written.
func (s *SQLiteStore) Programmed() (map[uint16]uint8, error) {
	rows, err := s.db.Query("SELECT number, value FROM cvs ORDER BY number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uint16]uint8)
	for rows.Next() {
		var n, v int
		if err := rows.Scan(&n, &v); err != nil {
			return nil, err
		}
		result[uint16(n)] = uint8(v)
	}
	return result, rows.Err()
}
