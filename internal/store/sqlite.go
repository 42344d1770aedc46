// Package store provides storage backends for GroupSum.
//
// This file implements the SQLite-backed message-history store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/groupsum/GroupSum/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for created database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a message-history store backed by an SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path; the
// containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("SQLite message store ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// AddGroupMessage records one message for a group.
func (s *SQLiteStore) AddGroupMessage(groupJID string, msg models.GroupMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO group_messages (group_jid, message_id, sender, body, sent_at) VALUES (?, ?, ?, ?, ?)`,
		groupJID, msg.ID, msg.Sender, msg.Body, msg.SentAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddGroupMessage failed", "error", err, "group", groupJID)
		return fmt.Errorf("failed to insert message for %s: %w", groupJID, err)
	}
	return nil
}

// RecentGroupMessages returns the newest limit messages, oldest first.
func (s *SQLiteStore) RecentGroupMessages(groupJID string, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.Query(
		`SELECT message_id, sender, body, sent_at FROM group_messages
		 WHERE group_jid = ? ORDER BY sent_at DESC, id DESC LIMIT ?`,
		groupJID, limit,
	)
	if err != nil {
		slog.Error("SQLiteStore RecentGroupMessages query failed", "error", err, "group", groupJID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", groupJID, err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
