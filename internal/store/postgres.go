// Package store provides storage backends for GroupSum.
//
// This file implements the PostgreSQL-backed message-history store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/groupsum/GroupSum/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool configuration.
const (
	// DefaultMaxOpenConns is the maximum number of open connections.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is how long a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a message-history store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store from the configured DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Postgres message store ready")
	return &PostgresStore{db: db}, nil
}

// AddGroupMessage records one message for a group.
func (s *PostgresStore) AddGroupMessage(groupJID string, msg models.GroupMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO group_messages (group_jid, message_id, sender, body, sent_at) VALUES ($1, $2, $3, $4, $5)`,
		groupJID, msg.ID, msg.Sender, msg.Body, msg.SentAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddGroupMessage failed", "error", err, "group", groupJID)
		return fmt.Errorf("failed to insert message for %s: %w", groupJID, err)
	}
	return nil
}

// RecentGroupMessages returns the newest limit messages, oldest first.
func (s *PostgresStore) RecentGroupMessages(groupJID string, limit int) ([]models.GroupMessage, error) {
	rows, err := s.db.Query(
		`SELECT message_id, sender, body, sent_at FROM group_messages
		 WHERE group_jid = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`,
		groupJID, limit,
	)
	if err != nil {
		slog.Error("PostgresStore RecentGroupMessages query failed", "error", err, "group", groupJID)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanMessages reads GroupMessage rows in query order.
func scanMessages(rows *sql.Rows) ([]models.GroupMessage, error) {
	var messages []models.GroupMessage
	for rows.Next() {
		var m models.GroupMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// reverseMessages flips a newest-first window into ascending send order.
func reverseMessages(messages []models.GroupMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
