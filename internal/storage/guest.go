// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/weho-chat/internal/model"
)

// sessionsKey is the single record key holding the serialized guest
// session list.
const sessionsKey = "sessions"

// Schema for the local guest state database.
const schema = `
CREATE TABLE IF NOT EXISTS guest_state (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL
) WITHOUT ROWID;
`

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredSession is the persisted form of a session.
type StoredSession struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []StoredMessage `json:"messages"`
}

// StoredMessage is the persisted form of a message.
type StoredMessage struct {
	ID          string             `json:"id"`
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	CreatedAt   time.Time          `json:"created_at"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// =============================================================================
// GUEST STORE
// =============================================================================

// GuestStore persists the guest session set.
type GuestStore struct {
	db *sql.DB
}

// OpenGuestStore opens (creating if needed) the guest state database at
// path and applies the schema.
func OpenGuestStore(path string) (*GuestStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open guest store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &GuestStore{db: db}, nil
}

// Close releases the database handle.
func (g *GuestStore) Close() error {
	return g.db.Close()
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save persists the guest session set. Sessions with zero messages are
// filtered out first; if nothing remains the stored record is cleared
// entirely rather than writing an empty list.
func (g *GuestStore) Save(sessions []*model.Session) error {
	var stored []StoredSession
	for _, sess := range sessions {
		if sess.IsEmpty() {
			continue
		}
		stored = append(stored, toStored(sess))
	}

	if len(stored) == 0 {
		return g.Clear()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}

	_, err = g.db.Exec(
		`INSERT INTO guest_state(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		sessionsKey, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	return nil
}

// Load returns the stored guest session set. Absence or a deserialize
// failure yields an empty result, never an error the caller must handle as
// fatal.
func (g *GuestStore) Load() ([]*model.Session, error) {
	var data []byte
	err := g.db.QueryRow(`SELECT value FROM guest_state WHERE key = ?`, sessionsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	var stored []StoredSession
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupt record: equivalent to no history.
		log.Printf("storage: discarding corrupt guest session record: %v", err)
		return nil, nil
	}

	sessions := make([]*model.Session, 0, len(stored))
	for _, s := range stored {
		if len(s.Messages) == 0 {
			continue
		}
		sessions = append(sessions, fromStored(s))
	}
	return sessions, nil
}

// Clear removes the stored guest session record.
func (g *GuestStore) Clear() error {
	if _, err := g.db.Exec(`DELETE FROM guest_state WHERE key = ?`, sessionsKey); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toStored(sess *model.Session) StoredSession {
	out := StoredSession{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Messages:  make([]StoredMessage, 0, len(sess.Messages)),
	}
	for _, msg := range sess.Messages {
		out.Messages = append(out.Messages, StoredMessage{
			ID:          msg.ID,
			Role:        msg.Role.String(),
			Content:     msg.GetDisplayContent(),
			CreatedAt:   msg.CreatedAt,
			Attachments: msg.Attachments,
		})
	}
	return out
}

func fromStored(s StoredSession) *model.Session {
	sess := model.NewSessionWithID(s.ID, model.OriginGuest)
	sess.Title = s.Title
	sess.CreatedAt = s.CreatedAt
	sess.UpdatedAt = s.UpdatedAt
	for _, m := range s.Messages {
		role := model.RoleAssistant
		if m.Role == model.RoleUser.String() {
			role = model.RoleUser
		}
		msg := model.NewMessage(role, m.Content)
		msg.ID = m.ID
		msg.CreatedAt = m.CreatedAt
		msg.Attachments = m.Attachments
		sess.AddMessage(msg)
	}
	sess.UpdatedAt = s.UpdatedAt
	return sess
}
