// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth tracks the client's mode: guest or authenticated.
//
// The manager is an explicitly scoped object constructed at app start and
// torn down on logout, replacing ambient token storage reachable from
// anywhere. Authentication itself (passwords, tokens, refresh) is the
// backend's concern; this package only remembers who is logged in and
// persists that across restarts.
package auth

import (
	"log"
	"sync"
)

// =============================================================================
// USER TYPE
// =============================================================================

// User is the authenticated user profile as returned by the backend login
// endpoint, plus the issued tokens.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	IsActive     bool   `json:"is_active"`
	IsVerified   bool   `json:"is_verified"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// =============================================================================
// PROFILE STORE
// =============================================================================

// ProfileStore persists the logged-in user across restarts.
type ProfileStore interface {
	SaveProfile(u *User) error
	LoadProfile() (*User, error)
	ClearProfile() error
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the current mode and user. Zero value is guest mode with no
// persistence; use New for a persisting manager.
type Manager struct {
	mu       sync.Mutex
	user     *User
	profiles ProfileStore
}

// New creates a manager that persists the profile through the given store.
// A stored profile is restored immediately; a corrupt or absent profile
// leaves the manager in guest mode.
func New(profiles ProfileStore) *Manager {
	m := &Manager{profiles: profiles}
	if profiles == nil {
		return m
	}
	u, err := profiles.LoadProfile()
	if err != nil {
		log.Printf("auth: stored profile unreadable, starting as guest: %v", err)
		return m
	}
	m.user = u
	return m
}

// Login records the user and persists the profile. A persistence failure is
// logged but does not fail the login; the session simply won't survive a
// restart.
func (m *Manager) Login(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	if m.profiles != nil {
		if err := m.profiles.SaveProfile(&u); err != nil {
			log.Printf("auth: failed to persist profile: %v", err)
		}
	}
}

// Logout clears the user and the persisted profile, returning the manager
// to guest mode.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	if m.profiles != nil {
		if err := m.profiles.ClearProfile(); err != nil {
			log.Printf("auth: failed to clear persisted profile: %v", err)
		}
	}
}

// IsGuest reports whether the client is in guest mode.
func (m *Manager) IsGuest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user == nil
}

// Current returns the logged-in user, or ok=false in guest mode.
func (m *Manager) Current() (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return User{}, false
	}
	return *m.user, true
}

// UserID returns the logged-in user's ID, or "" in guest mode.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}
