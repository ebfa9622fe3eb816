// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jeranaias/weho-chat/internal/auth"
	"github.com/jeranaias/weho-chat/internal/util"
)

// =============================================================================
// PROFILE STORE
// =============================================================================

// ProfileStore persists the logged-in user profile as a JSON file. It
// implements auth.ProfileStore.
type ProfileStore struct {
	path string
}

// NewProfileStore creates a profile store backed by the given file path.
func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// SaveProfile writes the profile atomically. The file holds tokens, so it
// is not group or world readable.
func (p *ProfileStore) SaveProfile(u *auth.User) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}
	return util.AtomicWriteFile(p.path, data, 0600)
}

// LoadProfile reads the stored profile. A missing or unreadable file
// returns an error; the auth manager treats that as guest mode.
func (p *ProfileStore) LoadProfile() (*auth.User, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	var u auth.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("corrupt profile file: %w", err)
	}
	return &u, nil
}

// ClearProfile removes the stored profile. Removing an absent file is not
// an error.
func (p *ProfileStore) ClearProfile() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
