// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/weho-chat/internal/auth"
)

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	store := NewProfileStore(path)

	user := &auth.User{ID: "user-1", Email: "u@example.com", IsActive: true}
	require.NoError(t, store.SaveProfile(user))

	loaded, err := store.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, user, loaded)

	// Tokens live in this file; it must not be world readable.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadProfileMissingFile(t *testing.T) {
	store := NewProfileStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := store.LoadProfile()
	assert.Error(t, err, "a missing profile is reported to the caller")
}

func TestLoadProfileCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := NewProfileStore(path).LoadProfile()
	assert.Error(t, err)
}

func TestClearProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	store := NewProfileStore(path)

	require.NoError(t, store.SaveProfile(&auth.User{ID: "user-1"}))
	require.NoError(t, store.ClearProfile())
	assert.NoFileExists(t, path)

	// Clearing again is fine.
	assert.NoError(t, store.ClearProfile())
}
