/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"CreateUsersTable":     "create_users_table",
		"create_users_table":   "create_users_table",
		"AddVotesToUsersTable": "add_votes_to_users_table",
		"add-votes-to-users":   "add_votes_to_users",
		"ImportHTTPLogs":       "import_http_logs",
		"Create_Posts":         "create_posts",
		"AddV2ColumnsToOrders": "add_v2_columns_to_orders",
	} {
		require.Equal(t, want, SnakeCase(in), in)
	}
}

func TestGuessTable(t *testing.T) {
	cases := []struct {
		name   string
		table  string
		create bool
	}{
		{"create_users_table", "users", true},
		{"create_user", "users", true},
		{"add_votes_to_users_table", "users", false},
		{"remove_votes_from_users", "users", false},
		{"backfill_everything", "", false},
	}
	for _, tc := range cases {
		table, create := GuessTable(tc.name)
		require.Equal(t, tc.table, table, tc.name)
		require.Equal(t, tc.create, create, tc.name)
	}
}

func TestCreatorWritesLoadableSkeleton(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	c := NewCreator(dir)
	c.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }

	path, err := c.Create("CreateUsersTable")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "2024_03_09_140507_create_users_table.yaml"), path)

	m, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2024_03_09_140507_create_users_table", m.Name())
	file := m.(*yamlMigration).file
	require.Equal(t, "users", file.Up[0].Create)
	require.True(t, file.Up[0].Timestamps)
	require.Equal(t, "users", file.Down[0].DropIfExists)

	_, err = c.Create("create_users_table")
	require.ErrorContains(t, err, "already exists")

	path, err = c.Create("AddEmailToUsersTable")
	require.NoError(t, err)
	m, err = LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "users", m.(*yamlMigration).file.Up[0].Table)

	ms, err := Dir(dir).Load()
	require.NoError(t, err)
	require.Len(t, ms, 2)

	_, err = c.Create("123 bad!")
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
