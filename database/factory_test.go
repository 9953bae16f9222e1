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

package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	*SQLiteDriver
}

func (fakeDriver) Name() string { return "fake" }

func TestDriverFactory(t *testing.T) {
	f := NewDriverFactory()

	for name, want := range map[string]string{
		"mysql":      "mysql",
		"MySQL":      "mysql",
		"sqlite":     "sqlite",
		"sqlite3":    "sqlite",
		"postgres":   "postgres",
		"postgresql": "postgres",
		" pgsql ":    "postgres",
	} {
		d, err := f.Create(name)
		require.NoError(t, err, name)
		require.Equal(t, want, d.Name())
	}

	_, err := f.Create("oracle")
	require.True(t, errors.Is(err, ErrUnknownDriver))
	var uerr *UnknownDriverError
	require.True(t, errors.As(err, &uerr))
	require.Equal(t, "oracle", uerr.Name)

	f.Register("fake", func() Driver { return fakeDriver{&SQLiteDriver{baseDriver{name: "sqlite"}}} })
	d, err := f.Create("FAKE")
	require.NoError(t, err)
	require.Equal(t, "fake", d.Name())
	require.Contains(t, f.Drivers(), "fake")
	require.Equal(t, "fake", f.Drivers()[0])
}

func TestDefaultFactoryIsIsolatedFromLocalFactories(t *testing.T) {
	local := NewDriverFactory()
	local.Register("only-local", NewSQLiteDriver)

	_, err := CreateDriver("only-local")
	require.Error(t, err)

	d, err := CreateDriver("sqlite3")
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())
}
