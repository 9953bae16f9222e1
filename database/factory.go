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
	"sort"
	"strings"
	"sync"
)

// DriverConstructor builds a fresh driver instance.
type DriverConstructor func() Driver

// DriverFactory maps configured driver names to constructors. New backends
// are added with Register without touching the factory.
type DriverFactory struct {
	mu           sync.RWMutex
	constructors map[string]DriverConstructor
}

// NewDriverFactory returns a factory with the built-in drivers registered:
// mysql, sqlite (sqlite3) and postgres (postgresql, pgsql).
func NewDriverFactory() *DriverFactory {
	f := &DriverFactory{constructors: map[string]DriverConstructor{}}
	f.Register("mysql", NewMySQLDriver)
	f.Register("sqlite", NewSQLiteDriver)
	f.Register("sqlite3", NewSQLiteDriver)
	f.Register("postgres", NewPostgresDriver)
	f.Register("postgresql", NewPostgresDriver)
	f.Register("pgsql", NewPostgresDriver)
	return f
}

// Register adds or replaces the constructor for name (case-insensitive).
func (f *DriverFactory) Register(name string, ctor DriverConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[normalizeDriverName(name)] = ctor
}

func (f *DriverFactory) Create(name string) (Driver, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[normalizeDriverName(name)]
	f.mu.RUnlock()
	if !ok || ctor == nil {
		return nil, &UnknownDriverError{Name: name}
	}
	return ctor(), nil
}

// Drivers lists the registered names, sorted.
func (f *DriverFactory) Drivers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for n := range f.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeDriverName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var defaultFactory = NewDriverFactory()

// RegisterDriver registers a constructor on the process-wide factory.
func RegisterDriver(name string, ctor DriverConstructor) {
	defaultFactory.Register(name, ctor)
}

// CreateDriver resolves name on the process-wide factory.
func CreateDriver(name string) (Driver, error) {
	return defaultFactory.Create(name)
}

func DefaultFactory() *DriverFactory { return defaultFactory }
