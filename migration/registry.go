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
	"fmt"
	"sort"
	"sync"
)

var defaultRegistry = NewRegistry()

// Source supplies the set of known migrations.
type Source interface {
	Load() ([]Migration, error)
}

// Registry keeps migrations registered in code and lists them in name order.
type Registry struct {
	migrations []Migration
	mutex      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{migrations: make([]Migration, 0)}
}

func (r *Registry) Register(m Migration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.migrations = append(r.migrations, m)
}

// Migrations returns a sorted copy of the registered migrations.
func (r *Registry) Migrations() []Migration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Migration, len(r.migrations))
	copy(result, r.migrations)
	sortByName(result)
	return result
}

// Load implements Source. Duplicate names are an error.
func (r *Registry) Load() ([]Migration, error) {
	ms := r.Migrations()
	if err := checkUnique(ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// Register adds m to the process-wide registry, typically from an init func.
func Register(m Migration) {
	defaultRegistry.Register(m)
}

// Registered returns the process-wide registry.
func Registered() *Registry {
	return defaultRegistry
}

// Sources merges several sources into one.
type Sources []Source

func (s Sources) Load() ([]Migration, error) {
	var all []Migration
	for _, src := range s {
		ms, err := src.Load()
		if err != nil {
			return nil, err
		}
		all = append(all, ms...)
	}
	sortByName(all)
	if err := checkUnique(all); err != nil {
		return nil, err
	}
	return all, nil
}

func sortByName(ms []Migration) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Name() < ms[j].Name()
	})
}

func checkUnique(ms []Migration) error {
	seen := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m.Name() == "" {
			return fmt.Errorf("migration with empty name")
		}
		if _, ok := seen[m.Name()]; ok {
			return fmt.Errorf("duplicate migration %s", m.Name())
		}
		seen[m.Name()] = struct{}{}
	}
	return nil
}
