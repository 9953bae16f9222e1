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
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"
)

// TimestampLayout prefixes generated migration names so they sort by creation time.
const TimestampLayout = "2006_01_02_150405"

var (
	createPattern = regexp.MustCompile(`^create_(\w+?)(?:_table)?$`)
	changePattern = regexp.MustCompile(`_(?:to|from|in)_(\w+?)(?:_table)?$`)
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Creator writes new YAML migration skeletons into a directory.
type Creator struct {
	dir string
	now func() time.Time
}

func NewCreator(dir string) *Creator {
	return &Creator{dir: dir, now: time.Now}
}

// Create writes <timestamp>_<snake_name>.yaml and returns its path. The
// skeleton is a create or an alter of the table guessed from the name.
func (c *Creator) Create(name string) (string, error) {
	snake := SnakeCase(name)
	if !namePattern.MatchString(snake) {
		return "", fmt.Errorf("invalid migration name %q", name)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	existing, err := filepath.Glob(filepath.Join(c.dir, "*_"+snake+".y*ml"))
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("a migration named %s already exists: %s", snake, filepath.Base(existing[0]))
	}

	data, err := yaml.Marshal(Skeleton(snake))
	if err != nil {
		return "", fmt.Errorf("render migration: %w", err)
	}
	path := filepath.Join(c.dir, c.now().Format(TimestampLayout)+"_"+snake+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	return path, nil
}

// GuessTable derives the table a migration name is about and whether the
// migration creates it.
//
//	create_users_table      -> users, true
//	create_user             -> users, true
//	add_votes_to_users_table -> users, false
func GuessTable(snake string) (table string, create bool) {
	if m := createPattern.FindStringSubmatch(snake); m != nil {
		return inflection.Plural(m[1]), true
	}
	if m := changePattern.FindStringSubmatch(snake); m != nil {
		return m[1], false
	}
	return "", false
}

// Skeleton returns the starting YAML content for a migration name.
func Skeleton(snake string) File {
	table, create := GuessTable(snake)
	switch {
	case create:
		return File{
			Up: []Step{{
				Create:     table,
				Columns:    []ColumnSpec{{Name: "id", Type: "id"}},
				Timestamps: true,
			}},
			Down: []Step{{DropIfExists: table}},
		}
	case table != "":
		return File{
			Up:   []Step{{Table: table, Columns: []ColumnSpec{{Name: "new_column", Type: "string", Nullable: true}}}},
			Down: []Step{{Table: table, DropColumns: []string{"new_column"}}},
		}
	default:
		return File{
			Up:   []Step{{SQL: "SELECT 1"}},
			Down: []Step{{SQL: "SELECT 1"}},
		}
	}
}

// SnakeCase turns CreateUsersTable or create-users-table into create_users_table.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
