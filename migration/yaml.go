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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tomoncle/logbie/schema"
)

// File is the YAML form of a migration:
//
//	up:
//	  - create: users
//	    columns:
//	      - {name: id, type: id}
//	      - {name: username, type: string, length: 100, unique: true}
//	      - {name: active, type: boolean, default: true}
//	    timestamps: true
//	down:
//	  - drop_if_exists: users
type File struct {
	Up   []Step `yaml:"up"`
	Down []Step `yaml:"down,omitempty"`
}

// Step is one schema operation. Exactly one of the operation keys is set.
type Step struct {
	Create       string  `yaml:"create,omitempty"`
	Table        string  `yaml:"table,omitempty"`
	Drop         string  `yaml:"drop,omitempty"`
	DropIfExists string  `yaml:"drop_if_exists,omitempty"`
	Rename       *Rename `yaml:"rename,omitempty"`
	SQL          string  `yaml:"sql,omitempty"`

	IfNotExists   bool          `yaml:"if_not_exists,omitempty"`
	Columns       []ColumnSpec  `yaml:"columns,omitempty"`
	Timestamps    bool          `yaml:"timestamps,omitempty"`
	SoftDeletes   bool          `yaml:"soft_deletes,omitempty"`
	Indexes       []IndexSpec   `yaml:"indexes,omitempty"`
	Foreign       []ForeignSpec `yaml:"foreign,omitempty"`
	DropColumns   []string      `yaml:"drop_columns,omitempty"`
	RenameColumns []Rename      `yaml:"rename_columns,omitempty"`
	DropIndexes   []string      `yaml:"drop_indexes,omitempty"`
	DropForeign   []string      `yaml:"drop_foreign,omitempty"`
}

type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ColumnSpec struct {
	Name       string      `yaml:"name"`
	Type       string      `yaml:"type"`
	Length     int         `yaml:"length,omitempty"`
	Precision  int         `yaml:"precision,omitempty"`
	Scale      int         `yaml:"scale,omitempty"`
	Nullable   bool        `yaml:"nullable,omitempty"`
	Unsigned   bool        `yaml:"unsigned,omitempty"`
	Primary    bool        `yaml:"primary,omitempty"`
	Unique     bool        `yaml:"unique,omitempty"`
	Index      bool        `yaml:"index,omitempty"`
	Default    interface{} `yaml:"default,omitempty"`
	UseCurrent bool        `yaml:"use_current,omitempty"`
}

type IndexSpec struct {
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

type ForeignSpec struct {
	Column     string `yaml:"column"`
	References string `yaml:"references,omitempty"`
	On         string `yaml:"on"`
	OnDelete   string `yaml:"on_delete,omitempty"`
	OnUpdate   string `yaml:"on_update,omitempty"`
	Name       string `yaml:"name,omitempty"`
}

// yamlMigration runs the steps of a parsed File.
type yamlMigration struct {
	name string
	file File
}

func (m *yamlMigration) Name() string { return m.name }

func (m *yamlMigration) Up(ctx context.Context, s *schema.Builder) error {
	return runSteps(ctx, s, m.file.Up)
}

func (m *yamlMigration) Down(ctx context.Context, s *schema.Builder) error {
	if len(m.file.Down) == 0 {
		return fmt.Errorf("migration %s has no down steps", m.name)
	}
	return runSteps(ctx, s, m.file.Down)
}

// ParseYAML decodes data into a migration called name. Steps are checked
// eagerly so a bad file fails at load time rather than halfway through a batch.
func ParseYAML(name string, data []byte) (Migration, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse migration %s: %w", name, err)
	}
	if len(f.Up) == 0 {
		return nil, fmt.Errorf("migration %s: no up steps", name)
	}
	for _, steps := range [][]Step{f.Up, f.Down} {
		for i := range steps {
			if _, err := steps[i].operation(); err != nil {
				return nil, fmt.Errorf("migration %s step %d: %w", name, i+1, err)
			}
			for _, c := range steps[i].Columns {
				if _, ok := columnAdders[strings.ToLower(c.Type)]; !ok {
					return nil, fmt.Errorf("migration %s step %d: unknown column type %q", name, i+1, c.Type)
				}
			}
		}
	}
	return &yamlMigration{name: name, file: f}, nil
}

// LoadFile reads one migration file; its name is the base name without extension.
func LoadFile(path string) (Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read migration: %w", err)
	}
	base := filepath.Base(path)
	return ParseYAML(strings.TrimSuffix(base, filepath.Ext(base)), data)
}

// Dir is a Source reading every *.yaml / *.yml file directly under a directory.
type Dir string

func (d Dir) Load() ([]Migration, error) {
	entries, err := os.ReadDir(string(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		m, err := LoadFile(filepath.Join(string(d), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sortByName(out)
	if err := checkUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

type stepOp int

const (
	opCreate stepOp = iota
	opTable
	opDrop
	opDropIfExists
	opRename
	opSQL
)

func (s *Step) operation() (stepOp, error) {
	var ops []stepOp
	if s.Create != "" {
		ops = append(ops, opCreate)
	}
	if s.Table != "" {
		ops = append(ops, opTable)
	}
	if s.Drop != "" {
		ops = append(ops, opDrop)
	}
	if s.DropIfExists != "" {
		ops = append(ops, opDropIfExists)
	}
	if s.Rename != nil {
		ops = append(ops, opRename)
	}
	if s.SQL != "" {
		ops = append(ops, opSQL)
	}
	if len(ops) != 1 {
		return 0, fmt.Errorf("expected exactly one of create, table, drop, drop_if_exists, rename, sql; got %d", len(ops))
	}
	return ops[0], nil
}

func runSteps(ctx context.Context, s *schema.Builder, steps []Step) error {
	for i := range steps {
		step := &steps[i]
		op, err := step.operation()
		if err != nil {
			return err
		}
		switch op {
		case opCreate:
			if step.IfNotExists {
				err = s.CreateIfNotExists(ctx, step.Create, step.apply)
			} else {
				err = s.Create(ctx, step.Create, step.apply)
			}
		case opTable:
			err = s.Table(ctx, step.Table, step.apply)
		case opDrop:
			err = s.Drop(ctx, step.Drop)
		case opDropIfExists:
			err = s.DropIfExists(ctx, step.DropIfExists)
		case opRename:
			err = s.Rename(ctx, step.Rename.From, step.Rename.To)
		case opSQL:
			err = s.Statement(ctx, step.SQL)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var columnAdders = map[string]func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition{
	"id": func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition {
		return t.BigIncrements(orDefault(c.Name, "id"))
	},
	"big_increments": func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.BigIncrements(c.Name) },
	"increments":     func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Increments(c.Name) },
	"string":         func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.String(c.Name, c.Length) },
	"text":           func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Text(c.Name) },
	"integer":        func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Integer(c.Name) },
	"big_integer":    func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.BigInteger(c.Name) },
	"boolean":        func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Boolean(c.Name) },
	"float":          func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Float(c.Name) },
	"decimal": func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition {
		return t.Decimal(c.Name, c.Precision, c.Scale)
	},
	"timestamp": func(t *schema.Blueprint, c ColumnSpec) *schema.ColumnDefinition { return t.Timestamp(c.Name) },
}

// apply replays the step's declarations onto a blueprint.
func (s *Step) apply(t *schema.Blueprint) {
	for _, c := range s.Columns {
		col := columnAdders[strings.ToLower(c.Type)](t, c)
		if c.Nullable {
			col.Nullable()
		}
		if c.Unsigned {
			col.Unsigned()
		}
		if c.Primary {
			col.Primary()
		}
		if c.Unique {
			col.Unique()
		}
		if c.Index {
			col.Index()
		}
		if c.UseCurrent {
			col.UseCurrent()
		} else if c.Default != nil {
			col.Default(c.Default)
		}
	}
	if s.Timestamps {
		t.Timestamps()
	}
	if s.SoftDeletes {
		t.SoftDeletes()
	}
	for _, idx := range s.Indexes {
		if idx.Unique {
			t.Unique(idx.Columns...)
		} else {
			t.Index(idx.Columns...)
		}
	}
	for _, f := range s.Foreign {
		fk := t.Foreign(f.Column).References(f.References).On(f.On)
		if f.OnDelete != "" {
			fk.OnDelete(f.OnDelete)
		}
		if f.OnUpdate != "" {
			fk.OnUpdate(f.OnUpdate)
		}
		if f.Name != "" {
			fk.Name(f.Name)
		}
	}
	if len(s.DropColumns) > 0 {
		t.DropColumn(s.DropColumns...)
	}
	for _, rc := range s.RenameColumns {
		t.RenameColumn(rc.From, rc.To)
	}
	for _, name := range s.DropIndexes {
		t.DropIndex(name)
	}
	for _, name := range s.DropForeign {
		t.DropForeign(name)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
