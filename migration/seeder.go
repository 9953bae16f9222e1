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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tomoncle/logbie/database"
)

const commonEnvironment = "common"

var seedOrderPattern = regexp.MustCompile(`^(\d+)_`)

// Seeder runs SQL seed files from <root>/common and then from
// <root>/environments/<environment>. Files are ordered by their numeric
// NNN_ prefix; files without one run last. Each file runs in one transaction.
type Seeder struct {
	orm         *database.ORM
	root        string
	environment string
	logger      database.Logger
}

// SeedFile is one discovered seed file.
type SeedFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// SeedResult is the outcome of one executed file.
type SeedResult struct {
	File         string
	Statements   int
	RowsAffected int64
	Duration     time.Duration
}

func NewSeeder(orm *database.ORM, root, environment string) *Seeder {
	if environment == "" {
		environment = "development"
	}
	return &Seeder{orm: orm, root: root, environment: environment, logger: orm.Logger()}
}

// Run executes every seed file in order and stops at the first failure.
func (s *Seeder) Run(ctx context.Context) ([]SeedResult, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.logger.Info("no seed files found", "root", s.root, "environment", s.environment)
		return nil, nil
	}

	results := make([]SeedResult, 0, len(files))
	for _, f := range files {
		res, err := s.runFile(ctx, f)
		if err != nil {
			s.logger.Error("seed file failed", "file", f.Path, "error", err)
			return results, fmt.Errorf("seed %s: %w", f.Name, err)
		}
		results = append(results, res)
		s.logger.Info("seed file executed", "file", f.Path, "rows_affected", res.RowsAffected, "duration", res.Duration.String())
	}
	return results, nil
}

// Files lists the seed files in execution order.
func (s *Seeder) Files() ([]SeedFile, error) {
	files, err := seedFilesIn(filepath.Join(s.root, commonEnvironment), commonEnvironment)
	if err != nil {
		return nil, fmt.Errorf("common seed files: %w", err)
	}
	envFiles, err := seedFilesIn(filepath.Join(s.root, "environments", s.environment), s.environment)
	if err != nil {
		return nil, fmt.Errorf("%s seed files: %w", s.environment, err)
	}
	files = append(files, envFiles...)

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == commonEnvironment
		}
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func seedFilesIn(dir, environment string) ([]SeedFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []SeedFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, SeedFile{
			Path:        path,
			Name:        d.Name(),
			Order:       seedOrder(d.Name()),
			Environment: environment,
			ModTime:     info.ModTime(),
		})
		return nil
	})
	return files, err
}

func seedOrder(filename string) int {
	if m := seedOrderPattern.FindStringSubmatch(filename); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

func (s *Seeder) runFile(ctx context.Context, f SeedFile) (SeedResult, error) {
	start := time.Now()
	res := SeedResult{File: f.Path}

	content, err := os.ReadFile(f.Path)
	if err != nil {
		return res, fmt.Errorf("read file: %w", err)
	}
	text, err := s.expand(string(content))
	if err != nil {
		return res, err
	}
	statements, err := SplitStatements(text)
	if err != nil {
		return res, err
	}
	res.Statements = len(statements)
	if len(statements) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	err = s.orm.BatchOperation(ctx, func(ctx context.Context, orm *database.ORM) error {
		for _, stmt := range statements {
			n, err := orm.ExecScript(ctx, stmt)
			if err != nil {
				return err
			}
			res.RowsAffected += n
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

// expand renders {{.ENVIRONMENT}}, {{.TIMESTAMP}} and environment
// variables inside a seed file.
func (s *Seeder) expand(content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}
	tmpl, err := template.New("seed").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// MaxLineSize bounds a single line of a seed script.
const MaxLineSize = 4 << 20

// SplitStatements splits a script on semicolons that end a line. Blank
// lines and -- comment lines are dropped. A line longer than MaxLineSize
// fails the whole script.
func SplitStatements(content string) ([]string, error) {
	var statements []string
	var current strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("split statements after %d: %w", len(statements), err)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements, nil
}
