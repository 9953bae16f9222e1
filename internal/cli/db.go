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

package cli

import (
	"bufio"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tomoncle/logbie/database"
	"github.com/tomoncle/logbie/internal/config"
	"github.com/tomoncle/logbie/migration"
)

func newSeedCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "db:seed",
		Short: "Run SQL seed files for the configured environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, cfg *config.Config) error {
				out := cmd.OutOrStdout()
				results, err := migration.NewSeeder(orm, cfg.Seeds.Path, cfg.Seeds.Environment).Run(ctx)
				var rows int64
				for _, r := range results {
					rows += r.RowsAffected
					success(out, "Seeded: %s (%s rows, %s)", filepath.Base(r.File), humanize.Comma(r.RowsAffected), r.Duration.Round(time.Millisecond))
				}
				if err != nil {
					return err
				}
				if len(results) == 0 {
					info(out, "No seed files for %s.", cfg.Seeds.Environment)
					return nil
				}
				info(out, "%d files, %s rows", len(results), humanize.Comma(rows))
				return nil
			})
		},
	}
}

func newTablesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "db:tables",
		Short: "List tables and their column counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, _ *config.Config) error {
				tables, err := orm.Tables(ctx)
				if err != nil {
					return err
				}
				if len(tables) == 0 {
					info(cmd.OutOrStdout(), "No tables.")
					return nil
				}
				data := pterm.TableData{{"Table", "Columns", "Primary key"}}
				for _, t := range tables {
					cols, err := orm.TableSchema(ctx, t)
					if err != nil {
						return err
					}
					var pk []string
					for _, c := range cols {
						if c.IsPrimary() {
							pk = append(pk, c.Field)
						}
					}
					data = append(data, []string{t, strconv.Itoa(len(cols)), strings.Join(pk, ", ")})
				}
				return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
			})
		},
	}
}

func newOptimizeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "db:optimize",
		Short: "Run the backend's maintenance routine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, _ *config.Config) error {
				start := time.Now()
				if err := orm.Optimize(ctx); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Optimized %s database in %s", orm.DriverName(), time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

// openSecrets is replaced in tests.
var openSecrets = config.OpenSecrets

func newPasswordCommand(_ *options) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "db:password <key>",
		Short: "Store a database password in the OS keyring",
		Long: "Stores a password under <key> in the OS keyring. Point database.password_keyring " +
			"at the same key to use it instead of a plain-text password.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password on stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			} else {
				pw, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
				if err != nil {
					return err
				}
				password = pw
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			secrets, err := openSecrets()
			if err != nil {
				return err
			}
			if err := secrets.Set(args[0], password); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Stored password under %q", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the password from standard input")
	return cmd
}
