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
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tomoncle/logbie/database"
	"github.com/tomoncle/logbie/internal/config"
	"github.com/tomoncle/logbie/migration"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run all pending migrations as one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, cfg *config.Config) error {
				out := cmd.OutOrStdout()
				applied, err := migration.NewRunner(orm, migrationSource(cfg)).Migrate(ctx)
				for _, name := range applied {
					success(out, "Migrated: %s", name)
				}
				if err != nil {
					return describeFailure(err)
				}
				if len(applied) == 0 {
					info(out, "Nothing to migrate.")
				}
				return nil
			})
		},
	}
}

func newRollbackCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:rollback",
		Short: "Revert the most recent batch of migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, cfg *config.Config) error {
				out := cmd.OutOrStdout()
				reverted, err := migration.NewRunner(orm, migrationSource(cfg)).Rollback(ctx)
				for _, name := range reverted {
					success(out, "Rolled back: %s", name)
				}
				if err != nil {
					return describeFailure(err)
				}
				if len(reverted) == 0 {
					info(out, "Nothing to rollback.")
				}
				return nil
			})
		},
	}
}

func newResetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:reset",
		Short: "Revert every applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, cfg *config.Config) error {
				out := cmd.OutOrStdout()
				reverted, err := migration.NewRunner(orm, migrationSource(cfg)).Reset(ctx)
				for _, name := range reverted {
					success(out, "Rolled back: %s", name)
				}
				if err != nil {
					return describeFailure(err)
				}
				if len(reverted) == 0 {
					info(out, "Nothing to reset.")
				}
				return nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:status",
		Short: "Show which migrations have run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withORM(cmd, func(ctx context.Context, orm *database.ORM, cfg *config.Config) error {
				statuses, err := migration.NewRunner(orm, migrationSource(cfg)).Status(ctx)
				if err != nil {
					return err
				}
				if len(statuses) == 0 {
					info(cmd.OutOrStdout(), "No migrations found.")
					return nil
				}
				return pterm.DefaultTable.
					WithHasHeader().
					WithWriter(cmd.OutOrStdout()).
					WithData(statusTable(statuses)).
					Render()
			})
		},
	}
}

func statusTable(statuses []migration.Status) pterm.TableData {
	data := pterm.TableData{{"Ran?", "Migration", "Batch", "Executed"}}
	for _, s := range statuses {
		ran, batch, when := "No", "", ""
		if s.Ran {
			ran, batch = "Yes", humanize.Comma(int64(s.Batch))
			if !s.ExecutedAt.IsZero() {
				when = humanize.Time(s.ExecutedAt)
			}
		}
		if s.Missing {
			ran = "Yes (missing)"
		}
		data = append(data, []string{ran, s.Name, batch, when})
	}
	return data
}

func newMakeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:make <Name>",
		Short: "Create a new YAML migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			path, err := migration.NewCreator(cfg.Migrations.Path).Create(args[0])
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Created migration: %s", path)
			return nil
		},
	}
}

// describeFailure names the failing migration ahead of the cause.
func describeFailure(err error) error {
	var serr *migration.SchemaError
	if errors.As(err, &serr) {
		return serr
	}
	return err
}
