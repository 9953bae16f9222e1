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

// Package cli implements the logbie command line: migrations, seeding and
// database maintenance.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tomoncle/logbie/database"
	"github.com/tomoncle/logbie/internal/config"
	"github.com/tomoncle/logbie/migration"
	"github.com/tomoncle/logbie/utils"
)

type options struct {
	configPath  string
	environment string
	logLevel    string
	queryLog    string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "logbie",
		Short:         "Database migrations, seeding and maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+")")
	root.PersistentFlags().StringVar(&opts.environment, "env", "", "seed environment, overrides seeds.environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")
	root.PersistentFlags().StringVar(&opts.queryLog, "query-log", "", "print statements to stderr: failed or all")

	root.AddCommand(
		newMigrateCommand(opts),
		newMakeCommand(opts),
		newRollbackCommand(opts),
		newResetCommand(opts),
		newStatusCommand(opts),
		newSeedCommand(opts),
		newTablesCommand(opts),
		newOptimizeCommand(opts),
		newPasswordCommand(opts),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err.Error())
		os.Exit(1)
	}
}

func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.environment != "" {
		cfg.Seeds.Environment = o.environment
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.queryLog != "" {
		cfg.Database.QueryLog = o.queryLog
	}
	utils.ConfigureOutput(cmd.ErrOrStderr())
	utils.ConfigureLogLevel(cfg.Log.Level)
	return cfg, nil
}

// withORM loads configuration, connects and hands both to fn.
func (o *options) withORM(cmd *cobra.Command, fn func(ctx context.Context, orm *database.ORM, cfg *config.Config) error) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dbCfg := cfg.DatabaseConfig()
	dbCfg.QueryLogOutput = cmd.ErrOrStderr()
	orm, err := database.New(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := orm.Close(); cerr != nil {
			database.GetLogger().Warn("close database", "error", cerr)
		}
	}()
	return fn(ctx, orm, cfg)
}

func migrationSource(cfg *config.Config) migration.Source {
	return migration.Sources{migration.Registered(), migration.Dir(cfg.Migrations.Path)}
}

func success(w io.Writer, format string, args ...interface{}) {
	pterm.Success.WithWriter(w).Println(fmt.Sprintf(format, args...))
}

func info(w io.Writer, format string, args ...interface{}) {
	pterm.Info.WithWriter(w).Println(fmt.Sprintf(format, args...))
}
