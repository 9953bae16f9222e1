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

// Package config loads the CLI configuration from an optional YAML file
// and LOGBIE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/tomoncle/logbie/database"
)

// EnvPrefix prefixes environment overrides, e.g. LOGBIE_DATABASE_HOST.
const EnvPrefix = "LOGBIE"

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "logbie.yaml"

type Config struct {
	Database   DatabaseConfig `mapstructure:"database"`
	Migrations struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"migrations"`
	Seeds struct {
		Path        string `mapstructure:"path"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"seeds"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// DatabaseConfig is database.Config plus where to find the password.
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`
	// PasswordKeyring names the keyring entry holding the password. It is
	// only consulted when password is empty.
	PasswordKeyring string `mapstructure:"password_keyring"`
}

func setDefaults(v *viper.Viper) {
	def := database.DefaultConfig()
	v.SetDefault("database.driver", def.Driver)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.database", def.Database)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_keyring", "")
	v.SetDefault("database.charset", def.Charset)
	v.SetDefault("database.collation", def.Collation)
	v.SetDefault("database.sslmode", def.SSLMode)
	v.SetDefault("database.connect_timeout", def.ConnectTimeout)
	v.SetDefault("database.read_timeout", def.ReadTimeout)
	v.SetDefault("database.write_timeout", def.WriteTimeout)
	v.SetDefault("database.sql_mode", "")
	v.SetDefault("database.timezone", "")
	v.SetDefault("database.foreign_keys", *def.ForeignKeys)
	v.SetDefault("database.journal_mode", def.JournalMode)
	v.SetDefault("database.synchronous", def.Synchronous)
	v.SetDefault("database.cache_size", def.CacheSize)
	v.SetDefault("database.temp_store", def.TempStore)
	v.SetDefault("database.mmap_size", def.MmapSize)
	v.SetDefault("database.busy_timeout", def.BusyTimeout)
	v.SetDefault("database.enable_query_log", false)
	v.SetDefault("database.slow_query_time", 0)
	v.SetDefault("database.query_log", "")
	v.SetDefault("database.savepoints", false)
	v.SetDefault("migrations.path", "database/migrations")
	v.SetDefault("seeds.path", "database/seeds")
	v.SetDefault("seeds.environment", "development")
	v.SetDefault("log.level", "info")
}

// Load reads path (or ./logbie.yaml when path is empty and the file
// exists), applies LOGBIE_* overrides and resolves a keyring password.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Database.Driver == "" {
		return nil, errors.New("config: database.driver is required")
	}
	if err := cfg.resolvePassword(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePassword() error {
	if c.Database.Password != "" || c.Database.PasswordKeyring == "" {
		return nil
	}
	store, err := openSecrets()
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	pw, err := store.Get(c.Database.PasswordKeyring)
	if err != nil {
		return fmt.Errorf("read password %q from keyring: %w", c.Database.PasswordKeyring, err)
	}
	c.Database.Password = pw
	return nil
}

// DatabaseConfig returns the connection settings with defaults applied.
func (c *Config) DatabaseConfig() *database.Config {
	return c.Database.Config.WithDefaults()
}
