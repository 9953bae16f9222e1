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
	"io"
	"time"
)

// Config carries everything a driver needs to open and tune a connection.
// Client-server keys (host, port, charset...) are ignored by the embedded
// driver and vice versa.
type Config struct {
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"` // mysql, sqlite, postgres
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Database string `json:"database" yaml:"database" mapstructure:"database"` // schema name, or file path for sqlite
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`

	Charset        string        `json:"charset" yaml:"charset" mapstructure:"charset"`
	Collation      string        `json:"collation" yaml:"collation" mapstructure:"collation"`
	SSLMode        string        `json:"sslmode" yaml:"sslmode" mapstructure:"sslmode"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	SQLMode        string        `json:"sql_mode" yaml:"sql_mode" mapstructure:"sql_mode"`
	Timezone       string        `json:"timezone" yaml:"timezone" mapstructure:"timezone"`

	// sqlite pragmas
	ForeignKeys *bool  `json:"foreign_keys" yaml:"foreign_keys" mapstructure:"foreign_keys"`
	JournalMode string `json:"journal_mode" yaml:"journal_mode" mapstructure:"journal_mode"`
	Synchronous string `json:"synchronous" yaml:"synchronous" mapstructure:"synchronous"`
	CacheSize   int    `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
	TempStore   string `json:"temp_store" yaml:"temp_store" mapstructure:"temp_store"`
	MmapSize    int64  `json:"mmap_size" yaml:"mmap_size" mapstructure:"mmap_size"`
	BusyTimeout int    `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`

	EnableQueryLog bool          `json:"enable_query_log" yaml:"enable_query_log" mapstructure:"enable_query_log"`
	SlowQueryTime  time.Duration `json:"slow_query_time" yaml:"slow_query_time" mapstructure:"slow_query_time"`
	// QueryLog prints statements to QueryLogOutput (stderr when nil):
	// "failed" prints rejected statements, "all" prints every one.
	QueryLog       string    `json:"query_log" yaml:"query_log" mapstructure:"query_log"`
	QueryLogOutput io.Writer `json:"-" yaml:"-" mapstructure:"-"`

	// Savepoints makes nested Begin/Commit/Rollback use SAVEPOINTs instead of
	// coalescing into the outermost transaction.
	Savepoints bool `json:"savepoints" yaml:"savepoints" mapstructure:"savepoints"`
}

const (
	defaultJournalMode = "WAL"
	defaultSynchronous = "NORMAL"
	defaultCacheSize   = 10000
	defaultTempStore   = "MEMORY"
	defaultMmapSize    = 268435456
	defaultBusyTimeout = 5000
)

// DefaultConfig returns an in-memory sqlite configuration.
func DefaultConfig() *Config {
	cfg := &Config{Driver: "sqlite", Database: ":memory:"}
	return cfg.WithDefaults()
}

// WithDefaults returns a copy of c with every unset tuning key filled in.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.Charset == "" {
		out.Charset = "utf8mb4"
	}
	if out.Collation == "" && out.Charset == "utf8mb4" {
		out.Collation = "utf8mb4_unicode_ci"
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 30 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 30 * time.Second
	}
	if out.SSLMode == "" {
		out.SSLMode = "disable"
	}
	if out.ForeignKeys == nil {
		on := true
		out.ForeignKeys = &on
	}
	if out.JournalMode == "" {
		out.JournalMode = defaultJournalMode
	}
	if out.Synchronous == "" {
		out.Synchronous = defaultSynchronous
	}
	if out.CacheSize == 0 {
		out.CacheSize = defaultCacheSize
	}
	if out.TempStore == "" {
		out.TempStore = defaultTempStore
	}
	if out.MmapSize == 0 {
		out.MmapSize = defaultMmapSize
	}
	if out.BusyTimeout == 0 {
		out.BusyTimeout = defaultBusyTimeout
	}
	return &out
}

// BoolPtr is a helper for the optional boolean keys of Config.
func BoolPtr(b bool) *bool { return &b }
