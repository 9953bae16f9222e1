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

package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func usersTable(t *Blueprint) {
	t.ID()
	t.String("username").Unique()
	t.Boolean("active").Default(true)
}

func TestCompileCreateByDialect(t *testing.T) {
	cases := []struct {
		name    string
		grammar Grammar
		create  string
		index   string
	}{
		{
			name:    "mysql",
			grammar: NewMySQLGrammar("", "", "utf8mb4_unicode_ci"),
			create: "CREATE TABLE `users` (\n" +
				"  `id` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
				"  `username` VARCHAR(255) NOT NULL,\n" +
				"  `active` TINYINT(1) NOT NULL DEFAULT 1\n" +
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
			index: "CREATE UNIQUE INDEX `users_username_unique` ON `users` (`username`)",
		},
		{
			name:    "sqlite",
			grammar: NewSQLiteGrammar(),
			create: "CREATE TABLE \"users\" (\n" +
				"  \"id\" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,\n" +
				"  \"username\" VARCHAR(255) NOT NULL,\n" +
				"  \"active\" BOOLEAN NOT NULL DEFAULT 1\n" +
				")",
			index: "CREATE UNIQUE INDEX \"users_username_unique\" ON \"users\" (\"username\")",
		},
		{
			name:    "postgres",
			grammar: NewPostgresGrammar(),
			create: "CREATE TABLE \"users\" (\n" +
				"  \"id\" BIGSERIAL PRIMARY KEY,\n" +
				"  \"username\" VARCHAR(255) NOT NULL,\n" +
				"  \"active\" BOOLEAN NOT NULL DEFAULT TRUE\n" +
				")",
			index: "CREATE UNIQUE INDEX \"users_username_unique\" ON \"users\" (\"username\")",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bp := NewBlueprint("users")
			usersTable(bp)
			stmts, err := tc.grammar.CompileCreate(bp, false)
			require.NoError(t, err)
			require.Equal(t, []string{tc.create, tc.index}, stmts)
		})
	}
}

func TestCompileCreateIfNotExists(t *testing.T) {
	bp := NewBlueprint("tags")
	bp.ID()
	bp.String("name", 64).Index()

	stmts, err := NewSQLiteGrammar().CompileCreate(bp, true)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS \"tags\"")
	require.Contains(t, stmts[0], "\"name\" VARCHAR(64) NOT NULL")
	require.Equal(t, "CREATE INDEX IF NOT EXISTS \"tags_name_index\" ON \"tags\" (\"name\")", stmts[1])

	stmts, err = NewMySQLGrammar("", "", "").CompileCreate(bp, true)
	require.NoError(t, err)
	require.Equal(t, "CREATE INDEX `tags_name_index` ON `tags` (`name`)", stmts[1])
}

func TestCompileColumnTypes(t *testing.T) {
	bp := NewBlueprint("products")
	bp.Increments("id")
	bp.Text("description").Nullable()
	bp.Integer("stock").Unsigned().Default(0)
	bp.BigInteger("views")
	bp.Float("weight")
	bp.Decimal("price", 10, 2)
	bp.Timestamp("published_at").UseCurrent()
	bp.String("code").Default("it's")
	bp.SoftDeletes()

	stmts, err := NewMySQLGrammar("MyISAM", "latin1", "").CompileCreate(bp, false)
	require.NoError(t, err)
	ddl := stmts[0]
	require.Contains(t, ddl, "`id` INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY")
	require.Contains(t, ddl, "`description` TEXT NULL")
	require.Contains(t, ddl, "`stock` INT UNSIGNED NOT NULL DEFAULT 0")
	require.Contains(t, ddl, "`views` BIGINT NOT NULL")
	require.Contains(t, ddl, "`weight` DOUBLE NOT NULL")
	require.Contains(t, ddl, "`price` DECIMAL(10, 2) NOT NULL")
	require.Contains(t, ddl, "`published_at` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP")
	require.Contains(t, ddl, "`code` VARCHAR(255) NOT NULL DEFAULT 'it''s'")
	require.Contains(t, ddl, "`deleted_at` TIMESTAMP NULL")
	require.True(t, strings.HasSuffix(ddl, " ENGINE=MyISAM DEFAULT CHARSET=latin1"))

	stmts, err = NewPostgresGrammar().CompileCreate(bp, false)
	require.NoError(t, err)
	ddl = stmts[0]
	require.Contains(t, ddl, "\"id\" SERIAL PRIMARY KEY")
	require.Contains(t, ddl, "\"description\" TEXT,")
	require.Contains(t, ddl, "\"stock\" INTEGER NOT NULL DEFAULT 0")
	require.Contains(t, ddl, "\"weight\" DOUBLE PRECISION NOT NULL")
	require.Contains(t, ddl, "\"price\" NUMERIC(10, 2) NOT NULL")
	require.Contains(t, ddl, "\"deleted_at\" TIMESTAMP\n")
}

func TestCompileForeignKeys(t *testing.T) {
	bp := NewBlueprint("posts")
	bp.ID()
	bp.BigInteger("user_id").Unsigned()
	bp.Foreign("user_id").References("id").On("users").OnDelete("cascade")

	stmts, err := NewSQLiteGrammar().CompileCreate(bp, false)
	require.NoError(t, err)
	require.Contains(t, stmts[0], "CONSTRAINT \"fk_posts_user_id\" FOREIGN KEY (\"user_id\") REFERENCES \"users\" (\"id\") ON DELETE CASCADE")

	alter := NewBlueprint("posts")
	alter.Foreign("author_id").On("users")
	_, err = NewSQLiteGrammar().CompileAlter(alter)
	require.True(t, errors.Is(err, ErrUnsupported))

	stmts, err = NewMySQLGrammar("", "", "").CompileAlter(alter)
	require.NoError(t, err)
	require.Equal(t, []string{
		"ALTER TABLE `posts` ADD CONSTRAINT `fk_posts_author_id` FOREIGN KEY (`author_id`) REFERENCES `users` (`id`)",
	}, stmts)

	bad := NewBlueprint("posts")
	bad.ID()
	bad.Foreign("user_id").On("users").OnDelete("explode")
	_, err = NewPostgresGrammar().CompileCreate(bad, false)
	require.ErrorContains(t, err, "invalid delete policy")
}

func TestCompileAlter(t *testing.T) {
	bp := NewBlueprint("users")
	bp.String("email").Nullable().Unique()
	bp.DropColumn("legacy")
	bp.RenameColumn("name", "full_name")
	bp.DropIndex("users_name_index")

	stmts, err := NewPostgresGrammar().CompileAlter(bp)
	require.NoError(t, err)
	require.Equal(t, []string{
		"ALTER TABLE \"users\" ADD COLUMN \"email\" VARCHAR(255)",
		"ALTER TABLE \"users\" DROP COLUMN \"legacy\"",
		"ALTER TABLE \"users\" RENAME COLUMN \"name\" TO \"full_name\"",
		"DROP INDEX \"users_name_index\"",
		"CREATE UNIQUE INDEX \"users_email_unique\" ON \"users\" (\"email\")",
	}, stmts)

	stmts, err = NewMySQLGrammar("", "", "").CompileAlter(bp)
	require.NoError(t, err)
	require.Equal(t, "DROP INDEX `users_name_index` ON `users`", stmts[3])

	_, err = NewSQLiteGrammar().CompileAlter(NewBlueprint("users"))
	require.Error(t, err)

	withID := NewBlueprint("users")
	withID.ID()
	_, err = NewSQLiteGrammar().CompileAlter(withID)
	require.Error(t, err)
}

func TestCompileCreateRejectsInvalidBlueprints(t *testing.T) {
	_, err := NewSQLiteGrammar().CompileCreate(NewBlueprint("empty"), false)
	require.Error(t, err)

	unnamed := NewBlueprint("t")
	unnamed.String("")
	_, err = NewSQLiteGrammar().CompileCreate(unnamed, false)
	require.Error(t, err)

	mixed := NewBlueprint("t")
	mixed.ID()
	mixed.String("code").Primary()
	_, err = NewSQLiteGrammar().CompileCreate(mixed, false)
	require.Error(t, err)

	dropping := NewBlueprint("t")
	dropping.ID()
	dropping.DropColumn("x")
	_, err = NewSQLiteGrammar().CompileCreate(dropping, false)
	require.Error(t, err)
}

func TestCompositePrimaryKey(t *testing.T) {
	bp := NewBlueprint("role_user")
	bp.BigInteger("role_id").Primary()
	bp.BigInteger("user_id").Primary()

	stmts, err := NewSQLiteGrammar().CompileCreate(bp, false)
	require.NoError(t, err)
	require.Contains(t, stmts[0], "PRIMARY KEY (\"role_id\", \"user_id\")")
}

func TestDropAndRename(t *testing.T) {
	my := NewMySQLGrammar("", "", "")
	lite := NewSQLiteGrammar()

	require.Equal(t, "DROP TABLE `users`", my.CompileDrop("users"))
	require.Equal(t, "DROP TABLE IF EXISTS \"users\"", lite.CompileDropIfExists("users"))
	require.Equal(t, "RENAME TABLE `a` TO `b`", my.CompileRename("a", "b"))
	require.Equal(t, "ALTER TABLE \"a\" RENAME TO \"b\"", lite.CompileRename("a", "b"))
	require.Equal(t, "\"main\".\"odd\"\"name\"", lite.QuoteIdent("main.odd\"name"))
}

func TestNewGrammar(t *testing.T) {
	for _, name := range []string{"mysql", "sqlite3", "SQLite", "pgsql", "postgres"} {
		g, err := NewGrammar(name)
		require.NoError(t, err, name)
		require.NotNil(t, g)
	}
	_, err := NewGrammar("oracle")
	require.Error(t, err)
}
