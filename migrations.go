/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"database/sql"
	"embed"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// MigrationSchema holds both the tables and the migration bookkeeping table.
const MigrationSchema = "labsync"

func MigrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
}

// Migrate applies the embedded migrations in dir and returns how many ran.
func Migrate(db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	migrate.SetSchema(MigrationSchema)
	return migrate.Exec(db, "postgres", MigrationSource(), dir)
}
