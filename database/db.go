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

package database

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/labsync/labsync/config"
	"github.com/labsync/labsync/internal/apierror"
	"github.com/lib/pq"
)

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource opens the configured Postgres database. Schema changes are applied by
// the migrate command, not here.
func NewDataSource(configuration *config.Configuration) (*Datasource, error) {
	con, err := ConnectDB(configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}
	return &Datasource{Conn: con}, nil
}

// ConnectDB establishes a pooled database connection.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}

	log.Println("Database connection established ✅")
	return db, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// mapWriteError turns driver errors from inserts and updates into API errors.
func mapWriteError(err error, entity string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, entity+" already exists", err)
		case "foreign_key_violation":
			return apierror.NewAPIError(apierror.ErrInvalidInput, entity+" references a missing record", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save "+entity, err)
}

// mapReadError maps sql.ErrNoRows to not found and everything else to internal errors.
func mapReadError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve "+entity, err)
}
