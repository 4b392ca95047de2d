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
	"testing"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apierror.ErrorCode
	}{
		{"unique violation", &pq.Error{Code: "23505"}, apierror.ErrConflict},
		{"foreign key violation", &pq.Error{Code: "23503"}, apierror.ErrInvalidInput},
		{"other postgres error", &pq.Error{Code: "42P01"}, apierror.ErrInternalServer},
		{"driver error", errors.New("broken pipe"), apierror.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapWriteError(tt.err, "Budget")
			assert.Equal(t, tt.code, apierror.CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapReadError(t *testing.T) {
	err := mapReadError(sql.ErrNoRows, "Meeting")
	assert.True(t, apierror.IsNotFound(err))
	assert.Equal(t, "NOT_FOUND: Meeting not found", err.Error())

	err = mapReadError(sql.ErrConnDone, "Meeting")
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
}
