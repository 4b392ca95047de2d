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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/model"
	"go.opentelemetry.io/otel"
)

const messageColumns = `id, message_id, sender_id, text, date, raw_payload, extraction_status, design_status, allocation_status, meeting_details, created_at, updated_at`

func scanMessage(row rowScanner) (*model.Message, error) {
	msg := model.Message{}
	var rawPayload, details []byte
	err := row.Scan(
		&msg.ID, &msg.MessageID, &msg.SenderID, &msg.Text, &msg.Date, &rawPayload,
		&msg.ExtractionStatus, &msg.DesignStatus, &msg.AllocationStatus, &details,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawPayload) > 0 {
		msg.RawPayload = json.RawMessage(rawPayload)
	}
	if len(details) > 0 && string(details) != "null" {
		msg.MeetingDetails = &model.MeetingDetails{}
		if err := json.Unmarshal(details, msg.MeetingDetails); err != nil {
			return nil, fmt.Errorf("decode meeting details: %w", err)
		}
	}
	return &msg, nil
}

func (d Datasource) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve messages", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan message data", err)
		}
		messages = append(messages, *msg)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over messages", err)
	}
	return messages, nil
}

// UpsertMessage stores an inbound message keyed by its external id. A redelivered
// message refreshes its content and re-enters extraction.
func (d Datasource) UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Upserting message")
	defer span.End()

	if msg.ID == "" {
		msg.ID = model.GenerateUUIDWithSuffix("msg")
	}
	if msg.SenderID == "" {
		msg.SenderID = "unknown"
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	now := time.Now()

	var rawPayload interface{}
	if len(msg.RawPayload) > 0 {
		rawPayload = []byte(msg.RawPayload)
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO labsync.messages (id, message_id, sender_id, text, date, raw_payload, extraction_status, design_status, allocation_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', 'pending', 'pending', $7, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			sender_id = EXCLUDED.sender_id,
			text = EXCLUDED.text,
			date = EXCLUDED.date,
			raw_payload = EXCLUDED.raw_payload,
			extraction_status = 'pending',
			updated_at = EXCLUDED.updated_at
		RETURNING `+messageColumns,
		msg.ID, msg.MessageID, msg.SenderID, msg.Text, msg.Date, rawPayload, now,
	)

	stored, err := scanMessage(row)
	if err != nil {
		span.RecordError(err)
		return nil, mapWriteError(err, "Message")
	}
	return stored, nil
}

func (d Datasource) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching message by ID")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM labsync.messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, mapReadError(err, "Message")
	}
	return msg, nil
}

func (d Datasource) GetAllMessages(ctx context.Context, limit, offset int) ([]model.Message, error) {
	return d.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM labsync.messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// UpdateMessageStatus writes one status axis. The column comes from a fixed set, never from input.
func (d Datasource) UpdateMessageStatus(ctx context.Context, id string, stage model.Stage, status model.Status) error {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Updating message status")
	defer span.End()

	var column string
	switch stage {
	case model.StageExtraction:
		column = "extraction_status"
	case model.StageDesign:
		column = "design_status"
	case model.StageAllocation:
		column = "allocation_status"
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown stage %q", stage), nil)
	}

	result, err := d.Conn.ExecContext(ctx,
		`UPDATE labsync.messages SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Message")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Message with ID '%s' not found", id), nil)
	}
	return nil
}

// SaveMeetingDetails stores the normalized extraction on the message and marks it extracted.
func (d Datasource) SaveMeetingDetails(ctx context.Context, id string, details *model.MeetingDetails) error {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Saving meeting details")
	defer span.End()

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal meeting details", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE labsync.messages
		SET meeting_details = $1, extraction_status = $2, updated_at = $3
		WHERE id = $4
	`, detailsJSON, model.StatusExtracted, time.Now(), id)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Message")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Message with ID '%s' not found", id), nil)
	}
	return nil
}

func (d Datasource) GetMessagesForExtraction(ctx context.Context, limit int) ([]model.Message, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching messages awaiting extraction")
	defer span.End()

	return d.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM labsync.messages
		WHERE extraction_status IN ('pending', 'failed') AND btrim(text) <> ''
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

func (d Datasource) GetMessagesWithFailedDesign(ctx context.Context, limit int) ([]model.Message, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching messages with failed design")
	defer span.End()

	return d.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM labsync.messages
		WHERE extraction_status = 'extracted' AND design_status = 'failed'
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
}
