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

const meetingColumns = `meeting_id, message_id, project_name, client_details, meeting_date, participants, estimated_budget, timeline, requirements, extracted_at, created_at`

func scanMeeting(row rowScanner) (*model.Meeting, error) {
	m := model.Meeting{}
	var clientJSON, participantsJSON []byte
	err := row.Scan(
		&m.MeetingID, &m.MessageID, &m.ProjectName, &clientJSON, &m.MeetingDate, &participantsJSON,
		&m.EstimatedBudget, &m.Timeline, &m.Requirements, &m.ExtractedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(clientJSON, &m.ClientDetails); err != nil {
		return nil, fmt.Errorf("decode client details: %w", err)
	}
	if len(participantsJSON) > 0 {
		if err := json.Unmarshal(participantsJSON, &m.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	if m.Participants == nil {
		m.Participants = []string{}
	}
	return &m, nil
}

func (d Datasource) queryMeetings(ctx context.Context, query string, args ...interface{}) ([]model.Meeting, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve meetings", err)
	}
	defer rows.Close()

	meetings := []model.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan meeting data", err)
		}
		meetings = append(meetings, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over meetings", err)
	}
	return meetings, nil
}

// UpsertMeeting keeps at most one meeting per message. On conflict the existing
// meeting_id is kept and the extracted fields are refreshed.
func (d Datasource) UpsertMeeting(ctx context.Context, m *model.Meeting) (*model.Meeting, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Upserting meeting")
	defer span.End()

	if m.MeetingID == "" {
		m.MeetingID = model.GenerateUUIDWithSuffix("mtg")
	}
	now := time.Now()
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = now
	}

	clientJSON, err := json.Marshal(m.ClientDetails)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal client details", err)
	}
	participants := m.Participants
	if participants == nil {
		participants = []string{}
	}
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal participants", err)
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO labsync.meetings (meeting_id, message_id, project_name, client_details, meeting_date, participants, estimated_budget, timeline, requirements, extracted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (message_id) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			client_details = EXCLUDED.client_details,
			meeting_date = EXCLUDED.meeting_date,
			participants = EXCLUDED.participants,
			estimated_budget = EXCLUDED.estimated_budget,
			timeline = EXCLUDED.timeline,
			requirements = EXCLUDED.requirements,
			extracted_at = EXCLUDED.extracted_at
		RETURNING `+meetingColumns,
		m.MeetingID, m.MessageID, m.ProjectName, clientJSON, m.MeetingDate, participantsJSON,
		m.EstimatedBudget, m.Timeline, m.Requirements, m.ExtractedAt, now,
	)

	stored, err := scanMeeting(row)
	if err != nil {
		span.RecordError(err)
		return nil, mapWriteError(err, "Meeting")
	}
	return stored, nil
}

func (d Datasource) GetMeetingByID(ctx context.Context, id string) (*model.Meeting, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching meeting by ID")
	defer span.End()

	m, err := scanMeeting(d.Conn.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM labsync.meetings WHERE meeting_id = $1`, id))
	if err != nil {
		return nil, mapReadError(err, "Meeting")
	}
	return m, nil
}

func (d Datasource) GetMeetingByMessageID(ctx context.Context, messageID string) (*model.Meeting, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching meeting by message ID")
	defer span.End()

	m, err := scanMeeting(d.Conn.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM labsync.meetings WHERE message_id = $1`, messageID))
	if err != nil {
		return nil, mapReadError(err, "Meeting")
	}
	return m, nil
}

func (d Datasource) GetAllMeetings(ctx context.Context, limit, offset int) ([]model.Meeting, error) {
	return d.queryMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM labsync.meetings
		ORDER BY extracted_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// GetMeetingsAwaitingDesign returns meetings with no budget whose message is extracted
// and not yet designed.
func (d Datasource) GetMeetingsAwaitingDesign(ctx context.Context, limit int) ([]model.Meeting, error) {
	ctx, span := otel.Tracer("labsync.database").Start(ctx, "Fetching meetings awaiting design")
	defer span.End()

	return d.queryMeetings(ctx, `
		SELECT m.meeting_id, m.message_id, m.project_name, m.client_details, m.meeting_date, m.participants, m.estimated_budget, m.timeline, m.requirements, m.extracted_at, m.created_at
		FROM labsync.meetings m
		JOIN labsync.messages msg ON msg.id = m.message_id
		LEFT JOIN labsync.budgets b ON b.meeting_id = m.meeting_id
		WHERE b.budget_id IS NULL
			AND msg.extraction_status = 'extracted'
			AND msg.design_status <> 'designed'
		ORDER BY m.extracted_at DESC
		LIMIT $1
	`, limit)
}
