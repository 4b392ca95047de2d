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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labsync/labsync/internal/apierror"
	"github.com/labsync/labsync/internal/llm"
	"github.com/labsync/labsync/model"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrEmptyMessage is returned when a message has no text to extract from.
	ErrEmptyMessage = errors.New("message has no text")
	// ErrMalformedResponse is returned when the model reply holds no JSON object.
	ErrMalformedResponse = errors.New("model response is not a JSON object")
)

const (
	defaultProjectName  = "Unnamed Project"
	defaultClientName   = "Unknown Client"
	defaultTimeline     = "Not specified"
	defaultRequirements = "No requirements specified"
)

const extractionPromptTemplate = `Extract meeting details from the following Telegram message. Return ONLY valid JSON with these exact fields:

{
  "project_name": "string (required)",
  "client_details": {
    "name": "string (required)",
    "email": "string (optional, null if not found)",
    "company": "string (optional, null if not found)"
  },
  "meeting_date": "ISO 8601 date string (required, use current date if not specified)",
  "participants": ["array of participant names or usernames"],
  "estimated_budget": number (required, 0 if not specified),
  "timeline": "string (required, e.g., '2 weeks', '1 month', '3 months')",
  "requirements": "string (required, detailed project requirements)"
}

Message: %q

IMPORTANT:
- Extract all information accurately
- If a field is not found, use reasonable defaults (e.g., current date for meeting_date, 0 for budget, empty array for participants)
- Return ONLY the JSON object, no markdown, no explanations
- Ensure all required fields are present`

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(extractionPromptTemplate, text)
}

// ExtractMeeting turns a message into a meeting. A message that is already extracted
// and has its meeting returns that meeting without calling the model.
func (l *Labsync) ExtractMeeting(ctx context.Context, messageID string) (*model.Meeting, error) {
	ctx, span := tracer.Start(ctx, "ExtractMeeting")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	msg, err := l.datasource.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrEmptyMessage
	}

	if msg.ExtractionStatus == model.StatusExtracted {
		existing, err := l.datasource.GetMeetingByMessageID(ctx, msg.ID)
		if err == nil {
			return existing, nil
		}
		if !apierror.IsNotFound(err) {
			return nil, err
		}
	}

	meeting, err := l.extract(ctx, msg)
	if err != nil {
		span.RecordError(err)
		l.markFailed(ctx, msg.ID, model.StageExtraction)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"meeting_id": meeting.MeetingID,
	}).Info("meeting extracted")
	l.chain(ctx, model.StageDesign, meeting.MeetingID)
	return meeting, nil
}

func (l *Labsync) extract(ctx context.Context, msg *model.Message) (*model.Meeting, error) {
	if err := l.datasource.UpdateMessageStatus(ctx, msg.ID, model.StageExtraction, model.StatusPending); err != nil {
		return nil, err
	}

	text, err := l.generate(ctx, buildExtractionPrompt(msg.Text))
	if err != nil {
		return nil, fmt.Errorf("extract meeting from message %s: %w", msg.ID, err)
	}

	details, err := parseMeetingDetails(text, time.Now())
	if err != nil {
		return nil, err
	}

	if err := l.datasource.SaveMeetingDetails(ctx, msg.ID, details); err != nil {
		return nil, err
	}
	msg.MeetingDetails = details
	msg.ExtractionStatus = model.StatusExtracted
	l.notifier.Emit(ctx, EventStatusUpdated, StatusUpdate{
		MessageID: msg.ID,
		Stage:     model.StageExtraction,
		Status:    model.StatusExtracted,
		Message:   msg,
	})

	meeting, err := l.datasource.UpsertMeeting(ctx, &model.Meeting{
		MessageID:      msg.ID,
		MeetingDetails: *details,
		ExtractedAt:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	l.notifier.Emit(ctx, EventMeetingExtracted, MeetingExtracted{Meeting: meeting, MessageID: msg.ID})
	return meeting, nil
}

// rawMeeting is the model's reply before normalization. Fields are left untyped so
// wrong types fall back to defaults instead of failing the decode.
type rawMeeting struct {
	ProjectName     interface{} `json:"project_name"`
	ClientDetails   interface{} `json:"client_details"`
	MeetingDate     interface{} `json:"meeting_date"`
	Participants    interface{} `json:"participants"`
	EstimatedBudget interface{} `json:"estimated_budget"`
	Timeline        interface{} `json:"timeline"`
	Requirements    interface{} `json:"requirements"`
}

// parseMeetingDetails decodes and normalizes a model reply. now is the fallback meeting date.
func parseMeetingDetails(text string, now time.Time) (*model.MeetingDetails, error) {
	var raw rawMeeting
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	details := &model.MeetingDetails{
		ProjectName:     stringOr(raw.ProjectName, defaultProjectName),
		MeetingDate:     parseMeetingDate(raw.MeetingDate, now),
		Participants:    stringList(raw.Participants),
		EstimatedBudget: budgetAmount(raw.EstimatedBudget),
		Timeline:        stringOr(raw.Timeline, defaultTimeline),
		Requirements:    stringOr(raw.Requirements, defaultRequirements),
	}

	client, _ := raw.ClientDetails.(map[string]interface{})
	details.ClientDetails = model.ClientDetails{
		Name:    stringOr(client["name"], defaultClientName),
		Email:   optionalString(client["email"]),
		Company: optionalString(client["company"]),
	}
	return details, nil
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

func optionalString(v interface{}) *string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return ptr.String(strings.TrimSpace(s))
	}
	return nil
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch val := item.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(val, 'f', -1, 64))
		}
	}
	return out
}

// budgetAmount coerces an estimate to a non-negative whole amount. Strings may carry
// currency symbols and thousands separators. Estimates above model.MaxAmount count as unknown.
func budgetAmount(v interface{}) int64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(val)
		parsed, ok := leadingNumber(cleaned)
		if !ok {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if !model.InRange(f) {
		return 0
	}
	return int64(math.Round(f))
}

var meetingDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

// parseMeetingDate accepts ISO-like strings or epoch milliseconds. Anything else gives now.
func parseMeetingDate(v interface{}, now time.Time) time.Time {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range meetingDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case float64:
		if val > 0 && !math.IsInf(val, 0) {
			return time.UnixMilli(int64(val)).UTC()
		}
	}
	return now
}
