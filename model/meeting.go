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

package model

import "time"

type ClientDetails struct {
	Name    string  `json:"name"`
	Email   *string `json:"email,omitempty"`
	Company *string `json:"company,omitempty"`
}

// MeetingDetails is the normalized result of extracting a message.
type MeetingDetails struct {
	ProjectName     string        `json:"project_name"`
	ClientDetails   ClientDetails `json:"client_details"`
	MeetingDate     time.Time     `json:"meeting_date"`
	Participants    []string      `json:"participants"`
	EstimatedBudget int64         `json:"estimated_budget"`
	Timeline        string        `json:"timeline"`
	Requirements    string        `json:"requirements"`
}

// Meeting is derived from exactly one message. MessageID refers to Message.ID.
type Meeting struct {
	MeetingID string `json:"meeting_id"`
	MessageID string `json:"message_id"`
	MeetingDetails
	ExtractedAt time.Time `json:"extracted_at"`
	CreatedAt   time.Time `json:"created_at"`
}
